package cli

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"leverclick/internal/game"
)

// LiveMessage is one frame of the match WebSocket feed.
type LiveMessage struct {
	Type   string           `json:"type"`
	Update game.MatchUpdate `json:"update"`
}

// Watch streams updates for matchID to fn until fn returns false, the server
// closes the socket or ctx is done.
func (c *Client) Watch(ctx context.Context, matchID string, fn func(LiveMessage) bool) error {
	wsURL, err := liveURL(c.BaseURL, matchID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg LiveMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if !fn(msg) {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}

func liveURL(base, matchID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + matchPath(matchID) + "/ws"
	return u.String(), nil
}
