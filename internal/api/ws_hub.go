package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"leverclick/internal/game"
	"leverclick/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

var errHubBacklogged = errors.New("websocket hub backlogged, update dropped")

// WSMessage is the JSON frame sent to WebSocket clients.
type WSMessage struct {
	Type   string           `json:"type"`
	Update game.MatchUpdate `json:"update"`
}

type wsClient struct {
	matchID uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
}

type broadcast struct {
	matchID uuid.UUID
	data    []byte
}

// Hub fans match updates out to the WebSocket clients watching each match.
// It implements game.Publisher.
type Hub struct {
	log        *slog.Logger
	clients    map[uuid.UUID]map[*wsClient]struct{}
	broadcast  chan broadcast
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	upgrader   websocket.Upgrader
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:        logger,
		clients:    make(map[uuid.UUID]map[*wsClient]struct{}),
		broadcast:  make(chan broadcast, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}
}

func (h *Hub) Name() string { return "websocket" }

// Run owns the client sets until ctx is cancelled. Must be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					h.drop(c)
				}
			}
			return

		case c := <-h.register:
			set, ok := h.clients[c.matchID]
			if !ok {
				set = make(map[*wsClient]struct{})
				h.clients[c.matchID] = set
			}
			set[c] = struct{}{}
			metrics.WebSocketClients.Inc()
			h.log.Debug("ws client connected", "match_id", c.matchID.String(), "watching", len(set))

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			for c := range h.clients[msg.matchID] {
				select {
				case c.send <- msg.data:
				default:
					// slow reader
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	set, ok := h.clients[c.matchID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.matchID)
	}
	close(c.send)
	metrics.WebSocketClients.Dec()
}

// Publish queues update for every client watching its match. It never blocks
// the tick; a full queue drops the update.
func (h *Hub) Publish(_ context.Context, update game.MatchUpdate) error {
	data, err := json.Marshal(WSMessage{Type: "match_update", Update: update})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- broadcast{matchID: update.MatchID, data: data}:
		return nil
	case <-h.done:
		return nil
	default:
		return errHubBacklogged
	}
}

// ServeMatch upgrades the request and streams updates of matchID, starting
// with initial.
func (h *Hub) ServeMatch(w http.ResponseWriter, r *http.Request, matchID uuid.UUID, initial game.MatchUpdate) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	c := &wsClient{matchID: matchID, conn: conn, send: make(chan []byte, sendBuffer)}
	if data, err := json.Marshal(WSMessage{Type: "snapshot", Update: initial}); err == nil {
		c.send <- data
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on c.conn.
func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
