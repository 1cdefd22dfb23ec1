package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leverclick/internal/game"
	"leverclick/internal/store"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx response. Reason is set for rejected trades and
// purchases.
type APIError struct {
	Status  int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("rejected (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// ReasonOf returns the rejection reason carried by err, if any.
func ReasonOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason
	}
	return ""
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type JoinResult struct {
	MatchID uuid.UUID        `json:"match_id"`
	Player  game.AccountView `json:"player"`
	Token   string           `json:"token"`
}

type Leaderboard struct {
	Players []store.LeaderboardRow `json:"players"`
	Recent  []game.MatchResult     `json:"recent"`
}

func (c *Client) CreateMatch(ctx context.Context, duration time.Duration) (game.MatchView, error) {
	var out game.MatchView
	body := map[string]any{}
	if duration > 0 {
		body["duration"] = duration.String()
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/matches", "", body, &out)
	return out, err
}

func (c *Client) ListMatches(ctx context.Context) ([]game.MatchView, error) {
	var out struct {
		Matches []game.MatchView `json:"matches"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/matches", "", nil, &out)
	return out.Matches, err
}

func (c *Client) MatchState(ctx context.Context, matchID string) (game.MatchView, error) {
	var out game.MatchView
	err := c.jsonRequest(ctx, http.MethodGet, matchPath(matchID), "", nil, &out)
	return out, err
}

func (c *Client) StartMatch(ctx context.Context, matchID string) (game.MatchView, error) {
	var out game.MatchView
	err := c.jsonRequest(ctx, http.MethodPost, matchPath(matchID)+"/start", "", nil, &out)
	return out, err
}

func (c *Client) RemoveMatch(ctx context.Context, matchID string) error {
	return c.jsonRequest(ctx, http.MethodDelete, matchPath(matchID), "", nil, nil)
}

func (c *Client) Standings(ctx context.Context, matchID string) ([]game.StandingRow, error) {
	var out struct {
		Standings []game.StandingRow `json:"standings"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, matchPath(matchID)+"/standings", "", nil, &out)
	return out.Standings, err
}

func (c *Client) Join(ctx context.Context, matchID, name string) (JoinResult, error) {
	var out JoinResult
	err := c.jsonRequest(ctx, http.MethodPost, matchPath(matchID)+"/players", "", map[string]any{
		"name": name,
	}, &out)
	return out, err
}

func (c *Client) PlayerState(ctx context.Context, s Session) (game.AccountView, error) {
	var out game.AccountView
	err := c.jsonRequest(ctx, http.MethodGet, playerPath(s), "", nil, &out)
	return out, err
}

func (c *Client) Click(ctx context.Context, s Session) (game.ClickResult, error) {
	var out game.ClickResult
	err := c.jsonRequest(ctx, http.MethodPost, playerPath(s)+"/click", s.Token, nil, &out)
	return out, err
}

func (c *Client) UpgradeClick(ctx context.Context, s Session) (game.ClickResult, error) {
	var out game.ClickResult
	err := c.jsonRequest(ctx, http.MethodPost, playerPath(s)+"/click/upgrade", s.Token, nil, &out)
	return out, err
}

func (c *Client) BuyGenerator(ctx context.Context, s Session, kind string) (game.BuyResult, error) {
	var out game.BuyResult
	err := c.jsonRequest(ctx, http.MethodPost, playerPath(s)+"/generators", s.Token, map[string]any{
		"kind": kind,
	}, &out)
	return out, err
}

func (c *Client) OpenPosition(ctx context.Context, s Session, target string, dir game.Direction, stake decimal.Decimal, leverage int32) (game.OpenResult, error) {
	var out game.OpenResult
	err := c.jsonRequest(ctx, http.MethodPost, playerPath(s)+"/positions", s.Token, map[string]any{
		"target":    target,
		"direction": string(dir),
		"stake":     stake,
		"leverage":  leverage,
	}, &out)
	return out, err
}

func (c *Client) ClosePosition(ctx context.Context, s Session, positionID uuid.UUID) (game.CloseResult, error) {
	var out game.CloseResult
	err := c.jsonRequest(ctx, http.MethodDelete, playerPath(s)+"/positions/"+positionID.String(), s.Token, nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) (Leaderboard, error) {
	path := "/v1/leaderboard"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out Leaderboard
	err := c.jsonRequest(ctx, http.MethodGet, path, "", nil, &out)
	return out, err
}

func (c *Client) Generators(ctx context.Context) ([]game.GeneratorView, error) {
	var out struct {
		Generators []game.GeneratorView `json:"generators"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/generators", "", nil, &out)
	return out.Generators, err
}

func matchPath(matchID string) string {
	return "/v1/matches/" + url.PathEscape(strings.TrimSpace(matchID))
}

func playerPath(s Session) string {
	return matchPath(s.MatchID) + "/players/" + url.PathEscape(s.Player)
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(status int, raw []byte) error {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	var body struct {
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Reason = body.Reason
		if body.Error != "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}
