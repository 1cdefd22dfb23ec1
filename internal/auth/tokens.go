// Package auth issues the bearer tokens that bind an HTTP caller to one
// player seat in one match.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("invalid or missing player token")

type Claims struct {
	MatchID  uuid.UUID `json:"match_id"`
	Player   string    `json:"player"`
	IssuedAt time.Time `json:"issued_at"`
}

// Tokens is an in-memory token registry. Tokens die with their match.
type Tokens struct {
	mu      sync.RWMutex
	byToken map[string]Claims
}

func NewTokens() *Tokens {
	return &Tokens{byToken: make(map[string]Claims)}
}

func (t *Tokens) Issue(matchID uuid.UUID, player string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := "lc_" + hex.EncodeToString(buf)
	t.mu.Lock()
	t.byToken[token] = Claims{MatchID: matchID, Player: player, IssuedAt: time.Now().UTC()}
	t.mu.Unlock()
	return token, nil
}

func (t *Tokens) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrUnauthorized
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	claims, ok := t.byToken[token]
	if !ok {
		return Claims{}, ErrUnauthorized
	}
	return claims, nil
}

// RevokeMatch drops every token issued for matchID.
func (t *Tokens) RevokeMatch(matchID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for token, claims := range t.byToken {
		if claims.MatchID == matchID {
			delete(t.byToken, token)
			n++
		}
	}
	return n
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
