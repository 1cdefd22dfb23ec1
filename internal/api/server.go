package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leverclick/internal/auth"
	"leverclick/internal/game"
	"leverclick/internal/metrics"
	"leverclick/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type contextKey string

const playerContextKey contextKey = "player"

type Server struct {
	log     *slog.Logger
	game    *game.Service
	results store.ResultStore
	hub     *Hub
	tokens  *auth.Tokens
	mux     *chi.Mux
}

func New(logger *slog.Logger, gameSvc *game.Service, results store.ResultStore, hub *Hub, tokens *auth.Tokens) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = auth.NewTokens()
	}
	s := &Server{
		log:     logger,
		game:    gameSvc,
		results: results,
		hub:     hub,
		tokens:  tokens,
		mux:     chi.NewRouter(),
	}
	if gameSvc != nil {
		gameSvc.OnRemove(func(id uuid.UUID) {
			if n := tokens.RevokeMatch(id); n > 0 {
				logger.Info("match tokens revoked", "match_id", id.String(), "count", n)
			}
		})
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/matches/{id}/ws", s.handleMatchWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/generators", s.handleGenerators)
			r.Get("/leaderboard", s.handleLeaderboard)

			r.Post("/matches", s.handleCreateMatch)
			r.Get("/matches", s.handleListMatches)
			r.Get("/matches/{id}", s.handleMatchState)
			r.Delete("/matches/{id}", s.handleRemoveMatch)
			r.Post("/matches/{id}/start", s.handleStartMatch)
			r.Get("/matches/{id}/standings", s.handleStandings)
			r.Post("/matches/{id}/players", s.handleJoin)
			r.Get("/matches/{id}/players/{name}", s.handlePlayerState)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/matches/{id}/players/{name}/click", s.handleClick)
				r.Post("/matches/{id}/players/{name}/click/upgrade", s.handleUpgradeClick)
				r.Post("/matches/{id}/players/{name}/generators", s.handleBuyGenerator)
				r.Post("/matches/{id}/players/{name}/positions", s.handleOpenPosition)
				r.Delete("/matches/{id}/players/{name}/positions/{positionID}", s.handleClosePosition)
			})
		})
	})
}

// authMiddleware requires a bearer token issued for the {id}/{name} seat.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if claims.MatchID.String() != chi.URLParam(r, "id") || claims.Player != chi.URLParam(r, "name") {
			writeError(w, http.StatusForbidden, "token does not belong to this player")
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func playerFromContext(ctx context.Context) (auth.Claims, error) {
	claims, ok := ctx.Value(playerContextKey).(auth.Claims)
	if !ok {
		return auth.Claims{}, auth.ErrUnauthorized
	}
	return claims, nil
}

func (s *Server) matchFromRequest(r *http.Request) (*game.Match, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid match id", game.ErrMatchNotFound)
	}
	return s.game.Match(id)
}

func (s *Server) handleGenerators(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"generators": game.GeneratorCatalog()})
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Duration string `json:"duration"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	var duration time.Duration
	if strings.TrimSpace(in.Duration) != "" {
		d, err := time.ParseDuration(in.Duration)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "duration must be a positive Go duration such as 5m")
			return
		}
		duration = d
	}
	m := s.game.CreateMatch(duration)
	writeJSON(w, http.StatusCreated, m.View(s.game.Now()))
}

func (s *Server) handleListMatches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"matches": s.game.ListMatches()})
}

func (s *Server) handleMatchState(w http.ResponseWriter, r *http.Request) {
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.View(s.game.Now()))
}

func (s *Server) handleRemoveMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.game.RemoveMatch(m.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": m.ID})
}

func (s *Server) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.game.StartMatch(m.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.View(s.game.Now()))
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"match_id": m.ID, "status": m.Status(), "standings": m.Standings()})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := m.Join(in.Name, s.game.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, err := s.tokens.Issue(m.ID, view.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"match_id": m.ID, "player": view, "token": token})
}

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view, err := m.Snapshot(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	s.handleClickAction(w, r, (*game.Match).Click)
}

func (s *Server) handleUpgradeClick(w http.ResponseWriter, r *http.Request) {
	s.handleClickAction(w, r, (*game.Match).UpgradeClick)
}

func (s *Server) handleClickAction(w http.ResponseWriter, r *http.Request, action func(*game.Match, string) (game.ClickResult, error)) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := action(m, player.Player)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuyGenerator(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var in struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := m.BuyGenerator(player.Player, in.Kind, s.game.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var in struct {
		Target    string          `json:"target"`
		Direction string          `json:"direction"`
		Stake     decimal.Decimal `json:"stake"`
		Leverage  int32           `json:"leverage"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dir, err := game.ParseDirection(in.Direction)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := m.OpenPosition(game.OpenInput{
		Owner:     player.Player,
		Target:    in.Target,
		Direction: dir,
		Stake:     in.Stake,
		Leverage:  in.Leverage,
	}, s.game.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	positionID, err := uuid.Parse(chi.URLParam(r, "positionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}
	out, err := m.ClosePosition(player.Player, positionID, s.game.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "results archive not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	players, err := s.results.TopPlayers(r.Context(), limit)
	if err != nil {
		s.log.Error("leaderboard read failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recent, err := s.results.RecentResults(r.Context(), limit)
	if err != nil {
		s.log.Error("recent results read failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": players, "recent": recent})
}

func (s *Server) handleMatchWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live updates not configured")
		return
	}
	m, err := s.matchFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.hub.ServeMatch(w, r, m.ID, m.Current(s.game.Now()))
}

func writeDomainError(w http.ResponseWriter, err error) {
	if reason := game.ReasonOf(err); reason != "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"success": false,
			"reason":  reason,
			"error":   err.Error(),
		})
		return
	}
	switch {
	case errors.Is(err, game.ErrInvalidDirection), errors.Is(err, game.ErrUnknownGenerator),
		errors.Is(err, game.ErrInvalidName), errors.Is(err, game.ErrInvalidLeverage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrMatchNotFound), errors.Is(err, game.ErrPlayerNotFound), errors.Is(err, game.ErrPositionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrMatchFinished), errors.Is(err, game.ErrDuplicatePlayer):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
