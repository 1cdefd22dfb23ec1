package game

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ServiceConfig struct {
	Rules    Rules
	Duration time.Duration
	Runner   RunnerConfig
	// Retain is how long a match that finished on its own stays listed
	// before it is removed. Defaults to ten minutes.
	Retain time.Duration
}

// Service is the registry of live matches. Each match gets its own runner
// goroutine once started; Shutdown stops them all.
type Service struct {
	log *slog.Logger
	cfg ServiceConfig

	mu       sync.RWMutex
	matches  map[uuid.UUID]*Match
	order    []uuid.UUID
	onRemove []func(uuid.UUID)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Runner.Clock == nil {
		cfg.Runner.Clock = SystemClock{}
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		log:     logger,
		cfg:     cfg,
		matches: make(map[uuid.UUID]*Match),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Service) Now() time.Time {
	return s.cfg.Runner.Clock.Now()
}

// CreateMatch registers a waiting match. A zero duration takes the service default.
func (s *Service) CreateMatch(duration time.Duration) *Match {
	if duration <= 0 {
		duration = s.cfg.Duration
	}
	m := NewMatch(MatchConfig{Rules: s.cfg.Rules, Duration: duration}, s.log, s.Now())

	s.mu.Lock()
	s.matches[m.ID] = m
	s.order = append(s.order, m.ID)
	s.mu.Unlock()

	s.log.Info("match created", "match_id", m.ID.String(), "duration", duration.String())
	return m
}

func (s *Service) Match(id uuid.UUID) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return m, nil
}

func (s *Service) ListMatches() []MatchView {
	s.mu.RLock()
	list := make([]*Match, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.matches[id])
	}
	s.mu.RUnlock()

	now := s.Now()
	out := make([]MatchView, 0, len(list))
	for _, m := range list {
		v := m.View(now)
		v.Events = nil
		out = append(out, v)
	}
	return out
}

// StartMatch moves a waiting match to running and launches its runner.
// Starting a running match is a no-op. Once the runner finishes the match it
// stays listed for the retention window and is then removed.
func (s *Service) StartMatch(id uuid.UUID) error {
	m, err := s.Match(id)
	if err != nil {
		return err
	}
	started, err := m.Start(s.Now())
	if err != nil || !started {
		return err
	}
	runner := NewRunner(m, s.cfg.Runner, s.log)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := runner.Run(s.ctx); err != nil {
			return
		}
		s.retire(m.ID)
	}()
	return nil
}

func (s *Service) retire(id uuid.UUID) {
	timer := time.NewTimer(s.cfg.Retain)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
	}
	if err := s.RemoveMatch(id); err == nil {
		s.log.Info("finished match retired", "match_id", id.String())
	}
}

// OnRemove registers fn to run with the id of every removed match.
func (s *Service) OnRemove(fn func(uuid.UUID)) {
	s.mu.Lock()
	s.onRemove = append(s.onRemove, fn)
	s.mu.Unlock()
}

// RemoveMatch finishes the match if needed and drops it from the registry.
func (s *Service) RemoveMatch(id uuid.UUID) error {
	s.mu.Lock()
	m, ok := s.matches[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	delete(s.matches, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	hooks := slices.Clone(s.onRemove)
	s.mu.Unlock()

	m.Finish(s.Now())
	for _, fn := range hooks {
		fn(id)
	}
	s.log.Info("match removed", "match_id", id.String())
	return nil
}

// Shutdown stops every runner and waits for them to return.
func (s *Service) Shutdown() {
	s.cancel()
	s.wg.Wait()
}
