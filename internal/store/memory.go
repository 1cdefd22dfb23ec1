package store

import (
	"context"
	"sync"

	"leverclick/internal/game"
)

// MemoryStore keeps results in process. Used when no DATABASE_URL is set.
type MemoryStore struct {
	mu      sync.RWMutex
	results []game.MatchResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveResult(_ context.Context, result game.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.results {
		if existing.MatchID == result.MatchID {
			s.results[i] = result
			return nil
		}
	}
	s.results = append(s.results, result)
	return nil
}

// RecentResults returns the newest results first.
func (s *MemoryStore) RecentResults(_ context.Context, limit int) ([]game.MatchResult, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]game.MatchResult, 0, limit)
	for i := len(s.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.results[i])
	}
	return out, nil
}

func (s *MemoryStore) TopPlayers(_ context.Context, limit int) ([]LeaderboardRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregate(s.results, clampLimit(limit)), nil
}
