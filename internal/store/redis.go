package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"leverclick/internal/game"
)

// CachedStore wraps a primary ResultStore with a Redis read-through cache.
// Saves go to the primary and invalidate every cached read.
type CachedStore struct {
	primary ResultStore
	rdb     redis.UniversalClient
	ttl     time.Duration
}

func NewCachedStore(primary ResultStore, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

// ConnectRedis parses a redis:// URL and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *CachedStore) SaveResult(ctx context.Context, result game.MatchResult) error {
	if err := s.primary.SaveResult(ctx, result); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) RecentResults(ctx context.Context, limit int) ([]game.MatchResult, error) {
	limit = clampLimit(limit)
	key := recentKey(limit)
	var cached []game.MatchResult
	if s.load(ctx, key, &cached) {
		return cached, nil
	}
	out, err := s.primary.RecentResults(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *CachedStore) TopPlayers(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	limit = clampLimit(limit)
	key := leaderboardKey(limit)
	var cached []LeaderboardRow
	if s.load(ctx, key, &cached) {
		return cached, nil
	}
	out, err := s.primary.TopPlayers(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *CachedStore) load(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, data, s.ttl)
	pipe.SAdd(ctx, cacheIndexKey, key)
	_, _ = pipe.Exec(ctx)
}

// invalidate drops every key recorded in the cache index.
func (s *CachedStore) invalidate(ctx context.Context) {
	keys, err := s.rdb.SMembers(ctx, cacheIndexKey).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	s.rdb.Del(ctx, append(keys, cacheIndexKey)...)
}

const cacheIndexKey = "leverclick:cache:keys"

func recentKey(limit int) string      { return fmt.Sprintf("leverclick:results:recent:%d", limit) }
func leaderboardKey(limit int) string { return fmt.Sprintf("leverclick:leaderboard:%d", limit) }
