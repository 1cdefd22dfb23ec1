package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leverclick/internal/game"
)

func result(finished time.Time, rows ...game.StandingRow) game.MatchResult {
	for i := range rows {
		rows[i].Rank = int64(i + 1)
	}
	return game.MatchResult{MatchID: uuid.New(), StartedAt: finished.Add(-10 * time.Minute), FinishedAt: finished, Standings: rows}
}

func row(name string, netWorth int64, bankrupt bool) game.StandingRow {
	return game.StandingRow{Name: name, NetWorth: decimal.NewFromInt(netWorth), Balance: decimal.NewFromInt(netWorth), Bankrupt: bankrupt}
}

func TestMemoryStoreRecentResults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := result(base, row("alice", 900, false), row("bob", 100, true))
	second := result(base.Add(time.Hour), row("bob", 1200, false), row("alice", 300, false))
	for _, r := range []game.MatchResult{first, second} {
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	// saving the same match again replaces it
	if err := s.SaveResult(ctx, first); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := s.RecentResults(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].MatchID != second.MatchID {
		t.Fatalf("expected newest first, got %d results", len(got))
	}
	if got, _ := s.RecentResults(ctx, 1); len(got) != 1 {
		t.Fatalf("limit ignored: %d", len(got))
	}
}

func TestMemoryStoreTopPlayers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	results := []game.MatchResult{
		result(base, row("alice", 900, false), row("bob", 100, true)),
		result(base, row("bob", 1200, false), row("alice", 300, false)),
		result(base, row("alice", 700, false), row("carol", 0, true)),
	}
	for _, r := range results {
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	rows, err := s.TopPlayers(ctx, 0)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	tests := []struct {
		name         string
		matches      int64
		wins         int64
		best         int64
		bankruptcies int64
	}{
		{name: "alice", matches: 3, wins: 2, best: 900},
		{name: "bob", matches: 2, wins: 1, best: 1200, bankruptcies: 1},
		{name: "carol", matches: 1, wins: 0, best: 0, bankruptcies: 1},
	}
	if len(rows) != len(tests) {
		t.Fatalf("rows=%d want %d", len(rows), len(tests))
	}
	for i, tc := range tests {
		got := rows[i]
		if got.Name != tc.name || got.Matches != tc.matches || got.Wins != tc.wins || got.Bankruptcies != tc.bankruptcies {
			t.Fatalf("row %d = %+v, want %+v", i, got, tc)
		}
		if !got.BestNetWorth.Equal(decimal.NewFromInt(tc.best)) {
			t.Fatalf("%s best=%s want %d", tc.name, got.BestNetWorth, tc.best)
		}
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{{0, defaultLimit}, {-3, defaultLimit}, {5, 5}, {1000, maxLimit}}
	for _, tc := range tests {
		if got := clampLimit(tc.in); got != tc.want {
			t.Fatalf("clampLimit(%d)=%d want %d", tc.in, got, tc.want)
		}
	}
}
