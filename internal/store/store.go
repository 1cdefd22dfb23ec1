// Package store archives finished-match standings. Live match state never
// touches it; only results survive a match.
package store

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"leverclick/internal/game"
)

// ResultStore is the archive behind the leaderboard.
type ResultStore interface {
	SaveResult(ctx context.Context, result game.MatchResult) error
	RecentResults(ctx context.Context, limit int) ([]game.MatchResult, error)
	TopPlayers(ctx context.Context, limit int) ([]LeaderboardRow, error)
}

// LeaderboardRow aggregates a player's archived results across matches.
type LeaderboardRow struct {
	Name         string          `json:"name"`
	Matches      int64           `json:"matches"`
	Wins         int64           `json:"wins"`
	BestNetWorth decimal.Decimal `json:"best_net_worth"`
	Bankruptcies int64           `json:"bankruptcies"`
}

const (
	defaultLimit = 20
	maxLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// aggregate folds standings into leaderboard rows, ranked by wins then best
// net worth then name.
func aggregate(results []game.MatchResult, limit int) []LeaderboardRow {
	byName := make(map[string]*LeaderboardRow)
	for _, res := range results {
		for _, row := range res.Standings {
			lb, ok := byName[row.Name]
			if !ok {
				lb = &LeaderboardRow{Name: row.Name, BestNetWorth: row.NetWorth}
				byName[row.Name] = lb
			}
			lb.Matches++
			if row.Rank == 1 {
				lb.Wins++
			}
			if row.Bankrupt {
				lb.Bankruptcies++
			}
			if row.NetWorth.GreaterThan(lb.BestNetWorth) {
				lb.BestNetWorth = row.NetWorth
			}
		}
	}
	out := make([]LeaderboardRow, 0, len(byName))
	for _, lb := range byName {
		out = append(out, *lb)
	}
	sortLeaderboard(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortLeaderboard(rows []LeaderboardRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		if c := rows[i].BestNetWorth.Cmp(rows[j].BestNetWorth); c != 0 {
			return c > 0
		}
		return rows[i].Name < rows[j].Name
	})
}
