package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"leverclick/internal/game"
)

// PostgresStore archives results in leverclick.match_results and
// leverclick.match_standings. Currency is stored as NUMERIC.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveResult(ctx context.Context, result game.MatchResult) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO leverclick.match_results (match_id, started_at, finished_at, ticks)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id) DO UPDATE
		SET finished_at = EXCLUDED.finished_at, ticks = EXCLUDED.ticks
	`, result.MatchID, result.StartedAt, result.FinishedAt, result.Ticks)
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM leverclick.match_standings WHERE match_id = $1`, result.MatchID); err != nil {
		return fmt.Errorf("clear standings: %w", err)
	}

	batch := &pgx.Batch{}
	for _, row := range result.Standings {
		batch.Queue(`
			INSERT INTO leverclick.match_standings (match_id, rank, player_name, net_worth, balance, bankrupt)
			VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6)
		`, result.MatchID, row.Rank, row.Name, row.NetWorth.String(), row.Balance.String(), row.Bankrupt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert standings: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) RecentResults(ctx context.Context, limit int) ([]game.MatchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT match_id, started_at, finished_at, ticks
		FROM leverclick.match_results
		ORDER BY finished_at DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.MatchResult, 0)
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var res game.MatchResult
		if err := rows.Scan(&res.MatchID, &res.StartedAt, &res.FinishedAt, &res.Ticks); err != nil {
			return nil, err
		}
		index[res.MatchID] = len(out)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(out))
	for _, res := range out {
		ids = append(ids, res.MatchID.String())
	}
	sRows, err := s.pool.Query(ctx, `
		SELECT match_id, rank, player_name, net_worth::TEXT, balance::TEXT, bankrupt
		FROM leverclick.match_standings
		WHERE match_id = ANY($1::uuid[])
		ORDER BY match_id, rank
	`, ids)
	if err != nil {
		return nil, err
	}
	defer sRows.Close()
	for sRows.Next() {
		var (
			matchID           uuid.UUID
			row               game.StandingRow
			netWorth, balance string
		)
		if err := sRows.Scan(&matchID, &row.Rank, &row.Name, &netWorth, &balance, &row.Bankrupt); err != nil {
			return nil, err
		}
		row.NetWorth, _ = decimal.NewFromString(netWorth)
		row.Balance, _ = decimal.NewFromString(balance)
		if i, ok := index[matchID]; ok {
			out[i].Standings = append(out[i].Standings, row)
		}
	}
	return out, sRows.Err()
}

func (s *PostgresStore) TopPlayers(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT player_name,
		       COUNT(1),
		       COUNT(1) FILTER (WHERE rank = 1),
		       MAX(net_worth)::TEXT,
		       COUNT(1) FILTER (WHERE bankrupt)
		FROM leverclick.match_standings
		GROUP BY player_name
		ORDER BY 3 DESC, MAX(net_worth) DESC, player_name
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LeaderboardRow, 0)
	for rows.Next() {
		var row LeaderboardRow
		var best string
		if err := rows.Scan(&row.Name, &row.Matches, &row.Wins, &best, &row.Bankruptcies); err != nil {
			return nil, err
		}
		row.BestNetWorth, _ = decimal.NewFromString(best)
		out = append(out, row)
	}
	return out, rows.Err()
}
