package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arialabs/aria/internal/providers"
)

// CostStore implements providers.CostStore against Postgres, giving the
// cost dashboard (GET /api/costs) durable history across restarts.
type CostStore struct {
	pool *pgxpool.Pool
}

func NewCostStore(pool *pgxpool.Pool) *CostStore {
	return &CostStore{pool: pool}
}

func (s *CostStore) Record(ctx context.Context, r providers.CostRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cost_records (session_id, model, input_tokens, output_tokens, cost_usd, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		r.SessionID, r.Model, r.InputTokens, r.OutputTokens, r.Cost, r.At)
	return err
}

func (s *CostStore) SpentSince(ctx context.Context, since time.Time) (float64, error) {
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM cost_records WHERE recorded_at >= $1`, since)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *CostStore) TopModels(ctx context.Context, since time.Time, limit int) ([]providers.ModelSpend, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT model, SUM(cost_usd)
		FROM cost_records WHERE recorded_at >= $1
		GROUP BY model ORDER BY SUM(cost_usd) DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []providers.ModelSpend
	for rows.Next() {
		var m providers.ModelSpend
		if err := rows.Scan(&m.Model, &m.Cost); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *CostStore) TotalRequests(ctx context.Context, since time.Time) (int, error) {
	row := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cost_records WHERE recorded_at >= $1`, since)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
