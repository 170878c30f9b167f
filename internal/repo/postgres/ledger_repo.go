package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

var ErrCostEntryNotFound = errors.New("cost entry not found")

type LedgerRepo struct {
	db Querier
}

func NewLedgerRepo(db Querier) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// Insert writes the cost entry for a message once. A second call for the
// same message is a no-op and reports false.
func (r *LedgerRepo) Insert(ctx context.Context, e model.CostEntry) (bool, error) {
	if r.db == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if e.MessageID == "" || e.SenderID <= 0 || e.Period == "" {
		return false, fmt.Errorf("invalid cost entry payload")
	}

	tag, err := r.db.Exec(ctx, `
INSERT INTO cost_ledger (message_id, sender_id, provider, amount, period, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (message_id) DO NOTHING
`, e.MessageID, e.SenderID, e.Provider, e.Amount, e.Period, e.RecordedAt)
	if err != nil {
		return false, fmt.Errorf("insert cost entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LedgerRepo) GetByMessage(ctx context.Context, messageID string) (model.CostEntry, error) {
	if r.db == nil {
		return model.CostEntry{}, fmt.Errorf("postgres pool is nil")
	}

	var e model.CostEntry
	err := r.db.QueryRow(ctx, `
SELECT id, sender_id, message_id::text, provider, amount::float8, period, recorded_at
FROM cost_ledger
WHERE message_id = $1
`, messageID).Scan(&e.ID, &e.SenderID, &e.MessageID, &e.Provider, &e.Amount, &e.Period, &e.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CostEntry{}, ErrCostEntryNotFound
		}
		return model.CostEntry{}, fmt.Errorf("get cost entry: %w", err)
	}
	return e, nil
}

func (r *LedgerRepo) SenderTotal(ctx context.Context, senderID int64, period string) (float64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var total float64
	if err := r.db.QueryRow(ctx, `
SELECT COALESCE(SUM(amount), 0)::float8
FROM cost_ledger
WHERE sender_id = $1 AND period = $2
`, senderID, period).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum sender cost: %w", err)
	}
	return total, nil
}

func (r *LedgerRepo) PeriodTotal(ctx context.Context, period string) (float64, int64, error) {
	if r.db == nil {
		return 0, 0, fmt.Errorf("postgres pool is nil")
	}

	var (
		total float64
		count int64
	)
	if err := r.db.QueryRow(ctx, `
SELECT COALESCE(SUM(amount), 0)::float8, COUNT(*)
FROM cost_ledger
WHERE period = $1
`, period).Scan(&total, &count); err != nil {
		return 0, 0, fmt.Errorf("sum period cost: %w", err)
	}
	return total, count, nil
}

func (r *LedgerRepo) TopSenders(ctx context.Context, period string, limit int) ([]model.SenderCost, error) {
	if r.db == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx, `
SELECT sender_id, SUM(amount)::float8 AS total, COUNT(*) AS messages
FROM cost_ledger
WHERE period = $1
GROUP BY sender_id
ORDER BY total DESC, sender_id ASC
LIMIT $2
`, period, limit)
	if err != nil {
		return nil, fmt.Errorf("top senders by cost: %w", err)
	}
	defer rows.Close()

	out := make([]model.SenderCost, 0, limit)
	for rows.Next() {
		var sc model.SenderCost
		if err := rows.Scan(&sc.SenderID, &sc.Total, &sc.Messages); err != nil {
			return nil, fmt.Errorf("scan sender cost: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sender costs: %w", err)
	}
	return out, nil
}
