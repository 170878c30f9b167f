package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

var ErrNoActiveBlock = errors.New("no active block")

const blockColumns = `id, sender_id, reason, created_by, violation_count, starts_at, ends_at, indefinite, lifted_at, lifted_by`

type BlockRepo struct {
	db Querier
}

type UpsertBlockParams struct {
	SenderID   int64
	Reason     string
	CreatedBy  string
	Count      int
	EndsAt     *time.Time
	Indefinite bool
	At         time.Time
}

func NewBlockRepo(db Querier) *BlockRepo {
	return &BlockRepo{db: db}
}

// Upsert keeps at most one open entry per sender. An expired open entry is
// closed first; an active one is extended to the later end or made indefinite.
// The boolean reports whether a new entry was created.
func (r *BlockRepo) Upsert(ctx context.Context, p UpsertBlockParams) (model.BlockEntry, bool, error) {
	if r.db == nil {
		return model.BlockEntry{}, false, fmt.Errorf("postgres pool is nil")
	}
	if p.SenderID <= 0 {
		return model.BlockEntry{}, false, fmt.Errorf("invalid sender id")
	}
	if !p.Indefinite && p.EndsAt == nil {
		return model.BlockEntry{}, false, fmt.Errorf("block end is required unless indefinite")
	}

	var (
		entry    model.BlockEntry
		inserted bool
	)
	err := WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
UPDATE block_entries
SET lifted_at = ends_at, lifted_by = 'expired'
WHERE sender_id = $1
  AND lifted_at IS NULL
  AND NOT indefinite
  AND ends_at <= $2
`, p.SenderID, p.At); err != nil {
			return fmt.Errorf("close expired block: %w", err)
		}

		row := tx.QueryRow(ctx, `
INSERT INTO block_entries (sender_id, reason, created_by, violation_count, starts_at, ends_at, indefinite)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (sender_id) WHERE lifted_at IS NULL DO UPDATE
SET
	ends_at = CASE
		WHEN block_entries.indefinite OR EXCLUDED.indefinite THEN NULL
		ELSE GREATEST(block_entries.ends_at, EXCLUDED.ends_at)
	END,
	indefinite = block_entries.indefinite OR EXCLUDED.indefinite,
	violation_count = GREATEST(block_entries.violation_count, EXCLUDED.violation_count),
	reason = EXCLUDED.reason
RETURNING `+blockColumns+`, (xmax = 0) AS inserted
`, p.SenderID, p.Reason, p.CreatedBy, p.Count, p.At, p.EndsAt, p.Indefinite)

		var err error
		entry, inserted, err = scanBlockWithFlag(row)
		if err != nil {
			return fmt.Errorf("upsert block: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.BlockEntry{}, false, err
	}
	return entry, inserted, nil
}

func (r *BlockRepo) GetActive(ctx context.Context, senderID int64, at time.Time) (model.BlockEntry, error) {
	if r.db == nil {
		return model.BlockEntry{}, fmt.Errorf("postgres pool is nil")
	}

	entry, err := scanBlock(r.db.QueryRow(ctx, `
SELECT `+blockColumns+`
FROM block_entries
WHERE sender_id = $1
  AND lifted_at IS NULL
  AND (indefinite OR ends_at > $2)
`, senderID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BlockEntry{}, ErrNoActiveBlock
		}
		return model.BlockEntry{}, fmt.Errorf("get active block: %w", err)
	}
	return entry, nil
}

func (r *BlockRepo) Lift(ctx context.Context, senderID int64, liftedBy string, at time.Time) (model.BlockEntry, error) {
	if r.db == nil {
		return model.BlockEntry{}, fmt.Errorf("postgres pool is nil")
	}

	entry, err := scanBlock(r.db.QueryRow(ctx, `
UPDATE block_entries
SET lifted_at = $2, lifted_by = $3
WHERE sender_id = $1 AND lifted_at IS NULL
RETURNING `+blockColumns, senderID, at, liftedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BlockEntry{}, ErrNoActiveBlock
		}
		return model.BlockEntry{}, fmt.Errorf("lift block: %w", err)
	}
	return entry, nil
}

func scanBlock(row pgx.Row) (model.BlockEntry, error) {
	var (
		entry    model.BlockEntry
		liftedBy *string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.SenderID,
		&entry.Reason,
		&entry.CreatedBy,
		&entry.Count,
		&entry.StartsAt,
		&entry.EndsAt,
		&entry.Indefinite,
		&entry.LiftedAt,
		&liftedBy,
	); err != nil {
		return model.BlockEntry{}, err
	}
	entry.LiftedBy = derefString(liftedBy)
	return entry, nil
}

func scanBlockWithFlag(row pgx.Row) (model.BlockEntry, bool, error) {
	var (
		entry    model.BlockEntry
		liftedBy *string
		inserted bool
	)
	if err := row.Scan(
		&entry.ID,
		&entry.SenderID,
		&entry.Reason,
		&entry.CreatedBy,
		&entry.Count,
		&entry.StartsAt,
		&entry.EndsAt,
		&entry.Indefinite,
		&entry.LiftedAt,
		&liftedBy,
		&inserted,
	); err != nil {
		return model.BlockEntry{}, false, err
	}
	entry.LiftedBy = derefString(liftedBy)
	return entry, inserted, nil
}
