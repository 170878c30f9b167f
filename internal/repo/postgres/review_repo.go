package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

var ErrReviewItemNotFound = errors.New("review item not found")

const reviewColumns = `ri.id, ri.message_id, ri.sender_id, m.body, ri.reason, ri.source, ri.enqueued_at, ri.decision, ri.reviewer_id, ri.note, ri.resolved_at`

type ReviewRepo struct {
	db Querier
}

type ResolveParams struct {
	ItemID     int64
	Decision   enums.ReviewDecision
	ReviewerID string
	Note       string
	At         time.Time
}

func NewReviewRepo(db Querier) *ReviewRepo {
	return &ReviewRepo{db: db}
}

// Enqueue inserts a pending item for the message, or returns the existing one.
func (r *ReviewRepo) Enqueue(ctx context.Context, item model.ReviewItem) (model.ReviewItem, bool, error) {
	if r.db == nil {
		return model.ReviewItem{}, false, fmt.Errorf("postgres pool is nil")
	}
	if item.MessageID == "" || item.SenderID <= 0 {
		return model.ReviewItem{}, false, fmt.Errorf("invalid review item payload")
	}

	tag, err := r.db.Exec(ctx, `
INSERT INTO review_items (message_id, sender_id, reason, source, enqueued_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (message_id) DO NOTHING
`, item.MessageID, item.SenderID, item.Reason, string(item.Source), item.EnqueuedAt)
	if err != nil {
		return model.ReviewItem{}, false, fmt.Errorf("enqueue review item: %w", err)
	}

	stored, err := r.GetByMessage(ctx, item.MessageID)
	if err != nil {
		return model.ReviewItem{}, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (r *ReviewRepo) Get(ctx context.Context, id int64) (model.ReviewItem, error) {
	return r.getOne(ctx, `WHERE ri.id = $1`, id)
}

func (r *ReviewRepo) GetByMessage(ctx context.Context, messageID string) (model.ReviewItem, error) {
	return r.getOne(ctx, `WHERE ri.message_id = $1`, messageID)
}

func (r *ReviewRepo) ListPending(ctx context.Context, limit, offset int) ([]model.ReviewItem, error) {
	if r.db == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
SELECT `+reviewColumns+`
FROM review_items ri
JOIN messages m ON m.id = ri.message_id
WHERE ri.decision IS NULL
ORDER BY ri.enqueued_at ASC, ri.id ASC
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pending review items: %w", err)
	}
	defer rows.Close()

	out := make([]model.ReviewItem, 0)
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review items: %w", err)
	}
	return out, nil
}

func (r *ReviewRepo) CountPending(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM review_items WHERE decision IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending review items: %w", err)
	}
	return n, nil
}

// Resolve records a decision once. The boolean is false when the item had
// already been resolved, in which case the stored item is returned unchanged.
func (r *ReviewRepo) Resolve(ctx context.Context, p ResolveParams) (model.ReviewItem, bool, error) {
	if r.db == nil {
		return model.ReviewItem{}, false, fmt.Errorf("postgres pool is nil")
	}
	if p.ItemID <= 0 || p.Decision == "" {
		return model.ReviewItem{}, false, fmt.Errorf("invalid resolve payload")
	}

	tag, err := r.db.Exec(ctx, `
UPDATE review_items
SET decision = $2, reviewer_id = $3, note = $4, resolved_at = $5
WHERE id = $1 AND decision IS NULL
`, p.ItemID, string(p.Decision), p.ReviewerID, nullString(p.Note), p.At)
	if err != nil {
		return model.ReviewItem{}, false, fmt.Errorf("resolve review item: %w", err)
	}

	item, err := r.Get(ctx, p.ItemID)
	if err != nil {
		return model.ReviewItem{}, false, err
	}
	return item, tag.RowsAffected() == 1, nil
}

func (r *ReviewRepo) getOne(ctx context.Context, where string, arg any) (model.ReviewItem, error) {
	if r.db == nil {
		return model.ReviewItem{}, fmt.Errorf("postgres pool is nil")
	}

	item, err := scanReviewItem(r.db.QueryRow(ctx, `
SELECT `+reviewColumns+`
FROM review_items ri
JOIN messages m ON m.id = ri.message_id
`+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReviewItem{}, ErrReviewItemNotFound
		}
		return model.ReviewItem{}, fmt.Errorf("get review item: %w", err)
	}
	return item, nil
}

func scanReviewItem(row pgx.Row) (model.ReviewItem, error) {
	var (
		item       model.ReviewItem
		source     string
		decision   *string
		reviewerID *string
		note       *string
	)
	if err := row.Scan(
		&item.ID,
		&item.MessageID,
		&item.SenderID,
		&item.Body,
		&item.Reason,
		&source,
		&item.EnqueuedAt,
		&decision,
		&reviewerID,
		&note,
		&item.ResolvedAt,
	); err != nil {
		return model.ReviewItem{}, err
	}
	item.Source = enums.EscalationSource(source)
	if decision != nil {
		d := enums.ReviewDecision(*decision)
		item.Decision = &d
	}
	item.ReviewerID = derefString(reviewerID)
	item.Note = derefString(note)
	return item, nil
}
