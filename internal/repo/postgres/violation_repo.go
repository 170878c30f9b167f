package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type ViolationRepo struct {
	db Querier
}

func NewViolationRepo(db Querier) *ViolationRepo {
	return &ViolationRepo{db: db}
}

func (r *ViolationRepo) Insert(ctx context.Context, v model.Violation) (model.Violation, error) {
	if r.db == nil {
		return model.Violation{}, fmt.Errorf("postgres pool is nil")
	}
	if v.SenderID <= 0 || v.MessageID == "" || v.Severity == "" {
		return model.Violation{}, fmt.Errorf("invalid violation payload")
	}

	row := r.db.QueryRow(ctx, `
INSERT INTO violations (sender_id, message_id, severity, rule, excerpt, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, sender_id, message_id, severity, rule, excerpt, recorded_at
`, v.SenderID, v.MessageID, string(v.Severity), v.Rule, v.Excerpt, v.RecordedAt)

	out, err := scanViolation(row)
	if err != nil {
		return model.Violation{}, fmt.Errorf("insert violation: %w", err)
	}
	return out, nil
}

func (r *ViolationRepo) List(ctx context.Context, f model.ViolationFilter) ([]model.Violation, error) {
	if r.db == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	query, args, err := buildViolationQuery(f)
	if err != nil {
		return nil, fmt.Errorf("build violation query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	out := make([]model.Violation, 0)
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return out, nil
}

// CountSince counts violations recorded for a sender at or after since.
func (r *ViolationRepo) CountSince(ctx context.Context, senderID int64, since time.Time) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var n int64
	if err := r.db.QueryRow(ctx, `
SELECT COUNT(*) FROM violations WHERE sender_id = $1 AND recorded_at >= $2
`, senderID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return n, nil
}

func buildViolationQuery(f model.ViolationFilter) (string, []interface{}, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := psql.
		Select("id", "sender_id", "message_id", "severity", "rule", "excerpt", "recorded_at").
		From("violations")

	if f.SenderID != nil {
		q = q.Where(squirrel.Eq{"sender_id": *f.SenderID})
	}
	if f.Severity != nil {
		q = q.Where(squirrel.Eq{"severity": string(*f.Severity)})
	}
	if f.Since != nil {
		q = q.Where(squirrel.GtOrEq{"recorded_at": *f.Since})
	}
	if f.Until != nil {
		q = q.Where(squirrel.Lt{"recorded_at": *f.Until})
	}

	return q.
		OrderBy("recorded_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
}

func scanViolation(row pgx.Row) (model.Violation, error) {
	var (
		v        model.Violation
		severity string
	)
	if err := row.Scan(&v.ID, &v.SenderID, &v.MessageID, &severity, &v.Rule, &v.Excerpt, &v.RecordedAt); err != nil {
		return model.Violation{}, err
	}
	v.Severity = enums.Severity(severity)
	return v, nil
}
