package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

type AuditRepo struct {
	db Querier
}

func NewAuditRepo(db Querier) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, e model.AuditEntry) error {
	if r.db == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if e.Stage == "" || e.Outcome == "" {
		return fmt.Errorf("invalid audit entry payload")
	}

	var (
		messageID *string
		senderID  *int64
		details   []byte
	)
	if e.MessageID != "" {
		messageID = &e.MessageID
	}
	if e.SenderID > 0 {
		senderID = &e.SenderID
	}
	if len(e.Details) > 0 {
		details = []byte(e.Details)
	}

	if _, err := r.db.Exec(ctx, `
INSERT INTO audit_entries (message_id, sender_id, stage, outcome, actor, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, messageID, senderID, string(e.Stage), e.Outcome, e.Actor, details, e.CreatedAt); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListBetween returns entries created in [from, to) ordered by id.
func (r *AuditRepo) ListBetween(ctx context.Context, from, to time.Time, afterID int64, limit int) ([]model.AuditEntry, error) {
	if r.db == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := r.db.Query(ctx, `
SELECT id, message_id::text, sender_id, stage, outcome, actor, details, created_at
FROM audit_entries
WHERE created_at >= $1 AND created_at < $2 AND id > $3
ORDER BY id ASC
LIMIT $4
`, from, to, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e         model.AuditEntry
			messageID *string
			senderID  *int64
			stage     string
			details   []byte
		)
		if err := rows.Scan(&e.ID, &messageID, &senderID, &stage, &e.Outcome, &e.Actor, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.MessageID = derefString(messageID)
		if senderID != nil {
			e.SenderID = *senderID
		}
		e.Stage = enums.AuditStage(stage)
		e.Details = details
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func (r *AuditRepo) ListByMessage(ctx context.Context, messageID string) ([]model.AuditEntry, error) {
	if r.db == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.db.Query(ctx, `
SELECT id, stage, outcome, actor, details, created_at
FROM audit_entries
WHERE message_id = $1
ORDER BY id ASC
`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list message audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e       model.AuditEntry
			stage   string
			details []byte
		)
		if err := rows.Scan(&e.ID, &stage, &e.Outcome, &e.Actor, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.MessageID = messageID
		e.Stage = enums.AuditStage(stage)
		e.Details = details
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
