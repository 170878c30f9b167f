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

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrStatusConflict  = errors.New("message status changed concurrently")
)

const messageColumns = `id, sender_id, recipient_id, body, status, reason, provider, provider_ref, created_at, updated_at`

type MessageRepo struct {
	db Querier
}

// TransitionParams moves a message to To only while its status is one of From.
// Empty optional fields leave the stored value untouched.
type TransitionParams struct {
	ID          string
	From        []enums.MessageStatus
	To          enums.MessageStatus
	Reason      string
	Provider    string
	ProviderRef string
	At          time.Time
}

func NewMessageRepo(db Querier) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Create(ctx context.Context, msg model.Message) (model.Message, error) {
	if r.db == nil {
		return model.Message{}, fmt.Errorf("postgres pool is nil")
	}
	if msg.ID == "" || msg.SenderID <= 0 || msg.RecipientID <= 0 {
		return model.Message{}, fmt.Errorf("invalid message payload")
	}

	row := r.db.QueryRow(ctx, `
INSERT INTO messages (id, sender_id, recipient_id, body, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING `+messageColumns, msg.ID, msg.SenderID, msg.RecipientID, msg.Body, string(msg.Status), msg.CreatedAt)

	created, err := scanMessage(row)
	if err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}
	return created, nil
}

func (r *MessageRepo) Get(ctx context.Context, id string) (model.Message, error) {
	if r.db == nil {
		return model.Message{}, fmt.Errorf("postgres pool is nil")
	}

	msg, err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, ErrMessageNotFound
		}
		return model.Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (r *MessageRepo) Transition(ctx context.Context, p TransitionParams) (model.Message, error) {
	if r.db == nil {
		return model.Message{}, fmt.Errorf("postgres pool is nil")
	}
	if p.ID == "" || len(p.From) == 0 || p.To == "" {
		return model.Message{}, fmt.Errorf("invalid transition payload")
	}

	from := make([]string, 0, len(p.From))
	for _, s := range p.From {
		from = append(from, string(s))
	}

	row := r.db.QueryRow(ctx, `
UPDATE messages
SET
	status = $2,
	reason = COALESCE($3, reason),
	provider = COALESCE($4, provider),
	provider_ref = COALESCE($5, provider_ref),
	updated_at = $6
WHERE id = $1
  AND status = ANY($7)
RETURNING `+messageColumns,
		p.ID, string(p.To), nullString(p.Reason), nullString(p.Provider), nullString(p.ProviderRef), p.At, from)

	msg, err := scanMessage(row)
	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, fmt.Errorf("transition message: %w", err)
	}

	current, getErr := r.Get(ctx, p.ID)
	if getErr != nil {
		return model.Message{}, getErr
	}
	return current, fmt.Errorf("%w: %s is %s", ErrStatusConflict, p.ID, current.Status)
}

// ListStale returns messages sitting in one of the statuses since before
// cutoff, oldest first. A pending_review message is included once its review
// item carries a decision, since nothing else will move it.
func (r *MessageRepo) ListStale(ctx context.Context, statuses []enums.MessageStatus, cutoff time.Time, limit int) ([]model.Message, error) {
	if r.db == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	raw := make([]string, 0, len(statuses))
	for _, s := range statuses {
		raw = append(raw, string(s))
	}

	rows, err := r.db.Query(ctx, `
SELECT `+messageColumns+`
FROM messages m
WHERE m.updated_at < $2
  AND (
	m.status = ANY($1)
	OR (m.status = $4 AND EXISTS (
		SELECT 1 FROM review_items ri
		WHERE ri.message_id = m.id AND ri.decision IS NOT NULL
	))
  )
ORDER BY m.updated_at ASC, m.id ASC
LIMIT $3
`, raw, cutoff, limit, string(enums.MessageStatusPendingReview))
	if err != nil {
		return nil, fmt.Errorf("list stale messages: %w", err)
	}
	defer rows.Close()

	out := make([]model.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale messages: %w", err)
	}
	return out, nil
}

func scanMessage(row pgx.Row) (model.Message, error) {
	var (
		msg         model.Message
		status      string
		reason      *string
		provider    *string
		providerRef *string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.RecipientID,
		&msg.Body,
		&status,
		&reason,
		&provider,
		&providerRef,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return model.Message{}, err
	}
	msg.Status = enums.MessageStatus(status)
	msg.Reason = derefString(reason)
	msg.Provider = derefString(provider)
	msg.ProviderRef = derefString(providerRef)
	return msg, nil
}
