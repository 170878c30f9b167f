package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
)

var ErrUserNotFound = errors.New("user not found")

// UserDirectoryRepo reads the identity store mirror for tier and contact lookups.
type UserDirectoryRepo struct {
	db Querier
}

type ContactRecord struct {
	UserID         int64
	TelegramChatID int64
	WhatsAppPhone  string
}

func NewUserDirectoryRepo(db Querier) *UserDirectoryRepo {
	return &UserDirectoryRepo{db: db}
}

func (r *UserDirectoryRepo) GetTier(ctx context.Context, userID int64) (enums.Tier, error) {
	if r.db == nil {
		return "", fmt.Errorf("postgres pool is nil")
	}

	var tier string
	if err := r.db.QueryRow(ctx, `SELECT tier FROM user_accounts WHERE user_id = $1`, userID).Scan(&tier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get user tier: %w", err)
	}
	return enums.ParseTier(tier), nil
}

func (r *UserDirectoryRepo) GetContact(ctx context.Context, userID int64) (ContactRecord, error) {
	if r.db == nil {
		return ContactRecord{}, fmt.Errorf("postgres pool is nil")
	}

	var (
		rec    = ContactRecord{UserID: userID}
		chatID *int64
		phone  *string
	)
	if err := r.db.QueryRow(ctx, `
SELECT telegram_chat_id, whatsapp_phone FROM user_accounts WHERE user_id = $1
`, userID).Scan(&chatID, &phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContactRecord{}, ErrUserNotFound
		}
		return ContactRecord{}, fmt.Errorf("get user contact: %w", err)
	}
	if chatID != nil {
		rec.TelegramChatID = *chatID
	}
	rec.WhatsAppPhone = derefString(phone)
	return rec, nil
}
