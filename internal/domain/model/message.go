package model

import (
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
)

type Message struct {
	ID          string              `json:"id"`
	SenderID    int64               `json:"sender_id"`
	RecipientID int64               `json:"recipient_id"`
	Body        string              `json:"body"`
	Status      enums.MessageStatus `json:"status"`
	Reason      string              `json:"reason,omitempty"`
	Provider    string              `json:"provider,omitempty"`
	ProviderRef string              `json:"provider_ref,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// SubmitResult is what a sender sees after submission. Internal rule names
// and classifier output are never included.
type SubmitResult struct {
	MessageID     string              `json:"message_id"`
	Status        enums.MessageStatus `json:"status"`
	Reason        string              `json:"reason,omitempty"`
	RetryAfterSec int64               `json:"retry_after_sec,omitempty"`
}
