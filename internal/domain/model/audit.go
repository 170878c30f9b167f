package model

import (
	"encoding/json"
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
)

type AuditEntry struct {
	ID        int64            `json:"id"`
	MessageID string           `json:"message_id,omitempty"`
	SenderID  int64            `json:"sender_id,omitempty"`
	Stage     enums.AuditStage `json:"stage"`
	Outcome   string           `json:"outcome"`
	Actor     string           `json:"actor"`
	Details   json.RawMessage  `json:"details,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
