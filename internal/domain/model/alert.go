package model

import (
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
)

type Alert struct {
	Kind       enums.AlertKind   `json:"kind"`
	Severity   enums.Severity    `json:"severity"`
	SenderID   int64             `json:"sender_id,omitempty"`
	MessageID  string            `json:"message_id,omitempty"`
	Summary    string            `json:"summary"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RaisedAt   time.Time         `json:"raised_at"`
}
