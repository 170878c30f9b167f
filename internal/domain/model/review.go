package model

import (
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
)

type ReviewItem struct {
	ID         int64                  `json:"id"`
	MessageID  string                 `json:"message_id"`
	SenderID   int64                  `json:"sender_id"`
	Body       string                 `json:"body"`
	Reason     string                 `json:"reason"`
	Source     enums.EscalationSource `json:"source"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
	Decision   *enums.ReviewDecision  `json:"decision,omitempty"`
	ReviewerID string                 `json:"reviewer_id,omitempty"`
	Note       string                 `json:"note,omitempty"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
}

func (r ReviewItem) Resolved() bool {
	return r.Decision != nil
}

type ReviewResolution struct {
	Item            ReviewItem          `json:"item"`
	MessageStatus   enums.MessageStatus `json:"message_status"`
	AlreadyResolved bool                `json:"already_resolved"`
}
