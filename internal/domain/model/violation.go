package model

import (
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
)

type Violation struct {
	ID         int64          `json:"id"`
	SenderID   int64          `json:"sender_id"`
	MessageID  string         `json:"message_id"`
	Severity   enums.Severity `json:"severity"`
	Rule       string         `json:"rule"`
	Excerpt    string         `json:"excerpt"`
	RecordedAt time.Time      `json:"recorded_at"`
}

type ViolationAction string

const (
	ViolationActionNone       ViolationAction = "none"
	ViolationActionFlag       ViolationAction = "flag"
	ViolationActionBlock      ViolationAction = "block"
	ViolationActionExtend     ViolationAction = "extend"
	ViolationActionIndefinite ViolationAction = "indefinite"
)

type ViolationOutcome struct {
	WindowCount   int64           `json:"window_count"`
	LifetimeCount int64           `json:"lifetime_count"`
	Action        ViolationAction `json:"action"`
	BlockedUntil  *time.Time      `json:"blocked_until,omitempty"`
	Indefinite    bool            `json:"indefinite"`
}

type ViolationFilter struct {
	SenderID *int64
	Severity *enums.Severity
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

type FlaggedSender struct {
	SenderID  int64     `json:"sender_id"`
	FlaggedAt time.Time `json:"flagged_at"`
}
