package model

import "time"

type BlockEntry struct {
	ID         int64      `json:"id"`
	SenderID   int64      `json:"sender_id"`
	Reason     string     `json:"reason"`
	CreatedBy  string     `json:"created_by"`
	Count      int        `json:"violation_count"`
	StartsAt   time.Time  `json:"starts_at"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
	Indefinite bool       `json:"indefinite"`
	LiftedAt   *time.Time `json:"lifted_at,omitempty"`
	LiftedBy   string     `json:"lifted_by,omitempty"`
}

// ActiveAt reports whether the block is in force at t.
func (b BlockEntry) ActiveAt(t time.Time) bool {
	if b.LiftedAt != nil {
		return false
	}
	if b.Indefinite || b.EndsAt == nil {
		return true
	}
	return t.Before(*b.EndsAt)
}

type BlockStatus struct {
	Blocked    bool       `json:"blocked"`
	Until      *time.Time `json:"until,omitempty"`
	Indefinite bool       `json:"indefinite"`
	Reason     string     `json:"reason,omitempty"`
}

// RetryAfter returns the remaining block duration or zero for indefinite or inactive blocks.
func (s BlockStatus) RetryAfter(now time.Time) time.Duration {
	if !s.Blocked || s.Indefinite || s.Until == nil {
		return 0
	}
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
