package dto

import (
	"encoding/json"
	"time"
)

type ReviewItem struct {
	ID         int64      `json:"id"`
	MessageID  string     `json:"message_id"`
	SenderID   int64      `json:"sender_id"`
	Preview    string     `json:"preview"`
	Reason     string     `json:"reason"`
	Source     string     `json:"source"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	Decision   *string    `json:"decision,omitempty"`
	ReviewerID string     `json:"reviewer_id,omitempty"`
	Note       string     `json:"note,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type ReviewListResponse struct {
	Items     []ReviewItem `json:"items"`
	Pending   int64        `json:"pending"`
	ETABucket string       `json:"eta_bucket"`
}

type ResolveReviewRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

type ResolveReviewResponse struct {
	Item            ReviewItem `json:"item"`
	MessageStatus   string     `json:"message_status"`
	AlreadyResolved bool       `json:"already_resolved"`
}

type Violation struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	MessageID  string    `json:"message_id"`
	Severity   string    `json:"severity"`
	Rule       string    `json:"rule"`
	Excerpt    string    `json:"excerpt"`
	RecordedAt time.Time `json:"recorded_at"`
}

type ViolationListResponse struct {
	Items []Violation `json:"items"`
}

type FlaggedSender struct {
	SenderID  int64     `json:"sender_id"`
	FlaggedAt time.Time `json:"flagged_at"`
}

type FlaggedSendersResponse struct {
	Items []FlaggedSender `json:"items"`
}

type ViolationSummaryResponse struct {
	Violations1h  int64 `json:"violations_1h"`
	AutoBlocks24h int64 `json:"auto_blocks_24h"`
	Escalations1h int64 `json:"review_escalations_1h"`
	FlaggedTotal  int64 `json:"flagged_total"`
}

// BlockUserRequest takes a Go duration string ("72h"). An empty duration
// applies the default admin block.
type BlockUserRequest struct {
	Duration   string `json:"duration"`
	Indefinite bool   `json:"indefinite"`
	Reason     string `json:"reason"`
}

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

type SenderCost struct {
	SenderID int64   `json:"sender_id"`
	Total    float64 `json:"total"`
	Messages int64   `json:"messages"`
}

type CostReportResponse struct {
	Period     string       `json:"period"`
	Total      float64      `json:"total"`
	Messages   int64        `json:"messages"`
	TopSenders []SenderCost `json:"top_senders"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type AuditEntry struct {
	ID        int64           `json:"id"`
	Stage     string          `json:"stage"`
	Outcome   string          `json:"outcome"`
	Actor     string          `json:"actor"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type AuditTrailResponse struct {
	MessageID string       `json:"message_id"`
	Entries   []AuditEntry `json:"entries"`
}
