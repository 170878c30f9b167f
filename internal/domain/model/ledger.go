package model

import "time"

type CostEntry struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	MessageID  string    `json:"message_id"`
	Provider   string    `json:"provider"`
	Amount     float64   `json:"amount"`
	Period     string    `json:"period"`
	RecordedAt time.Time `json:"recorded_at"`
}

type SenderCost struct {
	SenderID int64   `json:"sender_id"`
	Total    float64 `json:"total"`
	Messages int64   `json:"messages"`
}

type CostReport struct {
	Period     string       `json:"period"`
	Total      float64      `json:"total"`
	Messages   int64        `json:"messages"`
	TopSenders []SenderCost `json:"top_senders"`
}
