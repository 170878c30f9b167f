package dto

type SubmitMessageRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Text        string `json:"text"`
}

type MessageResponse struct {
	MessageID     string `json:"message_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	RetryAfterSec int64  `json:"retry_after_sec,omitempty"`
}
