package enums

type MessageStatus string

const (
	MessageStatusSubmitted      MessageStatus = "submitted"
	MessageStatusRejectedPolicy MessageStatus = "rejected_policy"
	MessageStatusPendingReview  MessageStatus = "pending_review"
	MessageStatusApproved       MessageStatus = "approved"
	MessageStatusSent           MessageStatus = "sent"
	MessageStatusSendFailed     MessageStatus = "sent:failed"
	MessageStatusBlocked        MessageStatus = "blocked"
	MessageStatusReviewRejected MessageStatus = "review_rejected"
)

func (s MessageStatus) Terminal() bool {
	switch s {
	case MessageStatusRejectedPolicy,
		MessageStatusSent,
		MessageStatusSendFailed,
		MessageStatusBlocked,
		MessageStatusReviewRejected:
		return true
	default:
		return false
	}
}

func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusSubmitted,
		MessageStatusRejectedPolicy,
		MessageStatusPendingReview,
		MessageStatusApproved,
		MessageStatusSent,
		MessageStatusSendFailed,
		MessageStatusBlocked,
		MessageStatusReviewRejected:
		return true
	default:
		return false
	}
}
