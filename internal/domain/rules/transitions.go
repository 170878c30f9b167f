package rules

import "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"

var messageTransitions = map[enums.MessageStatus][]enums.MessageStatus{
	enums.MessageStatusSubmitted: {
		enums.MessageStatusRejectedPolicy,
		enums.MessageStatusPendingReview,
		enums.MessageStatusApproved,
	},
	enums.MessageStatusPendingReview: {
		enums.MessageStatusApproved,
		enums.MessageStatusReviewRejected,
	},
	enums.MessageStatusApproved: {
		enums.MessageStatusSent,
		enums.MessageStatusSendFailed,
		enums.MessageStatusBlocked,
		enums.MessageStatusPendingReview,
	},
}

func CanTransition(from, to enums.MessageStatus) bool {
	for _, next := range messageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor lists every status that may move to target.
func SourcesFor(target enums.MessageStatus) []enums.MessageStatus {
	out := make([]enums.MessageStatus, 0, 2)
	for _, from := range []enums.MessageStatus{
		enums.MessageStatusSubmitted,
		enums.MessageStatusPendingReview,
		enums.MessageStatusApproved,
	} {
		if CanTransition(from, target) {
			out = append(out, from)
		}
	}
	return out
}
