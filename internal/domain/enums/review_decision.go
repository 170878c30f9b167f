package enums

import "strings"

type ReviewDecision string

const (
	ReviewDecisionApprove ReviewDecision = "approve"
	ReviewDecisionReject  ReviewDecision = "reject"
)

func ParseReviewDecision(raw string) (ReviewDecision, bool) {
	switch ReviewDecision(strings.ToLower(strings.TrimSpace(raw))) {
	case ReviewDecisionApprove:
		return ReviewDecisionApprove, true
	case ReviewDecisionReject:
		return ReviewDecisionReject, true
	default:
		return "", false
	}
}

// EscalationSource records which stage put a message into the review queue.
type EscalationSource string

const (
	EscalationClassifierFlag EscalationSource = "classifier_flag"
	EscalationAdapterFailure EscalationSource = "adapter_failure"
	EscalationStale          EscalationSource = "stale"
)
