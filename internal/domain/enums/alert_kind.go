package enums

type AlertKind string

const (
	AlertHarmfulContent AlertKind = "harmful_content"
	AlertReviewNeeded   AlertKind = "review_needed"
	AlertReviewResolved AlertKind = "review_resolved"
	AlertAutoBlock      AlertKind = "auto_block"
	AlertProviderFailed AlertKind = "provider_failure"
	AlertProviderOutage AlertKind = "provider_outage"
	AlertHighCost       AlertKind = "high_cost"
	AlertViolationRate  AlertKind = "violation_rate"
)
