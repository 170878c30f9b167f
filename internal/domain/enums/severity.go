package enums

type Severity string

const (
	SeverityLow       Severity = "low"
	SeverityMedium    Severity = "medium"
	SeverityHigh      Severity = "high"
	SeverityCritical  Severity = "critical"
	SeverityHarmful   Severity = "harmful"
	SeverityAIFlagged Severity = "ai_flagged"
)

func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(raw)
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical, SeverityHarmful, SeverityAIFlagged:
		return s, true
	default:
		return "", false
	}
}
