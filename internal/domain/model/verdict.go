package model

import "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"

type FilterOutcome string

const (
	FilterClean      FilterOutcome = "clean"
	FilterSuspicious FilterOutcome = "suspicious"
	FilterHarmful    FilterOutcome = "harmful"
)

// Verdict is the pattern filter result. Rule and Severity are set only for
// harmful verdicts; Signals lists the suspicious indicators matched.
type Verdict struct {
	Outcome  FilterOutcome  `json:"outcome"`
	Rule     string         `json:"rule,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Severity enums.Severity `json:"severity,omitempty"`
	Signals  []string       `json:"signals,omitempty"`
}

type ClassifierOutcome string

const (
	ClassifierApproved    ClassifierOutcome = "approved"
	ClassifierHarmful     ClassifierOutcome = "harmful"
	ClassifierUnavailable ClassifierOutcome = "unavailable"
	ClassifierAmbiguous   ClassifierOutcome = "ambiguous"
)

type ClassifierVerdict struct {
	Outcome    ClassifierOutcome `json:"outcome"`
	Escalated  bool              `json:"escalated"`
	Categories []string          `json:"categories,omitempty"`
	Detail     string            `json:"detail,omitempty"`
}
