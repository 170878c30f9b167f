package enums

type AuditStage string

const (
	AuditStageSubmit     AuditStage = "submit"
	AuditStageTierGate   AuditStage = "tier_gate"
	AuditStageFilter     AuditStage = "pattern_filter"
	AuditStageClassifier AuditStage = "safety_classifier"
	AuditStageReview     AuditStage = "review"
	AuditStageDelivery   AuditStage = "delivery"
	AuditStageViolation  AuditStage = "violation"
	AuditStageBlock      AuditStage = "block"
	AuditStageSweeper    AuditStage = "sweeper"
	AuditStageLedger     AuditStage = "ledger"
)

const AuditActorSystem = "system"
