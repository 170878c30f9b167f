package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/delivery"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/filter"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/tiergate"
)

type outcome int

const (
	outcomePass outcome = iota
	outcomeReject
	outcomeReview
	outcomeApprove
)

// decision is what a single stage concluded. Stages that pass hand the
// message on; every other outcome ends evaluation.
type decision struct {
	outcome    outcome
	stage      enums.AuditStage
	reason     string
	retryAfter time.Duration
	violation  *model.Violation
	source     enums.EscalationSource
	harmful    bool
}

func pass(stage enums.AuditStage) decision {
	return decision{outcome: outcomePass, stage: stage}
}

// decide evaluates the stages in order and returns the first non-pass result.
func (s *Service) decide(ctx context.Context, msg model.Message) decision {
	if d := s.gate(ctx, msg); d.outcome != outcomePass {
		return d
	}

	verdict := s.deps.Filter.Evaluate(msg.Body)
	if d := s.screen(ctx, msg, verdict); d.outcome != outcomePass {
		return d
	}

	return s.classify(ctx, msg, verdict)
}

func (s *Service) gate(ctx context.Context, msg model.Message) decision {
	gd, err := s.deps.Gate.Check(ctx, msg.SenderID)
	if err != nil {
		s.logger.Error("tier gate check failed",
			zap.String("message_id", msg.ID),
			zap.Int64("sender_id", msg.SenderID),
			zap.Error(err),
		)
		s.writeAudit(ctx, msg, enums.AuditStageTierGate, "unavailable", map[string]any{"error": err.Error()})
		s.deps.Metrics.ObserveStage(string(enums.AuditStageTierGate), "unavailable")
		return decision{outcome: outcomeReject, stage: enums.AuditStageTierGate, reason: reasonGateUnavailable}
	}
	if gd.Allowed {
		s.deps.Metrics.ObserveStage(string(enums.AuditStageTierGate), "pass")
		return pass(enums.AuditStageTierGate)
	}

	d := decision{outcome: outcomeReject, stage: enums.AuditStageTierGate}
	details := map[string]any{"tier": gd.Tier}
	switch gd.Reason {
	case tiergate.ReasonBlocked:
		d.reason = reasonBlocked
		d.retryAfter = gd.RetryAfter
		details["indefinite"] = gd.Block.Indefinite
		details["retry_after_sec"] = retryAfterSec(gd.RetryAfter)
	default:
		d.reason = reasonForbidden
	}
	s.writeAudit(ctx, msg, enums.AuditStageTierGate, d.reason, details)
	s.deps.Metrics.ObserveStage(string(enums.AuditStageTierGate), d.reason)
	return d
}

func (s *Service) screen(ctx context.Context, msg model.Message, v model.Verdict) decision {
	s.deps.Metrics.ObserveStage(string(enums.AuditStageFilter), string(v.Outcome))
	if v.Outcome != model.FilterHarmful {
		s.writeAudit(ctx, msg, enums.AuditStageFilter, string(v.Outcome), map[string]any{
			"signals": v.Signals,
		})
		return pass(enums.AuditStageFilter)
	}

	s.writeAudit(ctx, msg, enums.AuditStageFilter, string(v.Outcome), map[string]any{
		"rule":     v.Rule,
		"reason":   v.Reason,
		"severity": v.Severity,
	})
	return decision{
		outcome: outcomeReject,
		stage:   enums.AuditStageFilter,
		reason:  v.Rule,
		harmful: true,
		violation: &model.Violation{
			SenderID:  msg.SenderID,
			MessageID: msg.ID,
			Severity:  v.Severity,
			Rule:      v.Rule,
			Excerpt:   filterExcerpt(msg.Body, v),
		},
	}
}

func (s *Service) classify(ctx context.Context, msg model.Message, prior model.Verdict) decision {
	started := s.now()
	cv := s.deps.Classifier.Classify(ctx, msg.Body, prior)
	s.deps.Metrics.ObserveClassifier(string(cv.Outcome), s.now().Sub(started))

	s.writeAudit(ctx, msg, enums.AuditStageClassifier, string(cv.Outcome), map[string]any{
		"prior":      prior.Outcome,
		"escalated":  cv.Escalated,
		"categories": cv.Categories,
		"detail":     cv.Detail,
	})

	switch cv.Outcome {
	case model.ClassifierApproved:
		return decision{outcome: outcomeApprove, stage: enums.AuditStageClassifier}
	case model.ClassifierHarmful:
		return decision{
			outcome: outcomeReject,
			stage:   enums.AuditStageClassifier,
			reason:  reasonClassifierUnsafe,
			harmful: true,
			violation: &model.Violation{
				SenderID:  msg.SenderID,
				MessageID: msg.ID,
				Severity:  enums.SeverityAIFlagged,
				Rule:      reasonClassifierUnsafe,
				Excerpt:   msg.Body,
			},
		}
	case model.ClassifierAmbiguous:
		return decision{
			outcome: outcomeReview,
			stage:   enums.AuditStageClassifier,
			reason:  "classifier." + string(cv.Outcome),
			source:  enums.EscalationClassifierFlag,
		}
	default:
		source := enums.EscalationAdapterFailure
		if cv.Escalated {
			source = enums.EscalationClassifierFlag
		}
		return decision{
			outcome: outcomeReview,
			stage:   enums.AuditStageClassifier,
			reason:  "classifier." + string(model.ClassifierUnavailable),
			source:  source,
		}
	}
}

// apply carries out a decision and returns the sender-facing result.
func (s *Service) apply(ctx context.Context, msg model.Message, d decision) model.SubmitResult {
	switch d.outcome {
	case outcomeReject:
		return s.reject(ctx, msg, d)
	case outcomeReview:
		return s.escalate(ctx, msg, d)
	case outcomeApprove:
		moved, err := s.move(ctx, msg, enums.MessageStatusApproved, "", "", "")
		if err != nil {
			s.logger.Error("approve message", zap.String("message_id", msg.ID), zap.Error(err))
			return result(moved, 0)
		}
		sent, retryAfter := s.dispatch(ctx, moved)
		return result(sent, retryAfter)
	default:
		return result(msg, 0)
	}
}

func (s *Service) reject(ctx context.Context, msg model.Message, d decision) model.SubmitResult {
	moved, err := s.move(ctx, msg, enums.MessageStatusRejectedPolicy, d.reason, "", "")
	if err != nil {
		s.logger.Error("reject message", zap.String("message_id", msg.ID), zap.Error(err))
		return result(moved, 0)
	}

	if d.violation != nil {
		s.recordViolation(ctx, *d.violation)
	}
	if d.harmful {
		s.raise(ctx, model.Alert{
			Kind:      enums.AlertHarmfulContent,
			Severity:  enums.SeverityCritical,
			SenderID:  msg.SenderID,
			MessageID: msg.ID,
			Summary:   fmt.Sprintf("harmful message from sender %d rejected at %s", msg.SenderID, d.stage),
			Attributes: map[string]string{
				"rule":  d.reason,
				"stage": string(d.stage),
			},
		})
	}
	return result(moved, d.retryAfter)
}

// escalate queues the message before moving it, so a message in
// pending_review always has a review item. A failure at either step leaves
// the message for the stuck-message sweeper.
func (s *Service) escalate(ctx context.Context, msg model.Message, d decision) model.SubmitResult {
	if _, err := s.deps.Review.Enqueue(ctx, msg, d.source, d.reason); err != nil {
		s.logger.Error("enqueue review", zap.String("message_id", msg.ID), zap.Error(err))
		return result(msg, 0)
	}
	moved, err := s.move(ctx, msg, enums.MessageStatusPendingReview, d.reason, "", "")
	if err != nil {
		s.logger.Error("escalate message", zap.String("message_id", msg.ID), zap.Error(err))
	}
	return result(moved, 0)
}

// dispatch delivers an approved message. The sender's block state is checked
// again because a reviewed message may have waited while the sender was blocked.
func (s *Service) dispatch(ctx context.Context, msg model.Message) (model.Message, time.Duration) {
	status, err := s.deps.Violations.Status(ctx, msg.SenderID)
	if err != nil {
		s.logger.Warn("block recheck failed, leaving message approved",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		s.writeAudit(ctx, msg, enums.AuditStageDelivery, "deferred", map[string]any{"error": err.Error()})
		return msg, 0
	}
	if status.Blocked {
		moved, err := s.move(ctx, msg, enums.MessageStatusBlocked, reasonSenderBlocked, "", "")
		if err != nil {
			s.logger.Error("block message", zap.String("message_id", msg.ID), zap.Error(err))
			return moved, 0
		}
		s.writeAudit(ctx, moved, enums.AuditStageDelivery, "sender_blocked", map[string]any{
			"indefinite": status.Indefinite,
		})
		return moved, status.RetryAfter(s.now().UTC())
	}

	res := s.deps.Dispatcher.Dispatch(ctx, msg)
	s.deps.Metrics.ObserveDelivery(res.Provider, deliveryLabel(res), res.Attempts)

	if !res.Sent {
		moved, err := s.move(ctx, msg, enums.MessageStatusSendFailed, res.Reason, res.Provider, "")
		if err != nil {
			s.logger.Error("mark delivery failed", zap.String("message_id", msg.ID), zap.Error(err))
			return moved, 0
		}
		details := map[string]any{
			"provider": res.Provider,
			"attempts": res.Attempts,
			"reason":   res.Reason,
		}
		if res.Err != nil {
			details["error"] = res.Err.Error()
		}
		s.writeAudit(ctx, moved, enums.AuditStageDelivery, "failed", details)
		return moved, 0
	}

	moved, err := s.move(ctx, msg, enums.MessageStatusSent, "", res.Provider, res.ProviderRef)
	if err != nil && !errors.Is(err, pgrepo.ErrStatusConflict) {
		s.logger.Error("mark message sent",
			zap.String("message_id", msg.ID),
			zap.String("provider_ref", res.ProviderRef),
			zap.Error(err),
		)
	}
	s.writeAudit(ctx, msg, enums.AuditStageDelivery, "sent", map[string]any{
		"provider":     res.Provider,
		"provider_ref": res.ProviderRef,
		"attempts":     res.Attempts,
	})

	// The provider accepted the message, so it is charged even if the status
	// write lost a race.
	if s.deps.Ledger != nil {
		charged, err := s.deps.Ledger.Record(ctx, msg, res.Provider)
		if err != nil {
			s.logger.Error("record cost", zap.String("message_id", msg.ID), zap.Error(err))
		} else if charged {
			s.deps.Metrics.ObserveCost(res.Provider, s.deps.Ledger.UnitCost())
		}
	}
	return moved, 0
}

func result(msg model.Message, retryAfter time.Duration) model.SubmitResult {
	res := model.SubmitResult{
		MessageID: msg.ID,
		Status:    msg.Status,
		Reason:    publicReason(msg.Status, msg.Reason),
	}
	if msg.Status == enums.MessageStatusRejectedPolicy || msg.Status == enums.MessageStatusBlocked {
		res.RetryAfterSec = retryAfterSec(retryAfter)
	}
	return res
}

func retryAfterSec(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// filterExcerpt keeps PII out of violation records: PII rules store only the
// masked match.
func filterExcerpt(body string, v model.Verdict) string {
	if strings.HasPrefix(v.Rule, filter.FamilyPII+".") && len(v.Signals) > 0 {
		return v.Signals[0]
	}
	return body
}

func deliveryLabel(res delivery.Result) string {
	if res.Sent {
		return "sent"
	}
	return res.Reason
}
