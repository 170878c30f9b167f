package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/rules"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/audit"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/delivery"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/metrics"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/review"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/tiergate"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("message not found")
	ErrInvalidTransition = errors.New("invalid message transition")
)

// Sender-facing reasons. Rule names and classifier output never leave the service.
const (
	ReasonNotSent        = "message_not_sent"
	ReasonUpgrade        = "upgrade_required"
	ReasonBlocked        = "blocked"
	ReasonUnavailable    = "temporarily_unavailable"
	ReasonUnderReview    = "under_review"
	ReasonDeliveryFailed = "delivery_failed"
)

// Internal reasons persisted on the message row.
const (
	reasonForbidden        = "forbidden"
	reasonBlocked          = "blocked"
	reasonGateUnavailable  = "tier_gate_unavailable"
	reasonClassifierUnsafe = "classifier.unsafe"
	reasonReviewApproved   = "review.approved"
	reasonReviewRejected   = "review.rejected"
	reasonSenderBlocked    = "sender_blocked"
)

const defaultMaxBodyRunes = 2000

type MessageStore interface {
	Create(ctx context.Context, msg model.Message) (model.Message, error)
	Get(ctx context.Context, id string) (model.Message, error)
	Transition(ctx context.Context, p pgrepo.TransitionParams) (model.Message, error)
}

type TierGate interface {
	Check(ctx context.Context, senderID int64) (tiergate.Decision, error)
}

type PatternFilter interface {
	Evaluate(text string) model.Verdict
}

type Classifier interface {
	Classify(ctx context.Context, text string, prior model.Verdict) model.ClassifierVerdict
}

type ViolationTracker interface {
	Record(ctx context.Context, v model.Violation) (model.ViolationOutcome, error)
	Status(ctx context.Context, senderID int64) (model.BlockStatus, error)
}

type ReviewQueue interface {
	Enqueue(ctx context.Context, msg model.Message, source enums.EscalationSource, reason string) (model.ReviewItem, error)
	Resolve(ctx context.Context, p review.ResolveParams) (model.ReviewItem, bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.Message) delivery.Result
}

type Ledger interface {
	Record(ctx context.Context, msg model.Message, provider string) (bool, error)
	Charged(ctx context.Context, messageID string) (model.CostEntry, bool, error)
	UnitCost() float64
}

type AuditWriter interface {
	Write(ctx context.Context, e model.AuditEntry)
}

type AlertSink interface {
	Raise(ctx context.Context, a model.Alert)
}

type Deps struct {
	Messages   MessageStore
	Gate       TierGate
	Filter     PatternFilter
	Classifier Classifier
	Violations ViolationTracker
	Review     ReviewQueue
	Dispatcher Dispatcher
	Ledger     Ledger
	Audit      AuditWriter
	Alerts     AlertSink
	Metrics    *metrics.Metrics
}

type Config struct {
	MaxBodyRunes int
}

type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

type ResolveParams struct {
	ItemID   int64
	Decision enums.ReviewDecision
	AdminID  string
	Note     string
}

func NewService(deps Deps, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxBodyRunes <= 0 {
		cfg.MaxBodyRunes = defaultMaxBodyRunes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Submit runs one message through the pipeline until it reaches a terminal
// state or the review queue. The pipeline is detached from ctx cancellation
// so a client disconnect never leaves the message half-decided.
func (s *Service) Submit(ctx context.Context, senderID, recipientID int64, text string) (model.SubmitResult, error) {
	text = strings.TrimSpace(text)
	if senderID <= 0 || recipientID <= 0 || senderID == recipientID {
		return model.SubmitResult{}, ErrValidation
	}
	if text == "" || utf8.RuneCountInString(text) > s.cfg.MaxBodyRunes {
		return model.SubmitResult{}, ErrValidation
	}
	if err := s.ready(); err != nil {
		return model.SubmitResult{}, err
	}

	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	msg, err := s.deps.Messages.Create(ctx, model.Message{
		ID:          s.newID(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        text,
		Status:      enums.MessageStatusSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return model.SubmitResult{}, err
	}
	s.writeAudit(ctx, msg, enums.AuditStageSubmit, "accepted", map[string]any{
		"recipient_id": recipientID,
	})

	d := s.decide(ctx, msg)
	res := s.apply(ctx, msg, d)
	s.deps.Metrics.ObserveSubmission(string(res.Status))

	s.logger.Info("message decided",
		zap.String("message_id", msg.ID),
		zap.Int64("sender_id", senderID),
		zap.String("stage", string(d.stage)),
		zap.String("decision", string(res.Status)),
	)
	return res, nil
}

// GetMessage returns the sender's view of one of their messages.
func (s *Service) GetMessage(ctx context.Context, id string, senderID int64) (model.SubmitResult, error) {
	if strings.TrimSpace(id) == "" || senderID <= 0 {
		return model.SubmitResult{}, ErrValidation
	}
	if s.deps.Messages == nil {
		return model.SubmitResult{}, fmt.Errorf("message store is nil")
	}

	msg, err := s.deps.Messages.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMessageNotFound) {
			return model.SubmitResult{}, ErrNotFound
		}
		return model.SubmitResult{}, err
	}
	if msg.SenderID != senderID {
		return model.SubmitResult{}, ErrNotFound
	}
	return model.SubmitResult{
		MessageID: msg.ID,
		Status:    msg.Status,
		Reason:    publicReason(msg.Status, msg.Reason),
	}, nil
}

// Resolve applies an admin decision to a queued message. A second call on
// the same item reports the first decision and changes nothing.
func (s *Service) Resolve(ctx context.Context, p ResolveParams) (model.ReviewResolution, error) {
	if s.deps.Review == nil || s.deps.Messages == nil {
		return model.ReviewResolution{}, fmt.Errorf("gateway dependencies are nil")
	}
	ctx = context.WithoutCancel(ctx)

	item, applied, err := s.deps.Review.Resolve(ctx, review.ResolveParams{
		ItemID:     p.ItemID,
		Decision:   p.Decision,
		ReviewerID: p.AdminID,
		Note:       p.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, review.ErrValidation):
			return model.ReviewResolution{}, ErrValidation
		case errors.Is(err, review.ErrNotFound):
			return model.ReviewResolution{}, ErrNotFound
		default:
			return model.ReviewResolution{}, err
		}
	}
	s.deps.Metrics.ObserveReviewResolution(string(p.Decision), applied)

	msg, err := s.deps.Messages.Get(ctx, item.MessageID)
	if err != nil {
		return model.ReviewResolution{}, fmt.Errorf("load reviewed message: %w", err)
	}
	if !applied {
		return model.ReviewResolution{Item: item, MessageStatus: msg.Status, AlreadyResolved: true}, nil
	}

	chosen := p.Decision
	if item.Decision != nil {
		chosen = *item.Decision
	}

	msg, err = s.applyReview(ctx, msg, item, chosen)
	if err != nil {
		s.logger.Warn("apply review decision",
			zap.Int64("review_item_id", item.ID),
			zap.String("message_id", msg.ID),
			zap.String("status", string(msg.Status)),
			zap.Error(err),
		)
		return model.ReviewResolution{Item: item, MessageStatus: msg.Status},
			fmt.Errorf("apply review decision to %s: %w", msg.ID, err)
	}

	s.raise(ctx, model.Alert{
		Kind:      enums.AlertReviewResolved,
		Severity:  enums.SeverityLow,
		SenderID:  msg.SenderID,
		MessageID: msg.ID,
		Summary:   fmt.Sprintf("review %d resolved: %s", item.ID, chosen),
		Attributes: map[string]string{
			"review_item_id": strconv.FormatInt(item.ID, 10),
			"decision":       string(chosen),
			"reviewer":       item.ReviewerID,
			"message_status": string(msg.Status),
		},
	})
	return model.ReviewResolution{Item: item, MessageStatus: msg.Status}, nil
}

// applyReview moves a message to the outcome of its resolved review item.
// A message whose escalation write failed is still submitted (or approved,
// for a stale item) and passes through pending_review on the way.
func (s *Service) applyReview(ctx context.Context, msg model.Message, item model.ReviewItem, decision enums.ReviewDecision) (model.Message, error) {
	if msg.Status.Terminal() {
		return msg, nil
	}
	switch decision {
	case enums.ReviewDecisionApprove:
		return s.approveReviewed(ctx, msg)
	case enums.ReviewDecisionReject:
		return s.rejectReviewed(ctx, msg, item)
	default:
		return msg, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}
}

func (s *Service) approveReviewed(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.Status == enums.MessageStatusApproved {
		return s.redeliver(ctx, msg)
	}
	moved, err := s.move(ctx, msg, enums.MessageStatusApproved, reasonReviewApproved, "", "")
	if err != nil {
		return moved, err
	}
	out, _ := s.dispatch(ctx, moved)
	return out, nil
}

func (s *Service) rejectReviewed(ctx context.Context, msg model.Message, item model.ReviewItem) (model.Message, error) {
	if msg.Status != enums.MessageStatusPendingReview {
		queued, err := s.move(ctx, msg, enums.MessageStatusPendingReview, item.Reason, "", "")
		if err != nil {
			return queued, err
		}
		msg = queued
	}
	moved, err := s.move(ctx, msg, enums.MessageStatusReviewRejected, reasonReviewRejected, "", "")
	if err != nil {
		return moved, err
	}

	severity := enums.SeverityHigh
	if item.Source == enums.EscalationClassifierFlag {
		severity = enums.SeverityAIFlagged
	}
	s.recordViolation(ctx, model.Violation{
		SenderID:  moved.SenderID,
		MessageID: moved.ID,
		Severity:  severity,
		Rule:      reasonReviewRejected,
		Excerpt:   moved.Body,
	})
	return moved, nil
}

// redeliver dispatches an approved message that never reached a terminal
// state. A cost entry means the provider already accepted it and only the
// sent status write was lost, so the status is repaired without sending again.
func (s *Service) redeliver(ctx context.Context, msg model.Message) (model.Message, error) {
	if s.deps.Ledger != nil {
		entry, charged, err := s.deps.Ledger.Charged(ctx, msg.ID)
		if err != nil {
			return msg, fmt.Errorf("check delivery record: %w", err)
		}
		if charged {
			return s.markDelivered(ctx, msg, entry)
		}
	}
	out, _ := s.dispatch(ctx, msg)
	return out, nil
}

func (s *Service) markDelivered(ctx context.Context, msg model.Message, entry model.CostEntry) (model.Message, error) {
	moved, err := s.move(ctx, msg, enums.MessageStatusSent, "", entry.Provider, "")
	if err != nil {
		return moved, err
	}
	s.writeAudit(ctx, moved, enums.AuditStageDelivery, "sent_recovered", map[string]any{
		"provider": entry.Provider,
	})
	return moved, nil
}

func (s *Service) ready() error {
	d := s.deps
	if d.Messages == nil || d.Gate == nil || d.Filter == nil || d.Classifier == nil ||
		d.Violations == nil || d.Review == nil || d.Dispatcher == nil {
		return fmt.Errorf("gateway dependencies are nil")
	}
	return nil
}

// move performs a guarded status change. On a lost race it returns the
// message as currently stored together with the conflict.
func (s *Service) move(ctx context.Context, msg model.Message, to enums.MessageStatus, reason, provider, ref string) (model.Message, error) {
	if !rules.CanTransition(msg.Status, to) {
		return msg, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, msg.Status, to)
	}
	moved, err := s.deps.Messages.Transition(ctx, pgrepo.TransitionParams{
		ID:          msg.ID,
		From:        []enums.MessageStatus{msg.Status},
		To:          to,
		Reason:      reason,
		Provider:    provider,
		ProviderRef: ref,
		At:          s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, pgrepo.ErrStatusConflict) {
			return moved, err
		}
		return msg, err
	}
	return moved, nil
}

func (s *Service) recordViolation(ctx context.Context, v model.Violation) {
	outcome, err := s.deps.Violations.Record(ctx, v)
	if err != nil {
		s.logger.Error("record violation",
			zap.String("message_id", v.MessageID),
			zap.Int64("sender_id", v.SenderID),
			zap.Error(err),
		)
		return
	}
	s.deps.Metrics.ObserveViolation(string(v.Severity), string(outcome.Action))
}

func (s *Service) writeAudit(ctx context.Context, msg model.Message, stage enums.AuditStage, outcome string, details map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	s.deps.Audit.Write(ctx, model.AuditEntry{
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Stage:     stage,
		Outcome:   outcome,
		Details:   audit.Details(details),
	})
}

func (s *Service) raise(ctx context.Context, a model.Alert) {
	if s.deps.Alerts == nil {
		return
	}
	if a.RaisedAt.IsZero() {
		a.RaisedAt = s.now().UTC()
	}
	s.deps.Alerts.Raise(ctx, a)
}

// publicReason maps a stored status and internal reason to what the sender may see.
func publicReason(status enums.MessageStatus, internal string) string {
	switch status {
	case enums.MessageStatusRejectedPolicy:
		switch internal {
		case reasonForbidden:
			return ReasonUpgrade
		case reasonBlocked:
			return ReasonBlocked
		case reasonGateUnavailable:
			return ReasonUnavailable
		default:
			return ReasonNotSent
		}
	case enums.MessageStatusReviewRejected:
		return ReasonNotSent
	case enums.MessageStatusBlocked:
		return ReasonBlocked
	case enums.MessageStatusPendingReview:
		return ReasonUnderReview
	case enums.MessageStatusSendFailed:
		return ReasonDeliveryFailed
	default:
		return ""
	}
}

// Recover settles a message stuck outside a terminal state. A message whose
// review item already carries a decision gets that decision applied. An
// approved message the provider already accepted is only marked sent.
// Anything else goes to the review queue.
func (s *Service) Recover(ctx context.Context, msg model.Message, reason string) (model.Message, error) {
	if err := s.ready(); err != nil {
		return msg, err
	}
	switch msg.Status {
	case enums.MessageStatusSubmitted, enums.MessageStatusApproved, enums.MessageStatusPendingReview:
	default:
		return msg, fmt.Errorf("%w: %s is not recoverable", ErrInvalidTransition, msg.Status)
	}
	ctx = context.WithoutCancel(ctx)

	if msg.Status == enums.MessageStatusApproved && s.deps.Ledger != nil {
		entry, charged, err := s.deps.Ledger.Charged(ctx, msg.ID)
		if err != nil {
			return msg, fmt.Errorf("check delivery record: %w", err)
		}
		if charged {
			return s.markDelivered(ctx, msg, entry)
		}
	}

	item, err := s.deps.Review.Enqueue(ctx, msg, enums.EscalationStale, reason)
	if err != nil {
		return msg, fmt.Errorf("enqueue stale message: %w", err)
	}
	if item.Resolved() && item.Decision != nil {
		return s.applyReview(ctx, msg, item, *item.Decision)
	}
	if msg.Status == enums.MessageStatusPendingReview {
		return msg, fmt.Errorf("%w: review item %d is still open", ErrInvalidTransition, item.ID)
	}
	return s.move(ctx, msg, enums.MessageStatusPendingReview, reason, "", "")
}
