package review

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/audit"
)

const previewRunes = 100

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("review item not found")
	ErrQueueEmpty = errors.New("review queue is empty")
)

type Store interface {
	Enqueue(ctx context.Context, item model.ReviewItem) (model.ReviewItem, bool, error)
	Get(ctx context.Context, id int64) (model.ReviewItem, error)
	ListPending(ctx context.Context, limit, offset int) ([]model.ReviewItem, error)
	CountPending(ctx context.Context) (int64, error)
	Resolve(ctx context.Context, p pgrepo.ResolveParams) (model.ReviewItem, bool, error)
}

type Escalations interface {
	ObserveEscalation(ctx context.Context) error
}

type AuditWriter interface {
	Write(ctx context.Context, e model.AuditEntry)
}

type AlertSink interface {
	Raise(ctx context.Context, a model.Alert)
}

type Service struct {
	store       Store
	escalations Escalations
	audit       AuditWriter
	alerts      AlertSink
	logger      *zap.Logger
	now         func() time.Time
}

type Page struct {
	Items     []model.ReviewItem `json:"items"`
	Pending   int64              `json:"pending"`
	ETABucket string             `json:"eta_bucket"`
}

type ResolveParams struct {
	ItemID     int64
	Decision   enums.ReviewDecision
	ReviewerID string
	Note       string
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) AttachEscalations(escalations Escalations) {
	s.escalations = escalations
}

func (s *Service) AttachAudit(writer AuditWriter) {
	s.audit = writer
}

func (s *Service) AttachAlerts(alerts AlertSink) {
	s.alerts = alerts
}

// Enqueue is idempotent on message id. Only the first call alerts reviewers.
func (s *Service) Enqueue(ctx context.Context, msg model.Message, source enums.EscalationSource, reason string) (model.ReviewItem, error) {
	if msg.ID == "" || msg.SenderID <= 0 {
		return model.ReviewItem{}, ErrValidation
	}
	if s.store == nil {
		return model.ReviewItem{}, fmt.Errorf("review store is nil")
	}

	item, created, err := s.store.Enqueue(ctx, model.ReviewItem{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		Reason:     reason,
		Source:     source,
		EnqueuedAt: s.now().UTC(),
	})
	if err != nil {
		return model.ReviewItem{}, err
	}
	if !created {
		return item, nil
	}

	if s.escalations != nil {
		if err := s.escalations.ObserveEscalation(ctx); err != nil {
			s.logger.Warn("observe escalation", zap.Error(err))
		}
	}
	s.writeAudit(ctx, model.AuditEntry{
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Stage:     enums.AuditStageReview,
		Outcome:   "enqueued",
		Details: audit.Details(map[string]any{
			"review_item_id": item.ID,
			"source":         source,
			"reason":         reason,
		}),
	})
	if s.alerts != nil {
		s.alerts.Raise(ctx, model.Alert{
			Kind:      enums.AlertReviewNeeded,
			Severity:  enums.SeverityMedium,
			SenderID:  msg.SenderID,
			MessageID: msg.ID,
			Summary:   fmt.Sprintf("message from sender %d needs review (%s)", msg.SenderID, source),
			Attributes: map[string]string{
				"review_item_id": strconv.FormatInt(item.ID, 10),
				"reason":         reason,
				"preview":        Preview(msg.Body),
			},
			RaisedAt: item.EnqueuedAt,
		})
	}
	return item, nil
}

func (s *Service) Get(ctx context.Context, itemID int64) (model.ReviewItem, error) {
	if itemID <= 0 {
		return model.ReviewItem{}, ErrValidation
	}
	if s.store == nil {
		return model.ReviewItem{}, fmt.Errorf("review store is nil")
	}
	item, err := s.store.Get(ctx, itemID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrReviewItemNotFound) {
			return model.ReviewItem{}, ErrNotFound
		}
		return model.ReviewItem{}, err
	}
	return item, nil
}

// ListPending returns unresolved items oldest first.
func (s *Service) ListPending(ctx context.Context, limit, offset int) (Page, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if s.store == nil {
		return Page{}, fmt.Errorf("review store is nil")
	}

	items, err := s.store.ListPending(ctx, limit, offset)
	if err != nil {
		return Page{}, err
	}
	pending, err := s.store.CountPending(ctx)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []model.ReviewItem{}
	}
	return Page{Items: items, Pending: pending, ETABucket: ETABucketFromQueueSize(pending)}, nil
}

func (s *Service) Next(ctx context.Context) (model.ReviewItem, int64, error) {
	page, err := s.ListPending(ctx, 1, 0)
	if err != nil {
		return model.ReviewItem{}, 0, err
	}
	if len(page.Items) == 0 {
		return model.ReviewItem{}, 0, ErrQueueEmpty
	}
	return page.Items[0], page.Pending, nil
}

// Resolve records the decision exactly once. The boolean is false when the
// item was already resolved; the returned item then carries the first decision.
func (s *Service) Resolve(ctx context.Context, p ResolveParams) (model.ReviewItem, bool, error) {
	if p.ItemID <= 0 || strings.TrimSpace(p.ReviewerID) == "" {
		return model.ReviewItem{}, false, ErrValidation
	}
	if _, ok := enums.ParseReviewDecision(string(p.Decision)); !ok {
		return model.ReviewItem{}, false, ErrValidation
	}
	if s.store == nil {
		return model.ReviewItem{}, false, fmt.Errorf("review store is nil")
	}

	item, applied, err := s.store.Resolve(ctx, pgrepo.ResolveParams{
		ItemID:     p.ItemID,
		Decision:   p.Decision,
		ReviewerID: strings.TrimSpace(p.ReviewerID),
		Note:       strings.TrimSpace(p.Note),
		At:         s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, pgrepo.ErrReviewItemNotFound) {
			return model.ReviewItem{}, false, ErrNotFound
		}
		return model.ReviewItem{}, false, err
	}

	if applied {
		s.writeAudit(ctx, model.AuditEntry{
			MessageID: item.MessageID,
			SenderID:  item.SenderID,
			Stage:     enums.AuditStageReview,
			Outcome:   string(p.Decision),
			Actor:     "admin:" + item.ReviewerID,
			Details: audit.Details(map[string]any{
				"review_item_id": item.ID,
				"note":           item.Note,
			}),
		})
	}
	return item, applied, nil
}

func (s *Service) writeAudit(ctx context.Context, e model.AuditEntry) {
	if s.audit == nil {
		return
	}
	s.audit.Write(ctx, e)
}

// Preview shortens message text for admin notifications.
func Preview(body string) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= previewRunes {
		return body
	}
	return string([]rune(body)[:previewRunes]) + "…"
}

func ETABucketFromQueueSize(queueSize int64) string {
	if queueSize >= 50 {
		return "more_than_hour"
	}
	if queueSize <= 10 {
		return "up_to_10"
	}
	if queueSize <= 20 {
		return "up_to_20"
	}
	if queueSize <= 30 {
		return "up_to_30"
	}
	if queueSize <= 40 {
		return "up_to_40"
	}
	return "up_to_50"
}
