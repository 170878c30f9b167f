package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/audit"
)

const (
	periodLayout   = "2006-01"
	topSendersSize = 20
)

var ErrValidation = errors.New("validation error")

type Store interface {
	Insert(ctx context.Context, e model.CostEntry) (bool, error)
	SenderTotal(ctx context.Context, senderID int64, period string) (float64, error)
	PeriodTotal(ctx context.Context, period string) (float64, int64, error)
	TopSenders(ctx context.Context, period string, limit int) ([]model.SenderCost, error)
	GetByMessage(ctx context.Context, messageID string) (model.CostEntry, error)
}

type AuditWriter interface {
	Write(ctx context.Context, e model.AuditEntry)
}

type AlertSink interface {
	Raise(ctx context.Context, a model.Alert)
}

type Config struct {
	UnitCost         float64
	MonthlyCostAlert float64
}

type Service struct {
	store  Store
	cfg    Config
	audit  AuditWriter
	alerts AlertSink
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, cfg Config, logger *zap.Logger) *Service {
	if cfg.UnitCost < 0 {
		cfg.UnitCost = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) AttachAudit(writer AuditWriter) {
	s.audit = writer
}

func (s *Service) AttachAlerts(alerts AlertSink) {
	s.alerts = alerts
}

func (s *Service) UnitCost() float64 {
	return s.cfg.UnitCost
}

// Record charges one dispatched message. It returns false when the message
// was already charged.
func (s *Service) Record(ctx context.Context, msg model.Message, provider string) (bool, error) {
	if msg.ID == "" || msg.SenderID <= 0 {
		return false, ErrValidation
	}
	if s.store == nil {
		return false, fmt.Errorf("ledger store is nil")
	}

	now := s.now().UTC()
	entry := model.CostEntry{
		SenderID:   msg.SenderID,
		MessageID:  msg.ID,
		Provider:   provider,
		Amount:     s.cfg.UnitCost,
		Period:     Period(now),
		RecordedAt: now,
	}
	created, err := s.store.Insert(ctx, entry)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	if s.audit != nil {
		s.audit.Write(ctx, model.AuditEntry{
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
			Stage:     enums.AuditStageLedger,
			Outcome:   "charged",
			Details: audit.Details(map[string]any{
				"amount":   entry.Amount,
				"period":   entry.Period,
				"provider": provider,
			}),
		})
	}
	s.checkThreshold(ctx, entry)
	return true, nil
}

// Charged reports whether the message already has a cost entry, which means
// the provider accepted it.
func (s *Service) Charged(ctx context.Context, messageID string) (model.CostEntry, bool, error) {
	if messageID == "" {
		return model.CostEntry{}, false, ErrValidation
	}
	if s.store == nil {
		return model.CostEntry{}, false, fmt.Errorf("ledger store is nil")
	}
	entry, err := s.store.GetByMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrCostEntryNotFound) {
			return model.CostEntry{}, false, nil
		}
		return model.CostEntry{}, false, err
	}
	return entry, true, nil
}

// checkThreshold alerts once, on the entry that pushes the sender's monthly
// total over the configured limit.
func (s *Service) checkThreshold(ctx context.Context, entry model.CostEntry) {
	if s.alerts == nil || s.cfg.MonthlyCostAlert <= 0 {
		return
	}
	total, err := s.store.SenderTotal(ctx, entry.SenderID, entry.Period)
	if err != nil {
		s.logger.Warn("sender cost total", zap.Int64("sender_id", entry.SenderID), zap.Error(err))
		return
	}
	if total <= s.cfg.MonthlyCostAlert || total-entry.Amount > s.cfg.MonthlyCostAlert {
		return
	}
	s.alerts.Raise(ctx, model.Alert{
		Kind:      enums.AlertHighCost,
		Severity:  enums.SeverityMedium,
		SenderID:  entry.SenderID,
		MessageID: entry.MessageID,
		Summary:   fmt.Sprintf("sender %d delivery cost %.2f exceeds %.2f for %s", entry.SenderID, total, s.cfg.MonthlyCostAlert, entry.Period),
		Attributes: map[string]string{
			"period": entry.Period,
			"total":  strconv.FormatFloat(Round2(total), 'f', 2, 64),
		},
		RaisedAt: entry.RecordedAt,
	})
}

// Report aggregates a YYYY-MM period. An empty period means the current month.
func (s *Service) Report(ctx context.Context, period string) (model.CostReport, error) {
	if period == "" {
		period = Period(s.now().UTC())
	}
	if _, err := time.Parse(periodLayout, period); err != nil {
		return model.CostReport{}, ErrValidation
	}
	if s.store == nil {
		return model.CostReport{}, fmt.Errorf("ledger store is nil")
	}

	total, count, err := s.store.PeriodTotal(ctx, period)
	if err != nil {
		return model.CostReport{}, err
	}
	top, err := s.store.TopSenders(ctx, period, topSendersSize)
	if err != nil {
		return model.CostReport{}, err
	}
	for i := range top {
		top[i].Total = Round2(top[i].Total)
	}
	if top == nil {
		top = []model.SenderCost{}
	}

	return model.CostReport{
		Period:     period,
		Total:      Round2(total),
		Messages:   count,
		TopSenders: top,
	}, nil
}

func Period(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
