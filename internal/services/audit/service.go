package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

var ErrValidation = errors.New("validation error")

const writeTimeout = 3 * time.Second

type Store interface {
	Append(ctx context.Context, e model.AuditEntry) error
	ListByMessage(ctx context.Context, messageID string) ([]model.AuditEntry, error)
}

// Service is the single sink every pipeline stage writes through. A failed
// write is logged and never stops the caller.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
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

func (s *Service) Write(ctx context.Context, e model.AuditEntry) {
	if s == nil {
		return
	}
	if e.Actor == "" {
		e.Actor = enums.AuditActorSystem
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if s.store == nil {
		s.logger.Error("audit store is nil", zap.String("stage", string(e.Stage)))
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := s.store.Append(writeCtx, e); err != nil {
		s.logger.Error("audit write failed",
			zap.String("message_id", e.MessageID),
			zap.Int64("sender_id", e.SenderID),
			zap.String("stage", string(e.Stage)),
			zap.String("outcome", e.Outcome),
			zap.Error(err),
		)
	}
}

func (s *Service) Trail(ctx context.Context, messageID string) ([]model.AuditEntry, error) {
	if messageID == "" {
		return nil, ErrValidation
	}
	if s.store == nil {
		return nil, fmt.Errorf("audit store is nil")
	}
	return s.store.ListByMessage(ctx, messageID)
}

// Details encodes stage-specific fields. Encoding failures leave details empty.
func Details(fields map[string]any) json.RawMessage {
	if len(fields) == 0 {
		return nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return raw
}
