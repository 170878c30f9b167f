package sweeper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/audit"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/metrics"
)

const staleReason = "stale"

// The store also returns pending_review messages whose review item is decided.
var sweptStatuses = []enums.MessageStatus{
	enums.MessageStatusSubmitted,
	enums.MessageStatusApproved,
}

type staleLister interface {
	ListStale(ctx context.Context, statuses []enums.MessageStatus, cutoff time.Time, limit int) ([]model.Message, error)
}

type recoverer interface {
	Recover(ctx context.Context, msg model.Message, reason string) (model.Message, error)
}

type auditWriter interface {
	Write(ctx context.Context, e model.AuditEntry)
}

// Job settles messages that sat in a non-terminal pipeline state for longer
// than staleAfter.
type Job struct {
	messages   staleLister
	recoverer  recoverer
	audit      auditWriter
	metrics    *metrics.Metrics
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
	logger     *zap.Logger
}

func New(messages staleLister, recoverer recoverer, staleAfter time.Duration, batchSize int, logger *zap.Logger) *Job {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		messages:   messages,
		recoverer:  recoverer,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		now:        time.Now,
		logger:     logger,
	}
}

func (j *Job) AttachAudit(writer auditWriter) {
	j.audit = writer
}

func (j *Job) AttachMetrics(m *metrics.Metrics) {
	j.metrics = m
}

// Run performs one sweep and returns how many messages were settled.
// A message that fails to recover is logged and left for the next sweep.
func (j *Job) Run(ctx context.Context) (int, error) {
	if j.messages == nil || j.recoverer == nil {
		return 0, nil
	}

	cutoff := j.now().UTC().Add(-j.staleAfter)
	stale, err := j.messages.ListStale(ctx, sweptStatuses, cutoff, j.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale messages: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	swept := 0
	for _, msg := range stale {
		if ctx.Err() != nil {
			break
		}
		out, err := j.recoverer.Recover(ctx, msg, staleReason)
		if err != nil {
			j.logger.Warn("recover stale message",
				zap.String("message_id", msg.ID),
				zap.String("status", string(msg.Status)),
				zap.Error(err),
			)
			continue
		}
		swept++
		if j.audit != nil {
			j.audit.Write(ctx, model.AuditEntry{
				MessageID: msg.ID,
				SenderID:  msg.SenderID,
				Stage:     enums.AuditStageSweeper,
				Outcome:   string(out.Status),
				Details: audit.Details(map[string]any{
					"from":        msg.Status,
					"stale_since": msg.UpdatedAt,
				}),
			})
		}
	}

	j.metrics.ObserveSwept(swept)
	j.logger.Info("stale message sweep completed", zap.Int("found", len(stale)), zap.Int("swept", swept))
	return swept, nil
}
