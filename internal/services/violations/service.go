package violations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
	redrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/redis"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/audit"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
)

type ViolationStore interface {
	Insert(ctx context.Context, v model.Violation) (model.Violation, error)
	List(ctx context.Context, f model.ViolationFilter) ([]model.Violation, error)
}

type BlockStore interface {
	Upsert(ctx context.Context, p pgrepo.UpsertBlockParams) (model.BlockEntry, bool, error)
	GetActive(ctx context.Context, senderID int64, at time.Time) (model.BlockEntry, error)
	Lift(ctx context.Context, senderID int64, liftedBy string, at time.Time) (model.BlockEntry, error)
}

type StateStore interface {
	EvalForSender(ctx context.Context, senderID int64, script string, args ...interface{}) (interface{}, error)
	GetBlock(ctx context.Context, senderID int64) (redrepo.BlockStateRecord, error)
	Clear(ctx context.Context, senderID int64) error
}

type Dashboard interface {
	ObserveViolation(ctx context.Context) error
	ObserveAutoBlock(ctx context.Context) error
	Flagged(ctx context.Context, limit int64) ([]model.FlaggedSender, error)
	Summary(ctx context.Context) (redrepo.DashboardSummary, error)
}

type AuditWriter interface {
	Write(ctx context.Context, e model.AuditEntry)
}

type Alerts interface {
	Raise(ctx context.Context, a model.Alert)
	ObserveViolation(ctx context.Context, v model.Violation)
}

type Config struct {
	Window          time.Duration
	FlagAt          int
	BlockAt         int
	IndefiniteAt    int
	Cooldown        time.Duration
	AdminBlock      time.Duration
	ExcerptMaxRunes int
}

type Service struct {
	violations ViolationStore
	blocks     BlockStore
	state      StateStore
	dashboard  Dashboard
	audit      AuditWriter
	alerts     Alerts
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

type BlockParams struct {
	SenderID   int64
	Duration   time.Duration
	Indefinite bool
	Reason     string
	AdminID    string
}

func NewService(violations ViolationStore, blocks BlockStore, state StateStore, cfg Config, logger *zap.Logger) *Service {
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.FlagAt <= 0 {
		cfg.FlagAt = 2
	}
	if cfg.BlockAt <= 0 {
		cfg.BlockAt = 3
	}
	if cfg.IndefiniteAt < cfg.BlockAt {
		cfg.IndefiniteAt = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 7 * 24 * time.Hour
	}
	if cfg.AdminBlock <= 0 {
		cfg.AdminBlock = 30 * 24 * time.Hour
	}
	if cfg.ExcerptMaxRunes <= 0 {
		cfg.ExcerptMaxRunes = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		violations: violations,
		blocks:     blocks,
		state:      state,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) AttachDashboard(dashboard Dashboard) {
	s.dashboard = dashboard
}

func (s *Service) AttachAudit(writer AuditWriter) {
	s.audit = writer
}

func (s *Service) AttachAlerts(alerts Alerts) {
	s.alerts = alerts
}

// Record persists the violation and applies the block policy atomically for
// the sender. A failure to mirror the resulting block into postgres is
// returned with the outcome, since redis already enforces it.
func (s *Service) Record(ctx context.Context, v model.Violation) (model.ViolationOutcome, error) {
	if v.SenderID <= 0 || v.MessageID == "" || v.Severity == "" {
		return model.ViolationOutcome{}, ErrValidation
	}
	if s.violations == nil || s.state == nil {
		return model.ViolationOutcome{}, fmt.Errorf("violation stores are nil")
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = s.now().UTC()
	}
	v.Excerpt = truncateRunes(v.Excerpt, s.cfg.ExcerptMaxRunes)

	stored, err := s.violations.Insert(ctx, v)
	if err != nil {
		return model.ViolationOutcome{}, err
	}

	outcome, err := s.applyPolicy(ctx, stored)
	if err != nil {
		return model.ViolationOutcome{}, err
	}

	s.writeAudit(ctx, model.AuditEntry{
		MessageID: stored.MessageID,
		SenderID:  stored.SenderID,
		Stage:     enums.AuditStageViolation,
		Outcome:   string(outcome.Action),
		Details: audit.Details(map[string]any{
			"violation_id":   stored.ID,
			"severity":       stored.Severity,
			"rule":           stored.Rule,
			"window_count":   outcome.WindowCount,
			"lifetime_count": outcome.LifetimeCount,
		}),
	})
	if s.dashboard != nil {
		if err := s.dashboard.ObserveViolation(ctx); err != nil {
			s.logger.Warn("observe violation", zap.Error(err))
		}
	}
	if s.alerts != nil {
		s.alerts.ObserveViolation(ctx, stored)
	}

	if !blocks(outcome.Action) {
		return outcome, nil
	}
	return outcome, s.mirrorAutoBlock(ctx, stored, outcome)
}

func (s *Service) applyPolicy(ctx context.Context, v model.Violation) (model.ViolationOutcome, error) {
	nowMS := v.RecordedAt.UTC().UnixMilli()
	raw, err := s.state.EvalForSender(ctx, v.SenderID, recordScript,
		nowMS,
		s.cfg.Window.Milliseconds(),
		strconv.FormatInt(v.ID, 10),
		s.cfg.FlagAt,
		s.cfg.BlockAt,
		s.cfg.IndefiniteAt,
		s.cfg.Cooldown.Milliseconds(),
		strconv.FormatInt(v.SenderID, 10),
		autoBlockReason(v),
	)
	if err != nil {
		return model.ViolationOutcome{}, err
	}
	return parseOutcome(raw)
}

func (s *Service) mirrorAutoBlock(ctx context.Context, v model.Violation, outcome model.ViolationOutcome) error {
	if s.blocks == nil {
		return fmt.Errorf("block store is nil")
	}

	entry, created, err := s.blocks.Upsert(ctx, pgrepo.UpsertBlockParams{
		SenderID:   v.SenderID,
		Reason:     autoBlockReason(v),
		CreatedBy:  enums.AuditActorSystem,
		Count:      int(outcome.WindowCount),
		EndsAt:     outcome.BlockedUntil,
		Indefinite: outcome.Indefinite,
		At:         v.RecordedAt,
	})
	if err != nil {
		s.logger.Error("mirror auto block",
			zap.Int64("sender_id", v.SenderID),
			zap.String("action", string(outcome.Action)),
			zap.Error(err),
		)
		return fmt.Errorf("mirror auto block: %w", err)
	}

	s.writeAudit(ctx, model.AuditEntry{
		MessageID: v.MessageID,
		SenderID:  v.SenderID,
		Stage:     enums.AuditStageBlock,
		Outcome:   string(outcome.Action),
		Details: audit.Details(map[string]any{
			"block_id":   entry.ID,
			"created":    created,
			"ends_at":    entry.EndsAt,
			"indefinite": entry.Indefinite,
		}),
	})

	if outcome.Action == model.ViolationActionExtend {
		return nil
	}
	if s.dashboard != nil {
		if err := s.dashboard.ObserveAutoBlock(ctx); err != nil {
			s.logger.Warn("observe auto block", zap.Error(err))
		}
	}
	if s.alerts != nil {
		attrs := map[string]string{
			"window_count":   strconv.FormatInt(outcome.WindowCount, 10),
			"lifetime_count": strconv.FormatInt(outcome.LifetimeCount, 10),
		}
		if outcome.BlockedUntil != nil {
			attrs["until"] = outcome.BlockedUntil.Format(time.RFC3339)
		}
		summary := fmt.Sprintf("sender %d auto-blocked after %d violations", v.SenderID, outcome.WindowCount)
		if outcome.Indefinite {
			summary = fmt.Sprintf("sender %d blocked indefinitely after %d lifetime violations", v.SenderID, outcome.LifetimeCount)
		}
		s.alerts.Raise(ctx, model.Alert{
			Kind:       enums.AlertAutoBlock,
			Severity:   enums.SeverityHigh,
			SenderID:   v.SenderID,
			MessageID:  v.MessageID,
			Summary:    summary,
			Attributes: attrs,
			RaisedAt:   v.RecordedAt,
		})
	}
	return nil
}

// Status reads the redis block state and falls back to postgres when the
// sender has no cached state or redis is unreachable.
func (s *Service) Status(ctx context.Context, senderID int64) (model.BlockStatus, error) {
	if senderID <= 0 {
		return model.BlockStatus{}, ErrValidation
	}
	now := s.now().UTC()

	if s.state != nil {
		rec, err := s.state.GetBlock(ctx, senderID)
		if err == nil && rec.Exists {
			return statusFromRecord(rec, now), nil
		}
		if err != nil {
			s.logger.Warn("read block state from redis", zap.Int64("sender_id", senderID), zap.Error(err))
		}
	}

	if s.blocks == nil {
		return model.BlockStatus{}, fmt.Errorf("block store is nil")
	}
	entry, err := s.blocks.GetActive(ctx, senderID, now)
	if err != nil {
		if errors.Is(err, pgrepo.ErrNoActiveBlock) {
			return model.BlockStatus{}, nil
		}
		return model.BlockStatus{}, err
	}
	return model.BlockStatus{
		Blocked:    true,
		Until:      entry.EndsAt,
		Indefinite: entry.Indefinite,
		Reason:     entry.Reason,
	}, nil
}

func (s *Service) List(ctx context.Context, f model.ViolationFilter) ([]model.Violation, error) {
	if f.SenderID != nil && *f.SenderID <= 0 {
		return nil, ErrValidation
	}
	if f.Since != nil && f.Until != nil && f.Until.Before(*f.Since) {
		return nil, ErrValidation
	}
	if s.violations == nil {
		return nil, fmt.Errorf("violation store is nil")
	}
	return s.violations.List(ctx, f)
}

func (s *Service) Flagged(ctx context.Context, limit int) ([]model.FlaggedSender, error) {
	if s.dashboard == nil {
		return nil, fmt.Errorf("dashboard is nil")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.dashboard.Flagged(ctx, int64(limit))
}

func (s *Service) Summary(ctx context.Context) (redrepo.DashboardSummary, error) {
	if s.dashboard == nil {
		return redrepo.DashboardSummary{}, fmt.Errorf("dashboard is nil")
	}
	return s.dashboard.Summary(ctx)
}

// Block installs an admin block. A zero duration uses the configured admin
// default unless the block is indefinite.
func (s *Service) Block(ctx context.Context, p BlockParams) (model.BlockEntry, error) {
	if p.SenderID <= 0 || p.Duration < 0 || p.AdminID == "" {
		return model.BlockEntry{}, ErrValidation
	}
	if s.blocks == nil || s.state == nil {
		return model.BlockEntry{}, fmt.Errorf("block stores are nil")
	}
	if p.Duration == 0 && !p.Indefinite {
		p.Duration = s.cfg.AdminBlock
	}
	if p.Reason == "" {
		p.Reason = "admin block"
	}

	now := s.now().UTC()
	var endsAt *time.Time
	if !p.Indefinite {
		v := now.Add(p.Duration)
		endsAt = &v
	}

	entry, _, err := s.blocks.Upsert(ctx, pgrepo.UpsertBlockParams{
		SenderID:   p.SenderID,
		Reason:     p.Reason,
		CreatedBy:  adminActor(p.AdminID),
		EndsAt:     endsAt,
		Indefinite: p.Indefinite,
		At:         now,
	})
	if err != nil {
		return model.BlockEntry{}, err
	}

	untilMS := int64(0)
	ttlMS := int64(0)
	indefinite := "0"
	if entry.Indefinite || entry.EndsAt == nil {
		indefinite = "1"
	} else {
		untilMS = entry.EndsAt.UnixMilli()
		ttlMS = entry.EndsAt.Sub(now).Milliseconds()
	}
	if _, err := s.state.EvalForSender(ctx, p.SenderID, setBlockScript,
		untilMS, indefinite, entry.Reason, entry.Count, ttlMS,
	); err != nil {
		return model.BlockEntry{}, err
	}

	s.writeAudit(ctx, model.AuditEntry{
		SenderID: p.SenderID,
		Stage:    enums.AuditStageBlock,
		Outcome:  "admin_block",
		Actor:    adminActor(p.AdminID),
		Details: audit.Details(map[string]any{
			"block_id":   entry.ID,
			"ends_at":    entry.EndsAt,
			"indefinite": entry.Indefinite,
			"reason":     entry.Reason,
		}),
	})
	return entry, nil
}

// Unblock lifts the open block and clears the rolling window. The lifetime
// count is kept, so a sender past the indefinite threshold is blocked again
// on the next violation.
func (s *Service) Unblock(ctx context.Context, senderID int64, adminID string) (model.BlockEntry, error) {
	if senderID <= 0 || adminID == "" {
		return model.BlockEntry{}, ErrValidation
	}
	if s.blocks == nil || s.state == nil {
		return model.BlockEntry{}, fmt.Errorf("block stores are nil")
	}

	entry, liftErr := s.blocks.Lift(ctx, senderID, adminActor(adminID), s.now().UTC())
	if liftErr != nil && !errors.Is(liftErr, pgrepo.ErrNoActiveBlock) {
		return model.BlockEntry{}, liftErr
	}
	if err := s.state.Clear(ctx, senderID); err != nil {
		return model.BlockEntry{}, err
	}
	if liftErr != nil {
		return model.BlockEntry{}, ErrNotFound
	}

	s.writeAudit(ctx, model.AuditEntry{
		SenderID: senderID,
		Stage:    enums.AuditStageBlock,
		Outcome:  "unblock",
		Actor:    adminActor(adminID),
		Details:  audit.Details(map[string]any{"block_id": entry.ID}),
	})
	return entry, nil
}

func (s *Service) writeAudit(ctx context.Context, e model.AuditEntry) {
	if s.audit == nil {
		return
	}
	s.audit.Write(ctx, e)
}

func parseOutcome(raw interface{}) (model.ViolationOutcome, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) < 5 {
		return model.ViolationOutcome{}, fmt.Errorf("unexpected violation script result")
	}

	windowCount, ok := asInt64(arr[0])
	if !ok {
		return model.ViolationOutcome{}, fmt.Errorf("unexpected window count value")
	}
	lifetime, ok := asInt64(arr[1])
	if !ok {
		return model.ViolationOutcome{}, fmt.Errorf("unexpected lifetime count value")
	}
	action, ok := arr[2].(string)
	if !ok {
		return model.ViolationOutcome{}, fmt.Errorf("unexpected action value")
	}
	untilMS, ok := asInt64(arr[3])
	if !ok {
		return model.ViolationOutcome{}, fmt.Errorf("unexpected until value")
	}
	indefinite, ok := asInt64(arr[4])
	if !ok {
		return model.ViolationOutcome{}, fmt.Errorf("unexpected indefinite value")
	}

	out := model.ViolationOutcome{
		WindowCount:   windowCount,
		LifetimeCount: lifetime,
		Action:        model.ViolationAction(action),
		Indefinite:    indefinite == 1,
	}
	if untilMS > 0 && !out.Indefinite {
		v := time.UnixMilli(untilMS).UTC()
		out.BlockedUntil = &v
	}
	return out, nil
}

func statusFromRecord(rec redrepo.BlockStateRecord, now time.Time) model.BlockStatus {
	if rec.Indefinite {
		return model.BlockStatus{Blocked: true, Indefinite: true, Reason: rec.Reason}
	}
	until := time.UnixMilli(rec.UntilMS).UTC()
	if !until.After(now) {
		return model.BlockStatus{}
	}
	return model.BlockStatus{Blocked: true, Until: &until, Reason: rec.Reason}
}

func blocks(action model.ViolationAction) bool {
	switch action {
	case model.ViolationActionBlock, model.ViolationActionExtend, model.ViolationActionIndefinite:
		return true
	default:
		return false
	}
}

func autoBlockReason(v model.Violation) string {
	if v.Rule == "" {
		return "repeated violations"
	}
	return "repeated violations: " + v.Rule
}

func adminActor(adminID string) string {
	return "admin:" + adminID
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
