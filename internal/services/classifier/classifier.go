package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

var (
	ErrTransient   = errors.New("classifier transient failure")
	ErrAmbiguous   = errors.New("classifier ambiguous response")
	ErrUnavailable = errors.New("classifier unavailable")
)

const (
	VerdictSafe   = "SAFE"
	VerdictUnsafe = "UNSAFE"
)

type ModerationResult struct {
	Flagged    bool
	Categories []string
}

type AnalysisResult struct {
	Verdict string
	Reason  string
}

type Moderator interface {
	Moderate(ctx context.Context, text string) (ModerationResult, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, text, hint string) (AnalysisResult, error)
}

// Config bounds the external calls. Timeout applies to each attempt inside the
// clients; MaxWait caps one Classify call end to end, retries included.
type Config struct {
	Timeout          time.Duration
	MaxWait          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Adapter fronts the external safety services. It never returns an error:
// failures surface as ClassifierUnavailable so the caller can fail closed.
type Adapter struct {
	moderator Moderator
	analyzer  Analyzer
	breaker   *Breaker
	maxWait   time.Duration
	logger    *zap.Logger
}

func NewAdapter(moderator Moderator, analyzer Analyzer, cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * cfg.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		moderator: moderator,
		analyzer:  analyzer,
		breaker:   NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		maxWait:   cfg.MaxWait,
		logger:    logger,
	}
}

func (a *Adapter) Breaker() *Breaker {
	return a.breaker
}

func (a *Adapter) Classify(ctx context.Context, text string, prior model.Verdict) model.ClassifierVerdict {
	if prior.Outcome == model.FilterHarmful {
		return model.ClassifierVerdict{Outcome: model.ClassifierHarmful, Detail: prior.Rule}
	}
	ctx, cancel := context.WithTimeout(ctx, a.maxWait)
	defer cancel()

	switch prior.Outcome {
	case model.FilterSuspicious:
		return a.analyze(ctx, text, signalHint(prior.Signals), false, nil)
	default:
		return a.moderate(ctx, text)
	}
}

func (a *Adapter) moderate(ctx context.Context, text string) model.ClassifierVerdict {
	if a.moderator == nil {
		return unavailable(false, nil, "moderation not configured")
	}
	if !a.breaker.Allow() {
		return unavailable(false, nil, "circuit open")
	}

	result, err := a.moderator.Moderate(ctx, text)
	if err != nil {
		return a.failed("moderation", err, false, nil)
	}
	a.breaker.Success()

	if !result.Flagged {
		return model.ClassifierVerdict{Outcome: model.ClassifierApproved}
	}
	hint := "moderation flagged: " + strings.Join(result.Categories, ", ")
	return a.analyze(ctx, text, hint, true, result.Categories)
}

func (a *Adapter) analyze(ctx context.Context, text, hint string, escalated bool, categories []string) model.ClassifierVerdict {
	if a.analyzer == nil {
		return unavailable(escalated, categories, "analyzer not configured")
	}
	if !a.breaker.Allow() {
		return unavailable(escalated, categories, "circuit open")
	}

	result, err := a.analyzer.Analyze(ctx, text, hint)
	if err != nil {
		return a.failed("analyzer", err, escalated, categories)
	}
	a.breaker.Success()

	switch result.Verdict {
	case VerdictSafe:
		return model.ClassifierVerdict{Outcome: model.ClassifierApproved, Escalated: escalated, Categories: categories, Detail: result.Reason}
	case VerdictUnsafe:
		return model.ClassifierVerdict{Outcome: model.ClassifierHarmful, Escalated: escalated, Categories: categories, Detail: result.Reason}
	default:
		return model.ClassifierVerdict{Outcome: model.ClassifierAmbiguous, Escalated: escalated, Categories: categories, Detail: fmt.Sprintf("verdict %q", result.Verdict)}
	}
}

// failed counts only transport-level failures against the breaker. A service
// that answered with an unusable body is up, and the message is ambiguous.
func (a *Adapter) failed(call string, err error, escalated bool, categories []string) model.ClassifierVerdict {
	if errors.Is(err, ErrAmbiguous) {
		a.breaker.Success()
		a.logger.Warn("classifier ambiguous", zap.String("call", call), zap.Error(err))
		return model.ClassifierVerdict{Outcome: model.ClassifierAmbiguous, Escalated: escalated, Categories: categories, Detail: err.Error()}
	}
	a.breaker.Failure()
	a.logger.Warn("classifier call failed",
		zap.String("call", call),
		zap.String("breaker", string(a.breaker.State())),
		zap.Error(err),
	)
	return unavailable(escalated, categories, call+" failed")
}

func unavailable(escalated bool, categories []string, detail string) model.ClassifierVerdict {
	return model.ClassifierVerdict{Outcome: model.ClassifierUnavailable, Escalated: escalated, Categories: categories, Detail: detail}
}

func signalHint(signals []string) string {
	if len(signals) == 0 {
		return ""
	}
	return "pattern signals: " + strings.Join(signals, ", ")
}
