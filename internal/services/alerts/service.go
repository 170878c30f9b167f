package alerts

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

const sendTimeout = 5 * time.Second

// Sink delivers one alert to an external channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, a model.Alert) error
}

type Config struct {
	ViolationsPerHour int64
	RateWindow        time.Duration
	QueueSize         int
}

// Service fans alerts out to every sink from a single worker. Raise never
// blocks; alerts are dropped when the queue is full.
type Service struct {
	sinks   []Sink
	queue   chan model.Alert
	logger  *zap.Logger
	now     func() time.Time
	window  time.Duration
	limiter *slidingwindow.Limiter
	stop    slidingwindow.StopFunc

	mu            sync.Mutex
	lastRateAlert time.Time
}

func NewService(cfg Config, logger *zap.Logger, sinks ...Sink) *Service {
	if cfg.ViolationsPerHour <= 0 {
		cfg.ViolationsPerHour = 10
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// The limiter admits N-1 events per window, so the Nth violation is the
	// first one refused.
	limiter, stop := slidingwindow.NewLimiter(cfg.RateWindow, cfg.ViolationsPerHour-1, func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return slidingwindow.NewLocalWindow()
	})

	return &Service{
		sinks:   sinks,
		queue:   make(chan model.Alert, cfg.QueueSize),
		logger:  logger,
		now:     time.Now,
		window:  cfg.RateWindow,
		limiter: limiter,
		stop:    stop,
	}
}

func (s *Service) Raise(_ context.Context, a model.Alert) {
	if s == nil {
		return
	}
	if a.RaisedAt.IsZero() {
		a.RaisedAt = s.now().UTC()
	}
	select {
	case s.queue <- a:
	default:
		s.logger.Warn("alert queue full, dropping alert",
			zap.String("kind", string(a.Kind)),
			zap.Int64("sender_id", a.SenderID),
		)
	}
}

// ObserveViolation feeds the platform-wide violation rate and raises a
// violation_rate alert at most once per window.
func (s *Service) ObserveViolation(ctx context.Context, v model.Violation) {
	if s == nil {
		return
	}
	now := v.RecordedAt
	if now.IsZero() {
		now = s.now().UTC()
	}
	if s.limiter.AllowN(now, 1) {
		return
	}

	s.mu.Lock()
	if !s.lastRateAlert.IsZero() && now.Sub(s.lastRateAlert) < s.window {
		s.mu.Unlock()
		return
	}
	s.lastRateAlert = now
	s.mu.Unlock()

	limit := s.limiter.Limit() + 1
	s.Raise(ctx, model.Alert{
		Kind:     enums.AlertViolationRate,
		Severity: enums.SeverityHigh,
		SenderID: v.SenderID,
		Summary:  fmt.Sprintf("%d or more violations within %s", limit, s.window),
		Attributes: map[string]string{
			"threshold": strconv.FormatInt(limit, 10),
			"window":    s.window.String(),
		},
		RaisedAt: now,
	})
}

// Run delivers queued alerts until ctx is cancelled, then drains what is left.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil
		case a := <-s.queue:
			s.deliver(context.WithoutCancel(ctx), a)
		}
	}
}

func (s *Service) Close() {
	if s == nil || s.stop == nil {
		return
	}
	s.stop()
}

func (s *Service) drain() {
	for {
		select {
		case a := <-s.queue:
			s.deliver(context.Background(), a)
		default:
			return
		}
	}
}

func (s *Service) deliver(ctx context.Context, a model.Alert) {
	for _, sink := range s.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := sink.Send(sendCtx, a)
		cancel()
		if err != nil {
			s.logger.Warn("alert sink failed",
				zap.String("sink", sink.Name()),
				zap.String("kind", string(a.Kind)),
				zap.Error(err),
			)
		}
	}
}
