package gatewayapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/config"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/infra/httpclient"
	kafkainfra "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/infra/kafka"
	s3infra "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/infra/s3"
	tginfra "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/infra/telegram"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
	redrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/redis"
	alertsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/alerts"
	auditsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/audit"
	classifiersvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/classifier"
	deliverysvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/delivery"
	filtersvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/filter"
	gatewaysvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/gateway"
	ledgersvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/ledger"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/metrics"
	ratesvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/rate"
	reviewsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/review"
	tiergatesvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/tiergate"
	violationsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/violations"
)

// Services is the message pipeline with its stores and clients. The API
// process and the review bot build the same graph so admin decisions from
// either surface take the same path.
type Services struct {
	Postgres *pgxpool.Pool
	Redis    *goredis.Client
	S3       *minio.Client
	Bot      *tginfra.Bot

	Messages *pgrepo.MessageRepo
	AuditLog *pgrepo.AuditRepo

	Metrics    *metrics.Metrics
	Alerts     *alertsvc.Service
	Audit      *auditsvc.Service
	Gate       *tiergatesvc.Service
	Violations *violationsvc.Service
	Review     *reviewsvc.Service
	Dispatcher *deliverysvc.Dispatcher
	Ledger     *ledgersvc.Service
	Gateway    *gatewaysvc.Service
	Limiter    *ratesvc.Limiter

	producer *kafkainfra.Producer
	analyzer *classifiersvc.GeminiAnalyzer
}

func NewServices(ctx context.Context, cfg config.Config, log *zap.Logger) (*Services, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	s := &Services{
		Postgres: pool,
		Redis:    redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
		Metrics:  metrics.New(),
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	if err := redrepo.Ping(pingCtx, s.Redis); err != nil {
		log.Warn("redis is not reachable yet, limiter fails open until it is", zap.Error(err))
	}
	cancelPing()

	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		bot, err := tginfra.NewBot(cfg.Telegram.Token)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
		s.Bot = bot
	} else {
		log.Warn("telegram token is empty, telegram delivery and admin chat alerts disabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(kafkainfra.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.AlertTopic,
		})
		if err != nil {
			log.Warn("kafka init failed, alert stream disabled", zap.Error(err))
		} else {
			s.producer = producer
		}
	}

	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, audit archive disabled", zap.Error(err))
	} else {
		s.S3 = c
	}

	s.Messages = pgrepo.NewMessageRepo(pool)
	s.AuditLog = pgrepo.NewAuditRepo(pool)
	violationRepo := pgrepo.NewViolationRepo(pool)
	blockRepo := pgrepo.NewBlockRepo(pool)
	reviewRepo := pgrepo.NewReviewRepo(pool)
	ledgerRepo := pgrepo.NewLedgerRepo(pool)
	directory := pgrepo.NewUserDirectoryRepo(pool)
	senderState := redrepo.NewSenderStateRepo(s.Redis)
	dashboard := redrepo.NewDashboardRepo(s.Redis)

	s.Limiter = ratesvc.NewLimiter(redrepo.NewRateRepo(s.Redis), ratesvc.Config{
		PerMinute: cfg.RateLimit.SubmitPerMinute,
		Per10Sec:  cfg.RateLimit.SubmitPer10Sec,
	})

	s.Alerts = alertsvc.NewService(alertsvc.Config{
		ViolationsPerHour: int64(cfg.Alerts.ViolationsPerHour),
		RateWindow:        cfg.Alerts.RateWindow,
		QueueSize:         cfg.Alerts.QueueSize,
	}, log, s.alertSinks(cfg, log)...)
	s.Audit = auditsvc.NewService(s.AuditLog, log)

	s.Violations = violationsvc.NewService(violationRepo, blockRepo, senderState, violationsvc.Config{
		Window:          cfg.Violations.Window,
		FlagAt:          cfg.Violations.FlagAt,
		BlockAt:         cfg.Violations.BlockAt,
		IndefiniteAt:    cfg.Violations.IndefiniteAt,
		Cooldown:        cfg.Violations.Cooldown,
		AdminBlock:      cfg.Violations.AdminBlock,
		ExcerptMaxRunes: cfg.Violations.ExcerptMaxRunes,
	}, log)
	s.Violations.AttachDashboard(dashboard)
	s.Violations.AttachAudit(s.Audit)
	s.Violations.AttachAlerts(s.Alerts)

	entitled := make([]enums.Tier, 0, len(cfg.Tiers.Entitled))
	for _, raw := range cfg.Tiers.Entitled {
		entitled = append(entitled, enums.ParseTier(raw))
	}
	s.Gate = tiergatesvc.NewService(directory, s.Violations, tiergatesvc.Config{
		Entitled:  entitled,
		CacheTTL:  cfg.Tiers.CacheTTL,
		CacheSize: cfg.Tiers.CacheMax,
	})

	filter, err := filtersvc.New(filtersvc.Config{
		InstantBlock:      cfg.Filter.InstantBlock,
		CredentialPhrases: cfg.Filter.CredentialPhrases,
		RedirectApps:      cfg.Filter.RedirectApps,
		RedirectPhrases:   cfg.Filter.RedirectPhrases,
		SuspiciousGroups:  cfg.Filter.SuspiciousGroups,
		SuspiciousMin:     cfg.Filter.SuspiciousMin,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init pattern filter: %w", err)
	}

	classifier := s.newClassifier(ctx, cfg, log)

	s.Review = reviewsvc.NewService(reviewRepo, log)
	s.Review.AttachEscalations(dashboard)
	s.Review.AttachAudit(s.Audit)
	s.Review.AttachAlerts(s.Alerts)

	provider, err := s.deliveryProvider(cfg)
	if err != nil {
		log.Warn("delivery provider init failed, approved messages will fail delivery", zap.Error(err))
	}
	s.Dispatcher = deliverysvc.NewDispatcher(provider, directory, deliverysvc.Config{
		Attempts:    cfg.Delivery.Attempts,
		BaseBackoff: cfg.Delivery.BaseBackoff,
		MaxBackoff:  cfg.Delivery.MaxBackoff,
		Timeout:     cfg.Delivery.Timeout,
	}, log)
	s.Dispatcher.AttachAlerts(s.Alerts)

	s.Ledger = ledgersvc.NewService(ledgerRepo, ledgersvc.Config{
		UnitCost:         cfg.Delivery.UnitCost,
		MonthlyCostAlert: cfg.Delivery.MonthlyCostAlert,
	}, log)
	s.Ledger.AttachAudit(s.Audit)
	s.Ledger.AttachAlerts(s.Alerts)

	s.Gateway = gatewaysvc.NewService(gatewaysvc.Deps{
		Messages:   s.Messages,
		Gate:       s.Gate,
		Filter:     filter,
		Classifier: classifier,
		Violations: s.Violations,
		Review:     s.Review,
		Dispatcher: s.Dispatcher,
		Ledger:     s.Ledger,
		Audit:      s.Audit,
		Alerts:     s.Alerts,
		Metrics:    s.Metrics,
	}, gatewaysvc.Config{}, log)

	return s, nil
}

func (s *Services) alertSinks(cfg config.Config, log *zap.Logger) []alertsvc.Sink {
	sinks := []alertsvc.Sink{alertsvc.NewLogSink(log)}
	if s.Bot != nil && cfg.Telegram.AdminChatID != 0 {
		sinks = append(sinks, alertsvc.NewTelegramSink(s.Bot, cfg.Telegram.AdminChatID))
	}
	if s.producer != nil {
		sinks = append(sinks, alertsvc.NewKafkaSink(s.producer))
	}
	return sinks
}

// newClassifier leaves a stage unset when its client cannot be built; the
// adapter reports that as unavailable and the message goes to review.
func (s *Services) newClassifier(ctx context.Context, cfg config.Config, log *zap.Logger) *classifiersvc.Adapter {
	var moderator classifiersvc.Moderator
	if strings.TrimSpace(cfg.Classifier.ModerationURL) != "" {
		client := httpclient.NewRetrying(httpclient.RetryOptions{
			AttemptTimeout: cfg.Classifier.Timeout,
			RetryMax:       cfg.Classifier.MaxRetries,
			Logger:         log,
		})
		m, err := classifiersvc.NewModerationClient(client, cfg.Classifier.ModerationURL, cfg.Classifier.ModerationKey)
		if err != nil {
			log.Warn("moderation client init failed", zap.Error(err))
		} else {
			moderator = m
		}
	}

	var analyzer classifiersvc.Analyzer
	if strings.TrimSpace(cfg.Classifier.GeminiAPIKey) != "" {
		a, err := classifiersvc.NewGeminiAnalyzer(ctx, classifiersvc.GeminiConfig{
			APIKey:         cfg.Classifier.GeminiAPIKey,
			ModelName:      cfg.Classifier.GeminiModel,
			MaxRetries:     cfg.Classifier.MaxRetries,
			AttemptTimeout: cfg.Classifier.Timeout,
		}, log)
		if err != nil {
			log.Warn("gemini analyzer init failed", zap.Error(err))
		} else {
			s.analyzer = a
			analyzer = a
		}
	}

	return classifiersvc.NewAdapter(moderator, analyzer, classifiersvc.Config{
		Timeout:          cfg.Classifier.Timeout,
		MaxWait:          cfg.Classifier.MaxWait,
		BreakerThreshold: cfg.Classifier.BreakerThreshold,
		BreakerCooldown:  cfg.Classifier.BreakerCooldown,
	}, log)
}

func (s *Services) deliveryProvider(cfg config.Config) (deliverysvc.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Delivery.Provider)) {
	case "whatsapp":
		p, err := deliverysvc.NewWhatsAppProvider(
			httpclient.New(cfg.Delivery.Timeout),
			cfg.Delivery.WhatsAppURL,
			cfg.Delivery.WhatsAppToken,
			cfg.Delivery.WhatsAppPhoneID,
		)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "", "telegram":
		if s.Bot == nil {
			return nil, fmt.Errorf("telegram provider needs a bot token")
		}
		return deliverysvc.NewTelegramProvider(s.Bot), nil
	default:
		return nil, fmt.Errorf("unknown delivery provider %q", cfg.Delivery.Provider)
	}
}

func (s *Services) Close() error {
	var closeErr error
	if s.Alerts != nil {
		s.Alerts.Close()
	}
	if s.analyzer != nil {
		if err := s.analyzer.Close(); err != nil {
			closeErr = err
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	if s.Postgres != nil {
		s.Postgres.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}
