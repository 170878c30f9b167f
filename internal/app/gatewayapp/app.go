package gatewayapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/config"
	s3infra "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/infra/s3"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/jobs/archive"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/jobs/sweeper"
	authsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/auth"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	services   *Services
	sweeper    *sweeper.Job
	archive    *archive.Job
	httpRouter http.Handler

	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	services, err := NewServices(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log, services.Metrics, cfg.HTTP.RequestTimeout)

	authService := authsvc.NewService(authsvc.NewVerifier(authsvc.VerifierConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.JWTIssuer,
		Leeway: cfg.Auth.JWTLeeway,
	}))
	RegisterRoutes(r, Dependencies{
		Gateway:    services.Gateway,
		Resolver:   services.Gateway,
		Reviews:    services.Review,
		Violations: services.Violations,
		Costs:      services.Ledger,
		Audit:      services.Audit,
		Auth:       authService,
		Limiter:    services.Limiter,
		Metrics:    services.Metrics.Handler(),
		Logger:     log,
	})

	sweepJob := sweeper.New(services.Messages, services.Gateway, cfg.Sweeper.StaleAfter, cfg.Sweeper.BatchSize, log)
	sweepJob.AttachAudit(services.Audit)
	sweepJob.AttachMetrics(services.Metrics)

	var archiveJob *archive.Job
	if services.S3 != nil {
		store := s3infra.NewObjectStore(services.S3, cfg.S3.Bucket)
		if err := store.EnsureBucket(ctx); err != nil {
			log.Warn("s3 bucket check failed, audit archive disabled", zap.Error(err))
		} else {
			archiveJob = archive.New(services.AuditLog, store, cfg.Archive.Prefix, log)
		}
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		services:   services,
		sweeper:    sweepJob,
		archive:    archiveJob,
		httpRouter: r,
	}, nil
}

// Run serves HTTP and runs the alert worker, the sweeper and the archiver
// until the server stops.
func (a *App) Run(ctx context.Context) error {
	jobsCtx, cancel := context.WithCancel(ctx)
	a.cancelJobs = cancel

	a.goJob(func() {
		if err := a.services.Alerts.Run(jobsCtx); err != nil {
			a.logger.Error("alert worker stopped", zap.Error(err))
		}
	})
	a.goJob(func() {
		runLoop(jobsCtx, a.cfg.Sweeper.Interval, a.logger, "sweeper", func(ctx context.Context) error {
			_, err := a.sweeper.Run(ctx)
			return err
		})
	})
	if a.archive != nil {
		a.goJob(func() {
			runLoop(jobsCtx, a.cfg.Archive.Interval, a.logger, "archive", func(ctx context.Context) error {
				_, err := a.archive.Run(ctx)
				return err
			})
		})
	}

	a.logger.Info("gateway server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) goJob(fn func()) {
	a.jobs.Add(1)
	go func() {
		defer a.jobs.Done()
		fn()
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.cancelJobs != nil {
		a.cancelJobs()
	}

	done := make(chan struct{})
	go func() {
		a.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("background jobs did not stop before shutdown deadline")
	}

	if err := a.services.Close(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
