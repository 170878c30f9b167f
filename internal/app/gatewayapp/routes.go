package gatewayapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/handlers"
)

type Dependencies struct {
	Gateway    handlers.MessageGateway
	Resolver   handlers.ReviewResolver
	Reviews    handlers.ReviewLister
	Violations handlers.ViolationAdmin
	Costs      handlers.CostReporter
	Audit      handlers.AuditReader
	Auth       Authenticator
	Limiter    SubmitLimiter
	Metrics    http.Handler
	Logger     *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	messagesHandler := handlers.NewMessagesHandler(deps.Gateway)
	reviewHandler := handlers.NewReviewHandler(deps.Reviews, deps.Resolver)
	violationsHandler := handlers.NewViolationsHandler(deps.Violations)
	costsHandler := handlers.NewCostsHandler(deps.Costs)
	auditHandler := handlers.NewAuditHandler(deps.Audit)
	authMW := AuthMiddleware(deps.Auth, deps.Logger)
	adminMW := RequireAdmin()
	limitMW := SubmitRateLimit(deps.Limiter, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(authMW, limitMW).Post("/messages", messagesHandler.Submit)
		r.With(authMW).Get("/messages/{id}", messagesHandler.Get)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(authMW, adminMW)
		r.Get("/reviews", reviewHandler.List)
		r.Post("/reviews/{id}/resolve", reviewHandler.Resolve)
		r.Get("/violations", violationsHandler.List)
		r.Get("/violations/flagged", violationsHandler.Flagged)
		r.Get("/violations/summary", violationsHandler.Summary)
		r.Post("/users/{id}/block", violationsHandler.Block)
		r.Delete("/users/{id}/block", violationsHandler.Unblock)
		r.Get("/costs", costsHandler.Report)
		r.Get("/messages/{id}/audit", auditHandler.Trail)
	})
}
