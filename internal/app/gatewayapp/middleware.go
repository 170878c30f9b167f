package gatewayapp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	authsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/auth"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/metrics"
	httperrors "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/errors"
)

type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (authsvc.Identity, error)
}

func ApplyMiddlewares(r chiRouter, log *zap.Logger, m *metrics.Metrics, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(timeout))
	r.Use(requestLogger(log, m))
}

func AuthMiddleware(authService Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authService == nil {
				httperrors.WriteError(w, r, http.StatusInternalServerError, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
				return
			}

			accessToken, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httperrors.WriteError(w, r, http.StatusUnauthorized, httperrors.CodeUnauthorized, "missing bearer token")
				return
			}

			identity, err := authService.Authenticate(r.Context(), accessToken)
			if err != nil {
				if log != nil {
					log.Debug("auth middleware validation failed", zap.Error(err))
				}
				httperrors.WriteError(w, r, http.StatusUnauthorized, httperrors.CodeUnauthorized, "invalid access token")
				return
			}

			next.ServeHTTP(w, r.WithContext(authsvc.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authsvc.IdentityFromContext(r.Context())
			if !ok {
				httperrors.WriteError(w, r, http.StatusUnauthorized, httperrors.CodeUnauthorized, "authentication required")
				return
			}
			if err := authsvc.RequireAdmin(identity); err != nil {
				httperrors.WriteError(w, r, http.StatusForbidden, httperrors.CodeForbidden, "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

func requestLogger(log *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			m.ObserveHTTP(r.Method, route, status, time.Since(start))
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("route", route),
					zap.Int("status", status),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

// routePattern keeps path parameters out of metric labels.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}

type SubmitLimiter interface {
	Allow(ctx context.Context, senderID int64) (int64, bool, error)
}

// SubmitRateLimit must run after AuthMiddleware. Limiter errors let the
// request through; the pipeline still gates every message.
func SubmitRateLimit(limiter SubmitLimiter, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authsvc.IdentityFromContext(r.Context())
			if limiter == nil || !ok {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter, allowed, err := limiter.Allow(r.Context(), identity.UserID)
			if err != nil {
				if log != nil {
					log.Warn("submit rate limit check failed", zap.Int64("sender_id", identity.UserID), zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				httperrors.WriteRateLimited(w, r, retryAfter, "too many messages, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
