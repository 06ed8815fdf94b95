// Package server wires the HTTP surface: the authenticated /v1 API and the
// anonymous share resolution endpoint.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebogdum/sharefs/auth"
	"github.com/ebogdum/sharefs/config"
	"github.com/ebogdum/sharefs/core"
	"github.com/ebogdum/sharefs/metrics"
	"github.com/ebogdum/sharefs/server/handlers"
	sfsMiddleware "github.com/ebogdum/sharefs/server/middleware"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	engine *core.Engine,
	authenticator auth.Authenticator,
	limits *config.LimitsConfig,
	apiHost string,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(sfsMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(sfsMiddleware.V1SecurityHeaders())

	// Custom logging and metrics middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				r.URL.Path,
				http.StatusText(ww.Status()),
			).Inc()

			metrics.HTTPRequestDuration.WithLabelValues(
				r.Method,
				r.URL.Path,
			).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", duration),
				zap.String("user_agent", r.UserAgent()),
				zap.String("remote_addr", r.RemoteAddr))
		})
	})

	// Health check endpoint (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			logger.Error("Failed to write health check response", zap.Error(err))
		}
	})

	// Metrics endpoint (no auth required)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes with authentication
	r.Route("/v1", func(r chi.Router) {
		r.Use(sfsMiddleware.V1AuthMiddleware(authenticator, logger))

		r.Route("/files", func(r chi.Router) {
			r.Post("/", handlers.V1CreateFileHandler(engine, logger))
			r.Get("/", handlers.V1ListFilesHandler(engine, limits.ListPageSizeLimit, logger))

			r.Route("/{fileID}", func(r chi.Router) {
				r.Get("/", handlers.V1GetFileInfoHandler(engine, logger))
				r.Delete("/", handlers.V1DeleteFileHandler(engine, logger))
				r.Get("/download", handlers.V1DownloadFileHandler(engine, logger))

				r.Route("/permissions", func(r chi.Router) {
					r.Get("/", handlers.V1ListPermissionsHandler(engine, logger))
					r.Post("/", handlers.V1GrantPermissionHandler(engine, logger))
					r.Delete("/{principalID}", handlers.V1RevokePermissionHandler(engine, logger))
				})

				r.Get("/shares", handlers.V1ListSharesHandler(engine, logger))
			})
		})

		r.Route("/shares", func(r chi.Router) {
			r.Post("/", handlers.V1IssueShareHandler(engine, apiHost, logger))
			r.Delete("/{token}", handlers.V1RevokeShareHandler(engine, logger))
		})
	})

	// Anonymous share resolution (no auth, rate limited)
	resolveRateLimiter := rate.NewLimiter(rate.Limit(limits.ResolveRate), limits.ResolveBurst)
	r.With(sfsMiddleware.V1RateLimitMiddleware(resolveRateLimiter, logger)).
		Get("/shared/{token}", handlers.V1ResolveShareHandler(engine, logger))

	logger.Info("HTTP router configured successfully")

	return r
}
