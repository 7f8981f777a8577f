// Package server exposes the HTTP surface: webhook intake, manual
// deployment triggers, status queries, progress event streams, and
// metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ramparte/deployotron/internal/orchestrator"
	"github.com/ramparte/deployotron/internal/project"
	"github.com/ramparte/deployotron/internal/store"
)

const (
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// RequestTimeout bounds ordinary requests. Event streams opt out.
	RequestTimeout = 60 * time.Second

	// Requests per minute, per client IP.
	GlobalRateLimit  = 60
	WebhookRateLimit = 10
)

// Server is the HTTP front of the orchestrator.
type Server struct {
	Registry *project.Registry
	Store    *store.Store
	Orch     *orchestrator.Orchestrator
	Hub      *Hub
	Locks    *orchestrator.LockManager
	Logger   *slog.Logger
	Metrics  *Metrics
	TestMode bool

	deployWg sync.WaitGroup
}

// NewServer wires the server together. Metrics may be nil to disable the
// metrics endpoint.
func NewServer(registry *project.Registry, st *store.Store, orch *orchestrator.Orchestrator, hub *Hub, metrics *Metrics, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Registry: registry,
		Store:    st,
		Orch:     orch,
		Hub:      hub,
		Locks:    orchestrator.NewLockManager(),
		Logger:   logger,
		Metrics:  metrics,
		TestMode: testMode,
	}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	r.Get("/health", s.HandleHealth)

	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	// Event streams are long-lived; everything else gets the request
	// timeout.
	timeout := middleware.Timeout(RequestTimeout)

	r.Route("/api", func(r chi.Router) {
		r.Route("/projects/{projectName}", func(r chi.Router) {
			r.With(timeout).Post("/deployments", s.HandleTriggerDeployment)
			r.With(timeout).Get("/deployments", s.HandleListDeployments)
			r.With(timeout).Get("/status", s.HandleStatus)
			r.Get("/events", s.HandleEvents)
		})
		r.With(timeout).Get("/deployments/{deploymentID}", s.HandleGetDeployment)
	})

	// Webhook route with a stricter rate limit.
	if !s.TestMode {
		r.With(timeout, NewWebhookRateLimitMiddleware(WebhookRateLimit, s.Logger)).Post("/in/{projectName}", s.HandleWebhook)
	} else {
		r.With(timeout).Post("/in/{projectName}", s.HandleWebhook)
	}

	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.Logger.Info("Shutting down server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return s.Shutdown(shutdownCtx)
}

// WaitForDeployments waits for all in-flight async deployments. Primarily
// useful for testing.
func (s *Server) WaitForDeployments() {
	s.deployWg.Wait()
}

// Shutdown waits for in-flight deployments and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deployWg.Wait()

	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}
