// Package worker provides the HTTP service that carries conversations.
package worker

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/wallroll/internal/config"
	"github.com/thebtf/wallroll/internal/db/gorm"
	"github.com/thebtf/wallroll/internal/metrics"
	"github.com/thebtf/wallroll/internal/session"
	"github.com/thebtf/wallroll/internal/worker/sse"
)

const (
	// MaxRequestBody bounds inbound message bodies.
	MaxRequestBody = 64 << 10
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second
)

// Options wires a Service.
type Options struct {
	Version string
	Config  *config.Config
	Manager *session.Manager
	// Stats is optional; statistics routes answer 404 without it.
	Stats *gorm.ChatStatStore
	// Metrics is optional; /metrics is not mounted without it.
	Metrics *metrics.PrometheusRecorder
	// Broadcaster is optional; a fresh one is created when nil.
	Broadcaster *sse.Broadcaster
}

// Service is the worker HTTP service.
type Service struct {
	version        string
	config         *config.Config
	manager        *session.Manager
	stats          *gorm.ChatStatStore
	metrics        *metrics.PrometheusRecorder
	sseBroadcaster *sse.Broadcaster
	router         chi.Router
	startTime      time.Time
	ready          atomic.Bool
}

// NewService creates the service and registers its observers on the manager.
func NewService(opts Options) *Service {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	b := opts.Broadcaster
	if b == nil {
		b = sse.NewBroadcaster()
	}

	svc := &Service{
		version:        opts.Version,
		config:         cfg,
		manager:        opts.Manager,
		stats:          opts.Stats,
		metrics:        opts.Metrics,
		sseBroadcaster: b,
		router:         chi.NewRouter(),
		startTime:      time.Now(),
	}

	svc.manager.AddObserver(svc.sseBroadcaster)
	if svc.stats != nil {
		svc.manager.AddObserver(svc.stats)
	}
	if svc.metrics != nil {
		svc.manager.AddObserver(svc.metrics)
	}

	svc.setupRoutes()
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/ready", s.handleReady)
	s.router.Get("/api/version", s.handleVersion)

	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.Route("/api/chats/{chat}", func(r chi.Router) {
			r.Get("/", s.handleGetChat)
			r.Delete("/", s.handleDeleteChat)
			r.Post("/messages", s.handleMessage)
			r.Post("/restart", s.handleRestart)
		})

		r.Get("/api/stats", s.handleStats)
		r.Get("/api/stats/chats/{chat}", s.handleChatStats)
		r.Get("/api/events", s.sseBroadcaster.HandleSSE)
	})
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// SetReady marks the service as able to accept conversation traffic.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Run serves on the configured address until ctx is done, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", s.version).Msg("Worker listening")
		errCh <- srv.ListenAndServe()
	}()
	s.ready.Store(true)

	select {
	case err := <-errCh:
		s.ready.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.ready.Store(false)
	log.Info().Msg("Shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
