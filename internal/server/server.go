// Package server exposes the dashboard API: queue control, progress
// streams, queue status and prospect browsing.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/queue"
	"github.com/sells-group/prospect-dash/internal/registry"
	"github.com/sells-group/prospect-dash/internal/store"
)

// DefaultKeepalive is the idle-stream keepalive cadence; intermediaries
// commonly drop connections quiet for 60s.
const DefaultKeepalive = 30 * time.Second

// DefaultBulkBatchLimit caps how many prospects one bulk job may cover.
const DefaultBulkBatchLimit = 100

// Config wires the server's collaborators and bounds.
type Config struct {
	Queue          *queue.Queue
	Worker         *queue.Worker
	Bus            *events.Bus
	Store          store.Store
	Registry       *registry.Registry // optional; sources endpoint 404s without it
	Keepalive      time.Duration
	BulkBatchLimit int
	AllowedOrigins []string
}

// Server handles the dashboard API.
type Server struct {
	queue     *queue.Queue
	worker    *queue.Worker
	bus       *events.Bus
	store     store.Store
	registry  *registry.Registry
	keepalive time.Duration
	bulkLimit int
	origins   []string
	log       *zap.Logger
}

// New creates a Server from its config.
func New(cfg Config) *Server {
	keepalive := cfg.Keepalive
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	bulkLimit := cfg.BulkBatchLimit
	if bulkLimit <= 0 {
		bulkLimit = DefaultBulkBatchLimit
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		queue:     cfg.Queue,
		worker:    cfg.Worker,
		bus:       cfg.Bus,
		store:     cfg.Store,
		registry:  cfg.Registry,
		keepalive: keepalive,
		bulkLimit: bulkLimit,
		origins:   origins,
		log:       zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/enhance-single", s.handleEnhanceSingle)
		r.Post("/enhance-bulk", s.handleEnhanceBulk)
		r.Delete("/enhancement-queue/{queueItemID}", s.handleCancel)
		r.Get("/enhancement-progress/{prospectID}", s.handleProgressStream)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/status", s.handleQueueStatus)
			r.Post("/start-worker", s.handleStartWorker)
			r.Post("/stop-worker", s.handleStopWorker)
		})

		r.Route("/prospects", func(r chi.Router) {
			r.Get("/", s.handleListProspects)
			r.Get("/{prospectID}", s.handleGetProspect)
		})

		r.Get("/sources", s.handleSources)
	})

	return r
}

// requestLogger logs each request at debug, skipping long-lived streams
// which would otherwise report their whole lifetime as latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
