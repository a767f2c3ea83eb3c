// Package api provides the HTTP API server for the Garmin sync service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/service"
	"github.com/biopeak-sync/internal/worker"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// IntakeServiceInterface defines the intake operations the server needs
type IntakeServiceInterface interface {
	RequestBackfill(ctx context.Context, req *service.IntakeRequest) ([]service.TypeResult, error)
}

// ProcessorInterface defines the processor trigger surface
type ProcessorInterface interface {
	ProcessPending(ctx context.Context, userID string, batchSize int) (*worker.Result, error)
}

// ReconcilerInterface defines the completion-heuristic trigger surface
type ReconcilerInterface interface {
	Run(ctx context.Context) (int, error)
}

// JobReader lists a user's jobs for status endpoints
type JobReader interface {
	ListByUser(ctx context.Context, userID string) ([]*models.BackfillJob, error)
}

// ConnectionManager handles Garmin disconnects
type ConnectionManager interface {
	Disconnect(ctx context.Context, userID string) error
}

// WebhookIngester accepts vendor push payloads
type WebhookIngester interface {
	Ingest(ctx context.Context, userID string, payload []byte) (int, error)
}

// Pinger reports datastore health
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	intake      IntakeServiceInterface
	processor   ProcessorInterface
	reconciler  ReconcilerInterface
	jobs        JobReader
	connections ConnectionManager
	ingester    WebhookIngester
	pingers     map[string]Pinger
	config      *ServerConfig
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	intake IntakeServiceInterface,
	processor ProcessorInterface,
	reconciler ReconcilerInterface,
	jobs JobReader,
	connections ConnectionManager,
	ingester WebhookIngester,
	pingers map[string]Pinger,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		intake:      intake,
		processor:   processor,
		reconciler:  reconciler,
		jobs:        jobs,
		connections: connections,
		ingester:    ingester,
		pingers:     pingers,
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec)

	// Middleware order matters: logging outermost, then recovery, CORS, limits
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes registers all API routes
func (s *Server) setupRoutes() {
	apiRouter := s.router.PathPrefix("/api").Subrouter()

	apiRouter.HandleFunc("/backfill", s.handleRequestBackfill).Methods(http.MethodPost, http.MethodOptions)
	apiRouter.HandleFunc("/backfill/jobs", s.handleListJobs).Methods(http.MethodGet, http.MethodOptions)
	apiRouter.HandleFunc("/backfill/status", s.handleBackfillStatus).Methods(http.MethodGet, http.MethodOptions)
	apiRouter.HandleFunc("/backfill/process", s.handleProcess).Methods(http.MethodPost, http.MethodOptions)
	apiRouter.HandleFunc("/backfill/reconcile", s.handleReconcile).Methods(http.MethodPost, http.MethodOptions)
	apiRouter.HandleFunc("/garmin/webhook", s.handleWebhook).Methods(http.MethodPost, http.MethodOptions)
	apiRouter.HandleFunc("/garmin/connection", s.handleDisconnect).Methods(http.MethodDelete, http.MethodOptions)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Start starts the HTTP server and blocks until it exits
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router exposes the router for tests
func (s *Server) Router() *mux.Router {
	return s.router
}
