// Package server exposes the order API: order CRUD and control endpoints,
// the persisted progress log query and the live SSE progress stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ptmflow/ptmflow/internal/app/cancel"
	"github.com/ptmflow/ptmflow/internal/app/create"
	"github.com/ptmflow/ptmflow/internal/app/history"
	"github.com/ptmflow/ptmflow/internal/app/list"
	"github.com/ptmflow/ptmflow/internal/app/remove"
	"github.com/ptmflow/ptmflow/internal/app/start"
	"github.com/ptmflow/ptmflow/internal/app/status"
	"github.com/ptmflow/ptmflow/internal/app/stream"
	"github.com/ptmflow/ptmflow/internal/log"
)

const (
	defaultAddr            = ":8080"
	defaultPingInterval    = 15 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Config is the configuration for the API server.
type Config struct {
	Addr string

	CreateService  *create.Service
	ListService    *list.Service
	StatusService  *status.Service
	StartService   *start.Service
	CancelService  *cancel.Service
	RemoveService  *remove.Service
	HistoryService *history.Service
	StreamService  *stream.Service

	// PingInterval is how often idle SSE connections receive a keepalive.
	PingInterval time.Duration
	Logger       log.Logger
}

func (c *Config) defaults() error {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.CreateService == nil || c.ListService == nil || c.StatusService == nil ||
		c.StartService == nil || c.CancelService == nil || c.RemoveService == nil ||
		c.HistoryService == nil || c.StreamService == nil {
		return fmt.Errorf("all application services are required")
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "server.HTTP"})
	return nil
}

// Server is the HTTP API server.
type Server struct {
	addr         string
	handler      http.Handler
	pingInterval time.Duration
	logger       log.Logger

	createSvc  *create.Service
	listSvc    *list.Service
	statusSvc  *status.Service
	startSvc   *start.Service
	cancelSvc  *cancel.Service
	removeSvc  *remove.Service
	historySvc *history.Service
	streamSvc  *stream.Service
}

// New creates a new API server.
func New(cfg Config) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		addr:         cfg.Addr,
		pingInterval: cfg.PingInterval,
		logger:       cfg.Logger,
		createSvc:    cfg.CreateService,
		listSvc:      cfg.ListService,
		statusSvc:    cfg.StatusService,
		startSvc:     cfg.StartService,
		cancelSvc:    cfg.CancelService,
		removeSvc:    cfg.RemoveService,
		historySvc:   cfg.HistoryService,
		streamSvc:    cfg.StreamService,
	}
	s.handler = s.routes()

	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/v1/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/v1/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/v1/orders/{ref}", s.handleGetOrder)
	mux.HandleFunc("DELETE /api/v1/orders/{ref}", s.handleDeleteOrder)
	mux.HandleFunc("POST /api/v1/orders/{ref}/start", s.handleStartOrder)
	mux.HandleFunc("POST /api/v1/orders/{ref}/cancel", s.handleCancelOrder)
	mux.HandleFunc("GET /api/v1/orders/{ref}/events", s.handleOrderEvents)

	mux.HandleFunc("GET /api/v1/stream/orders/{ref}", s.handleStream)

	return mux
}

// Handler returns the server's HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves the API until the context is done, then shuts down draining
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.handler,
	}

	errC := make(chan error, 1)
	go func() {
		s.logger.Infof("HTTP server listening on %s", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	s.logger.Infof("HTTP server shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}
