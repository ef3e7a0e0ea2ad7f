package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"persistence-engine/internal/api"
	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/monitoring"
	"persistence-engine/internal/persistence"
	"persistence-engine/internal/tracing"
)

// HTTPServer represents the HTTP REST API server
type HTTPServer struct {
	config      *config.Config
	logger      *logging.Logger
	server      *http.Server
	listener    net.Listener
	restHandler *api.RESTHandler
	manager     *persistence.Manager
	tracer      *tracing.TracingService
	metrics     *monitoring.Metrics
}

type HTTPOption func(*HTTPServer)

// WithTracer opens a span per request when the service is enabled.
func WithTracer(ts *tracing.TracingService) HTTPOption {
	return func(s *HTTPServer) { s.tracer = ts }
}

// WithMetrics counts requests and serves the metrics endpoint.
func WithMetrics(m *monitoring.Metrics) HTTPOption {
	return func(s *HTTPServer) { s.metrics = m }
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.Config, manager *persistence.Manager, logger *logging.Logger, opts ...HTTPOption) *HTTPServer {
	s := &HTTPServer{
		config:      cfg,
		logger:      logger,
		restHandler: api.NewRESTHandler(manager, logger, cfg.Server.MaxBodySize),
		manager:     manager,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the configured address without serving yet.
func (s *HTTPServer) Listen() error {
	if s.listener != nil {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	router := s.restHandler.SetupRoutes()
	if s.metrics != nil {
		router.Handle(s.config.Metrics.Path, s.metrics.Handler(s.manager.StatisticsAll)).Methods(http.MethodGet)
		router.Use(s.metrics.Middleware)
	}
	if s.tracer.Enabled() {
		router.Use(s.tracer.Middleware)
	}
	s.server = &http.Server{
		Handler:      router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}
	return nil
}

// Start serves until Stop. Listen is called first if it has not been.
func (s *HTTPServer) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.logger.Info("Starting HTTP server",
		"address", s.listener.Addr().String(),
		"service", "http",
	)

	return s.server.Serve(s.listener)
}

// Addr is the bound address, or "" before Listen.
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop stops the HTTP server gracefully
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Stopping HTTP server")
	err := s.server.Shutdown(ctx)
	// Serve may never have run; the listener is closed either way.
	_ = s.listener.Close()
	return err
}
