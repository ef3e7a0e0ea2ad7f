// Package server runs the persistence engine as a process: the REST
// inspection API and, when configured, a gRPC endpoint serving one local
// storage kind to remote clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/monitoring"
	"persistence-engine/internal/persistence"
	"persistence-engine/internal/storage"
	"persistence-engine/internal/storage/remote"
	"persistence-engine/internal/tracing"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	config     *config.Config
	logger     *logging.Logger
	manager    *persistence.Manager
	httpServer *HTTPServer
	grpcServer *remote.Server
	tracer     *tracing.TracingService
	startTime  time.Time
}

func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.NewLogger(&cfg.Logging)

	logger.Info("Initializing server",
		"version", "1.0.0",
		"default_kind", cfg.Storage.DefaultKind,
	)

	tracer, err := tracing.NewTracingService(cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	managerOpts := []persistence.Option{persistence.WithSink(logger), persistence.WithTracing(tracer)}
	httpOpts := []HTTPOption{WithTracer(tracer)}
	if cfg.Metrics.Enabled {
		metrics := monitoring.NewMetrics()
		managerOpts = append(managerOpts, persistence.WithMetrics(metrics))
		httpOpts = append(httpOpts, WithMetrics(metrics))
	}

	manager := persistence.New(managerOpts...)
	if result := manager.Initialize(context.Background(), cfg); result != storage.Success {
		manager.Shutdown(context.Background())
		tracer.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize persistence: %s", result)
	}

	s := &Server{
		config:     cfg,
		logger:     logger,
		manager:    manager,
		httpServer: NewHTTPServer(cfg, manager, logger, httpOpts...),
		tracer:     tracer,
		startTime:  time.Now(),
	}

	if cfg.Remote.Listen != "" {
		provider, err := s.servedProvider()
		if err != nil {
			manager.Shutdown(context.Background())
			tracer.Close(context.Background())
			return nil, err
		}
		s.grpcServer = remote.NewServer(provider, logger)
	}
	return s, nil
}

func (s *Server) servedProvider() (storage.Provider, error) {
	var kinds []storage.Kind
	if s.config.Remote.ServeKind != "" {
		kind, err := storage.ParseKind(s.config.Remote.ServeKind)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	provider, result := s.manager.Provider(kinds...)
	if !result.OK() {
		return nil, fmt.Errorf("no provider to serve remotely: %s", result)
	}
	if provider.Kind() == storage.Cloud {
		return nil, errors.New("the cloud kind cannot be served remotely")
	}
	return provider, nil
}

// Manager exposes the persistence façade the server was built around.
func (s *Server) Manager() *persistence.Manager { return s.manager }

// Start runs until SIGINT or SIGTERM, then shuts down.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Listen binds the REST address and, when configured, starts the gRPC
// endpoint. Run calls it if it has not been called.
func (s *Server) Listen() error {
	if err := s.httpServer.Listen(); err != nil {
		return err
	}
	if s.grpcServer != nil && s.grpcServer.Addr() == "" {
		return s.grpcServer.Start(s.config.Remote.Listen)
	}
	return nil
}

// Run serves until ctx is done or a listener fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting persistence server")

	if err := s.Listen(); err != nil {
		s.shutdown()
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	s.logger.Info("Server started successfully",
		"http_address", s.httpServer.Addr(),
		"grpc_address", s.GRPCAddr(),
	)

	select {
	case err := <-errChan:
		s.logger.Error("Server encountered an error", "error", err.Error())
		s.shutdown()
		return err
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")
		return s.shutdown()
	}
}

// HTTPAddr is the bound REST address once Run is listening.
func (s *Server) HTTPAddr() string { return s.httpServer.Addr() }

// GRPCAddr is the bound gRPC address, or "" when remote serving is off.
func (s *Server) GRPCAddr() string {
	if s.grpcServer == nil {
		return ""
	}
	return s.grpcServer.Addr()
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if err := s.httpServer.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop HTTP server", "error", err.Error())
		errs = append(errs, err)
	}
	if result := s.manager.Shutdown(ctx); result != storage.Success {
		s.logger.Error("Failed to dispose storage providers", "result", result.String())
		errs = append(errs, fmt.Errorf("dispose providers: %s", result))
	}
	if err := s.tracer.Close(ctx); err != nil {
		s.logger.Error("Failed to flush traces", "error", err.Error())
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("Server shutdown completed")
	return nil
}

func (s *Server) GetUptime() time.Duration {
	return time.Since(s.startTime)
}
