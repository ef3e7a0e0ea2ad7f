package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"persistence-engine/internal/logging"
	"persistence-engine/internal/storage"
)

// Server serves one storage.Provider over gRPC.
type Server struct {
	provider storage.Provider
	sink     logging.Sink
	server   *grpc.Server
	listener net.Listener
}

func NewServer(p storage.Provider, sink logging.Sink) *Server {
	if sink == nil {
		sink = logging.Nop()
	}
	s := &Server{provider: p, sink: sink}
	s.server = grpc.NewServer(grpc.UnaryInterceptor(s.loggingInterceptor))
	RegisterStorageServer(s.server, p)
	return s
}

// Start listens on address and serves in the background.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.Serve(listener)
	return nil
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) {
	s.listener = lis
	s.sink.Log(context.Background(), slog.LevelInfo, logging.CategoryRemote, "Starting gRPC storage server",
		"address", lis.Addr().String(),
		"kind", s.provider.Kind().String(),
	)

	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.sink.LogException(context.Background(), slog.LevelError, logging.CategoryRemote, "gRPC storage server failed", err)
		}
	}()
}

// Addr is the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop() {
	s.sink.Log(context.Background(), slog.LevelInfo, logging.CategoryRemote, "Stopping gRPC storage server")
	s.server.GracefulStop()
}

func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	ctx = withIncomingIDs(ctx)

	resp, err := handler(ctx, req)

	duration := time.Since(start)
	if err != nil {
		s.sink.LogException(ctx, slog.LevelError, logging.CategoryRemote, "gRPC request failed", err,
			"method", info.FullMethod,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		s.sink.Log(ctx, slog.LevelDebug, logging.CategoryRemote, "gRPC request completed",
			"method", info.FullMethod,
			"duration_ms", duration.Milliseconds(),
		)
	}
	return resp, err
}

// withIncomingIDs restores the caller's correlation and request IDs from
// metadata, generating them when the caller sent none.
func withIncomingIDs(ctx context.Context) context.Context {
	var correlationID, requestID string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(logging.CorrelationIDMetadataKey); len(v) > 0 {
			correlationID = v[0]
		}
		if v := md.Get(logging.RequestIDMetadataKey); len(v) > 0 {
			requestID = v[0]
		}
	}
	ctx, _, _ = logging.EnsureIDs(ctx, correlationID, requestID, "persistence-grpc")
	return ctx
}
