package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/streams/internal/config"
	"github.com/PaulBabatuyi/streams/internal/db"
)

// healthService is the service name reported alongside the server-wide
// ("") status. It follows the snapshot backend's health.
const healthService = "streams"

// healthInterval is how often the backend is pinged for the health status.
const healthInterval = 15 * time.Second

// grpcServer is the admin listener. It serves grpc.health.v1.Health.
type grpcServer struct {
	cfg    *config.Config
	server *grpc.Server
	health *health.Server
	logger *log.Logger
}

func newGRPCServer(cfg *config.Config, logger *log.Logger) (*grpcServer, error) {
	logger = logger.WithPrefix("grpc")

	var serverOpts []grpc.ServerOption
	certFile, keyFile := cfg.GRPC.TLSCertPath, cfg.GRPC.TLSKeyPath
	if certFile != "" && keyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certs: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	} else if cfg.GRPC.RequireTLS {
		return nil, fmt.Errorf("grpc.require_tls is set but no certificate is configured")
	}

	serverOpts = append(serverOpts,
		grpc.ChainUnaryInterceptor(loggingUnaryInterceptor(logger)),
		grpc.ChainStreamInterceptor(loggingStreamInterceptor(logger)),
	)

	s := &grpcServer{
		cfg:    cfg,
		server: grpc.NewServer(serverOpts...),
		health: health.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	return s, nil
}

// ListenAndServe listens on cfg.GRPC.ListenAddr and serves until stopped.
func (s *grpcServer) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.GRPC.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis. It returns nil once the server is stopped.
func (s *grpcServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// checkBackend sets the service status from one backend ping.
func (s *grpcServer) checkBackend(ctx context.Context, backend db.Backend) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := backend.Ping(ctx); err != nil {
		s.logger.Warn("backend ping failed", "err", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(healthService, st)
}

// watchBackend runs checkBackend every healthInterval until ctx is done.
func (s *grpcServer) watchBackend(ctx context.Context, backend db.Backend) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		s.checkBackend(ctx, backend)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown reports NOT_SERVING to every watcher, then stops gracefully,
// forcing the stop if ctx ends first.
func (s *grpcServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}

// loggingUnaryInterceptor logs every call with its status code and latency.
func loggingUnaryInterceptor(logger *log.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"time", time.Since(start))
		return resp, err
	}
}

// loggingStreamInterceptor is the stream equivalent of
// loggingUnaryInterceptor. It logs when a stream opens and when it ends.
func loggingStreamInterceptor(logger *log.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger.Debug("stream opened", "method", info.FullMethod)
		err := handler(srv, ss)
		logger.Debug("stream closed",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"time", time.Since(start))
		return err
	}
}
