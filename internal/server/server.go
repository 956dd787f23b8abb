package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// healthServices are reported individually by the gRPC health service and
// checked in order by the readiness endpoint.
var healthServices = []string{
	authv3.Authorization_ServiceDesc.ServiceName,
	FiltersServiceName,
}

// Server manages the gRPC and HTTP servers
type Server struct {
	grpcServer   *grpc.Server
	httpServer   *http.Server
	healthServer *health.Server

	grpcPort int
	httpPort int

	grpcListener net.Listener
	httpListener net.Listener

	authzServer *AuthzServer
	filterAPI   *FilterAPI
	logger      *slog.Logger
}

// Config contains server configuration
type Config struct {
	// GRPCPort serves ext_authz, health and reflection; 0 picks a free port
	GRPCPort int

	// HTTPPort serves the filter API and health endpoints; 0 picks a free port
	HTTPPort int

	AuthzServer *AuthzServer
	FilterAPI   *FilterAPI

	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// New creates a new server with the given configuration
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authz := cfg.AuthzServer
	if authz == nil {
		authz = NewAuthzServer(AuthzConfig{})
	}
	filters := cfg.FilterAPI
	if filters == nil {
		filters = NewFilterAPI(FilterAPIConfig{})
	}

	hs := health.NewServer()
	for _, svc := range healthServices {
		hs.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return &Server{
		healthServer: hs,
		grpcPort:     cfg.GRPCPort,
		httpPort:     cfg.HTTPPort,
		authzServer:  authz,
		filterAPI:    filters,
		logger:       logger,
	}
}

// Start starts both servers. Every service reports NOT_SERVING until SetReady.
func (s *Server) Start(ctx context.Context) error {
	s.grpcServer = grpc.NewServer()

	authv3.RegisterAuthorizationServer(s.grpcServer, s.authzServer)
	healthpb.RegisterHealthServer(s.grpcServer, s.healthServer)

	// Register reflection service for grpcurl and other tools
	reflection.Register(s.grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %d: %w", s.grpcPort, err)
	}
	s.grpcListener = grpcListener

	go func() {
		s.logger.Info("gRPC server listening", slog.String("addr", grpcListener.Addr().String()))
		if err := s.grpcServer.Serve(grpcListener); err != nil {
			s.logger.Error("gRPC server error", slog.String("error", err.Error()))
		}
	}()

	mux := runtime.NewServeMux()
	if err := s.filterAPI.Register(mux); err != nil {
		return err
	}
	if err := mux.HandlePath(http.MethodGet, "/healthz/live", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		s.handleLiveness(w, r)
	}); err != nil {
		return fmt.Errorf("failed to register liveness handler: %w", err)
	}
	if err := mux.HandlePath(http.MethodGet, "/healthz/ready", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		s.handleReadiness(w, r)
	}); err != nil {
		return fmt.Errorf("failed to register readiness handler: %w", err)
	}

	httpListener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.httpPort))
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP port %d: %w", s.httpPort, err)
	}
	s.httpListener = httpListener

	s.httpServer = &http.Server{
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", httpListener.Addr().String()))
		if err := s.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// SetReady marks every service SERVING
func (s *Server) SetReady() {
	for _, svc := range healthServices {
		s.healthServer.SetServingStatus(svc, healthpb.HealthCheckResponse_SERVING)
	}
}

// SetNotReady marks every service NOT_SERVING, e.g. while draining
func (s *Server) SetNotReady() {
	for _, svc := range healthServices {
		s.healthServer.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// GRPCAddr returns the bound gRPC address once started
func (s *Server) GRPCAddr() net.Addr {
	if s.grpcListener == nil {
		return nil
	}
	return s.grpcListener.Addr()
}

// HTTPAddr returns the bound HTTP address once started
func (s *Server) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// Stop gracefully stops both servers
func (s *Server) Stop(ctx context.Context) error {
	s.healthServer.Shutdown()

	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}
