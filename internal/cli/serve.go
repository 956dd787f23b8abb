package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/project-kessel/leakguard/internal/config"
	"github.com/project-kessel/leakguard/internal/server"
)

const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the leakguard server",
		Long: `Start the leakguard gRPC and HTTP servers.

The server will:
  - Listen for gRPC requests (Envoy ext_authz, health)
  - Listen for HTTP requests (filter API, health)
  - Load configuration from file, environment variables, and command-line flags

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (LEAKGUARD_*)
  3. Configuration file (if --config or LEAKGUARD_CONFIG is set)
  4. Built-in defaults

Examples:
  # Start with default settings
  leakguard serve

  # Override server ports
  leakguard serve --grpc-port 9091 --http-port 8081

  # Use custom config file
  leakguard serve --config /etc/leakguard/config.yaml

  # Combine multiple overrides
  leakguard serve --config ./my-config.yaml --site-title "My Blog"`,
		RunE: runServe,
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	provider := config.NewProvider(cfg)
	defer provider.Close()

	logger := config.NewLogger(cfg.Observability)
	provider.SetLogger(logger)

	serverCfg, err := provider.ServerConfig()
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	srv := server.New(serverCfg)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Every component is built: flip health from NOT_SERVING to SERVING.
	srv.SetReady()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "leakguard is running")
	fmt.Fprintf(out, "  gRPC (ext_authz):      localhost:%d\n", serverCfg.GRPCPort)
	fmt.Fprintf(out, "  HTTP (filter API):     http://localhost:%d/v1/\n", serverCfg.HTTPPort)
	fmt.Fprintf(out, "  Health (gRPC):         localhost:%d (grpc.health.v1.Health)\n", serverCfg.GRPCPort)
	fmt.Fprintf(out, "  Health (HTTP live):    http://localhost:%d/healthz/live\n", serverCfg.HTTPPort)
	fmt.Fprintf(out, "  Health (HTTP ready):   http://localhost:%d/healthz/ready\n", serverCfg.HTTPPort)
	fmt.Fprintf(out, "  Config:                %s\n", configPath)

	<-ctx.Done()

	fmt.Fprintln(out, "\nShutting down...")
	srv.SetNotReady()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	fmt.Fprintln(out, "Shutdown complete")
	return nil
}
