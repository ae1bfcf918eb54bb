package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memoria/internal/config"
	httpapi "github.com/nextlevelbuilder/memoria/internal/http"
	"github.com/nextlevelbuilder/memoria/internal/mcp"
	"github.com/nextlevelbuilder/memoria/internal/tools"
	"github.com/nextlevelbuilder/memoria/pkg/protocol"
)

func serveCmd() *cobra.Command {
	var transport, listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory tools over MCP (stdio, http or sse)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.Server.Transport = transport
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio, http or sse (overrides server.transport)")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address for http/sse (overrides server.listen)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := initOTelExporter(ctx, cfg)
	defer shutdownTracing()

	svc, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := tools.NewRegistry()
	tools.RegisterMemoryTools(reg, svc)

	limiter := tools.NewRateLimiter(cfg.Server.RateLimitRPM, cfg.Server.RateLimitBurst)
	reg.SetRateLimiter(limiter)
	go limiter.Run(ctx, time.Minute, 10*time.Minute)

	srv, err := mcp.NewServer(reg, protocol.Version)
	if err != nil {
		return err
	}

	if w := startConfigWatcher(limiter); w != nil {
		defer w.Stop()
	}

	switch cfg.Server.Transport {
	case mcp.TransportStdio:
		return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	case mcp.TransportHTTP, mcp.TransportSSE:
		return serveHTTP(ctx, cfg, srv, reg)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Server.Transport)
	}
}

func serveHTTP(ctx context.Context, cfg *config.Config, srv *mcp.Server, reg *tools.Registry) error {
	mux := http.NewServeMux()
	if err := srv.Mount(mux, cfg.Server.Transport, cfg.Server.AuthToken); err != nil {
		return err
	}
	httpapi.NewToolsHandler(reg, protocol.Version).RegisterRoutes(mux, cfg.Server.AuthToken)

	if cfg.Server.AuthToken == "" {
		slog.Warn("security.no_auth_token", "listen", cfg.Server.Listen,
			"hint", "set server.auth_token when listening beyond localhost")
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	slog.Info("mcp serving", "transport", cfg.Server.Transport, "listen", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown on context cancellation
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
		return httpSrv.Close()
	}
	slog.Info("mcp server stopped")
	return nil
}

// startConfigWatcher applies log level and rate limits from config edits.
// Store and embedding settings need a restart.
func startConfigWatcher(limiter *tools.RateLimiter) *config.Watcher {
	path := resolveConfigPath()
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	w, err := config.NewWatcher(path)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return nil
	}
	w.OnChange(func(cfg *config.Config) {
		applyLogLevel(cfg.Log.Level)
		limiter.SetLimits(cfg.Server.RateLimitRPM, cfg.Server.RateLimitBurst)
		slog.Info("runtime settings updated",
			"log_level", logLevel.Level().String(),
			"rate_limit_rpm", cfg.Server.RateLimitRPM,
		)
	})
	if err := w.Start(); err != nil {
		slog.Warn("config watcher failed to start", "error", err)
		w.Stop()
		return nil
	}
	return w
}
