package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sorvx/Sorvx-main-ai/db"
	"github.com/sorvx/Sorvx-main-ai/internal/api"
	"github.com/sorvx/Sorvx-main-ai/internal/app"
	"github.com/sorvx/Sorvx-main-ai/internal/config"
	"github.com/sorvx/Sorvx-main-ai/internal/log"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs a long write window
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveTrustProxy bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveTrustProxy, "trust-proxy", false,
		"trust X-Real-IP/X-Forwarded-For headers from a reverse proxy")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	logger.Info("starting chat API server", "version", Version, "config", cfg)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Orchestrator: a.Orchestrator,
		Store:        a.Store,
		Gate:         a.Gate,
		Uploads:      a.Uploads,
		Pool:         a.Pool,
		IsDev:        cfg.IsDev,
		TrustProxy:   serveTrustProxy,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
