package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/docframe/internal/config"
	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/MeKo-Tech/docframe/internal/server"
	"github.com/MeKo-Tech/docframe/internal/source"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server hosting review sessions",
	Long: `Start an HTTP server that hosts document review sessions.

Documents are read from the documents directory as <id>.pdf or <id>.<image ext>
with their recognizer payload in <id>.ocr.json.

The server provides the following endpoints:
  GET    /health                     - Health check endpoint
  GET    /metrics                    - Prometheus metrics
  GET    /documents                  - List available documents
  POST   /sessions                   - Open a review session on a document
  GET    /sessions/{id}              - Session state
  DELETE /sessions/{id}              - Close a session
  POST   /sessions/{id}/document     - Switch the session's document
  POST   /sessions/{id}/locate       - Frame a field or crop a line item
  POST   /sessions/{id}/reset        - Clear the active highlight
  GET    /sessions/{id}/regions      - List localizable regions
  GET    /sessions/{id}/crop         - PNG preview of the active line item
  GET    /sessions/{id}/pages/{page} - PNG page raster (?overlay=1 outlines the target)
  GET    /sessions/{id}/ws           - WebSocket stream of state and scroll frames

Examples:
  docframe serve
  docframe serve --port 8080 --documents-dir ./scans
  docframe serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get configuration from centralized system (includes CLI flags, config file, env vars, and defaults)
		cfg := GetConfig()
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		info, err := os.Stat(cfg.DocumentsDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("documents directory not found: %s", cfg.DocumentsDir)
		}

		docs := source.NewDirectory(cfg.DocumentsDir)
		reviewServer, err := server.NewServer(serverConfig(cfg), review.Deps{
			Documents:  docs,
			Payloads:   docs,
			Rasterizer: raster.NewAutoRasterizer(),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
		defer func() { _ = reviewServer.Close() }()

		return runServer(cfg, reviewServer)
	},
}

// applyServeFlags overrides configuration values with explicitly set flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Changed("timeout") {
		cfg.Server.TimeoutSec, _ = flags.GetInt("timeout")
	}
	if flags.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = flags.GetInt("shutdown-timeout")
	}
	if flags.Changed("max-sessions") {
		cfg.Server.MaxSessions, _ = flags.GetInt("max-sessions")
	}
	if flags.Changed("overlay-color") {
		cfg.Server.OverlayColor, _ = flags.GetString("overlay-color")
	}
	if flags.Changed("viewport") {
		s, _ := flags.GetString("viewport")
		if w, h, err := parseViewport(s); err == nil {
			*cfg = cfg.WithViewport(w, h)
		} else {
			slog.Warn("Ignoring invalid viewport flag", "viewport", s, "error", err)
		}
	}

	// Rate limiting
	if flags.Changed("rate-limit-enabled") {
		cfg.Server.RateLimitEnabled, _ = flags.GetBool("rate-limit-enabled")
	}
	if flags.Changed("requests-per-minute") {
		cfg.Server.RequestsPerMinute, _ = flags.GetInt("requests-per-minute")
	}
	if flags.Changed("requests-per-hour") {
		cfg.Server.RequestsPerHour, _ = flags.GetInt("requests-per-hour")
	}
	if flags.Changed("max-requests-per-day") {
		cfg.Server.MaxRequestsPerDay, _ = flags.GetInt("max-requests-per-day")
	}
}

// serverConfig converts the resolved configuration for the HTTP server.
func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		CORSOrigin:      cfg.Server.CORSOrigin,
		TimeoutSec:      cfg.Server.TimeoutSec,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxSessions:     cfg.Server.MaxSessions,
		MaxViewport:     cfg.Server.MaxViewport,
		Review:          cfg.ReviewOptions(),
		RateLimit: server.RateLimitConfig{
			Enabled:           cfg.Server.RateLimitEnabled,
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
			RequestsPerHour:   cfg.Server.RequestsPerHour,
			MaxRequestsPerDay: cfg.Server.MaxRequestsPerDay,
		},
	}
}

// runServer serves until SIGINT or SIGTERM, then shuts down gracefully.
func runServer(cfg *config.Config, reviewServer *server.Server) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host, port := cfg.Server.Host, cfg.Server.Port
	timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           reviewServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		// Websocket streams outlive a single request; writes are bounded per message
		WriteTimeout: 0,
	}

	go func() {
		slog.Info("Starting review server", "host", host, "port", port, "documents_dir", cfg.DocumentsDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	slog.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	slog.Info("Closing review sessions")
	if err := reviewServer.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}

	slog.Info("Graceful shutdown completed")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("timeout", 30, "document load timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Int("max-sessions", 64, "maximum number of concurrent review sessions")
	serveCmd.Flags().String("overlay-color", "#FF0000", "outline color for page overlays (hex)")
	serveCmd.Flags().String("viewport", "", "default framing viewport as WIDTHxHEIGHT (e.g. 800x600)")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 120, "maximum session actions per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 3000, "maximum session actions per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 0, "maximum session actions per day per client (0 = unlimited)")
}
