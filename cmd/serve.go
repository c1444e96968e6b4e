package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/handler"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/spf13/cobra"
)

var serverPort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server and begin accepting registrations.

Configuration comes from environment variables (DATABASE_URL, JWT_SECRET,
PORT, ...). Pending migrations are applied first unless MIGRATE_ON_START=false.
SIGINT or SIGTERM drains in-flight requests before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: $PORT or 8080)")
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting ticketing server")

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	if cfg.Database.MigrateOnStart {
		if err := database.MigrateUp(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info().Msg("migrations applied")
	}

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// ── 2. Wire up layers ────────────────────────────────────────────────
	store := repository.NewStore(pool,
		repository.WithLockTimeout(cfg.Registration.LockTimeout),
		repository.WithMaxAttempts(cfg.Registration.MaxAttempts),
		repository.WithLogger(logger),
	)
	registrations := service.NewRegistrationService(service.Stores{
		Tx:            store,
		Users:         store,
		Events:        store,
		Ledger:        store,
		Registrations: store,
		Tickets:       store,
		TicketViews:   store,
	},
		service.WithLogger(logger),
		service.WithDefaultTicketType(cfg.Registration.DefaultTicketType),
	)

	// ── 3. Build the router ───────────────────────────────────────────────
	router := handler.NewRouter(handler.RouterConfig{
		Events:         service.NewEventService(store),
		Registrations:  registrations,
		Auth:           handler.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		Health:         store,
		Logger:         logger,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
	})

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Block until SIGINT or SIGTERM, or the listener fails.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
