package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/denapp-control/backend/internal/agenda"
	"github.com/denapp-control/backend/internal/api"
	"github.com/denapp-control/backend/internal/config"
	"github.com/denapp-control/backend/internal/logging"
	"github.com/denapp-control/backend/internal/sheets"
	"github.com/denapp-control/backend/internal/storage"
	"github.com/denapp-control/backend/internal/websocket"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var healthCheck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the agenda sync scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			// Health check mode for Docker HEALTHCHECK
			if healthCheck {
				return runHealthCheck(cfg.Addr)
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().BoolVar(&healthCheck, "health-check", false, "Run health check against a running server and exit")
	return cmd
}

// app is the wired set of long-lived components.
type app struct {
	db        *storage.DB
	hub       *websocket.Hub
	service   *agenda.Service
	scheduler *agenda.Scheduler
}

// buildApp opens the database, restores the cached agenda and attaches the
// sheet when it is configured.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %q: %w", cfg.DataDir, err)
	}
	db, err := storage.NewDB(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Printf("Database migrations complete (%s)", db.Path())

	store, err := remoteStore(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	hub := websocket.NewHub()
	service := agenda.NewService(store, agenda.Options{
		Snapshots: storage.NewSnapshotRepository(db),
		History:   storage.NewSyncRunRepository(db),
		Notifier:  websocket.NewEventBroadcaster(hub),
	})
	if err := service.Restore(ctx); err != nil {
		log.Printf("Warning: %v", err)
	}

	return &app{
		db:        db,
		hub:       hub,
		service:   service,
		scheduler: agenda.NewScheduler(service, cfg.Sync.IntervalMinutes, cfg.Sync.DailySpec),
	}, nil
}

// remoteStore returns the retrying Sheets store, or nil when no sheet is
// configured.
func remoteStore(ctx context.Context, cfg *config.Config) (agenda.RemoteStore, error) {
	if !cfg.SheetConfigured() {
		log.Println("Agenda sheet not configured; running without remote sync")
		return nil, nil
	}
	client, err := sheets.New(ctx, cfg.SheetsClient())
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return agenda.WithRetry(client, agenda.NewRetrier(cfg.RetryPolicy())), nil
}

func runServer(cfg *config.Config) error {
	closer := logging.Setup(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer closer.Close()

	// Allow overriding version via environment (e.g., injected by container build/runtime)
	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}
	log.Printf("Starting DenApp Control agenda server (version: %s)...", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.db.Close()

	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(ctx)
		close(hubDone)
	}()

	if err := a.scheduler.Start(ctx); err != nil && !errors.Is(err, agenda.ErrUnconfigured) {
		log.Printf("Warning: Failed to start agenda scheduler: %v", err)
	}

	router := api.NewRouter(api.Deps{
		DB:        a.db,
		Hub:       a.hub,
		Service:   a.service,
		Scheduler: a.scheduler,
		Location:  cfg.Location(),
		StaticDir: cfg.StaticDir,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			a.scheduler.Stop()
			<-hubDone
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Println("Shutting down server...")
	a.scheduler.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-hubDone

	log.Println("Server stopped")
	return nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: unexpected status %s", resp.Status)
	}
	return nil
}
