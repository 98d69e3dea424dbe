package main

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

	"github.com/spf13/cobra"

	"github.com/terra-clan/office-hub/internal/api"
	"github.com/terra-clan/office-hub/internal/auth"
	"github.com/terra-clan/office-hub/internal/config"
	"github.com/terra-clan/office-hub/internal/events"
	"github.com/terra-clan/office-hub/internal/health"
	"github.com/terra-clan/office-hub/internal/ledger"
	"github.com/terra-clan/office-hub/internal/media"
	"github.com/terra-clan/office-hub/internal/policy"
	"github.com/terra-clan/office-hub/internal/roster"
	"github.com/terra-clan/office-hub/internal/storage"
)

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg, !skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	return cmd
}

func serve(cfg *config.Config, migrate bool) error {
	slog.Info("starting office-hub",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	if migrate {
		applied, err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("database migrations applied", "count", len(applied))
	}

	repo, err := openRepository(initCtx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	images, err := media.NewLocalStore(cfg.Media.Root, cfg.Media.MaxUploadBytes)
	if err != nil {
		return err
	}
	repo.SetCleanup(images.Remove)

	matrix, err := policy.Load(cfg.Policy.File)
	if err != nil {
		return fmt.Errorf("failed to load role policy: %w", err)
	}

	// Dependency health registry
	registry := health.NewRegistry(2 * time.Second)

	pgChecker, err := health.NewPostgresChecker(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pgChecker.Close()
	registry.Register("postgres", pgChecker)

	var revocations auth.RevocationStore
	if cfg.Redis.Address != "" {
		redisStore, err := auth.NewRedisRevocations(initCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		registry.Register("redis", redisStore)
		revocations = redisStore
	} else {
		slog.Warn("redis address not set, token revocations are kept in memory")
		revocations = auth.NewMemoryRevocations()
	}

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	hub := events.NewHub(32)

	services := api.Services{
		Auth:           auth.NewService(repo, issuer, revocations, matrix),
		Roster:         roster.NewService(repo, images, auth.HashPassword, cfg.Auth.DefaultPassword),
		Ledger:         ledger.NewService(repo, hub, images, time.Now),
		Hub:            hub,
		Health:         registry,
		MediaRoot:      cfg.Media.Root,
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Audit.Interval > 0 {
		auditor := ledger.NewAuditor(repo, cfg.Audit.Interval)
		auditor.Start(ctx)
		defer func() {
			cancel()
			<-auditor.Done()
		}()
	}

	server := api.NewServer(cfg.Server, services)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("office-hub stopped")
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config) (*storage.PostgresRepository, error) {
	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
		MaxLifetime:  cfg.Database.MaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database repository: %w", err)
	}
	slog.Info("database connected successfully")
	return repo, nil
}
