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

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/anotheregi/blastkeun/internal/api"
	"github.com/anotheregi/blastkeun/internal/config"
	"github.com/anotheregi/blastkeun/internal/metrics"
	"github.com/anotheregi/blastkeun/internal/registry"
	"github.com/anotheregi/blastkeun/internal/scheduler"
	"github.com/anotheregi/blastkeun/internal/service"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var envFile string

func init() {
	serveCmd.Flags().StringVarP(&envFile, "env-file", "e", ".env", "Optional dotenv file loaded before reading the environment")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := config.LoadAll()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, ledger, err := openLedger(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	quota, closeQuota, err := newQuota(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeQuota()

	m := metrics.New()
	engine, err := service.New(service.Deps{
		Gateway:     newGateway(cfg.Gateway),
		GatewayKind: cfg.Gateway.Mode,
		Ledger:      ledger,
		Registry:    registry.NewMemory(),
		Quota:       quota,
		Metrics:     m,
		Logger:      logger,
	}, service.DefaultConfig())
	if err != nil {
		return err
	}

	// Nothing runs yet, so every running row is left over from a previous process.
	if n, err := engine.Reconcile(ctx, 0); err != nil {
		logger.Error("startup reconciliation failed", "error", err)
	} else {
		logger.Info("startup reconciliation done", "failed_sessions", n)
	}

	sched, err := scheduler.New("reconcile", cfg.Reconcile.Interval, func(ctx context.Context) error {
		_, err := engine.Reconcile(ctx, cfg.Reconcile.StaleAfter)
		return err
	}, scheduler.WithLogger(logger))
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	h := api.NewHandler(engine, sched, logger, api.WithShutdownContext(ctx))
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h, api.WithMetrics(cfg.Metrics.Path, m.Handler()))),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("blastkeun starting",
			"addr", cfg.Server.Address,
			"version", version,
			"database", cfg.Database.Driver,
			"gateway", cfg.Gateway.Mode,
			"redis", cfg.Redis.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	// ctx is done here, so running campaigns wind down as stopped while
	// Shutdown waits for their handlers to write results.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
