package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-sched/internal/api"
	"github.com/p-n-ai/pai-sched/internal/catalog"
	"github.com/p-n-ai/pai-sched/internal/fsrs"
	"github.com/p-n-ai/pai-sched/internal/importer"
	"github.com/p-n-ai/pai-sched/internal/platform/cache"
	"github.com/p-n-ai/pai-sched/internal/platform/config"
	"github.com/p-n-ai/pai-sched/internal/platform/database"
	"github.com/p-n-ai/pai-sched/internal/queue"
	"github.com/p-n-ai/pai-sched/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	if err := db.Setup(ctx, scheduler.Schema()); err != nil {
		return err
	}

	ca, err := cache.New(ctx, cfg.Cache.URL)
	if err != nil {
		return fmt.Errorf("connecting to cache: %w", err)
	}
	defer ca.Close()

	cards, err := scheduler.NewPostgresCardStore(db.Pool)
	if err != nil {
		return fmt.Errorf("creating card store: %w", err)
	}
	stats := scheduler.NewRedisStatsStore(ca.Client)

	cat, err := catalog.NewLoader(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	weights, err := loadWeights(cfg)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Config{
		Cards:   cards,
		Stats:   stats,
		Weights: scheduler.StaticWeights{W: weights},
		Topics:  cat,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	builder, err := queue.NewBuilder(cards, stats, cat)
	if err != nil {
		return fmt.Errorf("creating queue builder: %w", err)
	}

	if cfg.Import.WorkbookPath != "" {
		result, err := importer.ImportWorkbook(ctx, cfg.Import.WorkbookPath, cfg.Import.Sheet, cards, time.Now())
		if err != nil {
			return fmt.Errorf("legacy import: %w", err)
		}
		for _, msg := range result.Errors {
			slog.Warn("legacy import row failed", "detail", msg)
		}
	}

	srv, err := api.NewServer(api.Config{
		Scheduler: sched,
		Builder:   builder,
		Pool:      cat,
		Cards:     cards,
		Stats:     stats,
		Ready: []api.ReadyCheck{
			{Name: "database", Check: db.Ping},
			{Name: "cache", Check: ca.Ping},
		},
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// loadWeights resolves the weight vector: the configured override when
// present, the built-in default otherwise.
func loadWeights(cfg *config.Config) (fsrs.Weights, error) {
	raw, err := cfg.SchedulerWeights()
	if err != nil {
		return fsrs.Weights{}, err
	}
	if raw == nil {
		return fsrs.DefaultWeights(), nil
	}
	if len(raw) != 17 {
		return fsrs.Weights{}, fmt.Errorf("LEARN_SCHEDULER_WEIGHTS must have 17 entries, got %d", len(raw))
	}
	var arr [17]float64
	copy(arr[:], raw)
	w := fsrs.FromSlice(arr)
	if err := w.Validate(); err != nil {
		return fsrs.Weights{}, fmt.Errorf("LEARN_SCHEDULER_WEIGHTS: %w", err)
	}
	return w, nil
}

func setupLogger(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
