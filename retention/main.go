package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/campus-feed/backend/internal/config"
	"github.com/DeafMist/campus-feed/backend/internal/elasticsearch"
	"github.com/DeafMist/campus-feed/backend/internal/logger"
)

type postPruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	if err := elasticsearch.WaitReady(ctx, log, esClient, 10, 2*time.Second); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	run(ctx, log, esClient, cfg, ticker.C)
	log.Info("shutdown signal received")
}

// run prunes once immediately and then on every tick until ctx is done.
func run(ctx context.Context, log *slog.Logger, es postPruner, cfg *config.Retention, tick <-chan time.Time) {
	runOnce(ctx, log, es, cfg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			runOnce(ctx, log, es, cfg)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, es postPruner, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := es.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old posts found")
	}
}
