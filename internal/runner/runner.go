// Package runner crawls a set of plugins concurrently and hands every
// resulting document to the configured sinks.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/campus-feed/backend/internal/models"
	"github.com/DeafMist/campus-feed/backend/internal/plugin"
)

// Crawler is the part of core.Core the runner drives.
type Crawler interface {
	RunWithRetry(ctx context.Context, p plugin.Plugin, limit, retries int) (*models.SiteDocument, error)
}

// Sink stores the document of one plugin.
type Sink interface {
	Write(ctx context.Context, id string, doc *models.SiteDocument) error
}

// RunError aggregates the plugins that failed in one cycle.
type RunError struct {
	Failed int
	Total  int
	Errs   []error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%d of %d runs failed", e.Failed, e.Total)
}

func (e *RunError) Unwrap() []error {
	return e.Errs
}

// Options tune a Runner.
type Options struct {
	Limit   int
	Retries int
	// Concurrency caps parallel plugins. Zero or less means unbounded.
	Concurrency int
}

// Runner fans plugins out over goroutines.
type Runner struct {
	crawler Crawler
	sinks   []Sink
	log     *slog.Logger
	opts    Options
}

// New builds a Runner.
func New(crawler Crawler, log *slog.Logger, opts Options, sinks ...Sink) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{crawler: crawler, sinks: sinks, log: log, opts: opts}
}

// Run crawls every plugin and writes each successful document to all sinks.
// A failing plugin never stops the others. The returned error is a *RunError
// when at least one plugin or sink failed.
func (r *Runner) Run(ctx context.Context, plugins []plugin.Plugin) error {
	started := time.Now()

	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var g errgroup.Group
	if r.opts.Concurrency > 0 {
		g.SetLimit(r.opts.Concurrency)
	}
	for _, p := range plugins {
		g.Go(func() error {
			id := p.Info().ID
			doc, err := r.crawler.RunWithRetry(ctx, p, r.opts.Limit, r.opts.Retries)
			if err != nil {
				fail(err)
				return nil
			}
			for _, sink := range r.sinks {
				if err := sink.Write(ctx, id, doc); err != nil {
					r.log.Error("write output", slog.String("plugin", id), slog.Any("err", err))
					fail(fmt.Errorf("write output %s: %w", id, err))
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	r.log.Info(
		"crawl cycle finished",
		slog.Int("plugins", len(plugins)),
		slog.Int("failed", len(errs)),
		slog.Duration("elapsed", time.Since(started)),
	)

	if len(errs) == 0 {
		return nil
	}
	return &RunError{Failed: len(errs), Total: len(plugins), Errs: errs}
}

