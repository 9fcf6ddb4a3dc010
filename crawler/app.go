package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/DeafMist/campus-feed/backend/internal/cache"
	"github.com/DeafMist/campus-feed/backend/internal/config"
	"github.com/DeafMist/campus-feed/backend/internal/core"
	"github.com/DeafMist/campus-feed/backend/internal/events"
	"github.com/DeafMist/campus-feed/backend/internal/output"
	"github.com/DeafMist/campus-feed/backend/internal/plugin"
	"github.com/DeafMist/campus-feed/backend/internal/plugin/board"
	"github.com/DeafMist/campus-feed/backend/internal/plugin/feed"
	"github.com/DeafMist/campus-feed/backend/internal/runner"
)

type app struct {
	log       *slog.Logger
	cfg       *config.Crawler
	registry  *plugin.Registry
	store     *cache.Store
	runner    *runner.Runner
	publisher *events.Publisher
}

func newApp(ctx context.Context, log *slog.Logger, cfg *config.Crawler, sites *config.Sites) (*app, error) {
	registry, err := buildRegistry(sites, plugin.NewHTTPClient(cfg.HTTPTimeout), log)
	if err != nil {
		return nil, err
	}

	a := &app{log: log, cfg: cfg, registry: registry, store: cache.NewStore(cfg.CacheDir)}

	var opts []core.Option
	if len(cfg.KafkaBrokers) > 0 {
		a.publisher = events.NewPublisher(events.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		opts = append(opts, core.WithNotifier(a.publisher))
		log.Info("publishing change events", slog.String("topic", cfg.KafkaTopic))
	}

	sinks := []runner.Sink{output.NewDirSink(cfg.OutDir)}
	if cfg.S3.Bucket != "" {
		client, err := output.NewS3Client(ctx, output.S3Config{
			Region:       cfg.S3.Region,
			Profile:      cfg.S3.Profile,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, output.NewS3Sink(client, cfg.S3.Bucket, cfg.S3.Prefix))
		log.Info("mirroring outputs to s3", slog.String("bucket", cfg.S3.Bucket), slog.String("prefix", cfg.S3.Prefix))
	}

	a.runner = runner.New(core.New(a.store, log, opts...), log, runner.Options{
		Limit:       cfg.Limit,
		Retries:     cfg.Retries,
		Concurrency: cfg.Concurrency,
	}, sinks...)
	return a, nil
}

func (a *app) Close() {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Close(); err != nil {
		a.log.Warn("close event writer", slog.Any("err", err))
	}
}

// Start runs one cycle, or with a schedule runs one right away and then one
// per tick until ctx is done.
func (a *app) Start(ctx context.Context, include, exclude []string) error {
	plugins, err := a.registry.Select(include, exclude)
	if err != nil {
		return err
	}
	if a.cfg.Schedule == "" {
		return a.cycle(ctx, plugins)
	}
	return a.schedule(ctx, plugins)
}

// cycle crawls plugins and always saves the cache, even when some failed.
func (a *app) cycle(ctx context.Context, plugins []plugin.Plugin) error {
	log := a.log.With(slog.String("cycle", uuid.NewString()))
	log.Info("crawl cycle started", slog.Int("plugins", len(plugins)))

	runErr := a.runner.Run(ctx, plugins)

	// a cancelled crawl must still persist what succeeded
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := a.store.Save(saveCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("save cache: %w", err))
	}

	var re *runner.RunError
	if errors.As(runErr, &re) {
		for _, err := range re.Errs {
			log.Error("site failed", slog.String("kind", plugin.KindOf(err).String()), slog.Any("err", err))
		}
	}
	return runErr
}

func (a *app) schedule(ctx context.Context, plugins []plugin.Plugin) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(a.cfg.Schedule, func() {
		if err := a.cycle(ctx, plugins); err != nil {
			a.log.Warn("scheduled cycle failed", slog.Any("err", err))
		}
	})
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", a.cfg.Schedule, err)
	}

	a.log.Info("crawler scheduled", slog.String("schedule", a.cfg.Schedule))
	if err := a.cycle(ctx, plugins); err != nil {
		a.log.Warn("initial cycle failed", slog.Any("err", err))
	}
	if ctx.Err() != nil {
		return nil
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	a.log.Info("shutdown signal received")
	return nil
}

// buildRegistry registers one plugin per enabled site.
func buildRegistry(sites *config.Sites, client *http.Client, log *slog.Logger) (*plugin.Registry, error) {
	registry := plugin.NewRegistry()
	for _, site := range sites.Enabled() {
		p, err := newPlugin(site, client, log)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.ID, err)
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func newPlugin(site config.Site, client *http.Client, log *slog.Logger) (plugin.Plugin, error) {
	info := plugin.Info{
		ID:          site.ID,
		Title:       site.Title,
		Description: site.Description,
		BaseURL:     site.BaseURL,
	}
	switch site.Kind {
	case config.KindFeed:
		return feed.New(info, site.Feed.URL, client), nil
	case config.KindBoard:
		b := site.Board
		loc, err := time.LoadLocation(b.Timezone)
		if err != nil {
			return nil, err
		}
		return board.New(info, board.Config{
			ListURL:   b.ListURL,
			PageParam: b.PageParam,
			IDParam:   b.IDParam,
			Selectors: board.Selectors{
				Row:         b.Row,
				Link:        b.Link,
				Author:      b.Author,
				Category:    b.Category,
				Title:       b.Title,
				Content:     b.Content,
				Thumbnail:   b.Thumbnail,
				Attachments: b.Attachments,
				CreatedAt:   b.CreatedAt,
			},
			DateLayout:  b.DateLayout,
			Location:    loc,
			Concurrency: b.Concurrency,
		}, client, log), nil
	default:
		return nil, fmt.Errorf("unknown site kind %q", site.Kind)
	}
}
