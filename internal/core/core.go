// Package core runs a plugin, merges its posts with the cached snapshot and
// keeps the cache current.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/campus-feed/backend/internal/cache"
	"github.com/DeafMist/campus-feed/backend/internal/models"
	"github.com/DeafMist/campus-feed/backend/internal/plugin"
	"github.com/DeafMist/campus-feed/backend/internal/processing"
)

// ErrAttemptsExceeded matches every *AttemptsExceededError.
var ErrAttemptsExceeded = errors.New("crawl attempts exceeded")

// AttemptsExceededError is returned once every attempt of a plugin failed.
type AttemptsExceededError struct {
	Plugin   string
	Attempts int
	Err      error
}

func (e *AttemptsExceededError) Error() string {
	return fmt.Sprintf("plugin %s: %d attempts failed: %v", e.Plugin, e.Attempts, e.Err)
}

func (e *AttemptsExceededError) Unwrap() error {
	return e.Err
}

func (e *AttemptsExceededError) Is(target error) bool {
	return target == ErrAttemptsExceeded
}

// Notifier receives the change events of one run.
type Notifier interface {
	Notify(ctx context.Context, events []models.PostEvent) error
}

// Option customizes a Core.
type Option func(*Core)

// WithNotifier publishes change events after every successful run.
func WithNotifier(n Notifier) Option {
	return func(c *Core) { c.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// Core owns the cache and drives plugins against it.
type Core struct {
	store    *cache.Store
	log      *slog.Logger
	notifier Notifier
	now      func() time.Time
}

// New builds a Core around store.
func New(store *cache.Store, log *slog.Logger, opts ...Option) *Core {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Core{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the cache the core writes to.
func (c *Core) Store() *cache.Store {
	return c.store
}

// Run crawls p once and merges the result into the cache. A crawl or cache
// read failure leaves the cache untouched.
func (c *Core) Run(ctx context.Context, p plugin.Plugin, limit int) (*models.SiteDocument, error) {
	info := p.Info()
	log := c.log.With(slog.String("plugin", info.ID))

	posts, err := p.Crawl(ctx, limit)
	if err != nil {
		return nil, err
	}

	prev, err := c.store.Load(ctx, info.ID)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}

	now := c.now()
	res := processing.Merge(prev, posts, now)
	c.store.Put(info.ID, res.Posts)

	events := c.changeEvents(info, res, now)
	for _, evt := range events {
		log.Info(
			"post "+eventVerb(evt.Type),
			slog.String("post_id", evt.Post.ID),
			slog.String("title", evt.Post.Title),
		)
	}
	if c.notifier != nil && len(events) > 0 {
		if err := c.notifier.Notify(ctx, events); err != nil {
			log.Warn("publish change events", slog.Int("events", len(events)), slog.Any("err", err))
		}
	}

	return &models.SiteDocument{
		Title:       info.Title,
		Source:      info.BaseURL,
		Description: info.Description,
		Items:       res.Posts,
	}, nil
}

// RunWithRetry calls Run up to retries times in a row without backoff.
// retries below one is treated as one.
func (c *Core) RunWithRetry(ctx context.Context, p plugin.Plugin, limit, retries int) (*models.SiteDocument, error) {
	if retries < 1 {
		retries = 1
	}
	id := p.Info().ID
	log := c.log.With(slog.String("plugin", id))

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		started := time.Now()
		doc, err := c.Run(ctx, p, limit)
		if err == nil {
			log.Info(
				"crawl succeeded",
				slog.Int("posts", len(doc.Items)),
				slog.Duration("elapsed", time.Since(started)),
			)
			return doc, nil
		}

		lastErr = err
		log.Error(
			"crawl attempt failed",
			slog.String("attempt", fmt.Sprintf("%d/%d", attempt, retries)),
			slog.String("kind", plugin.KindOf(err).String()),
			slog.Any("err", err),
		)
	}

	log.Error("all crawl attempts failed", slog.Int("attempts", retries))
	return nil, &AttemptsExceededError{Plugin: id, Attempts: retries, Err: lastErr}
}

func (c *Core) changeEvents(info plugin.Info, res processing.MergeResult, now time.Time) []models.PostEvent {
	if len(res.Created) == 0 && len(res.Updated) == 0 {
		return nil
	}
	kinds := make(map[string]models.EventType, len(res.Created)+len(res.Updated))
	for _, id := range res.Created {
		kinds[id] = models.EventPostCreated
	}
	for _, id := range res.Updated {
		kinds[id] = models.EventPostUpdated
	}

	events := make([]models.PostEvent, 0, len(kinds))
	for _, post := range res.Posts {
		kind, ok := kinds[post.ID]
		if !ok {
			continue
		}
		// duplicate ids in one crawl report once
		delete(kinds, post.ID)
		events = append(events, models.PostEvent{
			ID:         uuid.NewString(),
			Type:       kind,
			Site:       info.ID,
			SiteTitle:  info.Title,
			Post:       post,
			OccurredAt: now.UTC(),
		})
	}
	return events
}

func eventVerb(t models.EventType) string {
	if t == models.EventPostCreated {
		return "created"
	}
	return "updated"
}
