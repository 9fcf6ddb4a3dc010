package core_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/campus-feed/backend/internal/cache"
	"github.com/DeafMist/campus-feed/backend/internal/core"
	"github.com/DeafMist/campus-feed/backend/internal/models"
	"github.com/DeafMist/campus-feed/backend/internal/plugin"
	"github.com/DeafMist/campus-feed/backend/internal/plugin/plugintest"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.PostEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, events []models.PostEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
	return n.err
}

func post(id, title, content string) models.Post {
	return models.Post{
		ID:        id,
		URL:       "https://cse.example.com/notice/" + id,
		Title:     title,
		Category:  []string{},
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Content:   content,
	}
}

func newCore(t *testing.T, opts ...core.Option) (*core.Core, *cache.Store) {
	t.Helper()
	store := cache.NewStore(t.TempDir())
	opts = append([]core.Option{core.WithClock(func() time.Time { return fixedNow })}, opts...)
	return core.New(store, nil, opts...), store
}

func TestRunFirstCrawlLeavesUpdatedAtUnset(t *testing.T) {
	c, store := newCore(t)
	p := plugintest.New("cse", plugintest.Result{Posts: []models.Post{post("1", "A", "x")}})

	doc, err := c.Run(context.Background(), p, 10)
	require.NoError(t, err)
	require.Equal(t, "cse board", doc.Title)
	require.Equal(t, "https://cse.example.com", doc.Source)
	require.Equal(t, "cse notices", doc.Description)
	require.Len(t, doc.Items, 1)
	require.Nil(t, doc.Items[0].UpdatedAt)
	require.Equal(t, []int{10}, p.Limits())

	cached, err := store.Load(context.Background(), "cse")
	require.NoError(t, err)
	require.Equal(t, doc.Items, cached)
}

func TestRunDetectsEditOnSecondCrawl(t *testing.T) {
	c, _ := newCore(t)
	p := plugintest.New("cse",
		plugintest.Result{Posts: []models.Post{post("1", "A", "x")}},
		plugintest.Result{Posts: []models.Post{post("1", "A-edited", "x"), post("2", "B", "y")}},
		plugintest.Result{Posts: []models.Post{post("1", "A-edited", "x"), post("2", "B", "y")}},
	)

	_, err := c.Run(context.Background(), p, 10)
	require.NoError(t, err)

	doc, err := c.Run(context.Background(), p, 10)
	require.NoError(t, err)
	require.NotNil(t, doc.Items[0].UpdatedAt)
	require.True(t, fixedNow.Equal(*doc.Items[0].UpdatedAt))
	require.Nil(t, doc.Items[1].UpdatedAt)

	// unchanged content carries the earlier timestamp
	doc, err = c.Run(context.Background(), p, 10)
	require.NoError(t, err)
	require.NotNil(t, doc.Items[0].UpdatedAt)
	require.True(t, fixedNow.Equal(*doc.Items[0].UpdatedAt))
	require.Nil(t, doc.Items[1].UpdatedAt)
}

func TestRunReplacesCacheEntry(t *testing.T) {
	c, store := newCore(t)
	p := plugintest.New("cse",
		plugintest.Result{Posts: []models.Post{post("1", "A", "x"), post("2", "B", "y")}},
		plugintest.Result{Posts: []models.Post{post("3", "C", "z")}},
	)

	_, err := c.Run(context.Background(), p, 10)
	require.NoError(t, err)
	_, err = c.Run(context.Background(), p, 10)
	require.NoError(t, err)

	cached, err := store.Load(context.Background(), "cse")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.Equal(t, "3", cached[0].ID)
}

func TestRunCrawlFailureLeavesCacheUntouched(t *testing.T) {
	c, store := newCore(t)
	store.Put("cse", []models.Post{post("1", "A", "x")})

	boom := plugin.ParseError("cse", nil, "no rows")
	_, err := c.Run(context.Background(), plugintest.New("cse", plugintest.Result{Err: boom}), 10)
	require.ErrorIs(t, err, boom)

	cached, err := store.Load(context.Background(), "cse")
	require.NoError(t, err)
	require.Equal(t, []models.Post{post("1", "A", "x")}, cached)
}

func TestRunReadsCacheFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	seed := cache.NewStore(dir)
	stamp := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	old := post("1", "A", "x")
	old.UpdatedAt = &stamp
	seed.Put("cse", []models.Post{old})
	require.NoError(t, seed.Save(context.Background()))

	c := core.New(cache.NewStore(dir), nil, core.WithClock(func() time.Time { return fixedNow }))
	doc, err := c.Run(context.Background(), plugintest.New("cse", plugintest.Result{Posts: []models.Post{post("1", "A", "x")}}), 10)
	require.NoError(t, err)
	require.NotNil(t, doc.Items[0].UpdatedAt)
	require.True(t, stamp.Equal(*doc.Items[0].UpdatedAt))
}

func TestRunMalformedCacheIsAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cse.json"), []byte("{not json"), 0o644))

	c := core.New(cache.NewStore(dir), nil)
	_, err := c.Run(context.Background(), plugintest.New("cse", plugintest.Result{Posts: []models.Post{post("1", "A", "x")}}), 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "load cache")
}

func TestRunNotifiesChanges(t *testing.T) {
	n := &recordingNotifier{}
	c, _ := newCore(t, core.WithNotifier(n))
	p := plugintest.New("cse",
		plugintest.Result{Posts: []models.Post{post("1", "A", "x")}},
		plugintest.Result{Posts: []models.Post{post("1", "A", "x2"), post("2", "B", "y"), post("2", "B", "y")}},
	)

	_, err := c.Run(context.Background(), p, 10)
	require.NoError(t, err)
	_, err = c.Run(context.Background(), p, 10)
	require.NoError(t, err)

	require.Len(t, n.events, 3)
	require.Equal(t, models.EventPostCreated, n.events[0].Type)
	require.Equal(t, "1", n.events[0].Post.ID)
	require.Equal(t, models.EventPostUpdated, n.events[1].Type)
	require.Equal(t, "1", n.events[1].Post.ID)
	require.NotNil(t, n.events[1].Post.UpdatedAt)
	require.Equal(t, models.EventPostCreated, n.events[2].Type)
	require.Equal(t, "2", n.events[2].Post.ID)
	for _, evt := range n.events {
		require.Equal(t, "cse", evt.Site)
		require.Equal(t, "cse board", evt.SiteTitle)
		require.NotEmpty(t, evt.ID)
	}
}

func TestRunIgnoresNotifierFailure(t *testing.T) {
	n := &recordingNotifier{err: errors.New("broker down")}
	c, _ := newCore(t, core.WithNotifier(n))

	doc, err := c.Run(context.Background(), plugintest.New("cse", plugintest.Result{Posts: []models.Post{post("1", "A", "x")}}), 10)
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	require.Len(t, n.events, 1)
}

func TestRunWithRetryStopsAfterRetries(t *testing.T) {
	c, store := newCore(t)
	p := plugintest.Failing("cse")

	_, err := c.RunWithRetry(context.Background(), p, 10, 3)
	require.Error(t, err)
	require.Equal(t, 3, p.Calls())
	require.ErrorIs(t, err, core.ErrAttemptsExceeded)
	require.Equal(t, plugin.KindRequest, plugin.KindOf(err))

	var exceeded *core.AttemptsExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, "cse", exceeded.Plugin)
	require.Equal(t, 3, exceeded.Attempts)
	require.Contains(t, err.Error(), "cse")
	require.Empty(t, store.IDs())
}

func TestRunWithRetryShortCircuitsOnSuccess(t *testing.T) {
	c, _ := newCore(t)
	fail := plugin.RequestError("cse", nil, "timeout")
	p := plugintest.New("cse",
		plugintest.Result{Err: fail},
		plugintest.Result{Err: fail},
		plugintest.Result{Posts: []models.Post{post("1", "A", "x")}},
	)

	doc, err := c.RunWithRetry(context.Background(), p, 10, 5)
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	require.Equal(t, 3, p.Calls())
}

func TestRunWithRetryTreatsZeroAsOneAttempt(t *testing.T) {
	c, _ := newCore(t)
	p := plugintest.Failing("cse")

	_, err := c.RunWithRetry(context.Background(), p, 10, 0)
	require.ErrorIs(t, err, core.ErrAttemptsExceeded)
	require.Equal(t, 1, p.Calls())
}

func TestRunWithRetryHonorsCancellation(t *testing.T) {
	c, _ := newCore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := plugintest.Failing("cse")
	_, err := c.RunWithRetry(ctx, p, 10, 3)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, p.Calls())
}

func TestConcurrentRunsForDifferentPlugins(t *testing.T) {
	c, store := newCore(t)
	ids := []string{"cse", "sw", "media", "ee", "me"}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			p := plugintest.New(id, plugintest.Result{Posts: []models.Post{post("1", id, "x")}})
			if _, err := c.RunWithRetry(context.Background(), p, 10, 2); err != nil {
				t.Errorf("run %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	require.ElementsMatch(t, ids, store.IDs())
}
