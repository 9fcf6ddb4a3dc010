package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/campus-feed/backend/internal/config"
	"github.com/DeafMist/campus-feed/backend/internal/output"
	"github.com/DeafMist/campus-feed/backend/internal/runner"
)

const feedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>%s</title><guid>1</guid><link>https://example.com/1</link><pubDate>Mon, 02 Mar 2026 10:00:00 +0900</pubDate><description>body</description></item>
</channel></rss>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feedServer(t *testing.T, title *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, feedXML, title.Load())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func titled(s string) *atomic.Value {
	var v atomic.Value
	v.Store(s)
	return &v
}

func testConfig(t *testing.T) *config.Crawler {
	dir := t.TempDir()
	return &config.Crawler{
		OutDir:      filepath.Join(dir, "out"),
		CacheDir:    filepath.Join(dir, "cache"),
		Limit:       10,
		Retries:     2,
		HTTPTimeout: 5 * time.Second,
	}
}

func testSites(t *testing.T, base string) *config.Sites {
	t.Helper()
	sites, err := config.ParseSites([]byte(fmt.Sprintf(`
sites:
  - id: media
    title: Media
    base_url: %[1]s
    kind: feed
    feed: {url: "%[1]s/feed"}
  - id: broken
    base_url: %[1]s
    kind: feed
    feed: {url: "%[1]s/broken"}
  - id: off
    base_url: %[1]s
    kind: feed
    enabled: false
    feed: {url: "%[1]s/feed"}
`, base)))
	require.NoError(t, err)
	return sites
}

func TestBuildRegistrySkipsDisabledSites(t *testing.T) {
	srv := feedServer(t, titled("x"))

	reg, err := buildRegistry(testSites(t, srv.URL), http.DefaultClient, testLogger())
	require.NoError(t, err)
	require.Equal(t, []string{"media", "broken"}, reg.IDs())
}

func TestCycleWritesOutputsAndCache(t *testing.T) {
	title := titled("Registration")
	srv := feedServer(t, title)
	cfg := testConfig(t)

	a, err := newApp(context.Background(), testLogger(), cfg, testSites(t, srv.URL))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Start(context.Background(), []string{"media"}, nil))

	doc, err := output.ReadDocument(cfg.OutDir, "media")
	require.NoError(t, err)
	require.Equal(t, "Media", doc.Title)
	require.Len(t, doc.Items, 1)
	require.Nil(t, doc.Items[0].UpdatedAt)
	_, err = os.Stat(filepath.Join(cfg.OutDir, "media", output.RSSFile))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.CacheDir, "media.json"))
	require.NoError(t, err)

	// a fresh process picks the edit up from the saved cache
	title.Store("Registration (revised)")
	b, err := newApp(context.Background(), testLogger(), cfg, testSites(t, srv.URL))
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background(), []string{"media"}, nil))

	doc, err = output.ReadDocument(cfg.OutDir, "media")
	require.NoError(t, err)
	require.NotNil(t, doc.Items[0].UpdatedAt)
}

func TestCycleReportsFailuresAndStillSaves(t *testing.T) {
	title := titled("Registration")
	srv := feedServer(t, title)
	cfg := testConfig(t)

	a, err := newApp(context.Background(), testLogger(), cfg, testSites(t, srv.URL))
	require.NoError(t, err)

	err = a.Start(context.Background(), nil, nil)
	var runErr *runner.RunError
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, "1 of 2 runs failed", err.Error())

	_, err = os.Stat(filepath.Join(cfg.CacheDir, "media.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.CacheDir, "broken.json"))
	require.True(t, os.IsNotExist(err))
}

func TestScheduleCrawlsBeforeFirstTick(t *testing.T) {
	srv := feedServer(t, titled("Registration"))
	cfg := testConfig(t)
	cfg.Schedule = "@every 1h"

	a, err := newApp(context.Background(), testLogger(), cfg, testSites(t, srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx, []string{"media"}, nil) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(cfg.OutDir, "media", output.DataFile))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduleRejectsBadExpression(t *testing.T) {
	srv := feedServer(t, titled("x"))
	cfg := testConfig(t)
	cfg.Schedule = "not a cron"

	a, err := newApp(context.Background(), testLogger(), cfg, testSites(t, srv.URL))
	require.NoError(t, err)
	require.ErrorContains(t, a.Start(context.Background(), []string{"media"}, nil), "parse schedule")

	_, err = os.Stat(filepath.Join(cfg.OutDir, "media"))
	require.True(t, os.IsNotExist(err))
}

func TestStartRejectsUnknownInclude(t *testing.T) {
	srv := feedServer(t, titled("x"))

	a, err := newApp(context.Background(), testLogger(), testConfig(t), testSites(t, srv.URL))
	require.NoError(t, err)
	require.Error(t, a.Start(context.Background(), []string{"nope"}, nil))
}

func TestApplyFlagsOnlyOverridesChanged(t *testing.T) {
	cmd := newRootCmd(testLogger())
	require.NoError(t, cmd.ParseFlags([]string{"--limit", "7", "-o", "/tmp/feeds", "--include", "a,b"}))

	cfg := &config.Crawler{Limit: 100, Retries: 3, OutDir: "./out", CacheDir: "./.cache"}
	applyFlags(cmd, cfg, flags{limit: 7, out: "/tmp/feeds", retry: 0})

	require.Equal(t, 7, cfg.Limit)
	require.Equal(t, "/tmp/feeds", cfg.OutDir)
	require.Equal(t, 3, cfg.Retries)
	require.Equal(t, "./.cache", cfg.CacheDir)

	include, err := cmd.Flags().GetStringSlice("include")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, include)
}
