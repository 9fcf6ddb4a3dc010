package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DeafMist/campus-feed/backend/internal/config"
	"github.com/DeafMist/campus-feed/backend/internal/logger"
)

type flags struct {
	include     []string
	exclude     []string
	limit       int
	retry       int
	out         string
	cache       string
	sites       string
	concurrency int
	schedule    string
	list        bool
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New("crawler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd(log).ExecuteContext(ctx); err != nil {
		log.Error("crawler failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func newRootCmd(log *slog.Logger) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "crawler",
		Short:         "Crawl campus notice boards and publish feeds",
		Long:          "crawler fetches every configured board, detects new and edited posts against its cache, and writes data.json and rss.xml per site.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadCrawler()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyFlags(cmd, cfg, f)
			if err := cfg.Validate(); err != nil {
				return err
			}

			sites, err := config.LoadSites(cfg.SitesFile)
			if err != nil {
				return err
			}
			if f.list {
				for _, site := range sites.Sites {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", site.ID, site.Kind, site.Title)
				}
				return nil
			}

			app, err := newApp(cmd.Context(), log, cfg, sites)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Start(cmd.Context(), f.include, f.exclude)
		},
	}

	fl := cmd.Flags()
	fl.StringSliceVarP(&f.include, "include", "i", nil, "only crawl these site ids (comma separated)")
	fl.StringSliceVarP(&f.exclude, "exclude", "e", nil, "crawl every site except these ids (comma separated)")
	fl.IntVarP(&f.limit, "limit", "l", 0, "maximum posts per site (env CRAWLER_LIMIT, default 100)")
	fl.IntVarP(&f.retry, "retry", "r", 0, "attempts per site (env CRAWLER_RETRY, default 3)")
	fl.StringVarP(&f.out, "out", "o", "", "output directory (env OUTPUT_DIR, default ./out)")
	fl.StringVar(&f.cache, "cache", "", "cache directory (env CACHE_DIR, default ./.cache)")
	fl.StringVar(&f.sites, "sites", "", "sites file (env SITES_FILE, default sites.yaml)")
	fl.IntVar(&f.concurrency, "concurrency", 0, "sites crawled in parallel, 0 for all (env CRAWLER_CONCURRENCY)")
	fl.StringVar(&f.schedule, "schedule", "", "cron expression; keep running and crawl on every tick (env CRAWLER_SCHEDULE)")
	fl.BoolVar(&f.list, "list", false, "print the configured sites and exit")
	cmd.MarkFlagsMutuallyExclusive("include", "exclude")

	return cmd
}

// applyFlags overrides env configuration with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Crawler, f flags) {
	changed := cmd.Flags().Changed
	if changed("limit") {
		cfg.Limit = f.limit
	}
	if changed("retry") {
		cfg.Retries = f.retry
	}
	if changed("out") {
		cfg.OutDir = f.out
	}
	if changed("cache") {
		cfg.CacheDir = f.cache
	}
	if changed("sites") {
		cfg.SitesFile = f.sites
	}
	if changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if changed("schedule") {
		cfg.Schedule = f.schedule
	}
}
