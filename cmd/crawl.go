package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bizcrawl/internal/browser"
	"github.com/sells-group/bizcrawl/internal/crawler"
	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/ratelimit"
	"github.com/sells-group/bizcrawl/internal/resilience"
	"github.com/sells-group/bizcrawl/internal/resolve"
	"github.com/sells-group/bizcrawl/internal/router"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl a directory search and store one record per business",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyCrawlFlags(cmd)
		if err := cfg.ValidateSeed(); err != nil {
			return err
		}
		seed, err := crawler.SeedURL(cfg.Search.BaseURL, cfg.Search.Term, cfg.Search.Location, cfg.Search.URL)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fetcher, err := newFetcher()
		if err != nil {
			return err
		}
		engine, err := newEngine(fetcher)
		if err != nil {
			return err
		}
		defer engine.Close() //nolint:errcheck

		log := zap.L().With(zap.String("command", "crawl"))

		var hook crawler.FailureHook = crawler.MultiHook{crawler.LogHook{}, crawler.StoreHook{Store: st}}
		if dir := cfg.Crawl.ScreenshotDir; dir != "" {
			if shooter, ok := engine.(browser.Screenshotter); ok {
				hook = crawler.MultiHook{
					crawler.LogHook{},
					crawler.ScreenshotHook{Shooter: shooter, Dir: dir, Next: crawler.StoreHook{Store: st}},
				}
			} else {
				log.Warn("render engine cannot take screenshots", zap.String("engine", cfg.Browser.Engine))
			}
		}

		opts := crawler.Options{
			Concurrency: cfg.Crawl.Concurrency,
			MaxResults:  cfg.Search.MaxResults,
			Render:      cfg.RenderOptions(),
			Router:      &router.Router{DetailPrefix: cfg.Crawl.DetailPrefix, NextSelectors: router.DefaultNextSelectors},
			Resolver:    resolve.New(),
			Hook:        hook,
			Limiter:     ratelimit.NewHosts(cfg.Crawl.RatePerSec, 1),
			Breaker: resilience.NewBreaker(resilience.BreakerConfig{
				Threshold: cfg.Crawl.MaxRenderFailures,
				Cooldown:  time.Minute,
				OnStateChange: func(from, to resilience.BreakerState) {
					log.Warn("render breaker state change",
						zap.String("from", from.String()),
						zap.String("to", to.String()),
					)
				},
			}),
		}
		if cfg.Enrich.Enabled {
			enr, err := newEnricher(fetcher)
			if err != nil {
				return err
			}
			opts.Enricher = enr
		}

		orch := crawler.New(engine, st, opts)
		state, runErr := orch.Run(ctx, []model.WorkItem{crawler.SeedItem(seed, cfg.Crawl.DetailPrefix)})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(state); err != nil {
			return eris.Wrap(err, "crawl: write summary")
		}
		return runErr
	},
}

func applyCrawlFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("term") {
		cfg.Search.Term, _ = f.GetString("term")
	}
	if f.Changed("location") {
		cfg.Search.Location, _ = f.GetString("location")
	}
	if f.Changed("url") {
		cfg.Search.URL, _ = f.GetString("url")
	}
	if f.Changed("max-results") {
		cfg.Search.MaxResults, _ = f.GetInt("max-results")
	}
	if f.Changed("concurrency") {
		cfg.Crawl.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("screenshots") {
		cfg.Crawl.ScreenshotDir, _ = f.GetString("screenshots")
	}
	if noEnrich, _ := f.GetBool("no-enrich"); noEnrich {
		cfg.Enrich.Enabled = false
	}
}

func init() {
	f := crawlCmd.Flags()
	f.String("term", "", "search term (overrides search.term)")
	f.String("location", "", "search location (overrides search.location)")
	f.String("url", "", "direct search URL (overrides term and location)")
	f.Int("max-results", 0, "maximum business pages to visit (0 = unlimited)")
	f.Int("concurrency", 0, "concurrent work items")
	f.String("screenshots", "", "directory for failure screenshots")
	f.Bool("no-enrich", false, "skip website contact enrichment")
	rootCmd.AddCommand(crawlCmd)
}
