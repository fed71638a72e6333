package scrape

import (
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/sutta-concepts/internal/setup"
	"github.com/dtnitsch/sutta-concepts/pkg/caching"
	"github.com/dtnitsch/sutta-concepts/pkg/config"
	"github.com/dtnitsch/sutta-concepts/pkg/fetcher"
	"github.com/dtnitsch/sutta-concepts/pkg/parser"
	"github.com/dtnitsch/sutta-concepts/pkg/scraper"
)

const stageName = "scrape"

func ScrapeAction(c *cli.Context) error {
	rt := setup.Load(c)
	cfg := rt.Config
	logger := rt.Logger.With("stage", stageName)
	startTime := time.Now()

	ctx, cancel := setup.SignalContext(c.Context)
	defer cancel()

	var cache *caching.Cache
	if cfg.Dhammatalks.CacheDir != "" && !c.Bool("no-cache") {
		var err error
		cache, err = caching.NewCache(config.Resolve(cfg, cfg.Dhammatalks.CacheDir), cfg.Dhammatalks.CacheTTL)
		if err != nil {
			setup.Fail(logger, "failed to initialize page cache", err)
		}
	}

	f := fetcher.NewFetcher(fetcher.Options{
		Interval: cfg.Dhammatalks.RequestInterval,
		Cache:    cache,
		Logger:   logger,
	})
	p := parser.NewParser(!c.Bool("no-language"))
	s := scraper.New(scraper.Config{
		MasterURL: cfg.Dhammatalks.MasterURL,
		BaseURL:   cfg.Dhammatalks.BaseURL,
		Books:     cfg.Dhammatalks.BooksOfInterest,
		Avoid:     cfg.Dhammatalks.AvoidInURL,
	}, f, p, logger)

	outputPath := config.RawDataPath(cfg)
	result, err := s.Run(ctx, outputPath)
	rt.Metrics.RunDuration.WithLabelValues(stageName).Set(time.Since(startTime).Seconds())
	rt.Metrics.ItemsTotal.WithLabelValues(stageName, "succeeded").Add(float64(result.Scraped))
	rt.Metrics.ItemsTotal.WithLabelValues(stageName, "skipped").Add(float64(result.NoContent + result.Failed))
	rt.Close()

	if err != nil {
		logger.Error("Scrape failed", "error", err)
		os.Exit(setup.ExitCode(err))
	}

	if !c.Bool("quiet") {
		pterm.Success.Printf("Scraped %d of %d suttas into %s\n", result.Scraped, result.Links, outputPath)
		if result.NoContent+result.Failed > 0 {
			pterm.Warning.Printf("%d pages had no sutta content, %d failed to fetch\n", result.NoContent, result.Failed)
		}
	}
	return nil
}
