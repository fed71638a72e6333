// Package scraper builds the raw sutta store from dhammatalks.org.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/fetcher"
	"github.com/dtnitsch/sutta-concepts/pkg/jsonl"
	"github.com/dtnitsch/sutta-concepts/pkg/parser"
)

// NoSubBook is recorded for links without a sub-book path segment.
const NoSubBook = "None"

type Config struct {
	MasterURL string
	BaseURL   string
	Books     []string // href must contain one of these
	Avoid     []string // href must contain none of these
}

type Scraper struct {
	cfg     Config
	fetcher *fetcher.Fetcher
	parser  *parser.Parser
	logger  *slog.Logger
}

// Result counts what a scrape did.
type Result struct {
	Links     int
	Scraped   int
	NoContent int
	Failed    int
}

func New(cfg Config, f *fetcher.Fetcher, p *parser.Parser, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scraper{cfg: cfg, fetcher: f, parser: p, logger: logger}
}

// ExtractLinks collects sutta links from the master index, deduplicated by
// href and sorted by URL so ids are stable across scrapes.
func ExtractLinks(doc *goquery.Document, cfg Config) []models.SuttaLink {
	seen := make(map[string]struct{})
	var links []models.SuttaLink
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !wanted(href, cfg) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		parts := strings.Split(href, "/")
		if len(parts) < 3 {
			return
		}
		seen[href] = struct{}{}
		link := models.SuttaLink{
			Book:        parts[2],
			SubBook:     NoSubBook,
			URL:         cfg.BaseURL + href,
			SuttaIDText: parser.NormalizeLinkText(a.Text()),
		}
		if len(parts) > 4 {
			link.SubBook = parts[3]
		}
		links = append(links, link)
	})
	sort.SliceStable(links, func(i, j int) bool { return links[i].URL < links[j].URL })
	return links
}

func wanted(href string, cfg Config) bool {
	if href == "" {
		return false
	}
	matched := false
	for _, b := range cfg.Books {
		if strings.Contains(href, b) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, av := range cfg.Avoid {
		if strings.Contains(href, av) {
			return false
		}
	}
	return true
}

// Links fetches the master index and extracts sutta links.
func (s *Scraper) Links(ctx context.Context) ([]models.SuttaLink, error) {
	s.logger.Info("Fetching master list", "url", s.cfg.MasterURL)
	doc, err := s.fetcher.GetHtml(ctx, s.cfg.MasterURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch master list: %w", err)
	}
	links := ExtractLinks(doc, s.cfg)
	s.logger.Info("Found sutta links", "count", len(links))
	return links, nil
}

// Run rewrites outputPath from scratch. sutta_id counts parsed pages from 1
// in link order; pages that fail to download or carry no sutta are logged
// and do not consume an id.
func (s *Scraper) Run(ctx context.Context, outputPath string) (Result, error) {
	links, err := s.Links(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Links: len(links)}
	if len(links) == 0 {
		s.logger.Warn("No sutta links found; leaving existing store untouched", "path", outputPath)
		return res, nil
	}

	w, err := jsonl.Create(outputPath)
	if err != nil {
		return res, err
	}
	defer w.Close()

	nextID := 1
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		body, err := s.fetcher.GetHtmlBytes(ctx, link.URL)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			s.logger.Warn("Could not fetch sutta", "url", link.URL, "error", err)
			res.Failed++
			continue
		}
		page, err := s.parser.ParseSutta(string(body))
		if errors.Is(err, parser.ErrNoSutta) {
			s.logger.Debug("No sutta content", "url", link.URL)
			res.NoContent++
			continue
		}
		if err != nil {
			s.logger.Warn("Could not parse sutta", "url", link.URL, "error", err)
			res.Failed++
			continue
		}

		sutta := models.Sutta{
			SuttaID:      nextID,
			Book:         link.Book,
			SubBook:      link.SubBook,
			URL:          link.URL,
			SuttaIDText:  link.SuttaIDText,
			Title:        page.Title,
			Introduction: page.Introduction,
			Body:         page.Body,
			Language:     page.Language,
		}
		if err := w.Write(sutta); err != nil {
			return res, err
		}
		nextID++
		res.Scraped++
		if (i+1)%50 == 0 {
			s.logger.Info("Scrape progress", "done", i+1, "total", len(links))
		}
	}

	if err := w.Close(); err != nil {
		return res, err
	}
	s.logger.Info("Scrape complete", "scraped", res.Scraped, "no_content", res.NoContent, "failed", res.Failed, "path", outputPath)
	return res, nil
}
