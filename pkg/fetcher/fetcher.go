package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/dtnitsch/sutta-concepts/pkg/caching"
)

// DefaultInterval is the minimum spacing between network requests.
const DefaultInterval = 100 * time.Millisecond

const userAgent = "sutta-concepts/1.0 (+https://www.dhammatalks.org)"

type Options struct {
	Interval time.Duration
	Cache    *caching.Cache // nil disables caching
	Client   *http.Client
	Logger   *slog.Logger
}

// Fetcher downloads pages politely: requests are spaced by a rate limiter
// and cached bodies are served without touching the network.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cache   *caching.Cache
	logger  *slog.Logger
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		client:  opts.Client,
		limiter: rate.NewLimiter(rate.Every(opts.Interval), 1),
		cache:   opts.Cache,
		logger:  opts.Logger,
	}
}

func (f *Fetcher) GetHtml(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := f.GetHtmlBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (f *Fetcher) GetHtmlBytes(ctx context.Context, url string) ([]byte, error) {
	if f.cache != nil {
		if data, ok := f.cache.Get(url); ok {
			f.logger.Debug("Cache hit", "url", url)
			return data, nil
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch HTML, status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if f.cache != nil {
		if err := f.cache.Set(url, body); err != nil {
			f.logger.Warn("Failed to cache page", "url", url, "error", err)
		}
	}
	return body, nil
}
