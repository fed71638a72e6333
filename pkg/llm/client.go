package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

// DefaultTimeout bounds a single generation request.
const DefaultTimeout = 120 * time.Second

// Client generates a JSON document for one input text using the system
// prompt and response schema it was built with.
type Client interface {
	Generate(ctx context.Context, text string) (string, error)
}

// Config describes how to reach a provider.
type Config struct {
	Provider    Provider
	ModelID     string
	BaseURL     string // empty means Provider.DefaultBaseURL()
	APIKey      string // empty means read Provider.APIKeyEnv()
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// New builds the client for cfg.Provider. schema is the JSON schema of the
// expected response; providers that cannot enforce one ignore it.
func New(cfg Config, systemPrompt string, schema map[string]any) (Client, error) {
	if cfg.ModelID == "" {
		return nil, errors.New("llm: model id is required")
	}
	if cfg.APIKey == "" {
		env := cfg.Provider.APIKeyEnv()
		if env == "" {
			return nil, &UnknownProviderError{Explicit: string(cfg.Provider)}
		}
		cfg.APIKey = os.Getenv(env)
		if cfg.APIKey == "" {
			return nil, errors.WithHint(
				errors.Newf("%s not found in environment for %s client", env, cfg.Provider),
				"export it or add it to the .env file next to config.yaml")
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Provider.DefaultBaseURL()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	switch cfg.Provider {
	case ProviderGemini:
		return newGeminiClient(cfg, systemPrompt, schema), nil
	case ProviderDeepSeek:
		return newChatClient(cfg, systemPrompt), nil
	default:
		return nil, &UnknownProviderError{Explicit: string(cfg.Provider)}
	}
}

// throttleMarkers are substrings providers use for throttling or exhausted
// quota in otherwise ordinary error bodies.
var throttleMarkers = []string{
	"resource_exhausted",
	"rate limit",
	"rate_limit",
	"quota",
	"too many requests",
}

func isThrottleBody(body string) bool {
	lower := strings.ToLower(body)
	for _, m := range throttleMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// postJSON sends payload and returns the response body of a 2xx reply.
// Throttling answers become *pipeline.RateLimitError.
func postJSON(ctx context.Context, client *http.Client, provider Provider, url string, headers map[string]string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s request failed", provider)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &pipeline.RateLimitError{
			Provider: string(provider),
			Err:      errors.Newf("status 429 (retry after %q): %s", resp.Header.Get("Retry-After"), truncate(body)),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if isThrottleBody(string(body)) {
			return nil, &pipeline.RateLimitError{
				Provider: string(provider),
				Err:      errors.Newf("status %d: %s", resp.StatusCode, truncate(body)),
			}
		}
		return nil, errors.Newf("%s API request failed with status %d: %s", provider, resp.StatusCode, truncate(body))
	}
	return body, nil
}

func truncate(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
