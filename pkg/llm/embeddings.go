package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

const DefaultEmbeddingBatchSize = 64

// EmbeddingConfig describes an OpenAI-compatible /embeddings endpoint
// (OpenAI, Ollama, LM Studio, text-embeddings-inference).
type EmbeddingConfig struct {
	ModelID    string
	BaseURL    string
	APIKeyEnv  string // optional; no Authorization header when empty or unset
	BatchSize  int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbeddingClient embeds texts in batches, preserving input order.
type EmbeddingClient struct {
	cfg    EmbeddingConfig
	apiKey string
	logger *slog.Logger
}

func NewEmbeddingClient(cfg EmbeddingConfig) (*EmbeddingClient, error) {
	if cfg.ModelID == "" {
		return nil, errors.New("embedding model id is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.WithHint(errors.New("embedding base url is required"),
			"set concept_normalization.embedding_base_url, e.g. http://localhost:11434/v1 for Ollama")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbeddingBatchSize
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	return &EmbeddingClient{
		cfg:    cfg,
		apiKey: apiKey,
		logger: cfg.Logger.With("embedding_model_id", cfg.ModelID),
	}, nil
}

// Embed returns one vector per text, in the order given.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		body, err := postJSON(ctx, c.cfg.HTTPClient, "embeddings", c.cfg.BaseURL+"/embeddings", headers,
			embeddingRequest{Model: c.cfg.ModelID, Input: batch})
		if err != nil {
			return nil, errors.Wrapf(err, "embedding batch %d-%d failed", start, end)
		}

		var resp embeddingResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal embedding response")
		}
		if len(resp.Data) != len(batch) {
			return nil, errors.Newf("embedding response has %d vectors for %d inputs", len(resp.Data), len(batch))
		}
		sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		for _, d := range resp.Data {
			vectors = append(vectors, d.Embedding)
		}
		c.logger.Debug("Embedded batch", "start", start, "end", end)
	}
	return vectors, nil
}
