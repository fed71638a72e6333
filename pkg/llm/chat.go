package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint
// (DeepSeek). JSON output is requested through response_format.
type ChatClient struct {
	cfg          Config
	provider     Provider
	systemPrompt string
	httpClient   *http.Client
	logger       *slog.Logger
}

func newChatClient(cfg Config, systemPrompt string) *ChatClient {
	return &ChatClient{
		cfg:          cfg,
		provider:     cfg.Provider,
		systemPrompt: systemPrompt,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger.With("provider", cfg.Provider, "model_id", cfg.ModelID),
	}
}

// Generate returns the content of the first choice, unparsed.
func (c *ChatClient) Generate(ctx context.Context, text string) (string, error) {
	req := chatRequest{
		Model: c.cfg.ModelID,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	body, err := postJSON(ctx, c.httpClient, c.provider, c.cfg.BaseURL+"/chat/completions", headers, req)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal chat response")
	}
	if len(resp.Choices) == 0 {
		return "", errors.Newf("no response choices from %s", c.provider)
	}
	c.logger.Debug("Chat response",
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}
