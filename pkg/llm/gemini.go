package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

var geminiSafetyCategories = []string{
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerationConfig struct {
	Temperature      float64        `json:"temperature"`
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	SafetySettings    []geminiSafetySetting  `json:"safetySettings"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// GeminiClient calls the generateContent REST endpoint.
type GeminiClient struct {
	cfg          Config
	systemPrompt string
	schema       map[string]any
	httpClient   *http.Client
	logger       *slog.Logger
}

func newGeminiClient(cfg Config, systemPrompt string, schema map[string]any) *GeminiClient {
	return &GeminiClient{
		cfg:          cfg,
		systemPrompt: systemPrompt,
		schema:       schema,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger.With("provider", ProviderGemini, "model_id", cfg.ModelID),
	}
}

func (c *GeminiClient) request(text string) geminiRequest {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      c.cfg.Temperature,
			ResponseMimeType: "application/json",
			ResponseSchema:   c.schema,
		},
	}
	if c.systemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: c.systemPrompt}}}
	}
	for _, category := range geminiSafetyCategories {
		req.SafetySettings = append(req.SafetySettings, geminiSafetySetting{Category: category, Threshold: "BLOCK_NONE"})
	}
	return req
}

// Generate returns the concatenated text of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, text string) (string, error) {
	url := c.cfg.BaseURL + "/v1beta/models/" + c.cfg.ModelID + ":generateContent"
	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}

	body, err := postJSON(ctx, c.httpClient, ProviderGemini, url, headers, c.request(text))
	if err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal gemini response")
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback.BlockReason != "" {
			return "", errors.Newf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("no candidates in gemini response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	c.logger.Debug("Gemini response", "finish_reason", resp.Candidates[0].FinishReason, "content_length", sb.Len())
	return sb.String(), nil
}
