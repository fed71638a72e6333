package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		modelID  string
		explicit string
		want     Provider
		wantErr  bool
	}{
		{"gemini-2.0-flash", "", ProviderGemini, false},
		{"gemini-1.5-pro-latest", "", ProviderGemini, false},
		{"google/gemini-2.5-flash", "", ProviderGemini, false},
		{"deepseek-chat", "", ProviderDeepSeek, false},
		{"DeepSeek-Reasoner", "", ProviderDeepSeek, false},
		{"custom-model", "deepseek", ProviderDeepSeek, false},
		{"gemini-2.0-flash", "DeepSeek", ProviderDeepSeek, false},
		{"gpt-4o", "", "", true},
		{"gemini-2.0-flash", "openai", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.modelID+"/"+tt.explicit, func(t *testing.T) {
			got, err := ResolveProvider(tt.modelID, tt.explicit)
			if tt.wantErr {
				var unknown *UnknownProviderError
				if !errors.As(err, &unknown) {
					t.Fatalf("expected *UnknownProviderError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveProvider(%q, %q) = %q, want %q", tt.modelID, tt.explicit, got, tt.want)
			}
		})
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := New(Config{Provider: ProviderGemini, ModelID: "gemini-2.0-flash"}, "prompt", nil)
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("error should name the variable: %v", err)
	}
	if len(errors.GetAllHints(err)) == 0 {
		t.Errorf("expected an operator hint on %v", err)
	}
}

func TestNew_ReadsKeyFromEnvironment(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "secret")
	client, err := New(Config{Provider: ProviderDeepSeek, ModelID: "deepseek-chat"}, "prompt", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chat, ok := client.(*ChatClient)
	if !ok {
		t.Fatalf("expected *ChatClient, got %T", client)
	}
	if chat.cfg.APIKey != "secret" || chat.cfg.BaseURL != "https://api.deepseek.com" {
		t.Errorf("unexpected config: %+v", chat.cfg)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "openai", ModelID: "gpt-4o", APIKey: "k"}, "", nil)
	var unknown *UnknownProviderError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownProviderError, got %v", err)
	}
}

func TestGeminiClient_Generate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"concepts\":"},{"text":"[]}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	schema := map[string]any{"type": "OBJECT"}
	client, err := New(Config{Provider: ProviderGemini, ModelID: "gemini-2.0-flash", APIKey: "k", BaseURL: srv.URL, Temperature: 0.3}, "system text", schema)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := client.Generate(context.Background(), "sutta body")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"concepts":[]}` {
		t.Errorf("Generate = %q", out)
	}

	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "system text" {
		t.Errorf("system instruction not sent: %+v", got.SystemInstruction)
	}
	if got.Contents[0].Parts[0].Text != "sutta body" {
		t.Errorf("contents not sent: %+v", got.Contents)
	}
	if got.GenerationConfig.ResponseMimeType != "application/json" || got.GenerationConfig.Temperature != 0.3 {
		t.Errorf("unexpected generation config: %+v", got.GenerationConfig)
	}
	if got.GenerationConfig.ResponseSchema["type"] != "OBJECT" {
		t.Errorf("schema not sent")
	}
	if len(got.SafetySettings) != 4 {
		t.Fatalf("expected 4 safety settings, got %d", len(got.SafetySettings))
	}
	for _, s := range got.SafetySettings {
		if s.Threshold != "BLOCK_NONE" {
			t.Errorf("safety %s threshold = %s", s.Category, s.Threshold)
		}
	}
}

func TestGeminiClient_BlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"OTHER"}}`))
	}))
	defer srv.Close()

	client, _ := New(Config{Provider: ProviderGemini, ModelID: "gemini-2.0-flash", APIKey: "k", BaseURL: srv.URL}, "", nil)
	_, err := client.Generate(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "OTHER") {
		t.Fatalf("expected block reason in error, got %v", err)
	}
	if pipeline.Classify(err) != pipeline.OutcomeSkipped {
		t.Errorf("blocked prompt should be a skip, got %s", pipeline.Classify(err))
	}
}

func TestChatClient_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"concepts\":[]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client, err := New(Config{Provider: ProviderDeepSeek, ModelID: "deepseek-chat", APIKey: "k", BaseURL: srv.URL + "/"}, "system text", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := client.Generate(context.Background(), "sutta body")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"concepts":[]}` {
		t.Errorf("Generate = %q", out)
	}
	if got.ResponseFormat["type"] != "json_object" {
		t.Errorf("response_format = %v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "sutta body" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		rateLimit bool
	}{
		{"429", http.StatusTooManyRequests, `{"error":"slow down"}`, true},
		{"resource exhausted", http.StatusInternalServerError, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, true},
		{"quota", http.StatusForbidden, `{"error":{"message":"You exceeded your current quota"}}`, true},
		{"server error", http.StatusInternalServerError, `{"error":"internal"}`, false},
		{"bad request", http.StatusBadRequest, `{"error":"invalid model"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			for _, p := range Providers {
				client, err := New(Config{Provider: p, ModelID: string(p) + "-model", APIKey: "k", BaseURL: srv.URL}, "", nil)
				if err != nil {
					t.Fatalf("New(%s): %v", p, err)
				}
				_, err = client.Generate(context.Background(), "x")
				if err == nil {
					t.Fatalf("%s: expected error", p)
				}
				var rl *pipeline.RateLimitError
				if got := errors.As(err, &rl); got != tt.rateLimit {
					t.Errorf("%s: rate limit = %v, want %v (%v)", p, got, tt.rateLimit, err)
				}
				wantOutcome := pipeline.OutcomeSkipped
				if tt.rateLimit {
					wantOutcome = pipeline.OutcomeAborted
				}
				if got := pipeline.Classify(err); got != wantOutcome {
					t.Errorf("%s: Classify = %s, want %s", p, got, wantOutcome)
				}
			}
		})
	}
}

func TestEmbeddingClient_Batches(t *testing.T) {
	var batches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer emb" {
			t.Errorf("missing bearer token")
		}
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		batches = append(batches, req.Input)

		// Reply out of order to check the client sorts by index.
		var resp embeddingResponse
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(len(req.Input[i]))}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	t.Setenv("TEST_EMBED_KEY", "emb")
	client, err := NewEmbeddingClient(EmbeddingConfig{ModelID: "m", BaseURL: srv.URL + "/v1", APIKeyEnv: "TEST_EMBED_KEY", BatchSize: 2})
	if err != nil {
		t.Fatalf("NewEmbeddingClient: %v", err)
	}
	vectors, err := client.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Errorf("unexpected batches: %v", batches)
	}
	for i, want := range []float32{1, 2, 3} {
		if vectors[i][0] != want {
			t.Errorf("vector %d = %v, want %v", i, vectors[i], want)
		}
	}
}

func TestNewEmbeddingClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewEmbeddingClient(EmbeddingConfig{ModelID: "m"}); err == nil {
		t.Fatal("expected error without base url")
	}
}
