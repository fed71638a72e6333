// Package llm provides the text-generation clients used by concept
// extraction. The provider is resolved once from configuration and a client
// is constructed explicitly; nothing is selected per call.
package llm

import (
	"fmt"
	"strings"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderGemini   Provider = "gemini"
	ProviderDeepSeek Provider = "deepseek"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderGemini, ProviderDeepSeek}

// UnknownProviderError is returned when no supported provider matches.
type UnknownProviderError struct {
	ModelID  string
	Explicit string
}

func (e *UnknownProviderError) Error() string {
	if e.Explicit != "" {
		return fmt.Sprintf("unknown llm provider %q (supported: gemini, deepseek)", e.Explicit)
	}
	return fmt.Sprintf("cannot infer llm provider from model id %q (supported: gemini, deepseek)", e.ModelID)
}

// ParseProvider converts a configured provider name.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderGemini:
		return ProviderGemini, nil
	case ProviderDeepSeek:
		return ProviderDeepSeek, nil
	default:
		return "", &UnknownProviderError{Explicit: s}
	}
}

// ResolveProvider picks the provider for modelID. An explicit provider name
// wins; otherwise the model family in the id decides.
func ResolveProvider(modelID, explicit string) (Provider, error) {
	if strings.TrimSpace(explicit) != "" {
		return ParseProvider(explicit)
	}
	id := strings.ToLower(modelID)
	// Strip a vendor prefix such as "google/gemini-2.0-flash".
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	for _, p := range Providers {
		if strings.HasPrefix(id, string(p)) {
			return p, nil
		}
	}
	return "", &UnknownProviderError{ModelID: modelID}
}

// APIKeyEnv is the environment variable holding the provider's key.
func (p Provider) APIKeyEnv() string {
	switch p {
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	}
	return ""
}

// DefaultBaseURL is the public API root for the provider.
func (p Provider) DefaultBaseURL() string {
	switch p {
	case ProviderGemini:
		return "https://generativelanguage.googleapis.com"
	case ProviderDeepSeek:
		return "https://api.deepseek.com"
	}
	return ""
}
