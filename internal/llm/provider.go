// Package llm provides a provider-agnostic adapter for the chat
// completion collaborator. Used by structured extraction, markdown
// parsing, and keyword extraction. Built on net/http directly.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Response is the result of a completion. It has exactly two cases:
// PlainResponse for ordinary models and ReasonedResponse for models
// that emit a separate reasoning channel.
type Response interface {
	// Text returns the answer content, reasoning excluded.
	Text() string
}

// PlainResponse is a completion with content only.
type PlainResponse struct {
	Content string
}

func (r PlainResponse) Text() string { return r.Content }

// ReasonedResponse is a completion paired with the model's reasoning
// trace.
type ReasonedResponse struct {
	Content   string
	Reasoning string
}

func (r ReasonedResponse) Text() string { return r.Content }

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and blocks until the full response is
	// available.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (Response, error)
	// Stream sends a prompt and reassembles the streamed deltas into a
	// single Response. Deltas are appended strictly in arrival order;
	// malformed deltas are skipped, never abort the stream.
	Stream(ctx context.Context, prompt string, opts CompletionOpts) (Response, error)
	// Name returns a human-readable provider name (e.g. "openai/gpt-4o-mini").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // max tokens to generate (0 = provider default)
	Temperature float64 // 0.0-2.0 (0 = deterministic)
	System      string  // system prompt (optional)
	Format      string  // "json" to request JSON object output
	Model       string  // override the provider's default model
}

// Config holds provider configuration.
type Config struct {
	Provider string // "openai", "openrouter"
	Model    string // e.g. "gpt-4o-mini", "deepseek/deepseek-v3.2"
	APIKey   string // API key (empty = read from env)
	BaseURL  string // optional URL override
}

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY env var")
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return &chatProvider{name: "openai", apiKey: key, model: model, baseURL: baseURL}, nil

	case "openrouter":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENROUTER_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openrouter provider requires OPENROUTER_API_KEY env var")
		}
		model := cfg.Model
		if model == "" {
			model = "openai/gpt-4o-mini"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		return &chatProvider{name: "openrouter", apiKey: key, model: model, baseURL: baseURL}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openai, openrouter)", cfg.Provider)
	}
}

// ParseProviderFlag parses a --llm flag value into a Config.
// Format: "provider/model", e.g. "openai/gpt-4o-mini",
// "openrouter/deepseek/deepseek-v3.2".
func ParseProviderFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "openai", Model: "gpt-4o-mini"}, nil
	}

	parts := strings.SplitN(flag, "/", 2)
	if len(parts) < 2 {
		return Config{}, fmt.Errorf("invalid --llm format %q: expected provider/model", flag)
	}

	provider := strings.ToLower(parts[0])
	switch provider {
	case "openai", "openrouter":
		return Config{Provider: provider, Model: parts[1]}, nil
	default:
		return Config{}, fmt.Errorf("unknown provider %q in --llm flag (supported: openai, openrouter)", provider)
	}
}
