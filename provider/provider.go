package provider

import (
	"context"
	"errors"

	"github.com/pamudu-ranasinghe/virtualme/config"
	openai_provider "github.com/pamudu-ranasinghe/virtualme/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	// Generate returns the model's plain-text completion for a system+user prompt pair.
	Generate(ctx context.Context, system, user string) (string, error)
	// GenerateJSON is Generate with the response constrained to a single JSON object.
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return openai_provider.NewClient(
			cfg.APIKey,
			cfg.BaseURL,
			cfg.Model,
			cfg.Temperature,
			cfg.MaxTokens,
			cfg.Timeout,
		), nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
