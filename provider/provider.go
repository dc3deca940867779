package provider

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/newschat/config"
	openai_provider "github.com/mohammad-safakhou/newschat/provider/openai"
)

// Message represents a message in a conversation
type Message = openai_provider.Message

// Provider is the interface the generation and embedding services must
// satisfy. Both are consumed as opaque network services.
type Provider interface {
	// CreateEmbedding maps each text to a fixed-dimension vector.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	// Completion produces the full answer for the given conversation.
	Completion(ctx context.Context, messages []Message) (string, error)
	// StreamCompletion invokes fn for every token as it arrives. Returning
	// an error from fn cancels the upstream call.
	StreamCompletion(ctx context.Context, messages []Message, fn func(token string) error) error
}

// NewProvider creates a provider client based on the configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Type {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return openai_provider.NewClient(openai_provider.Options{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			CompletionModel: cfg.CompletionModel,
			EmbeddingModel:  cfg.EmbeddingModel,
			Temperature:     cfg.Temperature,
			MaxTokens:       cfg.MaxTokens,
			Timeout:         cfg.Timeout,
		}), nil
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.Type)
	}
}
