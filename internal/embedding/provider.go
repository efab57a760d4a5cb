package embedding

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
	"github.com/tmc/langchaingo/embeddings"

	"session-rag/internal/config"
	"session-rag/internal/llmservice"
)

// Provider turns one prepared text into a vector.
type Provider interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewProvider builds a langchaingo embedder for the configured model and wraps
// it with the configured retry policy.
func NewProvider(llmConfig *config.LLMConfig) (Provider, error) {
	client, err := llmservice.NewEmbeddingClient(llmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	return newRetryProvider(client, llmConfig)
}

func newRetryProvider(client embeddings.EmbedderClient, llmConfig *config.LLMConfig) (Provider, error) {
	embedder, err := embeddings.NewEmbedder(guardClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &retryProvider{embedder: embedder, cfg: llmConfig}, nil
}

// guardClient rejects responses that do not carry one vector per input,
// which EmbedQuery would otherwise index into.
func guardClient(client embeddings.EmbedderClient) embeddings.EmbedderClient {
	return embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		out, err := client.CreateEmbedding(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(out), len(texts))
		}
		return out, nil
	})
}

type retryProvider struct {
	embedder *embeddings.EmbedderImpl
	cfg      *config.LLMConfig
}

func (p *retryProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return retry.DoWithData(func() ([]float32, error) {
		return p.embedder.EmbedQuery(ctx, text)
	}, llmservice.RetryOptions(ctx, p.cfg)...)
}
