package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"session-rag/internal/config"
)

var errEmptyResponse = errors.New("model returned no choices")

// NewModel builds the chat model described by llmConfig.
func NewModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().
		Str("provider", llmConfig.Provider).
		Str("base_url", llmConfig.BaseURL).
		Str("model", llmConfig.Model).
		Msg("Creating chat model")

	switch llmConfig.Provider {
	case config.ProviderOllama:
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
			ollama.WithRunnerNumCtx(llmConfig.NumCtx),
		)
	case config.ProviderOpenAI:
		return openai.New(openAIOptions(llmConfig, openai.WithModel(llmConfig.Model))...)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", llmConfig.Provider)
	}
}

// NewEmbeddingClient builds the raw embedding client described by llmConfig.
func NewEmbeddingClient(llmConfig *config.LLMConfig) (embeddings.EmbedderClient, error) {
	log.Debug().
		Str("provider", llmConfig.Provider).
		Str("base_url", llmConfig.BaseURL).
		Str("embedding_model", llmConfig.Model).
		Msg("Creating embedding client")

	switch llmConfig.Provider {
	case config.ProviderOllama:
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	case config.ProviderOpenAI:
		return openai.New(openAIOptions(llmConfig, openai.WithEmbeddingModel(llmConfig.Model))...)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", llmConfig.Provider)
	}
}

func openAIOptions(llmConfig *config.LLMConfig, extra ...openai.Option) []openai.Option {
	opts := []openai.Option{openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer "))}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	return append(opts, extra...)
}

// RetryOptions turns the retry settings into retry-go options bound to ctx.
// One attempt means the call is never repeated.
func RetryOptions(ctx context.Context, llmConfig *config.LLMConfig) []retry.Option {
	attempts := llmConfig.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(llmConfig.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("model", llmConfig.Model).Msg("Retrying model call")
		}),
	}
}

// GenerateContent sends prompt as a single user message and returns the
// trimmed text of the first choice.
func GenerateContent(ctx context.Context, model llms.Model, llmConfig *config.LLMConfig, prompt string, options ...llms.CallOption) (string, error) {
	return retry.DoWithData(func() (string, error) {
		msgContent := []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		}
		res, err := model.GenerateContent(ctx, msgContent, options...)
		if err != nil {
			return "", err
		}
		if res == nil || len(res.Choices) == 0 {
			return "", errEmptyResponse
		}
		return strings.TrimSpace(res.Choices[0].Content), nil
	}, RetryOptions(ctx, llmConfig)...)
}
