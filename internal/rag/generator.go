package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"session-rag/internal/config"
	"session-rag/internal/llmservice"
	"session-rag/internal/models"
)

// Generator answers a question from a retrieved bundle.
type Generator struct {
	model     llms.Model
	llmConfig *config.LLMConfig
	assistant string
}

func NewGenerator(model llms.Model, llmConfig *config.LLMConfig, assistantName string) *Generator {
	if strings.TrimSpace(assistantName) == "" {
		assistantName = models.DefaultAssistantName
	}
	return &Generator{model: model, llmConfig: llmConfig, assistant: assistantName}
}

// BuildPrompt renders the answer prompt with one "[Page N] text" block per result.
func BuildPrompt(assistantName, question string, results []models.QueryResult) string {
	var context strings.Builder
	for _, r := range results {
		fmt.Fprintf(&context, models.ContextBlockTemplate, r.Metadata.Page, r.Text)
	}
	return fmt.Sprintf(models.AnswerPromptTemplate, assistantName, context.String(), question)
}

// Generate returns the model's answer. An empty bundle short-circuits to the
// fixed "no information" answer without calling the model.
func (g *Generator) Generate(ctx context.Context, question string, bundle Bundle) (string, error) {
	if bundle.Empty() {
		return models.NoInformationMessage, nil
	}

	prompt := BuildPrompt(g.assistant, question, bundle.Results)
	answer, err := llmservice.GenerateContent(ctx, g.model, g.llmConfig, prompt,
		llms.WithTemperature(0),
		llms.WithTopP(g.llmConfig.TopP),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	return answer, nil
}
