package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"session-rag/internal/config"
	"session-rag/internal/embedding"
	"session-rag/internal/models"
	"session-rag/internal/vectorstore"
)

// Status says whether retrieval found usable context.
type Status int

const (
	StatusFound Status = iota
	StatusNoDocuments
	StatusNotRelevant
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNoDocuments:
		return "no_documents"
	case StatusNotRelevant:
		return "not_relevant"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Bundle is the deduplicated context for one question, best match first.
type Bundle struct {
	Status    Status
	Results   []models.QueryResult
	Citations []models.Citation
}

func (b Bundle) Empty() bool { return len(b.Results) == 0 }

// QueryEmbedder embeds a question.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string, role embedding.Role) ([]float32, error)
}

// signatureFunc identifies results that carry the same content.
type signatureFunc func(r models.QueryResult) string

func prefixSignature(r models.QueryResult) string {
	return fmt.Sprintf("%d|%s", r.Metadata.Page, models.Truncate(r.Text, models.DedupPrefixChars))
}

func contentSignature(r models.QueryResult) string {
	sum := sha256.Sum256([]byte(r.Text))
	return fmt.Sprintf("%d|%s", r.Metadata.Page, hex.EncodeToString(sum[:]))
}

type Retriever struct {
	embedder  QueryEmbedder
	store     vectorstore.Store
	topK      int
	threshold float64
	signature signatureFunc
}

func NewRetriever(embedder QueryEmbedder, store vectorstore.Store, ragConfig *config.RAGConfig) *Retriever {
	r := &Retriever{
		embedder:  embedder,
		store:     store,
		topK:      ragConfig.TopK,
		threshold: ragConfig.SimilarityThreshold,
		signature: prefixSignature,
	}
	if r.topK < 1 {
		r.topK = 10
	}
	if ragConfig.Dedup == config.DedupContent {
		r.signature = contentSignature
	}
	return r
}

// ValidateQuestion trims question and rejects anything shorter than the
// minimum length.
func ValidateQuestion(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", models.Validationf("question is empty")
	}
	if utf8.RuneCountInString(question) < models.MinQuestionLength {
		return "", models.Validationf("question must be at least %d characters", models.MinQuestionLength)
	}
	return question, nil
}

// Retrieve finds the session's chunks closest to question. topK below 1
// uses the configured default. "Nothing relevant" is reported through
// Bundle.Status, never as an error.
func (r *Retriever) Retrieve(ctx context.Context, question, sessionID string, topK int) (Bundle, error) {
	question, err := ValidateQuestion(question)
	if err != nil {
		return Bundle{}, err
	}
	if err := vectorstore.ValidateSession(sessionID); err != nil {
		return Bundle{}, err
	}
	if topK < 1 {
		topK = r.topK
	}

	queryVec, err := r.embedder.Embed(ctx, question, embedding.RoleQuery)
	if err != nil {
		return Bundle{}, err
	}

	results, err := r.store.Query(ctx, queryVec, sessionID, topK)
	if err != nil {
		return Bundle{}, err
	}
	logger := zerolog.Ctx(ctx)
	if len(results) == 0 {
		logger.Debug().Str("session_id", sessionID).Msg("No documents for session")
		return Bundle{Status: StatusNoDocuments}, nil
	}

	if r.threshold > 0 {
		best := bestSimilarity(queryVec, results[0])
		if best < r.threshold {
			logger.Debug().
				Float64("similarity", best).
				Float64("threshold", r.threshold).
				Msg("Best match below similarity threshold")
			return Bundle{Status: StatusNotRelevant}, nil
		}
	}

	unique := r.dedup(results)
	if len(unique) == 0 {
		return Bundle{Status: StatusNotRelevant}, nil
	}

	citations := make([]models.Citation, len(unique))
	for i, res := range unique {
		citations[i] = models.Citation{
			Source: res.Metadata.Source,
			Page:   res.Metadata.Page,
			Text:   models.Truncate(res.Text, models.CitationChars),
		}
	}

	logger.Debug().
		Int("results", len(results)).
		Int("unique", len(unique)).
		Msg("Retrieved context")
	return Bundle{Status: StatusFound, Results: unique, Citations: citations}, nil
}

// dedup keeps the first result of every signature, in order.
func (r *Retriever) dedup(results []models.QueryResult) []models.QueryResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]models.QueryResult, 0, len(results))
	for _, res := range results {
		if strings.TrimSpace(res.Text) == "" {
			continue
		}
		sig := r.signature(res)
		if _, ok := seen[sig]; ok {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, res)
	}
	return out
}

// bestSimilarity prefers the cosine of the query and the stored vector and
// falls back to the score reported by the store.
func bestSimilarity(queryVec []float32, best models.QueryResult) float64 {
	if len(best.Embedding) > 0 {
		if sim, err := vectorstore.CosineSimilarity(queryVec, best.Embedding); err == nil {
			return sim
		}
	}
	return float64(best.Score)
}
