package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"

	"session-rag/internal/embedding"
	"session-rag/internal/models"
)

const bagDims = 64

// bagOfWords is an embedding.Provider that hashes words into a fixed number
// of buckets, so texts sharing words end up close to each other.
type bagOfWords struct{}

func (bagOfWords) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	text = strings.TrimPrefix(text, models.DocumentPrefix)
	text = strings.TrimPrefix(text, models.QueryPrefix)
	vec := make([]float32, bagDims+1)
	vec[bagDims] = 0.01
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 3 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%bagDims]++
	}
	return vec, nil
}

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(context.Context, string, embedding.Role) ([]float32, error) {
	return f.vec, f.err
}

// fakeStore returns canned results and records the last query.
type fakeStore struct {
	results   []models.QueryResult
	err       error
	lastTopK  int
	lastQuery string
}

func (s *fakeStore) Upsert(context.Context, []models.Chunk, [][]float32, string) (int, error) {
	return 0, errors.New("not implemented")
}

func (s *fakeStore) Query(_ context.Context, _ []float32, sessionID string, topK int) ([]models.QueryResult, error) {
	s.lastTopK, s.lastQuery = topK, sessionID
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > topK {
		return s.results[:topK], nil
	}
	return s.results, nil
}

func (s *fakeStore) Reset(context.Context, string) (int, error) { return 0, nil }
func (s *fakeStore) Count(context.Context, string) (int, error) { return len(s.results), nil }
func (s *fakeStore) Close() error                               { return nil }

// recordingModel is an llms.Model that remembers prompts and call options.
type recordingModel struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
	opts    llms.CallOptions
}

func (m *recordingModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range options {
		o(&m.opts)
	}
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  " + m.answer + "\n"}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *recordingModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
