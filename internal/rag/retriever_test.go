package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"session-rag/internal/config"
	"session-rag/internal/models"
)

func result(page int, text string, score float32) models.QueryResult {
	return models.QueryResult{
		Text:     text,
		Score:    score,
		Metadata: models.Metadata{Page: page, Source: "return.pdf", SessionID: "s1"},
	}
}

func newTestRetriever(store *fakeStore, cfg config.RAGConfig) *Retriever {
	return NewRetriever(fixedEmbedder{vec: []float32{1, 0}}, store, &cfg)
}

func TestRetrieveFound(t *testing.T) {
	long := strings.Repeat("x", 400)
	store := &fakeStore{results: []models.QueryResult{
		result(2, "Total income is 500000.", 0.9),
		result(3, long, 0.8),
	}}
	r := newTestRetriever(store, config.RAGConfig{TopK: 10, Dedup: config.DedupPrefix})

	bundle, err := r.Retrieve(context.Background(), "  What is my income?  ", "s1", 0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if bundle.Status != StatusFound {
		t.Fatalf("status = %v", bundle.Status)
	}
	if store.lastTopK != 10 || store.lastQuery != "s1" {
		t.Errorf("store queried with topK %d session %q", store.lastTopK, store.lastQuery)
	}
	if len(bundle.Citations) != 2 {
		t.Fatalf("got %d citations", len(bundle.Citations))
	}
	if c := bundle.Citations[0]; c.Page != 2 || c.Source != "return.pdf" || c.Text != "Total income is 500000." {
		t.Errorf("first citation = %+v", c)
	}
	if n := utf8.RuneCountInString(bundle.Citations[1].Text); n != models.CitationChars {
		t.Errorf("citation text has %d characters, want %d", n, models.CitationChars)
	}
}

func TestRetrieveDedup(t *testing.T) {
	head := strings.Repeat("a", models.DedupPrefixChars)
	results := []models.QueryResult{
		result(1, head+" first tail", 0.9),
		result(1, head+" second tail", 0.8),
		result(2, head+" first tail", 0.7),
		result(1, "   ", 0.6),
	}

	tests := []struct {
		dedup string
		want  []string
	}{
		{config.DedupPrefix, []string{"1:first", "2:first"}},
		{config.DedupContent, []string{"1:first", "1:second", "2:first"}},
	}
	for _, tt := range tests {
		t.Run(tt.dedup, func(t *testing.T) {
			r := newTestRetriever(&fakeStore{results: results}, config.RAGConfig{TopK: 10, Dedup: tt.dedup})
			bundle, err := r.Retrieve(context.Background(), "what about a?", "s1", 10)
			if err != nil {
				t.Fatalf("Retrieve failed: %v", err)
			}
			var got []string
			for _, res := range bundle.Results {
				word := strings.Fields(strings.TrimPrefix(res.Text, head))[0]
				got = append(got, strings.Join([]string{string(rune('0' + res.Metadata.Page)), word}, ":"))
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("kept %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetrieveNoDocuments(t *testing.T) {
	r := newTestRetriever(&fakeStore{}, config.RAGConfig{TopK: 5})
	bundle, err := r.Retrieve(context.Background(), "what is my income?", "s1", 0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if bundle.Status != StatusNoDocuments || !bundle.Empty() {
		t.Errorf("bundle = %+v", bundle)
	}
}

func TestRetrieveNotRelevant(t *testing.T) {
	ctx := context.Background()

	far := result(1, "unrelated", 0.2)
	far.Embedding = []float32{0, 1}
	r := newTestRetriever(&fakeStore{results: []models.QueryResult{far}}, config.RAGConfig{TopK: 5, SimilarityThreshold: 0.55})
	bundle, err := r.Retrieve(ctx, "what is my income?", "s1", 0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if bundle.Status != StatusNotRelevant {
		t.Errorf("status = %v, want not relevant", bundle.Status)
	}

	r = newTestRetriever(&fakeStore{results: []models.QueryResult{far}}, config.RAGConfig{TopK: 5})
	if bundle, _ := r.Retrieve(ctx, "what is my income?", "s1", 0); bundle.Status != StatusFound {
		t.Errorf("threshold 0 must disable the gate, status = %v", bundle.Status)
	}

	onlyBlank := []models.QueryResult{result(1, "  ", 0.9)}
	r = newTestRetriever(&fakeStore{results: onlyBlank}, config.RAGConfig{TopK: 5})
	if bundle, _ := r.Retrieve(ctx, "what is my income?", "s1", 0); bundle.Status != StatusNotRelevant {
		t.Errorf("no surviving results should be not relevant, status = %v", bundle.Status)
	}
}

func TestRetrieveThresholdUsesStoredVector(t *testing.T) {
	near := result(1, "income", 0)
	near.Embedding = []float32{0.9, 0.1}
	r := newTestRetriever(&fakeStore{results: []models.QueryResult{near}}, config.RAGConfig{TopK: 5, SimilarityThreshold: 0.55})
	bundle, err := r.Retrieve(context.Background(), "what is my income?", "s1", 0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if bundle.Status != StatusFound {
		t.Errorf("status = %v, want found", bundle.Status)
	}
}

func TestRetrieveErrors(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(&fakeStore{}, config.RAGConfig{TopK: 5})

	for _, q := range []string{"", "   ", "ab", " a "} {
		if _, err := r.Retrieve(ctx, q, "s1", 0); !errors.Is(err, models.ErrValidation) {
			t.Errorf("Retrieve(%q) error = %v, want validation error", q, err)
		}
	}
	if _, err := r.Retrieve(ctx, "what is my income?", "", 0); !errors.Is(err, models.ErrValidation) {
		t.Errorf("missing session error = %v", err)
	}

	embedErr := NewRetriever(fixedEmbedder{err: models.ErrEmbedding}, &fakeStore{}, &config.RAGConfig{})
	if _, err := embedErr.Retrieve(ctx, "what is my income?", "s1", 0); !errors.Is(err, models.ErrEmbedding) {
		t.Errorf("embedding failure error = %v", err)
	}

	storeErr := newTestRetriever(&fakeStore{err: models.ErrStore}, config.RAGConfig{TopK: 5})
	if _, err := storeErr.Retrieve(ctx, "what is my income?", "s1", 0); !errors.Is(err, models.ErrStore) {
		t.Errorf("store failure error = %v", err)
	}
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{
		StatusFound:       "found",
		StatusNoDocuments: "no_documents",
		StatusNotRelevant: "not_relevant",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
