package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"session-rag/internal/models"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors", "rag.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestUpsertQuery(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	chunks := []models.Chunk{
		{Text: "income 500000", Page: 1, Source: "a.pdf"},
		{Text: "rent 12000", Page: 2},
		{Text: "deduction 800", Page: 3},
	}
	embeddings := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	n, err := s.Upsert(ctx, chunks, embeddings, "alice")
	if err != nil || n != 3 {
		t.Fatalf("Upsert = %d, %v", n, err)
	}
	if _, err := s.Upsert(ctx, chunks[:1], embeddings[:1], "bob"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := s.Query(ctx, []float32{0, 1}, "alice", 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Text != "rent 12000" || results[1].Text != "deduction 800" {
		t.Errorf("results = %+v", results)
	}
	if results[0].Metadata.Source != models.DefaultSource || results[0].Metadata.SessionID != "alice" {
		t.Errorf("metadata = %+v", results[0].Metadata)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("scores out of order: %v < %v", results[0].Score, results[1].Score)
	}

	none, err := s.Query(ctx, []float32{0, 1}, "carol", 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("unknown session gave %v, want an empty slice", none)
	}
}

func TestResetAndCount(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()

	chunk := []models.Chunk{{Text: "x", Page: 1}}
	for _, session := range []string{"alice", "alice", "bob"} {
		if _, err := s.Upsert(ctx, chunk, [][]float32{{1}}, session); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	if n, err := s.Reset(ctx, "alice"); err != nil || n != 2 {
		t.Errorf("Reset(alice) = %d, %v, want 2", n, err)
	}
	if n, err := s.Reset(ctx, "alice"); err != nil || n != 0 {
		t.Errorf("second Reset(alice) = %d, %v, want 0", n, err)
	}
	if n, _ := s.Count(ctx, "bob"); n != 1 {
		t.Errorf("Count(bob) = %d", n)
	}

	s.Close()
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if n, _ := reopened.Count(ctx, ""); n != 1 {
		t.Errorf("reopened store has %d records, want 1", n)
	}
	if n, err := reopened.Reset(ctx, ""); err != nil || n != 1 {
		t.Errorf("Reset(all) = %d, %v", n, err)
	}
}

func TestValidation(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Query(ctx, nil, "s", 1); !errors.Is(err, models.ErrValidation) {
		t.Errorf("empty embedding error = %v", err)
	}
	if _, err := s.Upsert(ctx, nil, nil, "s"); !errors.Is(err, models.ErrEmptyInput) {
		t.Errorf("empty upsert error = %v", err)
	}
	if _, err := s.Upsert(ctx, []models.Chunk{{Text: "x", Page: 1}}, [][]float32{{1}}, ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("missing session error = %v", err)
	}
}
