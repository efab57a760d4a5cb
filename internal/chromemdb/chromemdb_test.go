package chromemdb

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"session-rag/internal/config"
	"session-rag/internal/models"
)

func newTestStore(t *testing.T, inMemory bool) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(&config.StoreConfig{
		Path:          t.TempDir(),
		Collection:    "tax_documents",
		InMemory:      inMemory,
		EncryptionKey: strings.Repeat("k", 32),
	})
	if err != nil {
		t.Fatalf("NewVectorDBManager failed: %v", err)
	}
	return m
}

func seed(t *testing.T, m *VectorDBManager, sessionID string, texts ...string) {
	t.Helper()
	chunks := make([]models.Chunk, len(texts))
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{Text: text, Page: i + 1, Source: "return.pdf"}
		embeddings[i] = []float32{float32(i + 1), 1, 0}
	}
	n, err := m.Upsert(context.Background(), chunks, embeddings, sessionID)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if n != len(texts) {
		t.Fatalf("Upsert stored %d records, want %d", n, len(texts))
	}
}

func TestUpsertAndQuery(t *testing.T) {
	m := newTestStore(t, true)
	ctx := context.Background()
	seed(t, m, "s1", "income 500000", "rent 12000", "deduction 800")

	results, err := m.Query(ctx, []float32{1, 1, 0}, "s1", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want topK clamped to 3", len(results))
	}
	if results[0].Text != "income 500000" || results[0].Metadata.Page != 1 {
		t.Errorf("best match = %+v", results[0])
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not ordered by similarity: %v > %v", results[i].Score, results[i-1].Score)
		}
	}
	if results[0].Metadata.SessionID != "s1" || results[0].Metadata.Source != "return.pdf" {
		t.Errorf("metadata = %+v", results[0].Metadata)
	}

	top1, err := m.Query(ctx, []float32{1, 1, 0}, "s1", 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(top1) != 1 {
		t.Errorf("got %d results for topK 1", len(top1))
	}
}

func TestSessionIsolation(t *testing.T) {
	m := newTestStore(t, true)
	ctx := context.Background()
	seed(t, m, "alice", "alice income")
	seed(t, m, "bob", "bob income", "bob rent")

	results, err := m.Query(ctx, []float32{1, 1, 0}, "alice", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || results[0].Metadata.SessionID != "alice" {
		t.Errorf("alice saw %+v", results)
	}

	empty, err := m.Query(ctx, []float32{1, 1, 0}, "carol", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("unknown session should give an empty slice, got %v", empty)
	}
}

func TestReset(t *testing.T) {
	m := newTestStore(t, false)
	ctx := context.Background()
	seed(t, m, "alice", "a1", "a2")
	seed(t, m, "bob", "b1")

	n, err := m.Reset(ctx, "alice")
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Reset deleted %d, want 2", n)
	}
	if n, _ := m.Count(ctx, "bob"); n != 1 {
		t.Errorf("bob has %d records after resetting alice", n)
	}

	again, err := m.Reset(ctx, "alice")
	if err != nil || again != 0 {
		t.Errorf("second Reset = %d, %v, want 0, nil", again, err)
	}

	all, err := m.Reset(ctx, "")
	if err != nil || all != 1 {
		t.Errorf("full Reset = %d, %v, want 1, nil", all, err)
	}
	if total, _ := m.Count(ctx, ""); total != 0 {
		t.Errorf("store has %d records after full reset", total)
	}
}

func TestQueryValidation(t *testing.T) {
	m := newTestStore(t, true)
	ctx := context.Background()
	for _, tc := range []struct {
		emb     []float32
		session string
		topK    int
	}{
		{nil, "s", 1},
		{[]float32{1}, "", 1},
		{[]float32{1}, "s", 0},
	} {
		if _, err := m.Query(ctx, tc.emb, tc.session, tc.topK); !errors.Is(err, models.ErrValidation) {
			t.Errorf("Query(%v, %q, %d) error = %v", tc.emb, tc.session, tc.topK, err)
		}
	}
	if _, err := m.Upsert(ctx, []models.Chunk{{Text: "x", Page: 1}}, nil, "s"); !errors.Is(err, models.ErrLengthMismatch) {
		t.Errorf("Upsert mismatch error = %v", err)
	}
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.StoreConfig{Path: dir, Collection: "docs"}
	m, err := NewVectorDBManager(cfg)
	if err != nil {
		t.Fatalf("NewVectorDBManager failed: %v", err)
	}
	seed(t, m, "s1", "kept on disk")

	reopened, err := NewVectorDBManager(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if n, _ := reopened.Count(context.Background(), "s1"); n != 1 {
		t.Errorf("reopened store has %d records, want 1", n)
	}
}

func TestExportImport(t *testing.T) {
	m := newTestStore(t, true)
	ctx := context.Background()

	if _, err := m.Export(ctx); !errors.Is(err, models.ErrEmptyInput) {
		t.Errorf("Export of an empty store error = %v", err)
	}

	seed(t, m, "s1", "one", "two")
	path, err := m.Export(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}

	if _, err := m.Reset(ctx, ""); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := m.Import(ctx); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n, _ := m.Count(ctx, "s1"); n != 2 {
		t.Errorf("imported %d records, want 2", n)
	}
}

func TestExportRequiresKey(t *testing.T) {
	m, err := NewVectorDBManager(&config.StoreConfig{Path: t.TempDir(), Collection: "c", InMemory: true})
	if err != nil {
		t.Fatalf("NewVectorDBManager failed: %v", err)
	}
	if _, err := m.Export(context.Background()); err == nil {
		t.Error("Export without a key should fail")
	}
}
