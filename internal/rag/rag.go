package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"session-rag/internal/config"
	"session-rag/internal/embedding"
	"session-rag/internal/models"
	"session-rag/internal/parser"
	"session-rag/internal/vectorstore"
)

// Embedder embeds questions and batches of chunk text.
type Embedder interface {
	QueryEmbedder
	EmbedMany(ctx context.Context, texts []string, role embedding.Role) ([][]float32, error)
}

type IngestRequest struct {
	Filename  string
	Data      []byte
	SessionID string
	Password  string
	// Source overrides the configured default source label.
	Source string
}

type IngestResult struct {
	Filename     string `json:"filename"`
	Pages        int    `json:"pages"`
	ChunksStored int    `json:"chunks_stored"`
}

type Answer struct {
	Answer    string            `json:"answer"`
	Citations []models.Citation `json:"citations"`
}

// RAG runs the ingest, query and reset operations over one shared store.
type RAG struct {
	cfg       *config.Config
	chunker   *parser.Chunker
	embedder  Embedder
	store     vectorstore.Store
	retriever *Retriever
	generator *Generator
}

func NewRAG(cfg *config.Config, embedder Embedder, store vectorstore.Store, model llms.Model) (*RAG, error) {
	chunker, err := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return &RAG{
		cfg:       cfg,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		retriever: NewRetriever(embedder, store, &cfg.RAG),
		generator: NewGenerator(model, &cfg.LLM, cfg.RAG.AssistantName),
	}, nil
}

// CheckUpload validates the file name and size before anything is read.
func (r *RAG) CheckUpload(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(r.cfg.Ingest.AllowedExtensions, ext) || !parser.Supported(filename) {
		return fmt.Errorf("%w: %q, allowed: %s", models.ErrUnsupportedFormat, ext,
			strings.Join(r.cfg.Ingest.AllowedExtensions, ", "))
	}
	if size == 0 {
		return fmt.Errorf("%w: file is empty", models.ErrEmptyInput)
	}
	if limit := r.cfg.Ingest.MaxBytes(); size > limit {
		return fmt.Errorf("%w: maximum size is %dMB", models.ErrFileTooLarge, r.cfg.Ingest.MaxFileSizeMB)
	}
	return nil
}

// Chunk extracts and chunks a document without embedding or storing it.
func (r *RAG) Chunk(req IngestRequest) ([]models.Page, []models.Chunk, error) {
	if err := r.CheckUpload(req.Filename, int64(len(req.Data))); err != nil {
		return nil, nil, err
	}

	pages, err := parser.Extract(req.Filename, req.Data, req.Password)
	if err != nil {
		return nil, nil, err
	}

	source := req.Source
	if strings.TrimSpace(source) == "" {
		source = r.cfg.Ingest.DefaultSource
	}
	chunks, err := r.chunker.Chunk(pages, source)
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, models.ErrNoText
	}
	return pages, chunks, nil
}

// Ingest extracts, chunks, embeds and stores a document for one session.
func (r *RAG) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	start := time.Now()
	logger := zerolog.Ctx(ctx).With().
		Str("operation", "ingest").
		Str("session_id", req.SessionID).
		Str("filename", req.Filename).
		Int("size", len(req.Data)).
		Logger()

	result, err := r.ingest(ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("kind", string(models.KindOf(err))).Msg("Ingest failed")
		return IngestResult{}, err
	}

	logger.Info().
		Int("pages", result.Pages).
		Int("chunks_stored", result.ChunksStored).
		Dur("took", time.Since(start)).
		Msg("Document ingested")
	return result, nil
}

func (r *RAG) ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if err := vectorstore.ValidateSession(req.SessionID); err != nil {
		return IngestResult{}, err
	}

	pages, chunks, err := r.Chunk(req)
	if err != nil {
		return IngestResult{}, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := r.embedder.EmbedMany(ctx, texts, embedding.RoleDocument)
	if err != nil {
		return IngestResult{}, err
	}

	stored, err := r.store.Upsert(ctx, chunks, vectors, req.SessionID)
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Filename: req.Filename, Pages: len(pages), ChunksStored: stored}, nil
}

// Query answers question from the session's documents.
func (r *RAG) Query(ctx context.Context, question, sessionID string) (Answer, error) {
	start := time.Now()
	logger := zerolog.Ctx(ctx).With().
		Str("operation", "query").
		Str("session_id", sessionID).
		Int("question_length", len(question)).
		Logger()

	answer, status, err := r.query(ctx, question, sessionID)
	if err != nil {
		logger.Error().Err(err).Str("kind", string(models.KindOf(err))).Msg("Query failed")
		return Answer{}, err
	}

	logger.Info().
		Str("status", status.String()).
		Int("citations", len(answer.Citations)).
		Dur("took", time.Since(start)).
		Msg("Query answered")
	return answer, nil
}

func (r *RAG) query(ctx context.Context, question, sessionID string) (Answer, Status, error) {
	bundle, err := r.retriever.Retrieve(ctx, question, sessionID, r.cfg.RAG.TopK)
	if err != nil {
		return Answer{}, 0, err
	}

	switch bundle.Status {
	case StatusNoDocuments:
		return Answer{Answer: models.NoDocumentsMessage, Citations: []models.Citation{}}, bundle.Status, nil
	case StatusNotRelevant:
		return Answer{Answer: models.NotRelevantMessage, Citations: []models.Citation{}}, bundle.Status, nil
	}

	text, err := r.generator.Generate(ctx, strings.TrimSpace(question), bundle)
	if err != nil {
		return Answer{}, bundle.Status, err
	}
	return Answer{Answer: text, Citations: bundle.Citations}, bundle.Status, nil
}

// Reset deletes the records of sessionID, or of every session when it is empty.
func (r *RAG) Reset(ctx context.Context, sessionID string) (int, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("operation", "reset").
		Str("session_id", sessionID).
		Logger()

	n, err := r.store.Reset(ctx, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("Reset failed")
		return 0, err
	}
	logger.Info().Int("deleted", n).Msg("Store reset")
	return n, nil
}

// Count reports how many records are stored for sessionID, or overall when it is empty.
func (r *RAG) Count(ctx context.Context, sessionID string) (int, error) {
	return r.store.Count(ctx, sessionID)
}
