package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"session-rag/internal/helper"
	"session-rag/internal/models"
)

// Store keeps embedded chunks partitioned by session.
type Store interface {
	// Upsert stores one record per (chunk, embedding) pair and returns how
	// many were written.
	Upsert(ctx context.Context, chunks []models.Chunk, embeddings [][]float32, sessionID string) (int, error)
	// Query returns up to topK records of the session, most similar first.
	Query(ctx context.Context, embedding []float32, sessionID string, topK int) ([]models.QueryResult, error)
	// Reset deletes the records of sessionID, or every record when it is empty.
	Reset(ctx context.Context, sessionID string) (int, error)
	Count(ctx context.Context, sessionID string) (int, error)
	Close() error
}

// BuildRecords pairs chunks with their embeddings and assigns fresh ids.
// Chunks with blank text or a nil embedding are skipped.
func BuildRecords(chunks []models.Chunk, embeddings [][]float32, sessionID string) ([]models.Record, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to store", models.ErrEmptyInput)
	}
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("%w: %d chunks, %d embeddings", models.ErrLengthMismatch, len(chunks), len(embeddings))
	}
	if err := ValidateSession(sessionID); err != nil {
		return nil, err
	}

	ids, err := helper.GenerateUUIDs(len(chunks))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}

	records := make([]models.Record, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk.Text) == "" || len(embeddings[i]) == 0 {
			log.Warn().Int("index", i).Int("page", chunk.Page).Msg("Skipping chunk without text or embedding")
			continue
		}
		meta, err := models.NewMetadata(chunk.Page, chunk.Source, sessionID)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		records = append(records, models.Record{
			ID:        ids[i],
			Text:      chunk.Text,
			Embedding: embeddings[i],
			Metadata:  meta,
		})
	}
	if len(records) == 0 {
		return nil, models.Validationf("no valid chunks to store")
	}
	return records, nil
}

// ValidateSession rejects blank session ids.
func ValidateSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return models.Validationf("session id is required")
	}
	return nil
}

// ValidateQuery checks the arguments shared by every Query implementation.
func ValidateQuery(embedding []float32, sessionID string, topK int) error {
	if len(embedding) == 0 {
		return models.Validationf("query embedding is empty")
	}
	if topK < 1 {
		return models.Validationf("top k must be at least 1, got %d", topK)
	}
	return ValidateSession(sessionID)
}

// StoreError wraps err as a store failure for op.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", models.ErrStore, op, err)
}
