package api

import (
	"context"

	"session-rag/internal/rag"
)

type RAGService interface {
	CheckUpload(filename string, size int64) error
	Ingest(ctx context.Context, req rag.IngestRequest) (rag.IngestResult, error)
	Query(ctx context.Context, question, sessionID string) (rag.Answer, error)
	Reset(ctx context.Context, sessionID string) (int, error)
}
