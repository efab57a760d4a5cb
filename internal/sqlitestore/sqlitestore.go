package sqlitestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"session-rag/internal/helper"
	"session-rag/internal/models"
	"session-rag/internal/vectorstore"
)

const docsSchema = `
CREATE TABLE IF NOT EXISTS docs (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    source TEXT NOT NULL,
    page INTEGER NOT NULL,
    content TEXT NOT NULL,
    embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS docs_session_id_idx ON docs(session_id);
`

// Store keeps records in a SQLite file and ranks them by cosine similarity
// in process.
type Store struct {
	db *sql.DB
}

var _ vectorstore.Store = (*Store)(nil)

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, vectorstore.StoreError("open sqlite database", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(docsSchema); err != nil {
		db.Close()
		return nil, vectorstore.StoreError("create schema", err)
	}
	log.Debug().Str("path", path).Msg("Opened sqlite store")
	return &Store{db: db}, nil
}

func (s *Store) Upsert(ctx context.Context, chunks []models.Chunk, embeddings [][]float32, sessionID string) (int, error) {
	records, err := vectorstore.BuildRecords(chunks, embeddings, sessionID)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, vectorstore.StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO docs(id, session_id, source, page, content, embedding) VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, vectorstore.StoreError("prepare insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx, r.ID, r.Metadata.SessionID, r.Metadata.Source, r.Metadata.Page, r.Text, vectorstore.EncodeEmbedding(r.Embedding))
		if err != nil {
			return 0, vectorstore.StoreError("insert document", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, vectorstore.StoreError("commit", err)
	}
	return len(records), nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, sessionID string, topK int) ([]models.QueryResult, error) {
	if err := vectorstore.ValidateQuery(embedding, sessionID, topK); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, source, page, content, embedding FROM docs WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, vectorstore.StoreError("search documents", err)
	}
	defer rows.Close()

	out := []models.QueryResult{}
	for rows.Next() {
		var (
			r    models.QueryResult
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Metadata.Source, &r.Metadata.Page, &r.Text, &blob); err != nil {
			return nil, vectorstore.StoreError("scan document", err)
		}
		r.Metadata.SessionID = sessionID
		if r.Embedding, err = vectorstore.DecodeEmbedding(blob); err != nil {
			return nil, vectorstore.StoreError("decode embedding", err)
		}
		score, err := vectorstore.CosineSimilarity(embedding, r.Embedding)
		if err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("Skipping document that cannot be compared")
			continue
		}
		r.Score = float32(score)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, vectorstore.StoreError("read documents", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *Store) Reset(ctx context.Context, sessionID string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if sessionID == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM docs`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM docs WHERE session_id = ?`, sessionID)
	}
	if err != nil {
		return 0, vectorstore.StoreError("delete documents", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, vectorstore.StoreError("count deleted documents", err)
	}
	return int(n), nil
}

func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	var err error
	if sessionID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs WHERE session_id = ?`, sessionID).Scan(&n)
	}
	if err != nil {
		return 0, vectorstore.StoreError("count documents", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
