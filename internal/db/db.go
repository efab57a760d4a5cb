package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"session-rag/internal/config"
	"session-rag/internal/models"
	"session-rag/internal/vectorstore"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string          `bun:"id,pk"`
	SessionID     string          `bun:"session_id,notnull"`
	Source        string          `bun:"source,notnull"`
	Page          int             `bun:"page,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`

	Score float32 `bun:"score,scanonly"`
}

// Store is the postgres + pgvector implementation of vectorstore.Store.
type Store struct {
	db         *bun.DB
	table      string
	vectorSize int
}

var _ vectorstore.Store = (*Store)(nil)

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver. sslmode
// defaults to disable when the dsn does not set it.
func ConnectDB(dbConfig *config.DatabaseConfig) (*sql.DB, error) {
	dsn := dbConfig.DSN
	if !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=disable"
	}

	switch dbConfig.Driver {
	case config.PGDriverPQ:
		dsn, err := withPassword(dsn, dbConfig.Password)
		if err != nil {
			return nil, err
		}
		return sql.Open("postgres", dsn)
	default:
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if dbConfig.Password != "" {
			opts = append(opts, pgdriver.WithPassword(dbConfig.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	}
}

func withPassword(dsn, password string) (string, error) {
	if password == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid database dsn: %w", err)
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, password)
	return u.String(), nil
}

// NewStore connects, prepares the schema and returns the store.
func NewStore(ctx context.Context, dbConfig *config.DatabaseConfig, vectorSize int) (*Store, error) {
	sqldb, err := ConnectDB(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &Store{db: NewDB(sqldb, dbConfig.Debug), table: dbConfig.Table, vectorSize: vectorSize}
	if err := s.InitDB(ctx); err != nil {
		sqldb.Close()
		return nil, err
	}
	log.Debug().Str("table", pq.QuoteIdentifier(s.table)).Str("driver", dbConfig.Driver).Msg("Postgres store ready")
	return s, nil
}

// InitDB creates the vector extension, the table and its indexes.
func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return vectorstore.StoreError("create vector extension", err)
	}

	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ? (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	source TEXT NOT NULL,
	page INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding vector(?) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
)`, bun.Ident(s.table), s.vectorSize)
	if err != nil {
		return vectorstore.StoreError("create table", err)
	}

	_, err = s.db.NewCreateIndex().
		Model((*Document)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		Index(s.table + "_session_id_idx").
		Column("session_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return vectorstore.StoreError("create session index", err)
	}

	_, err = s.db.NewCreateIndex().
		Model((*Document)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		Index(s.table + "_embedding_idx").
		ColumnExpr("embedding vector_cosine_ops").
		Using("hnsw").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return vectorstore.StoreError("create embedding index", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, chunks []models.Chunk, embeddings [][]float32, sessionID string) (int, error) {
	records, err := vectorstore.BuildRecords(chunks, embeddings, sessionID)
	if err != nil {
		return 0, err
	}

	docs := make([]Document, len(records))
	for i, r := range records {
		if len(r.Embedding) != s.vectorSize {
			return 0, fmt.Errorf("%w: embedding %d has %d dimensions, column has %d",
				models.ErrStore, i, len(r.Embedding), s.vectorSize)
		}
		docs[i] = Document{
			ID:        r.ID,
			SessionID: r.Metadata.SessionID,
			Source:    r.Metadata.Source,
			Page:      r.Metadata.Page,
			Content:   r.Text,
			Embedding: pgvector.NewVector(r.Embedding),
		}
	}

	_, err = s.db.NewInsert().
		Model(&docs).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		Exec(ctx)
	if err != nil {
		return 0, vectorstore.StoreError("insert documents", err)
	}
	return len(docs), nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, sessionID string, topK int) ([]models.QueryResult, error) {
	if err := vectorstore.ValidateQuery(embedding, sessionID, topK); err != nil {
		return nil, err
	}

	query := pgvector.NewVector(embedding)
	var docs []Document
	err := s.db.NewSelect().
		Model(&docs).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		Column("id", "session_id", "source", "page", "content", "embedding").
		ColumnExpr("1 - (embedding <=> ?) AS score", query).
		Where("session_id = ?", sessionID).
		OrderExpr("embedding <=> ?", query).
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, vectorstore.StoreError("search documents", err)
	}

	out := make([]models.QueryResult, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.QueryResult{
			ID:   d.ID,
			Text: d.Content,
			Metadata: models.Metadata{
				Page:      d.Page,
				Source:    d.Source,
				SessionID: d.SessionID,
			},
			Score:     d.Score,
			Embedding: d.Embedding.Slice(),
		})
	}
	return out, nil
}

func (s *Store) Reset(ctx context.Context, sessionID string) (int, error) {
	q := s.db.NewDelete().
		Model((*Document)(nil)).
		ModelTableExpr("? AS d", bun.Ident(s.table))
	if sessionID == "" {
		q = q.Where("TRUE")
	} else {
		q = q.Where("session_id = ?", sessionID)
	}

	res, err := q.Exec(ctx)
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
	q := s.db.NewSelect().
		Model((*Document)(nil)).
		ModelTableExpr("? AS d", bun.Ident(s.table))
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, vectorstore.StoreError("count documents", err)
	}
	return n, nil
}

// DropDocuments removes the table.
func (s *Store) DropDocuments(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS ?", bun.Ident(s.table)); err != nil {
		return vectorstore.StoreError("drop table", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
