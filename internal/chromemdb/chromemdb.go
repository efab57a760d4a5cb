package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"session-rag/internal/config"
	"session-rag/internal/helper"
	"session-rag/internal/models"
	"session-rag/internal/vectorstore"
)

const (
	compress = false

	// sessionSep joins the base collection name and the session id.
	sessionSep = "/"
)

// VectorDBManager stores every session in its own chromem collection named
// "<collection>/<session id>".
type VectorDBManager struct {
	mu            sync.RWMutex
	db            *chromem.DB
	dbPath        string
	name          string
	encryptionKey string
	filePath      string
}

var _ vectorstore.Store = (*VectorDBManager)(nil)

// NewVectorDBManager opens a persistent database under storeConfig.Path, or
// an in-memory one when InMemory is set.
func NewVectorDBManager(storeConfig *config.StoreConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	if storeConfig.InMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(storeConfig.Path); err != nil {
			return nil, err
		}
		var err error
		db, err = chromem.NewPersistentDB(storeConfig.Path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	log.Debug().
		Str("path", storeConfig.Path).
		Str("collection", storeConfig.Collection).
		Bool("in_memory", storeConfig.InMemory).
		Msg("Opened chromem store")

	return &VectorDBManager{
		db:            db,
		dbPath:        storeConfig.Path,
		name:          storeConfig.Collection,
		encryptionKey: storeConfig.EncryptionKey,
		filePath:      filepath.Join(storeConfig.Path, storeConfig.Collection+".chromem"),
	}, nil
}

func (m *VectorDBManager) collectionName(sessionID string) string {
	return m.name + sessionSep + sessionID
}

// sessionCollections lists the collections owned by this store.
func (m *VectorDBManager) sessionCollections() map[string]*chromem.Collection {
	out := make(map[string]*chromem.Collection)
	for name, c := range m.db.ListCollections() {
		if strings.HasPrefix(name, m.name+sessionSep) {
			out[name] = c
		}
	}
	return out
}

func (m *VectorDBManager) Upsert(ctx context.Context, chunks []models.Chunk, embeddings [][]float32, sessionID string) (int, error) {
	records, err := vectorstore.BuildRecords(chunks, embeddings, sessionID)
	if err != nil {
		return 0, err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Metadata:  r.Metadata.Map(),
			Embedding: r.Embedding,
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.db.GetOrCreateCollection(m.collectionName(sessionID), nil, nil)
	if err != nil {
		return 0, vectorstore.StoreError("create/get collection", err)
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, vectorstore.StoreError("add documents", err)
	}
	return len(docs), nil
}

func (m *VectorDBManager) Query(ctx context.Context, embedding []float32, sessionID string, topK int) ([]models.QueryResult, error) {
	if err := vectorstore.ValidateQuery(embedding, sessionID, topK); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.db.GetCollection(m.collectionName(sessionID), nil)
	if c == nil {
		return []models.QueryResult{}, nil
	}
	n := min(topK, c.Count())
	if n == 0 {
		return []models.QueryResult{}, nil
	}

	results, err := c.QueryEmbedding(ctx, embedding, n, models.SessionFilter(sessionID), nil)
	if err != nil {
		return nil, vectorstore.StoreError("query by similarity", err)
	}

	out := make([]models.QueryResult, 0, len(results))
	for _, r := range results {
		meta, err := models.MetadataFromMap(r.Metadata)
		if err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("Skipping result with invalid metadata")
			continue
		}
		out = append(out, models.QueryResult{
			ID:        r.ID,
			Text:      r.Content,
			Metadata:  meta,
			Score:     r.Similarity,
			Embedding: r.Embedding,
		})
	}
	return out, nil
}

func (m *VectorDBManager) Reset(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var targets map[string]*chromem.Collection
	if sessionID == "" {
		targets = m.sessionCollections()
	} else {
		name := m.collectionName(sessionID)
		targets = map[string]*chromem.Collection{}
		if c := m.db.GetCollection(name, nil); c != nil {
			targets[name] = c
		}
	}

	deleted := 0
	for name, c := range targets {
		n := c.Count()
		if err := m.db.DeleteCollection(name); err != nil {
			return deleted, vectorstore.StoreError("drop collection", err)
		}
		deleted += n
	}
	return deleted, nil
}

func (m *VectorDBManager) Count(_ context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sessionID != "" {
		if c := m.db.GetCollection(m.collectionName(sessionID), nil); c != nil {
			return c.Count(), nil
		}
		return 0, nil
	}
	total := 0
	for _, c := range m.sessionCollections() {
		total += c.Count()
	}
	return total, nil
}

// Close is a no-op; a persistent chromem database writes through on every change.
func (m *VectorDBManager) Close() error { return nil }

// Export writes an encrypted snapshot of every session to <path>/<collection>.chromem.
func (m *VectorDBManager) Export(ctx context.Context) (string, error) {
	if m.encryptionKey == "" {
		return "", fmt.Errorf("encryption key is required")
	}
	if m.dbPath == "" {
		return "", fmt.Errorf("db path is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0)
	for name := range m.sessionCollections() {
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: nothing to export", models.ErrEmptyInput)
	}

	log.Debug().
		Str("file_path", m.filePath).
		Int("collections", len(names)).
		Bool("compress", compress).
		Msg("Exporting snapshot")
	if err := m.db.ExportToFile(m.filePath, compress, m.encryptionKey, names...); err != nil {
		return "", vectorstore.StoreError("export database", err)
	}
	return m.filePath, nil
}

// Import loads a snapshot written by Export. Sessions in the snapshot replace
// sessions of the same id.
func (m *VectorDBManager) Import(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey); err != nil {
		return vectorstore.StoreError("import database", err)
	}
	return nil
}
