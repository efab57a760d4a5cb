package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"session-rag/internal/models"
)

// Role selects the prefix the embedding model expects.
type Role int

const (
	RoleDocument Role = iota
	RoleQuery
)

func (r Role) String() string {
	if r == RoleQuery {
		return "query"
	}
	return "document"
}

// Prefix is the marker prepended to text of this role.
func (r Role) Prefix() string {
	if r == RoleQuery {
		return models.QueryPrefix
	}
	return models.DocumentPrefix
}

const defaultWorkers = 4

// Embedder prepares text for the embedding model and calls the provider.
type Embedder struct {
	provider Provider
	workers  int
	maxChars int
	cache    *cache.Cache
}

type Option func(*Embedder)

// WithWorkers caps the number of concurrent provider calls in EmbedMany.
func WithWorkers(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueryCache keeps query embeddings for ttl. Zero disables the cache.
func WithQueryCache(ttl time.Duration) Option {
	return func(e *Embedder) {
		if ttl > 0 {
			e.cache = cache.New(ttl, 2*ttl)
		}
	}
}

// WithMaxChars overrides the truncation length.
func WithMaxChars(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.maxChars = n
		}
	}
}

func NewEmbedder(provider Provider, opts ...Option) *Embedder {
	e := &Embedder{
		provider: provider,
		workers:  defaultWorkers,
		maxChars: models.MaxEmbedChars,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// clean is the normalization applied before embedding. Text that cleans to
// "" cannot be embedded.
func clean(text string) string {
	return strings.TrimSpace(text)
}

// Prepare trims text, cuts it to maxChars characters and adds the role
// prefix. The text itself is never rewritten, so a document that happens to
// start with a prefix keeps it.
func Prepare(text string, role Role, maxChars int) (string, error) {
	text = clean(text)
	if text == "" {
		return "", fmt.Errorf("%w: text is empty", models.ErrEmbedding)
	}
	return role.Prefix() + models.Truncate(text, maxChars), nil
}

// Embed returns the vector for one text.
func (e *Embedder) Embed(ctx context.Context, text string, role Role) ([]float32, error) {
	prepared, err := Prepare(text, role, e.maxChars)
	if err != nil {
		return nil, err
	}

	if role == RoleQuery && e.cache != nil {
		if v, ok := e.cache.Get(prepared); ok {
			return v.([]float32), nil
		}
	}

	vec, err := e.provider.EmbedQuery(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty vector", models.ErrEmbedding)
	}

	if role == RoleQuery && e.cache != nil {
		e.cache.SetDefault(prepared, vec)
	}
	return vec, nil
}

// EmbedMany embeds texts concurrently. The result is index aligned with
// texts; empty texts are skipped and leave a nil entry. It fails if any
// provider call fails or if no vector at all was produced.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no text provided for embedding", models.ErrEmptyInput)
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, text := range texts {
		if clean(text) == "" {
			log.Warn().Int("index", i).Msg("Skipping empty text")
			continue
		}
		g.Go(func() error {
			vec, err := e.Embed(gctx, text, role)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	produced := 0
	for _, v := range vectors {
		if v != nil {
			produced++
		}
	}
	if produced == 0 {
		return nil, fmt.Errorf("%w: no valid embeddings could be generated", models.ErrEmbedding)
	}
	log.Debug().Int("embeddings", produced).Str("role", role.String()).Msg("Generated embeddings")
	return vectors, nil
}
