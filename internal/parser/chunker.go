package parser

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"session-rag/internal/models"
)

const (
	DefaultChunkSize    = 500 // characters
	DefaultChunkOverlap = 50  // characters
)

// Separators are tried in order; the last one splits between characters.
var Separators = []string{"\n\n", "\n", " ", ""}

// Chunker splits page text into overlapping chunks that never cross a page.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
	size     int
	overlap  int
}

// NewChunker validates the sizes and builds a recursive character splitter.
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, models.Validationf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, models.Validationf("chunk overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(Separators),
		),
		size:    chunkSize,
		overlap: overlap,
	}, nil
}

// Chunk splits every page and tags each chunk with its page number and source.
// Pages without text produce no chunks.
func (c *Chunker) Chunk(pages []models.Page, source string) ([]models.Chunk, error) {
	if strings.TrimSpace(source) == "" {
		source = models.DefaultSource
	}

	var chunks []models.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		if page.Number < 1 {
			return nil, models.Validationf("page number must be positive, got %d", page.Number)
		}

		parts, err := c.splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split page %d: %w", page.Number, err)
		}
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{Text: part, Page: page.Number, Source: source})
		}
	}
	return chunks, nil
}

// Size is the configured maximum chunk length in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap is the configured overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }
