package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"session-rag/internal/models"
)

func TestNewChunkerValidation(t *testing.T) {
	tests := []struct {
		size, overlap int
	}{
		{0, 0},
		{-5, 0},
		{100, -1},
		{100, 100},
		{100, 150},
	}
	for _, tt := range tests {
		if _, err := NewChunker(tt.size, tt.overlap); !errors.Is(err, models.ErrValidation) {
			t.Errorf("NewChunker(%d, %d) error = %v, want validation error", tt.size, tt.overlap, err)
		}
	}
}

func TestChunkSplitsWithOverlap(t *testing.T) {
	c, err := NewChunker(7, 3)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	chunks, err := c.Chunk([]models.Page{{Number: 2, Text: "aaa bbb ccc ddd"}}, "")
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}

	want := []string{"aaa bbb", "bbb ccc", "ccc ddd"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %+v, want %d", len(chunks), chunks, len(want))
	}
	for i, ch := range chunks {
		if ch.Text != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, ch.Text, want[i])
		}
		if ch.Page != 2 {
			t.Errorf("chunk %d page = %d, want 2", i, ch.Page)
		}
		if ch.Source != models.DefaultSource {
			t.Errorf("chunk %d source = %q", i, ch.Source)
		}
	}
}

func TestChunkPages(t *testing.T) {
	c, err := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	pages := []models.Page{
		{Number: 1, Text: "Total income is 500000."},
		{Number: 2, Text: "   \n\n  "},
		{Number: 3, Text: "First paragraph.\n\nSecond paragraph."},
	}
	chunks, err := c.Chunk(pages, "return.pdf")
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks %+v, want 2", len(chunks), chunks)
	}
	if chunks[0].Page != 1 || chunks[0].Text != "Total income is 500000." {
		t.Errorf("first chunk = %+v", chunks[0])
	}
	if chunks[1].Page != 3 || chunks[1].Text != "First paragraph.\n\nSecond paragraph." {
		t.Errorf("second chunk = %+v", chunks[1])
	}
	for _, ch := range chunks {
		if ch.Source != "return.pdf" {
			t.Errorf("source = %q", ch.Source)
		}
	}
}

func TestChunkEmptyPage(t *testing.T) {
	c, _ := NewChunker(100, 10)
	chunks, err := c.Chunk([]models.Page{{Number: 1, Text: ""}}, "")
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("got %d chunks for an empty page", len(chunks))
	}
}

func TestChunkRejectsBadPageNumber(t *testing.T) {
	c, _ := NewChunker(100, 10)
	if _, err := c.Chunk([]models.Page{{Number: 0, Text: "text"}}, ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("error = %v, want validation error", err)
	}
}

// stitch rebuilds the text from chunks by dropping the part of each chunk
// that repeats the end of what was already emitted.
func stitch(chunks []models.Chunk) string {
	var out string
	for _, ch := range chunks {
		text := strings.Join(strings.Fields(ch.Text), "")
		k := min(len(out), len(text))
		for ; k > 0; k-- {
			if strings.HasSuffix(out, text[:k]) {
				break
			}
		}
		out += text[k:]
	}
	return out
}

func TestChunkRoundTrip(t *testing.T) {
	var words []string
	for i := range 300 {
		words = append(words, fmt.Sprintf("word%03d", i))
	}
	text := strings.Join(words[:120], " ") + "\n" + strings.Join(words[120:200], " ") + "\n\n" + strings.Join(words[200:], " ")

	tests := []struct {
		size, overlap int
	}{
		{60, 0},
		{60, 15},
		{200, 50},
		{DefaultChunkSize, DefaultChunkOverlap},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%d", tt.size, tt.overlap), func(t *testing.T) {
			c, err := NewChunker(tt.size, tt.overlap)
			if err != nil {
				t.Fatalf("NewChunker failed: %v", err)
			}
			chunks, err := c.Chunk([]models.Page{{Number: 1, Text: text}}, "")
			if err != nil {
				t.Fatalf("Chunk failed: %v", err)
			}
			if len(chunks) < 2 {
				t.Fatalf("expected several chunks, got %d", len(chunks))
			}
			for i, ch := range chunks {
				if n := utf8.RuneCountInString(ch.Text); n > tt.size {
					t.Errorf("chunk %d has %d characters, limit %d", i, n, tt.size)
				}
			}
			if got, want := stitch(chunks), strings.Join(strings.Fields(text), ""); got != want {
				t.Errorf("stitched text differs from the source\n got: %.80s...\nwant: %.80s...", got, want)
			}
		})
	}
}

func TestChunkOverlapContinuity(t *testing.T) {
	var words []string
	for i := range 100 {
		words = append(words, fmt.Sprintf("w%03d", i))
	}
	c, err := NewChunker(40, 10)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}
	chunks, err := c.Chunk([]models.Page{{Number: 1, Text: strings.Join(words, " ")}}, "")
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		first := strings.Fields(chunks[i].Text)[0]
		if !strings.Contains(chunks[i-1].Text, first) {
			t.Errorf("chunk %d starts with %q which is not in chunk %d (%v)", i, first, i-1, prev)
		}
	}
}
