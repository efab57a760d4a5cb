package models

import (
	"strconv"
	"strings"
)

const (
	DefaultSource = "uploaded_pdf"

	metaPage      = "page"
	metaSource    = "source"
	metaSessionID = "session_id"
)

// Page is the raw text of one page of a source document. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk represents a parsed chunk tagged with its page
type Chunk struct {
	Text   string
	Page   int
	Source string
}

// Metadata is stored next to every record.
type Metadata struct {
	Page      int    `json:"page"`
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
}

// NewMetadata validates the fields and fills in the default source.
func NewMetadata(page int, source, sessionID string) (Metadata, error) {
	if page < 1 {
		return Metadata{}, Validationf("page must be positive, got %d", page)
	}
	if strings.TrimSpace(sessionID) == "" {
		return Metadata{}, Validationf("session id is required")
	}
	if strings.TrimSpace(source) == "" {
		source = DefaultSource
	}
	return Metadata{Page: page, Source: source, SessionID: sessionID}, nil
}

// Map flattens the metadata for stores that only keep string maps.
func (m Metadata) Map() map[string]string {
	return map[string]string{
		metaPage:      strconv.Itoa(m.Page),
		metaSource:    m.Source,
		metaSessionID: m.SessionID,
	}
}

// MetadataFromMap is the inverse of Map. A missing source falls back to the default.
func MetadataFromMap(m map[string]string) (Metadata, error) {
	page, err := strconv.Atoi(m[metaPage])
	if err != nil {
		return Metadata{}, Validationf("invalid page %q in metadata", m[metaPage])
	}
	return NewMetadata(page, m[metaSource], m[metaSessionID])
}

// SessionFilter returns the where clause that scopes a metadata query to one session.
func SessionFilter(sessionID string) map[string]string {
	return map[string]string{metaSessionID: sessionID}
}

// Record is one stored chunk.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  Metadata
}

// QueryResult is a single nearest-neighbour match, best first.
type QueryResult struct {
	ID        string
	Text      string
	Metadata  Metadata
	Score     float32
	Embedding []float32
}

// Citation points the reader at the chunk an answer was built from.
type Citation struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Text   string `json:"text"`
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
