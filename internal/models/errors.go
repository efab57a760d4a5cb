package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every error leaving the pipeline wraps exactly one of these.
var (
	ErrValidation = errors.New("validation error")
	ErrExtraction = errors.New("extraction error")
	ErrEmbedding  = errors.New("embedding error")
	ErrStore      = errors.New("store error")
	ErrGeneration = errors.New("generation error")
)

// Validation errors
var (
	ErrEmptyInput        = fmt.Errorf("%w: empty input", ErrValidation)
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported file format", ErrValidation)
	ErrFileTooLarge      = fmt.Errorf("%w: file too large", ErrValidation)
	ErrLengthMismatch    = fmt.Errorf("%w: chunks and embeddings length mismatch", ErrValidation)
)

// Extraction errors
var (
	ErrPasswordRequired = fmt.Errorf("%w: pdf is password protected", ErrExtraction)
	ErrWrongPassword    = fmt.Errorf("%w: incorrect password for encrypted pdf", ErrExtraction)
	ErrCorruptDocument  = fmt.Errorf("%w: document could not be read", ErrExtraction)
	ErrNoText           = fmt.Errorf("%w: no text could be extracted", ErrExtraction)
	// ErrUnsupportedEncryption is returned when a password is given for a
	// security handler the reader cannot decrypt (AES-256, V 5).
	ErrUnsupportedEncryption = fmt.Errorf("%w: unsupported pdf encryption", ErrExtraction)
)

// Kind is the top-level category of a pipeline error.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindExtraction Kind = "extraction"
	KindEmbedding  Kind = "embedding"
	KindStore      Kind = "store"
	KindGeneration Kind = "generation"
	KindUnknown    Kind = "unknown"
)

// KindOf reports which category err belongs to.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	case errors.Is(err, ErrEmbedding):
		return KindEmbedding
	case errors.Is(err, ErrStore):
		return KindStore
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	default:
		return KindUnknown
	}
}

// Validationf builds a validation error with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
