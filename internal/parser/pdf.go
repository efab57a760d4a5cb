package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"session-rag/internal/models"
)

// openPDF distinguishes the password outcomes: an encrypted file that needs a
// password we were not given, one we were given the wrong password for, and
// a file that is not readable at all.
func openPDF(data []byte, password string) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r = nil
			err = fmt.Errorf("%w: %v", models.ErrCorruptDocument, rec)
		}
	}()

	ra := bytes.NewReader(data)
	size := int64(len(data))

	if password == "" {
		r, err = pdf.NewReader(ra, size)
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, models.ErrPasswordRequired
		}
	} else {
		tried := false
		r, err = pdf.NewReaderEncrypted(ra, size, func() string {
			if tried {
				return ""
			}
			tried = true
			return password
		})
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, models.ErrWrongPassword
		}
	}
	if err != nil && encrypted(data) {
		// The reader only verifies passwords for RC4 and AES-128 handlers.
		if password == "" {
			return nil, fmt.Errorf("%w: %w", models.ErrPasswordRequired, err)
		}
		return nil, fmt.Errorf("%w: %w", models.ErrUnsupportedEncryption, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrCorruptDocument, err)
	}
	return r, nil
}

// encrypted reports whether the file references an encrypt dictionary.
func encrypted(data []byte) bool {
	return bytes.Contains(data, []byte("/Encrypt"))
}

func parsePDF(data []byte, password string) (pages []models.Page, err error) {
	reader, err := openPDF(data, password)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", models.ErrCorruptDocument, rec)
		}
	}()

	numPages := reader.NumPage()
	pages = make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			log.Warn().Int("page", i).Msg("Skipping missing pdf page")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Failed to extract pdf page text")
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}
	return pages, nil
}
