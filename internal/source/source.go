// Package source loads the bytes of an uploaded receipt document.
package source

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

// MaxDocumentBytes bounds how much of a document is read into memory.
const MaxDocumentBytes = 32 << 20

var (
	ErrNotFound    = errors.New("document not found")
	ErrTooLarge    = errors.New("document too large")
	ErrOutsideRoot = errors.New("document path escapes source root")
	ErrEmptyRef    = errors.New("empty document reference")
)

// DocumentSource resolves a document reference (a relative path or object key).
type DocumentSource interface {
	Fetch(ctx context.Context, ref string) (entity.RawDocument, error)
}

// DetectContentType sniffs data and falls back to the reference's extension
// when the content is not recognized.
func DetectContentType(ref string, data []byte) string {
	mt := mimetype.Detect(data)
	if !mt.Is("application/octet-stream") && !mt.Is("text/plain") {
		return mt.String()
	}
	if ct := constants.ContentTypeForExt(filepath.Ext(ref)); ct != "" {
		return ct
	}
	return mt.String()
}
