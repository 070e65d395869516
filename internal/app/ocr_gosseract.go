//go:build gosseract

package app

import (
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/receipt-analyzer/internal/common"
	"github.com/joseph-ayodele/receipt-analyzer/internal/ocr"
	"github.com/joseph-ayodele/receipt-analyzer/internal/ocr/gosseract"
)

// NewTextExtractor recognizes images in-process and keeps the command-line
// extractor for PDFs and HEIC.
func NewTextExtractor(c common.OCRConfig, logger *slog.Logger) ocr.TextExtractor {
	fallback := ocr.NewExtractor(OCRConfig(c), logger)
	return gosseract.New(strings.Split(c.Language, "+"), fallback, logger)
}
