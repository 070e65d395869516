//go:build !gosseract

package app

import (
	"log/slog"

	"github.com/joseph-ayodele/receipt-analyzer/internal/common"
	"github.com/joseph-ayodele/receipt-analyzer/internal/ocr"
)

// NewTextExtractor shells out to poppler and tesseract.
func NewTextExtractor(c common.OCRConfig, logger *slog.Logger) ocr.TextExtractor {
	return ocr.NewExtractor(OCRConfig(c), logger)
}
