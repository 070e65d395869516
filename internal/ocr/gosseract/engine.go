//go:build gosseract

// Package gosseract recognizes images in-process through libtesseract instead
// of shelling out to the tesseract binary. Build with -tags gosseract.
package gosseract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
	"github.com/joseph-ayodele/receipt-analyzer/internal/ocr"
)

// Engine handles raster images itself and hands every other content type
// (PDF, HEIC) to the fallback extractor.
type Engine struct {
	languages     []string
	fallback      ocr.TextExtractor
	clientFactory func() *gosseract.Client
	logger        *slog.Logger
}

func New(languages []string, fallback ocr.TextExtractor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Engine{
		languages:     languages,
		fallback:      fallback,
		clientFactory: gosseract.NewClient,
		logger:        logger,
	}
}

var _ ocr.TextExtractor = (*Engine)(nil)

func (e *Engine) ExtractText(ctx context.Context, data []byte, contentType string) ([]string, error) {
	if constants.MapContentTypeToFormat(contentType) != constants.IMAGE || constants.IsHEICContentType(contentType) {
		if e.fallback == nil {
			return nil, &ocr.RecognitionError{ContentType: contentType, Err: ocr.ErrUnsupportedContentType}
		}
		return e.fallback.ExtractText(ctx, data, contentType)
	}
	if err := ctx.Err(); err != nil {
		return nil, &ocr.RecognitionError{ContentType: contentType, Transient: true, Err: err}
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(e.languages...); err != nil {
		return nil, &ocr.RecognitionError{ContentType: contentType, Err: fmt.Errorf("set languages: %w", err)}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, &ocr.RecognitionError{ContentType: contentType, Err: fmt.Errorf("set image: %w", err)}
	}
	text, err := c.Text()
	if err != nil {
		return nil, &ocr.RecognitionError{ContentType: contentType, Err: fmt.Errorf("recognize text: %w", err)}
	}

	lines := ocr.SplitLines(ocr.Normalize(strings.TrimSpace(text)))
	e.logger.Info("ocr.gosseract.ok", "content_type", contentType, "lines", len(lines))
	return lines, nil
}
