package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
)

// TextExtractor turns document bytes into ordered lines of text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) ([]string, error)
}

// RecognitionError is returned when a document cannot be read.
// Transient is set when the failure came from a timeout or cancellation rather
// than from the document itself.
type RecognitionError struct {
	ContentType string
	Transient   bool
	Err         error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognize %s: %v", e.ContentType, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

var ErrUnsupportedContentType = errors.New("unsupported content type")

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	TessdataDir   string
	HeicConverter string

	// MinPDFTextChars below which a PDF text layer is treated as a scan.
	MinPDFTextChars int
}

type ExtractionResult struct {
	Text       string
	Pages      int
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner swaps the command runner (tests use a fake).
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinPDFTextChars <= 0 {
		cfg.MinPDFTextChars = 20
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ TextExtractor = (*Extractor)(nil)

// ExtractText implements TextExtractor.
func (e *Extractor) ExtractText(ctx context.Context, data []byte, contentType string) ([]string, error) {
	res, err := e.Extract(ctx, data, contentType)
	if err != nil {
		return nil, err
	}
	return SplitLines(res.Text), nil
}

// Extract picks a strategy based on content type and returns normalized text.
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType string) (ExtractionResult, error) {
	start := time.Now()
	format := constants.MapContentTypeToFormat(contentType)
	if format == constants.UNKNOWN {
		e.logger.Error("ocr.unsupported_content_type", "content_type", contentType)
		return ExtractionResult{}, &RecognitionError{ContentType: contentType, Err: ErrUnsupportedContentType}
	}
	if len(data) == 0 {
		return ExtractionResult{}, &RecognitionError{ContentType: contentType, Err: errors.New("empty document")}
	}

	tmpDir, err := os.MkdirTemp("", "ra-ocr-*")
	if err != nil {
		return ExtractionResult{}, &RecognitionError{ContentType: contentType, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("ocr.tmp_cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	path := filepath.Join(tmpDir, "document"+extForContentType(contentType))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ExtractionResult{}, &RecognitionError{ContentType: contentType, Err: err}
	}

	e.logger.Debug("ocr.extract.start", "content_type", contentType, "bytes", len(data))

	var res ExtractionResult
	switch format {
	case constants.PDF:
		res, err = e.extractPDF(ctx, path)
	case constants.IMAGE:
		if constants.IsHEICContentType(contentType) {
			png, w, cerr := convertHEICtoPNG(ctx, e.runner, e.cfg.HeicConverter, path, tmpDir)
			if cerr != nil {
				e.logger.Error("ocr.heic_conversion_failed", "error", cerr)
				return ExtractionResult{Warnings: w}, e.recognitionError(ctx, contentType, cerr)
			}
			path = png
		}
		res, err = e.extractImage(ctx, path)
	}
	res.Duration = time.Since(start)
	if err != nil {
		return res, e.recognitionError(ctx, contentType, err)
	}

	e.logger.Info("ocr.extract.ok",
		"method", res.Method,
		"pages", res.Pages,
		"confidence", res.Confidence,
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) recognitionError(ctx context.Context, contentType string, err error) error {
	transient := ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	return &RecognitionError{ContentType: contentType, Transient: transient, Err: err}
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	text, pages, warns, err := e.pdfToText(ctx, path)
	if err == nil && len(strings.TrimSpace(text)) >= e.cfg.MinPDFTextChars {
		text = Normalize(text)
		return ExtractionResult{
			Text:       text,
			Pages:      pages,
			Method:     "pdf-text",
			Warnings:   warns,
			Confidence: heuristicConfidence(text),
		}, nil
	}
	if err != nil {
		warns = append(warns, err.Error())
	}
	if ctx.Err() != nil {
		return ExtractionResult{Warnings: warns}, ctx.Err()
	}

	e.logger.Debug("ocr.pdf.fallback_to_ocr", "path", path)
	text, pages, w, err := e.pdfToOCR(ctx, path)
	warns = append(warns, w...)
	if err != nil {
		return ExtractionResult{Warnings: warns}, err
	}
	text = Normalize(text)
	return ExtractionResult{
		Text:       text,
		Pages:      pages,
		Method:     "pdf-ocr",
		Warnings:   warns,
		Confidence: heuristicConfidence(text),
	}, nil
}

func extForContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "application/pdf"):
		return ".pdf"
	case strings.HasPrefix(ct, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(ct, "image/png"):
		return ".png"
	case strings.HasPrefix(ct, "image/tiff"):
		return ".tif"
	case strings.HasPrefix(ct, "image/heic"):
		return ".heic"
	case strings.HasPrefix(ct, "image/heif"):
		return ".heif"
	default:
		return ".img"
	}
}
