package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

// FS reads documents from a directory tree. References are paths relative to
// the root; absolute paths are accepted when they lie inside it.
type FS struct {
	root    string
	absRoot string
	logger  *slog.Logger
}

func NewFS(root string, logger *slog.Logger) (*FS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", abs)
	}
	return &FS{root: root, absRoot: abs, logger: logger}, nil
}

var _ DocumentSource = (*FS)(nil)

func (s *FS) Fetch(ctx context.Context, ref string) (entity.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return entity.RawDocument{}, err
	}
	rel, err := s.relative(ref)
	if err != nil {
		return entity.RawDocument{}, err
	}

	root, err := os.OpenRoot(s.absRoot)
	if err != nil {
		return entity.RawDocument{}, fmt.Errorf("open source root: %w", err)
	}
	defer root.Close()

	f, err := root.Open(rel)
	if errors.Is(err, fs.ErrNotExist) {
		return entity.RawDocument{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return entity.RawDocument{}, fmt.Errorf("open %s: %w", ref, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxDocumentBytes+1))
	if err != nil {
		return entity.RawDocument{}, fmt.Errorf("read %s: %w", ref, err)
	}
	if len(data) > MaxDocumentBytes {
		return entity.RawDocument{}, fmt.Errorf("%w: %s", ErrTooLarge, ref)
	}

	ct := DetectContentType(rel, data)
	s.logger.Debug("source.fs.fetched", "ref", ref, "bytes", len(data), "content_type", ct)
	return entity.RawDocument{Ref: filepath.ToSlash(rel), ContentType: ct, Data: data}, nil
}

func (s *FS) relative(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", ErrEmptyRef
	}
	p := ref
	if filepath.IsAbs(p) {
		r, err := filepath.Rel(s.absRoot, p)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, ref)
		}
		p = r
	}
	p = filepath.Clean(filepath.FromSlash(p))
	if p == ".." || strings.HasPrefix(p, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, ref)
	}
	return p, nil
}
