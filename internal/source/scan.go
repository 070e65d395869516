package source

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
)

type ScanStats struct {
	Scanned int
	Matched int
	Skipped int
	Errors  int
}

// ScanDir walks root and returns the slash-separated, root-relative refs of
// files with an allowed receipt extension, sorted. Hidden files and
// directories are skipped when skipHidden is set. Unreadable entries are
// counted and skipped.
func ScanDir(root string, skipHidden bool) ([]string, ScanStats, error) {
	var stats ScanStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, errors.New("scan: root is required")
	}

	var refs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			stats.Errors++
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			stats.Skipped++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if _, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(path))]; !ok {
			stats.Skipped++
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			stats.Errors++
			return nil
		}
		stats.Matched++
		refs = append(refs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(refs)
	return refs, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
