package trigger

import (
	"path"
	"strings"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
)

const DefaultPrefix = "receipts/"

// Filter decides which object events become pipeline work.
type Filter struct {
	Prefix      string
	AllowedExts map[string]struct{}
}

// NewFilter returns a filter for prefix, using DefaultPrefix when prefix is
// empty and constants.AllowedExtensions for file types.
func NewFilter(prefix string) Filter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Filter{Prefix: prefix, AllowedExts: constants.AllowedExtensions}
}

func (f Filter) Accept(e ObjectEvent) bool {
	if !e.Created() {
		return false
	}
	if !strings.HasPrefix(e.Key, f.Prefix) || strings.HasSuffix(e.Key, "/") {
		return false
	}
	return allowedExt(path.Ext(e.Key), f.AllowedExts)
}

func allowedExt(ext string, exts map[string]struct{}) bool {
	if exts == nil {
		exts = constants.AllowedExtensions
	}
	_, ok := exts[constants.NormalizeExt(ext)]
	return ok
}
