package constants

import "strings"

// Format is the coarse document family used to pick an OCR strategy.
type Format string

const (
	PDF     Format = "PDF"
	IMAGE   Format = "IMAGE"
	UNKNOWN Format = "UNKNOWN"
)

// AllowedExtensions holds the default allowed file extensions for receipts ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"heic": {},
	"heif": {},
}

var extContentTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"heic": "image/heic",
	"heif": "image/heif",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeForExt returns the MIME type for a known receipt extension, or "".
func ContentTypeForExt(ext string) string {
	return extContentTypes[NormalizeExt(ext)]
}

// MapContentTypeToFormat ignores MIME parameters ("image/png; charset=...").
func MapContentTypeToFormat(contentType string) Format {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "application/pdf":
		return PDF
	case strings.HasPrefix(ct, "image/"):
		return IMAGE
	default:
		return UNKNOWN
	}
}

func IsHEICContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "image/heic") || strings.HasPrefix(ct, "image/heif")
}
