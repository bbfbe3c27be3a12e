package constants

import "strings"

// AllowedExtensions holds the image extensions accepted for question ingestion.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"bmp":  {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedImage reports whether the extension is an accepted question image format.
func IsAllowedImage(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
