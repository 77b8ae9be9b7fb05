package constants

import "strings"

// DocumentFormat drives which quality checks apply (resolution only matters for images).
type DocumentFormat string

const (
	PDF   DocumentFormat = "PDF"
	IMAGE DocumentFormat = "IMAGE"
)

// Thresholds shared by the per-document analyzers.
const (
	LowOCRConfidenceThreshold = 0.70
	MinImageDPI               = 150
	SparseTextWordCount       = 20
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns "" for unsupported extensions.
func MapExtToFormat(ext string) DocumentFormat {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "tif", "tiff", "heic", "heif":
		return IMAGE
	}
	return ""
}
