package ingest

import (
	"net/url"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

// AllowedExt reports whether the layout service accepts files with this extension.
func AllowedExt(ext string) bool {
	return constants.MapExtToFormat(ext) != ""
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

// SourceURI is the file:// URI the layout service reads an ingested file from.
func SourceURI(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// GuessDocumentType maps a filename such as "bank-statement_2026-03.pdf" onto a document type.
// Adjacent word pairs are tried before single words so "drivers_license" wins over "license".
func GuessDocumentType(filename string) constants.DocumentType {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	words := strings.FieldsFunc(strings.ToLower(stem), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	for i := 0; i+1 < len(words); i++ {
		for _, sep := range []string{" ", "_"} {
			if t, ok := constants.CanonicalizeDocumentType(words[i] + sep + words[i+1]); ok {
				return t
			}
		}
	}
	for _, w := range words {
		if t, ok := constants.CanonicalizeDocumentType(w); ok {
			return t
		}
	}
	return constants.OtherDocument
}
