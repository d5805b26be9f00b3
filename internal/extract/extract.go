// Package extract turns uploaded document bytes into plain text.
//
// Two formats are supported: PDF, read page by page so chunks can carry page
// provenance, and DOCX, read from word/document.xml. Extraction never touches
// the filesystem; callers pass the raw upload.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Sentinel errors returned by [Extract].
var (
	// ErrUnsupportedFormat means the filename extension is not .pdf or .docx.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptFile means the bytes could not be parsed as the declared format.
	ErrCorruptFile = errors.New("corrupt document")
)

// Format identifies a supported document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Text is the result of extracting one document.
type Text struct {
	// Pages holds per-page text when Paged is true; otherwise a single
	// element with the whole document.
	Pages []string
	// Paged reports whether Pages maps 1:1 onto physical pages.
	Paged bool
	// PageCount is the document's page count as reported by the format.
	PageCount int
}

// Blank reports whether the document has no non-whitespace text.
func (t *Text) Blank() bool {
	for _, p := range t.Pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

// FormatOf maps a filename to its [Format] by extension (case-insensitive).
func FormatOf(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	default:
		return "", fmt.Errorf("extract: %q: %w", filepath.Base(filename), ErrUnsupportedFormat)
	}
}

// Supported reports whether filename has a supported extension.
func Supported(filename string) bool {
	_, err := FormatOf(filename)
	return err == nil
}

// Extract reads text and page count from data, choosing the parser from the
// filename extension.
func Extract(data []byte, filename string) (*Text, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatPDF:
		return extractPDF(data)
	default:
		return extractDOCX(data)
	}
}

// EstimatePageCount computes a best-effort page count straight from the raw
// file without extracting text. It is used when full processing failed and
// never returns less than 1.
func EstimatePageCount(data []byte, filename string) int {
	format, err := FormatOf(filename)
	if err != nil {
		return 1
	}
	var n int
	switch format {
	case FormatPDF:
		n, err = pdfPageCount(data)
	case FormatDOCX:
		n, err = docxPageEstimate(data)
	}
	if err != nil || n < 1 {
		return 1
	}
	return n
}
