package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF reads every page's plain text. Pages without a content stream
// yield an empty string so page numbering stays aligned.
func extractPDF(data []byte) (text *Text, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = nil, fmt.Errorf("extract: pdf: %v: %w", r, ErrCorruptFile)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("extract: pdf: %v: %w", err, ErrCorruptFile)
	}

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract: pdf page %d: %v: %w", i, err, ErrCorruptFile)
		}
		pages = append(pages, s)
	}

	return &Text{Pages: pages, Paged: true, PageCount: n}, nil
}

// pdfPageCount asks pdfcpu for the page count. pdfcpu parses the xref table
// independently of the text reader, so it still works on files whose content
// streams the text reader rejects.
func pdfPageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("extract: pdf page count: %w", err)
	}
	return n, nil
}
