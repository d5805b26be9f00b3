package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// paragraphsPerPage is the heuristic used when a DOCX file does not record
// its own page count.
const paragraphsPerPage = 50

// documentXML mirrors the parts of word/document.xml that carry text.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// appXML mirrors docProps/app.xml, where Word stores the rendered page count.
type appXML struct {
	Pages int `xml:"Pages"`
}

// extractDOCX returns the document's paragraphs joined by newlines. DOCX has
// no fixed pagination, so the result is a single unpaged block.
func extractDOCX(data []byte) (*Text, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("extract: docx: %v: %w", err, ErrCorruptFile)
	}

	paras, err := readParagraphs(zr)
	if err != nil {
		return nil, err
	}

	count := readAppPages(zr)
	if count < 1 {
		count = len(paras)/paragraphsPerPage + 1
	}

	return &Text{
		Pages:     []string{strings.Join(paras, "\n")},
		PageCount: count,
	}, nil
}

// docxPageEstimate returns the page count without keeping the text.
func docxPageEstimate(data []byte) (int, error) {
	t, err := extractDOCX(data)
	if err != nil {
		return 0, err
	}
	return t.PageCount, nil
}

// readParagraphs returns the text of every paragraph in word/document.xml,
// including empty ones so paragraph counts stay meaningful.
func readParagraphs(zr *zip.Reader) ([]string, error) {
	content, err := readZipEntry(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("extract: docx: missing word/document.xml: %w", ErrCorruptFile)
	}

	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("extract: docx: %v: %w", err, ErrCorruptFile)
	}

	paras := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
		paras = append(paras, b.String())
	}
	return paras, nil
}

// readAppPages returns the <Pages> value from docProps/app.xml, or 0.
func readAppPages(zr *zip.Reader) int {
	content, err := readZipEntry(zr, "docProps/app.xml")
	if err != nil || content == nil {
		return 0
	}
	var app appXML
	if err := xml.Unmarshal(content, &app); err != nil {
		return 0
	}
	return app.Pages
}

// readZipEntry returns the named entry's bytes, or nil if it is absent.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("extract: docx: open %s: %v: %w", name, err, ErrCorruptFile)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("extract: docx: read %s: %v: %w", name, err, ErrCorruptFile)
		}
		return content, nil
	}
	return nil, nil
}
