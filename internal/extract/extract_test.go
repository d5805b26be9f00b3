package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// buildDOCX assembles a minimal DOCX archive in memory. appPages <= 0 omits
// docProps/app.xml.
func buildDOCX(t *testing.T, paragraphs []string, appPages int) []byte {
	t.Helper()

	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if appPages > 0 {
		w, err := zw.Create("docProps/app.xml")
		if err != nil {
			t.Fatal(err)
		}
		fmt.Fprintf(w, `<?xml version="1.0"?><Properties><Pages>%d</Pages></Properties>`, appPages)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func Test_FormatOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"manual.pdf", FormatPDF, false},
		{"MANUAL.PDF", FormatPDF, false},
		{"handbook.docx", FormatDOCX, false},
		{"legacy.doc", "", true},
		{"notes.txt", "", true},
		{"noext", "", true},
	}
	for _, tc := range cases {
		got, err := FormatOf(tc.name)
		if tc.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("%s: want ErrUnsupportedFormat, got %v", tc.name, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%s: got (%q, %v), want %q", tc.name, got, err, tc.want)
		}
	}
}

func Test_Extract_DOCX(t *testing.T) {
	t.Parallel()
	data := buildDOCX(t, []string{"Wall mounting guide.", "", "Use M8 anchors."}, 0)

	text, err := Extract(data, "guide.docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text.Paged {
		t.Error("DOCX text must not be marked as paged")
	}
	if got, want := strings.Join(text.Pages, "\n"), "Wall mounting guide.\n\nUse M8 anchors."; got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
	if text.PageCount != 1 {
		t.Errorf("PageCount = %d, want 1", text.PageCount)
	}
}

func Test_Extract_DOCXAppPages(t *testing.T) {
	t.Parallel()
	data := buildDOCX(t, []string{"x"}, 7)
	text, err := Extract(data, "guide.docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text.PageCount != 7 {
		t.Errorf("PageCount = %d, want 7 from app.xml", text.PageCount)
	}
}

func Test_Extract_DOCXParagraphEstimate(t *testing.T) {
	t.Parallel()
	paras := make([]string, 120)
	for i := range paras {
		paras[i] = "p"
	}
	if got := EstimatePageCount(buildDOCX(t, paras, 0), "big.docx"); got != 3 {
		t.Errorf("EstimatePageCount = %d, want 120/50+1 = 3", got)
	}
}

func Test_Extract_Blank(t *testing.T) {
	t.Parallel()
	text, err := Extract(buildDOCX(t, []string{"  ", ""}, 0), "empty.docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !text.Blank() {
		t.Error("expected Blank() for whitespace-only document")
	}
}

func Test_Extract_Corrupt(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"bad.docx", "bad.pdf"} {
		_, err := Extract([]byte("definitely not a document"), name)
		if !errors.Is(err, ErrCorruptFile) {
			t.Errorf("%s: want ErrCorruptFile, got %v", name, err)
		}
	}
}

func Test_Extract_Unsupported(t *testing.T) {
	t.Parallel()
	_, err := Extract([]byte("hello"), "notes.txt")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("want ErrUnsupportedFormat, got %v", err)
	}
}

func Test_EstimatePageCount_Fallbacks(t *testing.T) {
	t.Parallel()
	if got := EstimatePageCount([]byte("junk"), "x.pdf"); got != 1 {
		t.Errorf("corrupt pdf: got %d, want 1", got)
	}
	if got := EstimatePageCount([]byte("junk"), "x.txt"); got != 1 {
		t.Errorf("unsupported: got %d, want 1", got)
	}
}
