// Package chunker splits extracted document text into overlapping,
// sentence-aware segments that are embedded and indexed one per vector.
//
// Sizes are measured in characters (runes), not tokens. Before cutting a
// window the splitter looks back over the last [BoundaryWindow] characters
// for the latest sentence terminator or newline and cuts just after it, so
// chunks end on a sentence boundary whenever one is in range. A boundary that
// would not move past the end of the previous chunk is ignored, so every
// chunk carries text its predecessor did not.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default sizes used when callers pass a non-positive chunk size.
const (
	DefaultChunkSize = 850
	DefaultOverlap   = 100

	// BoundaryWindow is how far back from the raw window edge the splitter
	// searches for a sentence boundary.
	BoundaryWindow = 100
)

// Piece is one chunk of a multi-page document together with the 1-based page
// on which its first character appears.
type Piece struct {
	// Text is the trimmed chunk text.
	Text string
	// Page is the 1-based source page, or 0 when unknown.
	Page int
}

// Split breaks text into trimmed, non-empty chunks of at most chunkSize
// characters, with consecutive chunks sharing overlap characters.
//
// overlap is clamped into [0, chunkSize-1]; a non-positive chunkSize selects
// [DefaultChunkSize]. The result is deterministic for the same inputs.
func Split(text string, chunkSize, overlap int) []string {
	spans := split([]rune(strings.TrimSpace(text)), chunkSize, overlap)
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.text)
	}
	return out
}

// SplitPages joins per-page text with newlines, splits the result with
// [Split] semantics, and tags every chunk with the page containing its first
// non-space character. Empty pages still count towards page numbering.
func SplitPages(pages []string, chunkSize, overlap int) []Piece {
	if len(pages) == 0 {
		return nil
	}

	joined := strings.Join(pages, "\n")
	lead := len(joined) - len(strings.TrimLeftFunc(joined, unicode.IsSpace))
	trimmed := strings.TrimSpace(joined)
	runes := []rune(trimmed)

	// pageStarts[i] is the rune offset in runes at which page i+1 begins.
	pageStarts := make([]int, len(pages))
	offset := -utf8.RuneCountInString(joined[:lead])
	for i, p := range pages {
		pageStarts[i] = offset
		offset += utf8.RuneCountInString(p) + 1
	}

	spans := split(runes, chunkSize, overlap)
	out := make([]Piece, 0, len(spans))
	for _, s := range spans {
		out = append(out, Piece{Text: s.text, Page: pageAt(pageStarts, s.start)})
	}
	return out
}

// span is a chunk, the rune offset of its first non-space character, and
// the exclusive rune offset of its window end.
type span struct {
	text  string
	start int
	end   int
}

// split is the windowing loop shared by [Split] and [SplitPages]. text must
// already be trimmed.
func split(text []rune, chunkSize, overlap int) []span {
	if len(text) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	var out []span
	start, prevEnd := 0, 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			end = len(text)
		} else if cut := boundary(text, start, end); cut > prevEnd {
			// A cut at or before the previous end would repeat text already
			// emitted; keep the raw window edge instead.
			end = cut
		}

		if s, off := trimRunes(text[start:end]); s != "" {
			out = append(out, span{text: s, start: start + off, end: end})
		}
		prevEnd = end

		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			// A boundary snap close to start would otherwise stall the loop.
			next = end
		}
		start = next
	}
	return out
}

// boundary returns the index just after the latest sentence terminator or
// newline in text[max(start, end-BoundaryWindow):end] that lies strictly after
// start, or 0 when there is none.
func boundary(text []rune, start, end int) int {
	lo := max(start, end-BoundaryWindow)
	for i := end - 1; i >= lo; i-- {
		if i <= start {
			break
		}
		switch text[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return 0
}

// trimRunes trims surrounding whitespace from r and reports how many runes
// were removed from the front.
func trimRunes(r []rune) (string, int) {
	s := string(r)
	left := strings.TrimLeftFunc(s, unicode.IsSpace)
	off := utf8.RuneCountInString(s) - utf8.RuneCountInString(left)
	return strings.TrimSpace(left), off
}

// pageAt returns the 1-based page whose start offset is the greatest one not
// exceeding pos.
func pageAt(pageStarts []int, pos int) int {
	page := 1
	for i, s := range pageStarts {
		if s > pos {
			break
		}
		page = i + 1
	}
	return page
}
