package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func Test_Split_Empty(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "   ", "\n\t \n"} {
		if got := Split(in, 100, 10); len(got) != 0 {
			t.Errorf("Split(%q) = %v, want empty", in, got)
		}
	}
}

func Test_Split_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()
	got := Split("  Hello world.  ", 850, 100)
	want := []string{"Hello world."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func Test_Split_SentenceSnapping(t *testing.T) {
	t.Parallel()
	got := Split("Sentence one. Sentence two. Sentence three.", 15, 5)
	want := []string{
		"Sentence one.",
		"one. Sentence",
		"ence two.",
		"two. Sentence",
		"ence three.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func Test_Split_EveryChunkAdvances(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		text          string
		size, overlap int
	}{
		{"snap near window start", "page three text here. More words follow on this page!", 20, 5},
		{"short sentences", "Sentence one. Sentence two. Sentence three.", 15, 5},
		{"dense terminators", strings.Repeat("Ok. No! Why? ", 12), 12, 8},
		{"long prose", strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30), 50, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			spans := split([]rune(strings.TrimSpace(tc.text)), tc.size, tc.overlap)
			for i := 1; i < len(spans); i++ {
				prev, cur := spans[i-1], spans[i]
				if cur.end <= prev.end {
					t.Errorf("chunk %d %q ends at %d, not past chunk %d %q ending at %d",
						i, cur.text, cur.end, i-1, prev.text, prev.end)
				}
				if cur.text == prev.text {
					t.Errorf("chunk %d repeats its predecessor %q", i, cur.text)
				}
			}
		})
	}
}

func Test_Split_PrefersRightmostBoundary(t *testing.T) {
	t.Parallel()
	// Both '!' and '?' fall in the search zone; the later one wins.
	text := "Go! Really? Yes and more words follow here"
	got := Split(text, 20, 0)
	if got[0] != "Go! Really?" {
		t.Errorf("first chunk = %q, want %q", got[0], "Go! Really?")
	}
}

func Test_Split_NewlineIsBoundary(t *testing.T) {
	t.Parallel()
	got := Split("heading line\nbody text that keeps going on", 20, 0)
	if got[0] != "heading line" {
		t.Errorf("first chunk = %q, want %q", got[0], "heading line")
	}
}

func Test_Split_RawCutWithoutBoundary(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 25)
	got := Split(text, 10, 2)
	want := []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 9)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func Test_Split_BoundarySearchLimitedToWindow(t *testing.T) {
	t.Parallel()
	// The only '.' sits more than BoundaryWindow characters before the raw
	// window edge, so the splitter must cut at the edge instead.
	text := "x." + strings.Repeat("b", 300)
	got := Split(text, 200, 0)
	if n := utf8.RuneCountInString(got[0]); n != 200 {
		t.Errorf("first chunk has %d runes, want raw cut at 200", n)
	}
}

func Test_Split_OverlapClampedTerminates(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("word ", 50)
	for _, overlap := range []int{10, 11, 500} {
		got := Split(text, 10, overlap)
		if len(got) == 0 {
			t.Fatalf("overlap=%d: no chunks", overlap)
		}
		if len(got) > len(text) {
			t.Fatalf("overlap=%d: %d chunks for %d chars", overlap, len(got), len(text))
		}
	}
}

func Test_Split_NonPositiveSizeUsesDefault(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("z", DefaultChunkSize+10)
	got := Split(text, 0, -5)
	if n := utf8.RuneCountInString(got[0]); n != DefaultChunkSize {
		t.Errorf("first chunk len = %d, want %d", n, DefaultChunkSize)
	}
}

func Test_Split_Properties(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40) +
		"Does it ever stop?\nNo! It keeps going through ünïcödé text."

	for _, tc := range []struct{ size, overlap int }{
		{50, 10}, {120, 30}, {300, 100}, {1000, 20},
	} {
		chunks := Split(text, tc.size, tc.overlap)
		again := Split(text, tc.size, tc.overlap)
		if !reflect.DeepEqual(chunks, again) {
			t.Errorf("size=%d: split is not deterministic", tc.size)
		}

		for i, c := range chunks {
			if c == "" || c != strings.TrimSpace(c) {
				t.Errorf("size=%d chunk %d not trimmed/non-empty: %q", tc.size, i, c)
			}
			if utf8.RuneCountInString(c) > tc.size {
				t.Errorf("size=%d chunk %d longer than window", tc.size, i)
			}
			if !strings.Contains(text, c) {
				t.Errorf("size=%d chunk %d is not a substring of the input", tc.size, i)
			}
		}

		// Spans must cover the whole trimmed input without gaps.
		runes := []rune(strings.TrimSpace(text))
		spans := split(runes, tc.size, tc.overlap)
		covered := 0
		for _, s := range spans {
			if s.start > covered {
				gap := strings.TrimSpace(string(runes[covered:s.start]))
				if gap != "" {
					t.Fatalf("size=%d: gap %q before span at %d", tc.size, gap, s.start)
				}
			}
			covered = max(covered, s.start+utf8.RuneCountInString(s.text))
		}
		if covered != len(runes) {
			t.Errorf("size=%d: covered %d of %d runes", tc.size, covered, len(runes))
		}
	}
}

func Test_SplitPages_TracksPages(t *testing.T) {
	t.Parallel()
	pages := []string{
		"Page one talks about mounting brackets.",
		"",
		"Page three covers signage materials.",
	}
	got := SplitPages(pages, 40, 0)
	want := []Piece{
		{Text: "Page one talks about mounting brackets.", Page: 1},
		{Text: "Page three covers signage materials.", Page: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func Test_SplitPages_LeadingWhitespace(t *testing.T) {
	t.Parallel()
	got := SplitPages([]string{"   ", "  first real text."}, 100, 0)
	if len(got) != 1 || got[0].Page != 2 {
		t.Errorf("got %+v, want single piece on page 2", got)
	}
}

func Test_SplitPages_Empty(t *testing.T) {
	t.Parallel()
	if got := SplitPages(nil, 100, 10); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}
