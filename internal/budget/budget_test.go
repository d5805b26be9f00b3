package budget

import (
	"strings"
	"testing"
)

func Test_HeuristicCount(t *testing.T) {
	t.Parallel()
	// Roughly four characters per token, never zero for non-empty text.
	for n, want := range map[int]int{0: 0, 1: 1, 4: 1, 7: 1, 8: 2, 401: 100} {
		text := strings.Repeat("z", n)
		if got := (Heuristic{}).Count(text); got != want {
			t.Errorf("Count(%d chars) = %d, want %d", n, got, want)
		}
		if Estimate(text) != (Heuristic{}).Count(text) {
			t.Errorf("Estimate and Heuristic.Count disagree at %d chars", n)
		}
	}
}

func Test_NewCounter_Heuristic(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", "heuristic"} {
		c, err := NewCounter(name)
		if err != nil {
			t.Fatalf("NewCounter(%q): %v", name, err)
		}
		if _, ok := c.(Heuristic); !ok {
			t.Errorf("NewCounter(%q) = %T, want Heuristic", name, c)
		}
	}
}

func Test_Fit_KeepsPrefixWithinBudget(t *testing.T) {
	t.Parallel()
	items := []string{
		strings.Repeat("a", 40), // 10 tokens
		strings.Repeat("b", 40), // 10 tokens
		strings.Repeat("c", 40), // 10 tokens
	}
	got := Fit(Heuristic{}, items, 25)
	if len(got) != 2 {
		t.Fatalf("want 2 items, got %d", len(got))
	}
	if got[0] != items[0] || got[1] != items[1] {
		t.Error("Fit must preserve order")
	}
}

func Test_Fit_TruncatesOversizedFirstItem(t *testing.T) {
	t.Parallel()
	got := Fit(Heuristic{}, []string{strings.Repeat("x", 100), "y"}, 5)
	if len(got) != 1 || len(got[0]) != 20 {
		t.Errorf("want one item of 20 chars, got %d items (%q)", len(got), got)
	}
}

func Test_Fit_NoCap(t *testing.T) {
	t.Parallel()
	items := []string{strings.Repeat("x", 10000)}
	if got := Fit(Heuristic{}, items, 0); len(got) != 1 || got[0] != items[0] {
		t.Error("maxTokens <= 0 must return items unchanged")
	}
	if got := Fit(Heuristic{}, nil, 10); got != nil {
		t.Errorf("nil input: got %v", got)
	}
}
