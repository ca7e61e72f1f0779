package chunker_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/valpere/epubtran/internal/chunker"
)

type sizedNode struct {
	chars int
}

func (n sizedNode) TextLength() int { return n.chars }

// --- SplitBySize tests ---

func TestSplitBySize_ShortText(t *testing.T) {
	text := "Hello, world!"
	chunks := chunker.SplitBySize(text, 100)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("expected %q, got %q", text, chunks[0])
	}
}

func TestSplitBySize_Unlimited(t *testing.T) {
	text := strings.Repeat("word\n", 500)
	chunks := chunker.SplitBySize(text, 0)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk when maxChars=0, got %d", len(chunks))
	}
}

func TestSplitBySize_Empty(t *testing.T) {
	if chunks := chunker.SplitBySize("", 10); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %v", chunks)
	}
}

func TestSplitBySize_OverlongLine(t *testing.T) {
	text := "123456789012345"
	chunks := chunker.SplitBySize(text, 10)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 10 {
			t.Errorf("chunk %d too long: %q", i, c)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Errorf("round trip failed: %v", chunks)
	}
}

func TestSplitBySize_LineBoundaries(t *testing.T) {
	text := "first line\nsecond line\nthird line\n"
	chunks := chunker.SplitBySize(text, 24)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != "first line\nsecond line\n" {
		t.Errorf("unexpected first chunk %q", chunks[0])
	}
	if chunks[1] != "third line\n" {
		t.Errorf("unexpected second chunk %q", chunks[1])
	}
}

func TestSplitBySize_RoundTrip(t *testing.T) {
	texts := []string{
		"The quick brown fox.\nJumps over\r\nthe lazy dog.\n\n\nEnd",
		strings.Repeat("가나다라마바사\n", 40),
		"no newline at all but quite a long line of text to cut",
		"\n\n\n",
		"mixed 日本語 lines\nand very very very long lines without breaks here\nshort\n",
	}

	for _, text := range texts {
		for _, max := range []int{1, 3, 7, 16, 50, 1000} {
			chunks := chunker.SplitBySize(text, max)
			if got := strings.Join(chunks, ""); got != text {
				t.Fatalf("round trip failed for max=%d: got %q want %q", max, got, text)
			}
			for i, c := range chunks {
				if utf8.RuneCountInString(c) > max {
					t.Errorf("max=%d chunk %d has %d runes: %q", max, i, utf8.RuneCountInString(c), c)
				}
			}
		}
	}
}

// --- SplitNodesBySize tests ---

func TestSplitNodesBySize_NodeLimit(t *testing.T) {
	nodes := make([]sizedNode, 10)
	for i := range nodes {
		nodes[i] = sizedNode{chars: 10}
	}

	groups := chunker.SplitNodesBySize(nodes, 1000, 3)
	want := []int{3, 3, 3, 1}
	if len(groups) != len(want) {
		t.Fatalf("expected %d groups, got %d", len(want), len(groups))
	}
	for i, g := range groups {
		if len(g) != want[i] {
			t.Errorf("group %d: expected %d nodes, got %d", i, want[i], len(g))
		}
	}
}

func TestSplitNodesBySize_CharLimit(t *testing.T) {
	nodes := []sizedNode{{40}, {40}, {40}, {0}, {0}, {90}, {10}}

	groups := chunker.SplitNodesBySize(nodes, 100, 10)
	want := []int{2, 3, 2}
	if len(groups) != len(want) {
		t.Fatalf("expected %d groups, got %d: %v", len(want), len(groups), groups)
	}
	for i, g := range groups {
		if len(g) != want[i] {
			t.Errorf("group %d: expected %d nodes, got %d", i, want[i], len(g))
		}
	}
}

func TestSplitNodesBySize_OversizedNodeAlone(t *testing.T) {
	nodes := []sizedNode{{5}, {500}, {5}}

	groups := chunker.SplitNodesBySize(nodes, 100, 10)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if len(groups[1]) != 1 || groups[1][0].chars != 500 {
		t.Errorf("oversized node should be alone, got %v", groups[1])
	}
}

func TestSplitNodesBySize_Bounds(t *testing.T) {
	var nodes []sizedNode
	for i := 0; i < 200; i++ {
		nodes = append(nodes, sizedNode{chars: (i * 37) % 90})
	}

	for _, tc := range []struct{ maxChars, maxNodes int }{{100, 5}, {250, 50}, {90, 1}, {1000, 7}} {
		groups := chunker.SplitNodesBySize(nodes, tc.maxChars, tc.maxNodes)
		total := 0
		for i, g := range groups {
			if len(g) == 0 {
				t.Fatalf("group %d is empty", i)
			}
			if len(g) > tc.maxNodes {
				t.Errorf("group %d holds %d nodes, limit %d", i, len(g), tc.maxNodes)
			}
			sum := 0
			for _, n := range g {
				sum += n.chars
			}
			if sum > tc.maxChars && len(g) > 1 {
				t.Errorf("group %d holds %d chars, limit %d", i, sum, tc.maxChars)
			}
			total += len(g)
		}
		if total != len(nodes) {
			t.Errorf("lost nodes: %d of %d", total, len(nodes))
		}
	}
}

// --- Sentence tests ---

func TestSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"latin", "One. Two! Three?", []string{"One. ", "Two! ", "Three?"}},
		{"abbreviation without space", "Version 1.5 is out. Yes", []string{"Version 1.5 is out. ", "Yes"}},
		{"cjk", "今日は。明日も！", []string{"今日は。", "明日も！"}},
		{"line breaks", "first\nsecond", []string{"first\n", "second"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunker.Sentences(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Sentences(%q) = %q, want %q", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitBySentences(t *testing.T) {
	text := "A. B. C. D. E."
	chunks := chunker.SplitBySentences(text, 2)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(chunks), chunks)
	}
	if strings.Join(chunks, "") != text {
		t.Errorf("round trip failed: %q", chunks)
	}
}

// --- SplitRecursively / SplitMidpoint tests ---

func TestSplitRecursively_Halves(t *testing.T) {
	text := strings.Repeat("0123456789\n", 8)
	chunks := chunker.SplitRecursively(text, 44, 10, 3)
	if len(chunks) < 2 {
		t.Fatalf("expected ≥2 chunks, got %d", len(chunks))
	}
	if strings.Join(chunks, "") != text {
		t.Errorf("round trip failed")
	}
}

func TestSplitRecursively_NoImprovement(t *testing.T) {
	text := strings.Repeat("x", 100)
	chunks := chunker.SplitRecursively(text, 50, 10, 5)
	if len(chunks) != 1 || chunks[0] != text {
		t.Errorf("expected text returned whole, got %d chunks", len(chunks))
	}
}

func TestSplitRecursively_BelowMinSize(t *testing.T) {
	text := "ab\ncd\nef\n"
	chunks := chunker.SplitRecursively(text, 3, 10, 5)
	if len(chunks) != 1 {
		t.Errorf("expected no split below minSize, got %d chunks", len(chunks))
	}
}

func TestSplitMidpoint(t *testing.T) {
	parts := chunker.SplitMidpoint("alpha beta gamma delta")
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0]+parts[1] != "alpha beta gamma delta" {
		t.Errorf("round trip failed: %q", parts)
	}
	if !strings.HasSuffix(parts[0], " ") {
		t.Errorf("expected cut after whitespace, got %q", parts)
	}

	if got := chunker.SplitMidpoint("x"); len(got) != 1 {
		t.Errorf("single rune should not split, got %q", got)
	}
}

// --- TrailingContext tests ---

func TestTrailingContext(t *testing.T) {
	if got := chunker.TrailingContext("short", 10); got != "short" {
		t.Errorf("expected whole text, got %q", got)
	}
	if got := chunker.TrailingContext("abcdefghij", 3); got != "hij" {
		t.Errorf("expected last 3 runes, got %q", got)
	}
	if got := chunker.TrailingContext("가나다라", 2); got != "다라" {
		t.Errorf("expected rune-safe trailing slice, got %q", got)
	}

	long := strings.Repeat("a", chunker.DefaultContextChars+20)
	if got := chunker.TrailingContext(long, 0); utf8.RuneCountInString(got) != chunker.DefaultContextChars {
		t.Errorf("expected default window, got %d runes", utf8.RuneCountInString(got))
	}
}
