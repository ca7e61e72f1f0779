package placeholder_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/document"
	"github.com/valpere/epubtran/internal/executor"
	"github.com/valpere/epubtran/internal/placeholder"
)

func TestProtect(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		markers int
		gone    []string
	}{
		{"no markup", "Hello, world!", 0, nil},
		{"html tags", "<p>Hello <b>world</b></p>", 4, []string{"<p>", "<b>", "</b>", "</p>"}},
		{"fenced code", "Before\n```go\nfmt.Println(\"hi\")\n```\nAfter", 1, []string{"```"}},
		{"inline code", "Use `fmt.Println` to print.", 1, []string{"`fmt.Println`"}},
		{"mixed", "See <a href=\"#\">link</a> or use `code` here.", 3, []string{"<a", "`code`"}},
		{"comparison is not a tag", "if a < b and c > d", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, markers := placeholder.Protect(tt.text)
			if len(markers) != tt.markers {
				t.Fatalf("expected %d markers, got %d: %v", tt.markers, len(markers), markers)
			}
			for _, s := range tt.gone {
				if strings.Contains(got, s) {
					t.Errorf("expected %q to be replaced in %q", s, got)
				}
			}
			if back := placeholder.Restore(got, markers); back != tt.text {
				t.Errorf("round-trip failed:\n  original: %q\n  restored: %q", tt.text, back)
			}
		})
	}
}

func TestRestore_OutOfRangeIndexIgnored(t *testing.T) {
	restored := placeholder.Restore("[PH99] some text", []string{"<p>"})
	if restored != "[PH99] some text" {
		t.Errorf("expected [PH99] to remain, got %q", restored)
	}
}

func TestValidate(t *testing.T) {
	markers := []string{"<p>", "</p>", "<b>"}
	if missing := placeholder.Validate("[PH0] a [PH1] b [PH2]", markers); len(missing) != 0 {
		t.Errorf("expected no missing, got %v", missing)
	}
	missing := placeholder.Validate("[PH0] some text", markers)
	if len(missing) != 2 || missing[0] != 1 || missing[1] != 2 {
		t.Errorf("expected missing [1 2], got %v", missing)
	}
}

// echoTranslator returns the text it receives with a prefix, or drops every
// marker when drop is set.
type echoTranslator struct {
	calls atomic.Int32
	seen  string
	drop  bool
}

func (e *echoTranslator) Translate(_ context.Context, u internal.Unit, _ executor.ChunkOptions) internal.TranslationResult {
	e.calls.Add(1)
	e.seen = u.Text
	out := "T:" + u.Text
	if e.drop {
		out = "T:nothing"
	}
	return internal.TranslationResult{ChunkIndex: u.Index, OriginalText: u.Text, TranslatedText: out, Success: true}
}

func TestTranslator_ProtectsAndRestores(t *testing.T) {
	next := &echoTranslator{}
	tr := placeholder.Translator{Next: next}
	u := internal.Unit{Index: 3, Text: "Run `make` <b>now</b>"}

	res := tr.Translate(context.Background(), u, executor.ChunkOptions{})
	if strings.Contains(next.seen, "`make`") || strings.Contains(next.seen, "<b>") {
		t.Errorf("markup reached the model: %q", next.seen)
	}
	if !res.Success || res.TranslatedText != "T:Run `make` <b>now</b>" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.OriginalText != u.Text {
		t.Errorf("expected original text to be the unprotected text, got %q", res.OriginalText)
	}
}

func TestTranslator_DroppedMarkersFail(t *testing.T) {
	tr := placeholder.Translator{Next: &echoTranslator{drop: true}}
	res := tr.Translate(context.Background(), internal.Unit{Index: 1, Text: "a <i>b</i>"}, executor.ChunkOptions{})
	if res.Success {
		t.Fatal("expected failure when protected spans are lost")
	}
	if res.Reason != internal.ReasonError || res.TranslatedText != "" {
		t.Errorf("unexpected failure %+v", res)
	}
}

func TestTranslator_PlainTextAndBatchPassThrough(t *testing.T) {
	next := &echoTranslator{}
	tr := placeholder.Translator{Next: next}

	tr.Translate(context.Background(), internal.Unit{Text: "plain"}, executor.ChunkOptions{})
	if next.seen != "plain" {
		t.Errorf("expected plain text unchanged, got %q", next.seen)
	}
	batch := internal.Unit{Text: "<b>x</b>", Nodes: []*document.TextNode{{ID: "n1", Content: "<b>x</b>"}}}
	tr.Translate(context.Background(), batch, executor.ChunkOptions{})
	if next.seen != "<b>x</b>" {
		t.Errorf("expected batch unchanged, got %q", next.seen)
	}
	if next.calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", next.calls.Load())
	}
}
