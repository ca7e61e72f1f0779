package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valpere/epubtran/internal/glossary"
)

func TestGlossaryContext_LiteralPresence(t *testing.T) {
	b := &Builder{Glossary: []glossary.Entry{{Source: "Apple", Target: "사과"}}}

	got := b.GlossaryContext("Hello world. Apple pie.")
	if !strings.Contains(got, "Apple") || !strings.Contains(got, "사과") {
		t.Errorf("expected glossary context to contain the entry, got %q", got)
	}

	if got := b.GlossaryContext("Hello world."); got != "" {
		t.Errorf("expected empty glossary context, got %q", got)
	}
}

func TestGlossaryContext_RankedAndCapped(t *testing.T) {
	b := &Builder{
		Glossary: []glossary.Entry{
			{Source: "cat", Target: "고양이"},
			{Source: "dog", Target: "개"},
			{Source: "bird", Target: "새"},
		},
		MaxTerms: 2,
	}
	got := b.GlossaryContext("dog dog dog cat bird bird")

	lines := strings.Split(got, "\n")[1:]
	if len(lines) != 2 {
		t.Fatalf("expected 2 terms, got %d: %q", len(lines), got)
	}
	if !strings.Contains(lines[0], "dog") || !strings.Contains(lines[1], "bird") {
		t.Errorf("expected dog then bird, got %q", lines)
	}
}

func TestGlossaryContext_CharBudget(t *testing.T) {
	b := &Builder{
		Glossary: []glossary.Entry{
			{Source: "alpha", Target: strings.Repeat("a", 30)},
			{Source: "beta", Target: strings.Repeat("b", 30)},
		},
		MaxChars: 50,
	}
	got := b.GlossaryContext("alpha beta")
	if strings.Contains(got, "beta") {
		t.Errorf("expected second term to exceed budget, got %q", got)
	}
	if !strings.Contains(got, "alpha") {
		t.Errorf("expected first term, got %q", got)
	}
}

func TestGlossaryContext_NormalizesForms(t *testing.T) {
	// "é" decomposed in the glossary, precomposed in the text.
	b := &Builder{Glossary: []glossary.Entry{{Source: "Cafe\u0301", Target: "카페"}}}
	if got := b.GlossaryContext("Le Caf\u00e9 est ouvert"); !strings.Contains(got, "카페") {
		t.Errorf("expected NFC match, got %q", got)
	}
}

func TestWorldContext(t *testing.T) {
	b := &Builder{Story: glossary.StoryBible{
		Characters: []glossary.Character{
			{Name: "Elena", Aliases: []string{"Lena"}, Description: "sister"},
			{Name: "Marcus", Description: "rival"},
		},
		World: []glossary.WorldEntry{
			{Title: "Magic", Content: "costs memories", Active: true},
			{Title: "Old", Content: "unused", Active: false},
		},
	}}

	got := b.WorldContext("Lena looked away.")
	if !strings.Contains(got, "Elena: sister") {
		t.Errorf("expected alias match for Elena, got %q", got)
	}
	if strings.Contains(got, "Marcus") {
		t.Errorf("unexpected Marcus in %q", got)
	}
	if !strings.Contains(got, "Magic") || strings.Contains(got, "unused") {
		t.Errorf("expected only active world entries, got %q", got)
	}

	if got := b.WorldContext("Nobody here."); strings.Contains(got, "CHARACTERS") {
		t.Errorf("expected no characters section, got %q", got)
	}
}

func TestPreviousContext(t *testing.T) {
	if PreviousContext("  ", false) != "" {
		t.Error("expected empty context for blank text")
	}
	orig := PreviousContext("tail", false)
	tr := PreviousContext("tail", true)
	if orig == tr {
		t.Error("expected framing to differ between original and translated context")
	}
	if !strings.HasSuffix(orig, "tail") || !strings.HasSuffix(tr, "tail") {
		t.Error("expected context text at the end of the block")
	}
}

func TestBuild(t *testing.T) {
	b := &Builder{
		SourceLang: "en",
		TargetLang: "ko",
		Glossary:   []glossary.Entry{{Source: "Apple", Target: "사과"}},
	}
	text := "An Apple.\n\n\n\nThe end."
	got := b.Build(Request{Text: text, PreviousContext: "before", PreviousIsTranslated: true})

	if !strings.Contains(got, "from English to Korean") {
		t.Errorf("expected language names, got %q", got)
	}
	if !strings.Contains(got, "사과") {
		t.Error("expected glossary block")
	}
	if !strings.Contains(got, "already translated") {
		t.Error("expected translated previous-context framing")
	}
	if !strings.HasSuffix(got, text) {
		t.Error("expected unit text verbatim at the end")
	}
	if strings.Contains(strings.TrimSuffix(got, text), "\n\n\n") {
		t.Error("expected empty sections to collapse")
	}
}

func TestBuild_BatchAndCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	os.WriteFile(path, []byte("To {{target_language}}: {{text}}"), 0644)

	tmpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate failed: %v", err)
	}
	b := &Builder{Template: tmpl, TargetLang: "fr"}

	got := b.Build(Request{Text: `[{"id":"a","text":"x"}]`, Batch: true})
	if !strings.HasPrefix(got, "To French: ") {
		t.Errorf("unexpected prompt %q", got)
	}
	if !strings.Contains(got, "translated_text") {
		t.Error("expected batch instruction")
	}

	bad := filepath.Join(t.TempDir(), "bad.txt")
	os.WriteFile(bad, []byte("no placeholder"), 0644)
	if _, err := LoadTemplate(bad); err == nil {
		t.Error("expected error for template without text placeholder")
	}
}

func TestLanguageName(t *testing.T) {
	tests := map[string]string{
		"ko":   "Korean",
		"en":   "English",
		"auto": "the source language",
		"!!":   "!!",
	}
	for code, want := range tests {
		if got := LanguageName(code); got != want {
			t.Errorf("LanguageName(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestExtraction(t *testing.T) {
	b := &Builder{
		SourceLang: "en",
		TargetLang: "ko",
		Glossary:   []glossary.Entry{{Source: "Seoul", Target: "서울"}, {Source: "Busan", Target: "부산"}},
	}
	got := b.Extraction("Min-jun left Seoul at dawn.")

	for _, want := range []string{"written in English", "Korean translation", "- Seoul → 서울", "TEXT:\nMin-jun left Seoul at dawn."} {
		if !strings.Contains(got, want) {
			t.Errorf("extraction prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Busan") {
		t.Error("terms absent from the passage should not be listed")
	}
}
