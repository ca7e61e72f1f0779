// Package prompt assembles the per-unit request text: the template with its
// placeholders filled, the glossary and story-bible material that applies to
// the unit, and the previous-passage block.
package prompt

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/epubtran/internal/glossary"
)

const (
	DefaultMaxTerms = 40
	DefaultMaxChars = 2000
)

// SystemInstruction is sent alongside every request.
const SystemInstruction = "You are a professional literary translator. You output only the translation, never commentary."

// DefaultTemplate is used unless a custom template file is configured.
const DefaultTemplate = `Translate the following text from {{source_language}} to {{target_language}}.
Keep paragraph breaks. Keep every <br/> and [PHn] marker exactly where it is.
Output only the translation, without notes, quotes or explanations.

{{glossary_context}}

{{world_context}}

{{previous_context}}

TEXT:
{{text}}`

const batchInstruction = `The text below is a JSON array of objects with "id" and "text".
Return a JSON array containing one object with "id" and "translated_text" for every input id, in the same order.
Never merge, split or drop entries.`

// Builder fills the template for one translation run.
type Builder struct {
	Template   string
	SourceLang string
	TargetLang string
	Glossary   []glossary.Entry
	Story      glossary.StoryBible
	// MaxTerms and MaxChars cap the glossary block. Zero means the default.
	MaxTerms int
	MaxChars int
}

// Request is the per-unit input to Build.
type Request struct {
	Text                 string
	PreviousContext      string
	PreviousIsTranslated bool
	// Batch marks Text as a JSON node payload.
	Batch bool
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// LoadTemplate reads a custom template from filename.
func LoadTemplate(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template: %w", err)
	}
	tmpl := string(data)
	if !strings.Contains(tmpl, "{{text}}") {
		return "", fmt.Errorf("prompt template %s has no {{text}} placeholder", filename)
	}
	return tmpl, nil
}

// Build returns the prompt for req.
func (b *Builder) Build(req Request) string {
	tmpl := b.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}

	r := strings.NewReplacer(
		"{{source_language}}", LanguageName(b.SourceLang),
		"{{target_language}}", LanguageName(b.TargetLang),
		"{{glossary_context}}", b.GlossaryContext(req.Text),
		"{{world_context}}", b.WorldContext(req.Text),
		"{{previous_context}}", PreviousContext(req.PreviousContext, req.PreviousIsTranslated),
	)
	out := blankRunRe.ReplaceAllString(r.Replace(tmpl), "\n\n")

	text := req.Text
	if req.Batch {
		text = batchInstruction + "\n\n" + text
	}
	// The unit text goes in last so its own blank lines are untouched.
	return strings.Replace(out, "{{text}}", text, 1)
}

type termHit struct {
	entry glossary.Entry
	count int
	order int
}

// GlossaryContext lists the glossary entries whose source term appears
// literally in text, most frequent first, capped by term count and total
// characters. It returns "" when nothing matches.
func (b *Builder) GlossaryContext(text string) string {
	if len(b.Glossary) == 0 || text == "" {
		return ""
	}
	text = norm.NFC.String(text)

	var hits []termHit
	for i, e := range b.Glossary {
		src := norm.NFC.String(e.Source)
		if src == "" {
			continue
		}
		if n := strings.Count(text, src); n > 0 {
			hits = append(hits, termHit{entry: e, count: n, order: i})
		}
	}
	if len(hits) == 0 {
		return ""
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return hits[i].order < hits[j].order
	})

	maxTerms := b.MaxTerms
	if maxTerms <= 0 {
		maxTerms = DefaultMaxTerms
	}
	maxChars := b.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var sb strings.Builder
	sb.WriteString("GLOSSARY (use these exact translations):\n")
	header := sb.Len()
	used := 0
	for _, h := range hits {
		if used >= maxTerms {
			break
		}
		line := fmt.Sprintf("- %s → %s", h.entry.Source, h.entry.Target)
		if h.entry.Note != "" {
			line += " (" + h.entry.Note + ")"
		}
		line += "\n"
		if sb.Len()-header+len(line) > maxChars {
			break
		}
		sb.WriteString(line)
		used++
	}
	if used == 0 {
		return ""
	}
	return strings.TrimRight(sb.String(), "\n")
}

// WorldContext lists the characters named (by name or alias) in text and
// every active world entry.
func (b *Builder) WorldContext(text string) string {
	text = norm.NFC.String(text)

	var chars []string
	for _, c := range b.Story.Characters {
		if mentions(text, c) {
			chars = append(chars, fmt.Sprintf("- %s: %s", c.Name, c.Description))
		}
	}
	var world []string
	for _, w := range b.Story.World {
		if w.Active {
			world = append(world, fmt.Sprintf("- %s: %s", w.Title, w.Content))
		}
	}
	if len(chars) == 0 && len(world) == 0 {
		return ""
	}

	var parts []string
	if len(chars) > 0 {
		parts = append(parts, "CHARACTERS:\n"+strings.Join(chars, "\n"))
	}
	if len(world) > 0 {
		parts = append(parts, "SETTING:\n"+strings.Join(world, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func mentions(text string, c glossary.Character) bool {
	for _, name := range append([]string{c.Name}, c.Aliases...) {
		name = norm.NFC.String(strings.TrimSpace(name))
		if name != "" && strings.Contains(text, name) {
			return true
		}
	}
	return false
}

// PreviousContext frames the trailing text of the preceding unit. The
// wording depends on whether it is the original or its translation.
func PreviousContext(text string, translated bool) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if translated {
		return "PREVIOUS PASSAGE (already translated; keep names, terms and tone consistent with it; do not repeat it):\n..." + text
	}
	return "PREVIOUS PASSAGE (original text, for pronoun and tone continuity only; do not translate it):\n..." + text
}

// LanguageName returns the English display name for a BCP 47 code, or the
// code itself when it does not parse.
func LanguageName(code string) string {
	if code == "" || code == "auto" {
		return "the source language"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

const extractionTemplate = `Read the passage below, written in {{source_language}}.
List its proper nouns and recurring special terms (people, places, organizations, titles, skills, items)
and give each one a consistent {{target_language}} translation.
Leave out terms that already appear in the GLOSSARY block.
Return a JSON array of objects with "source", "target" and an optional short "note".

{{glossary_context}}

TEXT:
{{text}}`

// Extraction builds the glossary-extraction request for one passage.
func (b *Builder) Extraction(text string) string {
	r := strings.NewReplacer(
		"{{source_language}}", LanguageName(b.SourceLang),
		"{{target_language}}", LanguageName(b.TargetLang),
		"{{glossary_context}}", b.GlossaryContext(text),
	)
	out := blankRunRe.ReplaceAllString(r.Replace(extractionTemplate), "\n\n")
	return strings.Replace(out, "{{text}}", text, 1)
}
