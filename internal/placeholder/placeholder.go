// Package placeholder protects structured content (fenced code blocks,
// inline code spans, HTML tags) in plain-text units by replacing it with
// numbered markers ([PH0], [PH1], …) that the model is told to keep.
// After translation, Restore substitutes the markers back.
package placeholder

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/executor"
	"github.com/valpere/epubtran/internal/scheduler"
)

var (
	// fenced code blocks: ```...``` (non-greedy, may span lines)
	reFencedCode = regexp.MustCompile("(?s)```.*?```")

	// inline code spans: `...`
	reInlineCode = regexp.MustCompile("`[^`\n]+`")

	// HTML/XML tags: opening, closing, and self-closing
	reHTMLTag = regexp.MustCompile(`</?[A-Za-z][^<>]*>`)

	// placeholder reference in translated text
	rePlaceholder = regexp.MustCompile(`\[PH(\d+)\]`)
)

// Protect replaces structured markup with numbered placeholders in the order
// it is found. It returns the modified text and the captured originals.
func Protect(text string) (string, []string) {
	var markers []string
	replace := func(match string) string {
		id := "[PH" + strconv.Itoa(len(markers)) + "]"
		markers = append(markers, match)
		return id
	}

	// Fenced first (longest match), then inline, then HTML tags.
	text = reFencedCode.ReplaceAllStringFunc(text, replace)
	text = reInlineCode.ReplaceAllStringFunc(text, replace)
	text = reHTMLTag.ReplaceAllStringFunc(text, replace)

	return text, markers
}

// Restore substitutes [PHn] markers in text with the originals captured by
// Protect. Unknown indices are left as they are.
func Restore(text string, markers []string) string {
	return rePlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		idx, err := strconv.Atoi(match[3 : len(match)-1])
		if err != nil || idx >= len(markers) {
			return match
		}
		return markers[idx]
	})
}

// Validate returns the indices of markers missing from text.
func Validate(text string, markers []string) []int {
	var missing []int
	for i := range markers {
		if !strings.Contains(text, "[PH"+strconv.Itoa(i)+"]") {
			missing = append(missing, i)
		}
	}
	return missing
}

// Translator protects markup in single-text units around Next. Node batches
// pass through untouched: their text nodes never carry markup.
type Translator struct {
	Next scheduler.Translator
}

func (t Translator) Translate(ctx context.Context, u internal.Unit, opts executor.ChunkOptions) internal.TranslationResult {
	if u.IsBatch() {
		return t.Next.Translate(ctx, u, opts)
	}
	protected, markers := Protect(u.Text)
	if len(markers) == 0 {
		return t.Next.Translate(ctx, u, opts)
	}

	inner := u
	inner.Text = protected
	res := t.Next.Translate(ctx, inner, opts)
	res.OriginalText = u.Text
	if !res.Success {
		return res
	}
	if missing := Validate(res.TranslatedText, markers); len(missing) > 0 {
		return internal.Failed(u.Index, u.Text, internal.ReasonError,
			fmt.Sprintf("translation dropped %d of %d protected spans", len(missing), len(markers)))
	}
	res.TranslatedText = Restore(res.TranslatedText, markers)
	return res
}
