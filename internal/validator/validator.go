// Package validator checks that a translation result is in the expected target language.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

var (
	untranslatedRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(internal.UntranslatedOpen) + `.*?` + regexp.QuoteMeta(internal.UntranslatedClose))
	breakRe        = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// Validator checks that a translation result is written in the expected target language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator. A nil detector builds one over all languages.
func New(det *detector.Detector) *Validator {
	if det == nil {
		det = detector.New()
	}
	return &Validator{det: det}
}

// BaseCode reduces a language tag such as "pt-BR" to its ISO 639-1 base
// ("pt"). Unparseable input is returned lower-cased.
func BaseCode(tag string) string {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(tag))
	}
	base, _ := t.Base()
	return base.String()
}

// IsValid returns true when translatedText appears to be written in targetLang.
//
// Untranslated spans and line-break tags are removed before detection. Short
// texts (fewer than minValidationLength runes) and texts whose language
// cannot be determined pass without error. When the detected language
// differs from targetLang the returned error names both codes.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	if targetLang == "" {
		return true, nil
	}

	text := strings.TrimSpace(translatedText)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}
	text = strings.TrimSpace(breakRe.ReplaceAllString(untranslatedRe.ReplaceAllString(text, " "), " "))

	// Detector is unreliable for very short texts; skip validation.
	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		// Ambiguous language; cannot validate, pass through.
		return true, nil
	}

	want := BaseCode(targetLang)
	if detected != want {
		return false, fmt.Errorf("expected %s but detected %s", want, detected)
	}

	return true, nil
}
