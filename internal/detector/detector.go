// Package detector wraps lingua-go for source-language detection and
// post-translation checks.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector. With no codes every supported language is loaded;
// otherwise only the given ISO 639-1 codes are, which is much cheaper.
// Unknown codes are ignored.
func New(codes ...string) *Detector {
	var isos []lingua.IsoCode639_1
	for _, c := range codes {
		iso := lingua.GetIsoCode639_1FromValue(strings.ToUpper(strings.TrimSpace(c)))
		if iso != lingua.UnknownIsoCode639_1 {
			isos = append(isos, iso)
		}
	}

	builder := lingua.NewLanguageDetectorBuilder()
	var detector lingua.LanguageDetector
	if len(isos) >= 2 {
		detector = builder.FromIsoCodes639_1(isos...).Build()
	} else {
		detector = builder.FromAllLanguages().Build()
	}
	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text's language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Confidence returns the detector's confidence that text is in the language
// with the given ISO 639-1 code, in [0, 1].
func (d *Detector) Confidence(text, code string) float64 {
	iso := lingua.GetIsoCode639_1FromValue(strings.ToUpper(code))
	if iso == lingua.UnknownIsoCode639_1 || strings.TrimSpace(text) == "" {
		return 0
	}
	return d.detector.ComputeLanguageConfidence(text, lingua.GetLanguageFromIsoCode639_1(iso))
}
