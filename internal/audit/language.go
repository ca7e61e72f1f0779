package audit

import (
	"github.com/valpere/epubtran/internal"
)

// LanguageValidator is satisfied by *validator.Validator.
type LanguageValidator interface {
	IsValid(text, targetLang string) (bool, error)
}

// CheckLanguage flags successful results that do not read as targetLang.
func CheckLanguage(results []internal.TranslationResult, targetLang string, v LanguageValidator) []Finding {
	var out []Finding
	for _, r := range results {
		if !r.Success {
			continue
		}
		ok, err := v.IsValid(r.TranslatedText, targetLang)
		if ok {
			continue
		}
		f := Finding{ChunkIndex: r.ChunkIndex, Kind: KindWrongLanguage}
		if err != nil {
			f.Detail = err.Error()
		}
		out = append(out, f)
	}
	return out
}
