// Package audit flags translated units whose length or language looks wrong.
// Findings are advisory; nothing here blocks a run.
package audit

import (
	"math"
	"unicode/utf8"

	"github.com/valpere/epubtran/internal"
)

// MinSamples is the number of successful results below which length
// analysis reports nothing.
const MinSamples = 5

// ZThreshold is the residual z-score beyond which a unit is flagged.
const ZThreshold = 2.0

type Kind string

const (
	KindOmission      Kind = "omission"
	KindFabrication   Kind = "fabrication"
	KindWrongLanguage Kind = "wrong_language"
)

type Finding struct {
	ChunkIndex       int
	Kind             Kind
	SourceLength     int
	TranslatedLength int
	Expected         float64
	ZScore           float64
	Detail           string
}

// Report is the least-squares fit translated = Slope*source + Intercept over
// successful results, with the residual standard deviation.
type Report struct {
	Slope      float64
	Intercept  float64
	StdDev     float64
	Samples    int
	Suspicious []Finding
}

// Analyze fits lengths in runes and flags units whose residual z-score is
// below -ZThreshold (omission) or above ZThreshold (fabrication). Fewer than
// MinSamples successes, identical source lengths or zero residual spread
// yield no findings.
func Analyze(results []internal.TranslationResult) Report {
	var xs, ys []float64
	var idx []int
	for _, r := range results {
		if !r.Success {
			continue
		}
		xs = append(xs, float64(utf8.RuneCountInString(r.OriginalText)))
		ys = append(ys, float64(utf8.RuneCountInString(r.TranslatedText)))
		idx = append(idx, r.ChunkIndex)
	}

	rep := Report{Samples: len(xs)}
	if len(xs) < MinSamples {
		return rep
	}

	n := float64(len(xs))
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - mx
		sxx += dx * dx
		sxy += dx * (ys[i] - my)
	}
	if sxx == 0 {
		return rep
	}
	rep.Slope = sxy / sxx
	rep.Intercept = my - rep.Slope*mx

	residuals := make([]float64, len(xs))
	var ss float64
	for i := range xs {
		residuals[i] = ys[i] - (rep.Slope*xs[i] + rep.Intercept)
		ss += residuals[i] * residuals[i]
	}
	rep.StdDev = math.Sqrt(ss / n)
	if rep.StdDev < 1e-9 {
		rep.StdDev = 0
		return rep
	}

	for i, res := range residuals {
		z := res / rep.StdDev
		var kind Kind
		switch {
		case z < -ZThreshold:
			kind = KindOmission
		case z > ZThreshold:
			kind = KindFabrication
		default:
			continue
		}
		rep.Suspicious = append(rep.Suspicious, Finding{
			ChunkIndex:       idx[i],
			Kind:             kind,
			SourceLength:     int(xs[i]),
			TranslatedLength: int(ys[i]),
			Expected:         rep.Slope*xs[i] + rep.Intercept,
			ZScore:           z,
		})
	}
	return rep
}
