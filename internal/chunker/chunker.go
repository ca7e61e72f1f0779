// Package chunker splits plain text and flattened document nodes into
// translation units bounded by character count and, for nodes, by node
// count. It also extracts the trailing context window passed between
// consecutive units.
package chunker

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultContextChars is the default size of the trailing context window.
	DefaultContextChars = 500
)

// Sized is implemented by anything whose translatable character volume can
// be measured. Non-translatable nodes report zero.
type Sized interface {
	TextLength() int
}

// SplitBySize splits text on line boundaries into chunks of at most
// maxChars runes. Line terminators stay attached to their line, so joining
// the result reproduces text exactly. A single line longer than maxChars is
// cut at rune boundaries into maxChars-sized pieces.
//
// If maxChars ≤ 0 the whole text is returned as a single chunk.
func SplitBySize(text string, maxChars int) []string {
	if text == "" {
		return nil
	}
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}
	return splitLines(text, maxChars, true)
}

// splitLines accumulates whole lines until the next one would overflow
// maxChars. When force is false an over-long line is emitted as one
// oversized chunk instead of being cut.
func splitLines(text string, maxChars int, force bool) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		n := utf8.RuneCountInString(line)
		if currentLen > 0 && currentLen+n > maxChars {
			flush()
		}
		if n > maxChars && force {
			slog.Warn("line exceeds chunk size, splitting at character boundary",
				"line_chars", n, "max_chars", maxChars)
			chunks = append(chunks, hardSplit(line, maxChars)...)
			continue
		}
		current.WriteString(line)
		currentLen += n
	}
	flush()

	return chunks
}

func hardSplit(s string, size int) []string {
	runes := []rune(s)
	pieces := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// SplitNodesBySize groups nodes so that no group holds more than maxNodes
// items and the summed TextLength of a group does not exceed maxChars. A new
// group starts when either limit would be crossed by the next node; a node
// that alone exceeds maxChars gets a group of its own. Empty groups are
// never produced. A limit ≤ 0 disables that constraint.
func SplitNodesBySize[N Sized](nodes []N, maxChars, maxNodes int) [][]N {
	var groups [][]N
	var current []N
	currentChars := 0

	for _, n := range nodes {
		size := n.TextLength()
		overChars := maxChars > 0 && currentChars+size > maxChars
		overCount := maxNodes > 0 && len(current) >= maxNodes
		if len(current) > 0 && (overChars || overCount) {
			groups = append(groups, current)
			current = nil
			currentChars = 0
		}
		current = append(current, n)
		currentChars += size
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}

// Sentences splits text into sentences. A boundary follows ". ! ?" when the
// next rune is whitespace or the end of text, follows "。！？" unconditionally,
// and follows every line break. Whitespace after a boundary stays with the
// preceding sentence, so joining the result reproduces text.
func Sentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0

	for i := 0; i < len(runes); i++ {
		boundary := false
		switch r := runes[i]; r {
		case '\n', '。', '！', '？':
			boundary = true
		case '.', '!', '?':
			boundary = i+1 == len(runes) || unicode.IsSpace(runes[i+1])
		}
		if !boundary {
			continue
		}
		end := i + 1
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		out = append(out, string(runes[start:end]))
		start = end
		i = end - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}

	return out
}

// SplitBySentences groups consecutive sentences, at most
// maxSentencesPerChunk per chunk.
func SplitBySentences(text string, maxSentencesPerChunk int) []string {
	sentences := Sentences(text)
	if maxSentencesPerChunk <= 0 || len(sentences) <= maxSentencesPerChunk {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(sentences); start += maxSentencesPerChunk {
		end := min(start+maxSentencesPerChunk, len(sentences))
		chunks = append(chunks, strings.Join(sentences[start:end], ""))
	}
	return chunks
}

// SplitRecursively splits text by line boundaries at targetSize without
// cutting lines. Pieces still larger than the target are split again with
// half the target, up to maxDepth levels and never below minSize. When a
// split yields a single piece the text is returned unchanged.
func SplitRecursively(text string, targetSize, minSize, maxDepth int) []string {
	if maxDepth <= 0 || targetSize <= 0 || targetSize < minSize ||
		utf8.RuneCountInString(text) <= targetSize {
		return []string{text}
	}

	chunks := splitLines(text, targetSize, false)
	if len(chunks) <= 1 {
		return []string{text}
	}

	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > targetSize {
			out = append(out, SplitRecursively(c, targetSize/2, minSize, maxDepth-1)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// SplitMidpoint cuts text in two at the whitespace nearest its middle, or
// at the middle rune when there is none. Texts shorter than two runes are
// returned whole.
func SplitMidpoint(text string) []string {
	runes := []rune(text)
	if len(runes) < 2 {
		return []string{text}
	}

	mid := len(runes) / 2
	cut := mid
	for offset := 0; offset < mid; offset++ {
		if unicode.IsSpace(runes[mid+offset]) {
			cut = mid + offset + 1
			break
		}
		if unicode.IsSpace(runes[mid-offset-1]) {
			cut = mid - offset
			break
		}
	}
	if cut <= 0 || cut >= len(runes) {
		cut = mid
	}

	return []string{string(runes[:cut]), string(runes[cut:])}
}

// TrailingContext returns the last maxChars runes of text for use as the
// sliding context of the next unit. If maxChars ≤ 0, DefaultContextChars is
// used.
func TrailingContext(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultContextChars
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[len(runes)-maxChars:])
}
