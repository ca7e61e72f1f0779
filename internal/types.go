package internal

import (
	"sort"
	"strings"

	"github.com/valpere/epubtran/internal/document"
)

// FailureReason classifies why a unit failed. Empty for successful units.
type FailureReason string

const (
	ReasonNone          FailureReason = ""
	ReasonRateLimited   FailureReason = "rate_limited"
	ReasonCancelled     FailureReason = "cancelled"
	ReasonContentSafety FailureReason = "content_safety"
	ReasonInvalid       FailureReason = "invalid_request"
	ReasonError         FailureReason = "error"
)

// Unit is one chunk of work: either plain text or a batch of text nodes.
type Unit struct {
	Index     int                  `json:"index"`
	FileIndex int                  `json:"file_index"`
	Text      string               `json:"text"`
	Nodes     []*document.TextNode `json:"-"`
}

// IsBatch reports whether the unit is a node batch.
func (u Unit) IsBatch() bool {
	return len(u.Nodes) > 0
}

type TranslationResult struct {
	ChunkIndex         int           `json:"chunk_index"`
	OriginalText       string        `json:"original_text"`
	TranslatedText     string        `json:"translated_text"`
	TranslatedSegments []string      `json:"translated_segments,omitempty"`
	Success            bool          `json:"success"`
	Error              string        `json:"error,omitempty"`
	Reason             FailureReason `json:"reason,omitempty"`
}

// Failed builds a failed result. TranslatedText is always empty.
func Failed(index int, original string, reason FailureReason, msg string) TranslationResult {
	return TranslationResult{
		ChunkIndex:   index,
		OriginalText: original,
		Success:      false,
		Error:        msg,
		Reason:       reason,
	}
}

// SortResults orders results by chunk index in place.
func SortResults(results []TranslationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
}

type JobProgress struct {
	TotalChunks          int    `json:"total_chunks"`
	ProcessedChunks      int    `json:"processed_chunks"`
	SuccessfulChunks     int    `json:"successful_chunks"`
	FailedChunks         int    `json:"failed_chunks"`
	CurrentStatusMessage string `json:"current_status_message"`
	ETASeconds           *int   `json:"eta_seconds,omitempty"`
}

// Markers around source text that could not be translated after every
// retry. The text stays visible in the output for a reviewer to find.
const (
	UntranslatedOpen  = "[[UNTRANSLATED]]"
	UntranslatedClose = "[[/UNTRANSLATED]]"
)

// MarkUntranslated wraps text in the untranslated markers.
func MarkUntranslated(text string) string {
	return UntranslatedOpen + text + UntranslatedClose
}

// HasUntranslated reports whether text carries an untranslated marker.
func HasUntranslated(text string) bool {
	return strings.Contains(text, UntranslatedOpen)
}
