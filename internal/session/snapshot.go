// Package session persists in-flight translation runs so an interrupted run
// can resume without re-translating completed units.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/valpere/epubtran/internal"
)

// SnapshotVersion is bumped when the snapshot layout changes incompatibly.
const SnapshotVersion = 1

type Mode string

const (
	ModeText Mode = "text"
	ModeEpub Mode = "epub"
)

type ChunkStatus string

const (
	StatusCompleted ChunkStatus = "completed"
	StatusFailed    ChunkStatus = "failed"
)

var (
	ErrFingerprintMismatch = errors.New("source does not match the session fingerprint")
	ErrUnsupportedVersion  = errors.New("unsupported snapshot version")
)

type Meta struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	AppVersion string    `json:"app_version"`
}

type Progress struct {
	TotalChunks     int `json:"total_chunks"`
	ProcessedChunks int `json:"processed_chunks"`
}

type ChunkRecord struct {
	OriginalText       string                 `json:"original_text"`
	TranslatedText     string                 `json:"translated_text"`
	TranslatedSegments []string               `json:"translated_segments,omitempty"`
	Status             ChunkStatus            `json:"status"`
	Error              string                 `json:"error,omitempty"`
	Reason             internal.FailureReason `json:"reason,omitempty"`
}

// RunConfig is the part of the settings that shapes the unit list and the
// prompts. Credentials are never stored.
type RunConfig struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	SourceLang       string `json:"source_lang"`
	TargetLang       string `json:"target_lang"`
	ChunkSize        int    `json:"chunk_size"`
	MaxNodesPerChunk int    `json:"max_nodes_per_chunk,omitempty"`
	Concurrency      int    `json:"concurrency"`
	ContextChars     int    `json:"context_chars"`
	UseContext       bool   `json:"use_context"`
	AllowSafetyRetry bool   `json:"allow_safety_retry"`
	Input            string `json:"input"`
	Output           string `json:"output"`
}

// EpubStructure records the spine documents that were translated.
type EpubStructure struct {
	OPFPath   string         `json:"opf_path"`
	Documents []EpubDocument `json:"documents"`
}

type EpubDocument struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type Snapshot struct {
	Meta              Meta                `json:"meta"`
	SourceFingerprint string              `json:"source_fingerprint,omitempty"`
	Config            RunConfig           `json:"config"`
	Mode              Mode                `json:"mode"`
	SourceText        string              `json:"source_text"`
	Progress          Progress            `json:"progress"`
	TranslatedChunks  map[int]ChunkRecord `json:"translated_chunks"`
	EpubStructure     *EpubStructure      `json:"epub_structure,omitempty"`
}

// Record replaces the chunk table with results and recomputes progress.
func (s *Snapshot) Record(results []internal.TranslationResult, total int) {
	s.TranslatedChunks = make(map[int]ChunkRecord, len(results))
	for _, r := range results {
		rec := ChunkRecord{
			OriginalText:       r.OriginalText,
			TranslatedText:     r.TranslatedText,
			TranslatedSegments: r.TranslatedSegments,
			Status:             StatusCompleted,
		}
		if !r.Success {
			rec.Status = StatusFailed
			rec.Error = r.Error
			rec.Reason = r.Reason
		}
		s.TranslatedChunks[r.ChunkIndex] = rec
	}
	s.Progress = Progress{TotalChunks: total, ProcessedChunks: len(results)}
}

// Results returns every recorded result, completed and failed, ordered by
// chunk index.
func (s *Snapshot) Results() []internal.TranslationResult {
	out := make([]internal.TranslationResult, 0, len(s.TranslatedChunks))
	for idx, rec := range s.TranslatedChunks {
		out = append(out, rec.result(idx))
	}
	internal.SortResults(out)
	return out
}

// Seeds returns the completed results, the ones a resumed run may reuse.
func (s *Snapshot) Seeds() []internal.TranslationResult {
	var out []internal.TranslationResult
	for _, r := range s.Results() {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

func (rec ChunkRecord) result(idx int) internal.TranslationResult {
	r := internal.TranslationResult{
		ChunkIndex:         idx,
		OriginalText:       rec.OriginalText,
		TranslatedText:     rec.TranslatedText,
		TranslatedSegments: rec.TranslatedSegments,
		Success:            rec.Status == StatusCompleted,
	}
	if !r.Success {
		r.Error = rec.Error
		r.Reason = rec.Reason
		if r.Reason == internal.ReasonNone {
			r.Reason = internal.ReasonError
		}
	}
	return r
}

// Verify checks the snapshot version and, when both are known, that fp
// matches the recorded source fingerprint.
func (s *Snapshot) Verify(fp string) error {
	if s.Meta.Version > SnapshotVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Meta.Version)
	}
	if s.SourceFingerprint != "" && fp != "" && s.SourceFingerprint != fp {
		return ErrFingerprintMismatch
	}
	return nil
}

// Resume splits re-derived units into the remainder that still needs work
// and the seed results that must not be recomputed. The remainder starts at
// the first unit, by position, without a completed result.
func Resume(s *Snapshot, units []internal.Unit) ([]internal.Unit, []internal.TranslationResult) {
	seeds := s.Seeds()
	done := make(map[int]bool, len(seeds))
	for _, r := range seeds {
		done[r.ChunkIndex] = true
	}
	return Remainder(units, func(idx int) bool { return done[idx] }), seeds
}
