// Package scheduler drives the executor over an ordered list of units with
// bounded concurrency, carrying a sliding context window between units.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/chunker"
	"github.com/valpere/epubtran/internal/executor"
)

// ErrRunHalted is returned when a rate-limit failure stopped the run.
var ErrRunHalted = errors.New("run halted after rate limit")

// Translator is the unit executor.
type Translator interface {
	Translate(ctx context.Context, unit internal.Unit, opts executor.ChunkOptions) internal.TranslationResult
}

type Config struct {
	// Concurrency is the in-flight call limit. Values below 1 mean 1.
	Concurrency int
	// ContextChars is the trailing window passed as previous context.
	ContextChars int
	// DisableContext sends no previous context at all.
	DisableContext   bool
	AllowSafetyRetry bool
}

// Callbacks receive progress and accepted results from the run loop. They
// are called from the goroutine that called Run.
type Callbacks struct {
	OnProgress func(internal.JobProgress)
	OnResult   func(internal.TranslationResult)
}

type Scheduler struct {
	tr     Translator
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(tr Translator, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = chunker.DefaultContextChars
	}
	return &Scheduler{tr: tr, cfg: cfg, logger: logger, now: time.Now}
}

// run is the mutable state of one Run call. Only the Run goroutine touches
// it.
type run struct {
	units    []internal.Unit
	position map[int]int
	results  map[int]internal.TranslationResult
	progress internal.JobProgress
	start    time.Time
	finished int
}

// Run translates units in order and returns every result it holds, sorted
// by chunk index. Prior results whose original text length matches the
// re-derived unit are reused without a model call.
//
// The returned error is ErrRunHalted (wrapped) after a rate limit, the
// context error after cancellation, and nil otherwise. Unit failures are
// never errors; they are results with Success false.
func (s *Scheduler) Run(ctx context.Context, units []internal.Unit, prior []internal.TranslationResult, cb Callbacks) ([]internal.TranslationResult, error) {
	priorByIndex := make(map[int]internal.TranslationResult, len(prior))
	for _, p := range prior {
		priorByIndex[p.ChunkIndex] = p
	}

	kept := make(map[int]internal.TranslationResult)
	var pending []internal.Unit
	for _, u := range units {
		if p, ok := priorByIndex[u.Index]; ok && reusable(p, u) {
			s.logger.Debug("reusing prior result", "chunk", u.Index)
			kept[u.Index] = p
			continue
		}
		pending = append(pending, u)
	}
	return s.run(ctx, units, kept, pending, cb)
}

// Retry re-translates exactly the units whose index is in indices. Every
// other result in current is kept as it is, failed or not, and serves as
// context for the retried units.
func (s *Scheduler) Retry(ctx context.Context, units []internal.Unit, current []internal.TranslationResult, indices []int, cb Callbacks) ([]internal.TranslationResult, error) {
	want := make(map[int]bool, len(indices))
	for _, i := range indices {
		want[i] = true
	}
	kept := make(map[int]internal.TranslationResult, len(current))
	for _, r := range current {
		if !want[r.ChunkIndex] {
			kept[r.ChunkIndex] = r
		}
	}
	var pending []internal.Unit
	for _, u := range units {
		if want[u.Index] {
			pending = append(pending, u)
		}
	}
	return s.run(ctx, units, kept, pending, cb)
}

func (s *Scheduler) run(ctx context.Context, units []internal.Unit, kept map[int]internal.TranslationResult, pending []internal.Unit, cb Callbacks) ([]internal.TranslationResult, error) {
	r := &run{
		units:    units,
		position: make(map[int]int, len(units)),
		results:  make(map[int]internal.TranslationResult, len(units)),
		start:    s.now(),
	}
	r.progress.TotalChunks = len(units)
	for i, u := range units {
		r.position[u.Index] = i
	}
	for idx, res := range kept {
		r.results[idx] = res
		r.progress.ProcessedChunks++
		if res.Success {
			r.progress.SuccessfulChunks++
		} else {
			r.progress.FailedChunks++
		}
	}
	r.progress.CurrentStatusMessage = fmt.Sprintf("Starting: %d of %d chunks remaining", len(pending), len(units))
	s.emitProgress(cb, r)

	done := make(chan internal.TranslationResult, len(pending))
	inflight, next := 0, 0
	var halted error

loop:
	for {
		for halted == nil && ctx.Err() == nil && inflight < s.cfg.Concurrency && next < len(pending) {
			u := pending[next]
			next++
			opts := s.options(r, u)
			inflight++
			go func() {
				done <- s.tr.Translate(ctx, u, opts)
			}()
		}
		if inflight == 0 {
			break
		}

		select {
		case res := <-done:
			inflight--
			if ctx.Err() != nil {
				// Discarded: the unit stays unprocessed for resume.
				continue
			}
			s.accept(cb, r, res)
			if res.Reason == internal.ReasonRateLimited && halted == nil {
				halted = fmt.Errorf("%w: chunk %d: %s", ErrRunHalted, res.ChunkIndex, res.Error)
				s.logger.Warn("rate limit reached, no further chunks will start", "chunk", res.ChunkIndex)
			}
		case <-ctx.Done():
			break loop
		}
	}

	out := make([]internal.TranslationResult, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, res)
	}
	internal.SortResults(out)

	switch {
	case halted != nil:
		return out, halted
	case ctx.Err() != nil:
		s.logger.Info("run cancelled", "processed", r.progress.ProcessedChunks, "total", r.progress.TotalChunks)
		return out, ctx.Err()
	}
	return out, nil
}

func (s *Scheduler) accept(cb Callbacks, r *run, res internal.TranslationResult) {
	r.results[res.ChunkIndex] = res
	r.finished++
	r.progress.ProcessedChunks++
	if res.Success {
		r.progress.SuccessfulChunks++
	} else {
		r.progress.FailedChunks++
	}

	remaining := r.progress.TotalChunks - r.progress.ProcessedChunks
	elapsed := s.now().Sub(r.start)
	eta := int((elapsed.Seconds() / float64(r.finished)) * float64(remaining))
	r.progress.ETASeconds = &eta
	r.progress.CurrentStatusMessage = fmt.Sprintf("Translated chunk %d/%d", r.progress.ProcessedChunks, r.progress.TotalChunks)

	if cb.OnResult != nil {
		cb.OnResult(res)
	}
	s.emitProgress(cb, r)
}

func (s *Scheduler) emitProgress(cb Callbacks, r *run) {
	if cb.OnProgress == nil {
		return
	}
	p := r.progress
	if p.ETASeconds != nil {
		eta := *p.ETASeconds
		p.ETASeconds = &eta
	}
	cb.OnProgress(p)
}

// options picks the previous context for u. At concurrency 1 the
// predecessor's translation is already accepted and is preferred; with
// several units in flight it may not be, so the predecessor's original text
// is used instead. Context never crosses a file boundary.
func (s *Scheduler) options(r *run, u internal.Unit) executor.ChunkOptions {
	opts := executor.ChunkOptions{AllowSafetyRetry: s.cfg.AllowSafetyRetry}
	if s.cfg.DisableContext {
		return opts
	}
	pos := r.position[u.Index]
	if pos == 0 {
		return opts
	}
	prev := r.units[pos-1]
	if prev.FileIndex != u.FileIndex {
		return opts
	}

	text := prev.Text
	if s.cfg.Concurrency == 1 {
		if res, ok := r.results[prev.Index]; ok && res.Success && res.TranslatedText != "" {
			text = res.TranslatedText
			opts.PreviousIsTranslated = true
		}
	}
	opts.PreviousContext = chunker.TrailingContext(text, s.cfg.ContextChars)
	return opts
}

// reusable reports whether a prior result may stand in for u. The identity
// check is the original text length only.
func reusable(p internal.TranslationResult, u internal.Unit) bool {
	if !p.Success || internal.HasUntranslated(p.TranslatedText) {
		return false
	}
	if u.IsBatch() && len(p.TranslatedSegments) != len(u.Nodes) {
		return false
	}
	return utf8.RuneCountInString(p.OriginalText) == utf8.RuneCountInString(u.Text)
}
