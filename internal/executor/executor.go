// Package executor translates one unit of work through the model client,
// cleans the response and, when the model refuses or returns nothing,
// subdivides the unit and retries the pieces.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/chunker"
	"github.com/valpere/epubtran/internal/llm"
	"github.com/valpere/epubtran/internal/postprocess"
	"github.com/valpere/epubtran/internal/prompt"
)

const (
	DefaultMaxDepth = 3
	DefaultMinSize  = 100
)

// errEmptyResponse is returned when the cleaned response has no text. It is
// retried like a content-safety block.
var errEmptyResponse = errors.New("empty response after post-processing")

type Config struct {
	// Options is the base request configuration. SystemInstruction and
	// ResponseSchema are filled in per request.
	Options llm.Options
	// MaxDepth bounds subdivision. Zero means DefaultMaxDepth; negative
	// disables subdivision.
	MaxDepth int
	// MinSize is the rune count at or below which a failing piece is no
	// longer split.
	MinSize int
}

type Executor struct {
	gen      llm.Generator
	prompts  *prompt.Builder
	opts     llm.Options
	maxDepth int
	minSize  int
	logger   *slog.Logger
}

func New(gen llm.Generator, prompts *prompt.Builder, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if prompts == nil {
		prompts = &prompt.Builder{}
	}
	maxDepth := cfg.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	minSize := cfg.MinSize
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	opts := cfg.Options
	if opts.SystemInstruction == "" {
		opts.SystemInstruction = prompt.SystemInstruction
	}
	return &Executor{
		gen:      gen,
		prompts:  prompts,
		opts:     opts,
		maxDepth: maxDepth,
		minSize:  minSize,
		logger:   logger,
	}
}

// ChunkOptions are the per-call inputs that vary between units.
type ChunkOptions struct {
	AllowSafetyRetry     bool
	PreviousContext      string
	PreviousIsTranslated bool
}

// Translate dispatches a unit to the text or node-batch path.
func (e *Executor) Translate(ctx context.Context, unit internal.Unit, opts ChunkOptions) internal.TranslationResult {
	if unit.IsBatch() {
		return e.TranslateBatch(ctx, unit, opts)
	}
	return e.TranslateChunk(ctx, unit.Text, unit.Index, opts)
}

// TranslateChunk translates one plain-text unit. Unit failures are reported
// in the result, never as a returned error.
func (e *Executor) TranslateChunk(ctx context.Context, text string, index int, opts ChunkOptions) internal.TranslationResult {
	if strings.TrimSpace(text) == "" {
		return internal.TranslationResult{ChunkIndex: index, OriginalText: text, Success: true}
	}

	out, err := e.attempt(ctx, text, opts.PreviousContext, opts.PreviousIsTranslated, false)
	if err == nil {
		return internal.TranslationResult{
			ChunkIndex:     index,
			OriginalText:   text,
			TranslatedText: keepEdges(text, out),
			Success:        true,
		}
	}

	reason := e.reason(ctx, err)
	switch reason {
	case internal.ReasonRateLimited:
		e.logger.Warn("rate limit reached, stopping run", "chunk", index, "error", err)
		return internal.Failed(index, text, reason, err.Error())
	case internal.ReasonCancelled:
		return internal.Failed(index, text, reason, "cancelled")
	case internal.ReasonContentSafety:
		if opts.AllowSafetyRetry {
			return e.subdivideChunk(ctx, text, index, opts)
		}
	}

	e.logger.Warn("chunk failed", "chunk", index, "reason", reason, "error", err)
	return internal.Failed(index, text, reason, err.Error())
}

// subdivideChunk is the retry path for a refused unit.
func (e *Executor) subdivideChunk(ctx context.Context, text string, index int, opts ChunkOptions) internal.TranslationResult {
	o := &outcome{}
	e.subdivide(ctx, text, index, opts.PreviousContext, opts.PreviousIsTranslated, 1, o)

	if o.abort != internal.ReasonNone {
		return internal.Failed(index, text, o.abort, o.abortMsg)
	}
	if o.translated == 0 {
		e.logger.Warn("chunk failed after subdivision", "chunk", index, "pieces", o.failed)
		return internal.Failed(index, text, internal.ReasonContentSafety, "content blocked in every sub-unit")
	}
	if o.failed > 0 {
		e.logger.Warn("chunk partially translated", "chunk", index, "translated", o.translated, "untranslated", o.failed)
	}
	return internal.TranslationResult{
		ChunkIndex:     index,
		OriginalText:   text,
		TranslatedText: o.text.String(),
		Success:        true,
	}
}

// outcome accumulates the pieces of one subdivided unit in order.
type outcome struct {
	text       strings.Builder
	translated int
	failed     int
	abort      internal.FailureReason
	abortMsg   string
}

func (o *outcome) mark(text string) {
	o.text.WriteString(keepEdges(text, internal.MarkUntranslated(strings.TrimSpace(text))))
	o.failed++
}

// subdivide splits text, translates each piece without further safety
// retry, and recurses into refused pieces at depth+1.
func (e *Executor) subdivide(ctx context.Context, text string, index int, prev string, prevTranslated bool, depth int, o *outcome) {
	if e.maxDepth < 0 || depth > e.maxDepth || utf8.RuneCountInString(strings.TrimSpace(text)) <= e.minSize {
		o.mark(text)
		return
	}
	pieces := e.split(text)
	if len(pieces) <= 1 {
		o.mark(text)
		return
	}

	e.logger.Info("subdividing refused chunk", "chunk", index, "depth", depth, "pieces", len(pieces))

	for _, piece := range pieces {
		if o.abort != internal.ReasonNone {
			return
		}
		if ctx.Err() != nil {
			o.abort, o.abortMsg = internal.ReasonCancelled, "cancelled"
			return
		}
		if strings.TrimSpace(piece) == "" {
			o.text.WriteString(piece)
			continue
		}

		out, err := e.attempt(ctx, piece, prev, prevTranslated, false)
		if err == nil {
			translated := keepEdges(piece, out)
			o.text.WriteString(translated)
			o.translated++
			prev, prevTranslated = chunker.TrailingContext(translated, chunker.DefaultContextChars), true
			continue
		}

		switch reason := e.reason(ctx, err); reason {
		case internal.ReasonRateLimited, internal.ReasonCancelled:
			o.abort, o.abortMsg = reason, err.Error()
			return
		case internal.ReasonContentSafety:
			e.subdivide(ctx, piece, index, prev, prevTranslated, depth+1, o)
		default:
			e.logger.Warn("sub-unit failed", "chunk", index, "depth", depth, "error", err)
			o.mark(piece)
		}
	}
}

// split tries the line splitter, then sentences, then a midpoint cut.
func (e *Executor) split(text string) []string {
	n := utf8.RuneCountInString(text)
	if pieces := chunker.SplitRecursively(text, n/2, e.minSize/2, 1); len(pieces) > 1 {
		return pieces
	}
	if count := len(chunker.Sentences(text)); count > 1 {
		if pieces := chunker.SplitBySentences(text, (count+1)/2); len(pieces) > 1 {
			return pieces
		}
	}
	return chunker.SplitMidpoint(text)
}

// attempt issues exactly one model call and cleans the response.
func (e *Executor) attempt(ctx context.Context, text, prev string, prevTranslated, batch bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := e.prompts.Build(prompt.Request{
		Text:                 text,
		PreviousContext:      prev,
		PreviousIsTranslated: prevTranslated,
		Batch:                batch,
	})
	opts := e.opts
	if batch {
		opts.ResponseSchema = batchSchema
	}

	raw, err := e.gen.Generate(ctx, p, opts)
	if err != nil {
		return "", err
	}
	out := postprocess.Clean(raw)
	if out == "" {
		return "", errEmptyResponse
	}
	return out, nil
}

func (e *Executor) reason(ctx context.Context, err error) internal.FailureReason {
	if ctx.Err() != nil {
		return internal.ReasonCancelled
	}
	if errors.Is(err, errEmptyResponse) {
		return internal.ReasonContentSafety
	}
	switch llm.Classify(err) {
	case llm.KindRateLimit:
		return internal.ReasonRateLimited
	case llm.KindCancelled:
		return internal.ReasonCancelled
	case llm.KindContentSafety:
		return internal.ReasonContentSafety
	case llm.KindInvalidRequest:
		return internal.ReasonInvalid
	}
	return internal.ReasonError
}

// keepEdges puts the source's leading and trailing whitespace around the
// trimmed translation so line terminators survive the round trip.
func keepEdges(src, out string) string {
	if strings.TrimSpace(src) == "" {
		return strings.TrimSpace(out)
	}
	lead := src[:len(src)-len(strings.TrimLeftFunc(src, unicode.IsSpace))]
	trail := src[len(strings.TrimRightFunc(src, unicode.IsSpace)):]
	return lead + strings.TrimSpace(out) + trail
}
