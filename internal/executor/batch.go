package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/document"
	"github.com/valpere/epubtran/internal/postprocess"
)

var batchSchema = json.RawMessage(`{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "id": {"type": "string"},
      "translated_text": {"type": "string"}
    },
    "required": ["id", "translated_text"]
  }
}`)

type batchItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type batchReply struct {
	ID             string `json:"id"`
	TranslatedText string `json:"translated_text"`
}

// SegmentSeparator joins node texts into a unit's OriginalText and
// TranslatedText.
const SegmentSeparator = "\n\n"

// batchRun is the state of one node-batch unit across its retries.
type batchRun struct {
	index        int
	translations map[string]string
	untranslated map[string]bool
	abort        internal.FailureReason
	abortMsg     string
}

// TranslateBatch translates a batch of text nodes in one JSON round trip
// and matches the reply by node ID. Missing IDs are resubmitted; refused or
// malformed replies are split in half and retried.
func (e *Executor) TranslateBatch(ctx context.Context, unit internal.Unit, opts ChunkOptions) internal.TranslationResult {
	original := unit.Text
	if original == "" {
		original = JoinContents(unit.Nodes)
	}

	pending := make([]*document.TextNode, 0, len(unit.Nodes))
	segments := make([]string, len(unit.Nodes))
	for i, n := range unit.Nodes {
		if strings.TrimSpace(n.Content) == "" {
			segments[i] = n.Content
			continue
		}
		pending = append(pending, n)
	}
	if len(pending) == 0 {
		return internal.TranslationResult{
			ChunkIndex:         unit.Index,
			OriginalText:       original,
			TranslatedText:     strings.Join(segments, SegmentSeparator),
			TranslatedSegments: segments,
			Success:            true,
		}
	}

	run := &batchRun{
		index:        unit.Index,
		translations: make(map[string]string, len(pending)),
		untranslated: make(map[string]bool),
	}
	e.batch(ctx, run, pending, opts, 0)

	if run.abort != internal.ReasonNone {
		return internal.Failed(unit.Index, original, run.abort, run.abortMsg)
	}
	if len(run.translations) == 0 {
		return internal.Failed(unit.Index, original, internal.ReasonContentSafety, "no node in the batch could be translated")
	}

	for i, n := range unit.Nodes {
		if strings.TrimSpace(n.Content) == "" {
			continue
		}
		if t, ok := run.translations[n.ID]; ok {
			segments[i] = t
			continue
		}
		segments[i] = internal.MarkUntranslated(n.Content)
	}
	if len(run.untranslated) > 0 {
		e.logger.Warn("batch partially translated", "chunk", unit.Index,
			"translated", len(run.translations), "untranslated", len(run.untranslated))
	}

	return internal.TranslationResult{
		ChunkIndex:         unit.Index,
		OriginalText:       original,
		TranslatedText:     strings.Join(segments, SegmentSeparator),
		TranslatedSegments: segments,
		Success:            true,
	}
}

func (e *Executor) batch(ctx context.Context, run *batchRun, nodes []*document.TextNode, opts ChunkOptions, depth int) {
	if run.abort != internal.ReasonNone || len(nodes) == 0 {
		return
	}
	if ctx.Err() != nil {
		run.abort, run.abortMsg = internal.ReasonCancelled, "cancelled"
		return
	}
	if len(nodes) == 1 && depth > 0 {
		e.single(ctx, run, nodes[0], opts)
		return
	}

	payload, err := json.Marshal(toItems(nodes))
	if err != nil {
		run.abort, run.abortMsg = internal.ReasonError, fmt.Sprintf("failed to marshal batch: %v", err)
		return
	}

	var replies []batchReply
	out, err := e.attempt(ctx, string(payload), opts.PreviousContext, opts.PreviousIsTranslated, true)
	if err == nil {
		replies, err = parseReplies(out)
	}
	if err != nil {
		reason := e.reason(ctx, err)
		switch {
		case reason == internal.ReasonRateLimited || reason == internal.ReasonCancelled:
			run.abort, run.abortMsg = reason, err.Error()
			return
		case reason == internal.ReasonInvalid,
			reason == internal.ReasonError && depth == 0 && !isMalformed(err):
			run.abort, run.abortMsg = reason, err.Error()
			return
		}
		if !opts.AllowSafetyRetry && reason == internal.ReasonContentSafety {
			run.abort, run.abortMsg = reason, err.Error()
			return
		}
		e.splitBatch(ctx, run, nodes, opts, depth, err)
		return
	}

	wanted := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		wanted[n.ID] = true
	}
	for _, r := range replies {
		if !wanted[r.ID] {
			continue
		}
		if t := postprocess.Clean(r.TranslatedText); t != "" {
			run.translations[r.ID] = t
		}
	}

	var missing []*document.TextNode
	for _, n := range nodes {
		if _, ok := run.translations[n.ID]; !ok {
			missing = append(missing, n)
		}
	}
	switch {
	case len(missing) == 0:
		return
	case len(missing) == len(nodes):
		e.splitBatch(ctx, run, nodes, opts, depth, fmt.Errorf("reply contained none of the %d requested ids", len(nodes)))
	default:
		e.logger.Info("resubmitting missing ids", "chunk", run.index, "depth", depth, "missing", len(missing))
		e.batch(ctx, run, missing, opts, depth+1)
	}
}

// splitBatch halves nodes and retries each half at depth+1. Halving is not
// bounded by maxDepth: the node count shrinks every time, and a lone node
// goes to the text path, whose subdivision is.
func (e *Executor) splitBatch(ctx context.Context, run *batchRun, nodes []*document.TextNode, opts ChunkOptions, depth int, cause error) {
	if e.maxDepth < 0 {
		e.markNodes(run, nodes)
		return
	}
	if len(nodes) == 1 {
		e.single(ctx, run, nodes[0], opts)
		return
	}
	e.logger.Info("splitting failed batch", "chunk", run.index, "depth", depth, "nodes", len(nodes), "error", cause)
	mid := len(nodes) / 2
	e.batch(ctx, run, nodes[:mid], opts, depth+1)
	e.batch(ctx, run, nodes[mid:], opts, depth+1)
}

// single falls back to the plain-text path for one node, which applies the
// text subdivision retry to it.
func (e *Executor) single(ctx context.Context, run *batchRun, n *document.TextNode, opts ChunkOptions) {
	res := e.TranslateChunk(ctx, n.Content, run.index, opts)
	switch {
	case res.Success:
		run.translations[n.ID] = strings.TrimSpace(res.TranslatedText)
	case res.Reason == internal.ReasonRateLimited || res.Reason == internal.ReasonCancelled:
		run.abort, run.abortMsg = res.Reason, res.Error
	default:
		e.markNodes(run, []*document.TextNode{n})
	}
}

func (e *Executor) markNodes(run *batchRun, nodes []*document.TextNode) {
	for _, n := range nodes {
		run.untranslated[n.ID] = true
	}
}

func toItems(nodes []*document.TextNode) []batchItem {
	items := make([]batchItem, len(nodes))
	for i, n := range nodes {
		items[i] = batchItem{ID: n.ID, Text: n.Content}
	}
	return items
}

// JoinContents is the OriginalText of a node batch.
func JoinContents(nodes []*document.TextNode) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.Content
	}
	return strings.Join(parts, SegmentSeparator)
}

type malformedError struct {
	err error
}

func (m *malformedError) Error() string { return "malformed batch reply: " + m.err.Error() }
func (m *malformedError) Unwrap() error { return m.err }

func isMalformed(err error) bool {
	var m *malformedError
	return errors.As(err, &m)
}

// parseReplies accepts a bare array, an array inside a code fence, or an
// object wrapping the array under "translations".
func parseReplies(out string) ([]batchReply, error) {
	out = postprocess.StripCodeFence(out)

	var replies []batchReply
	if err := json.Unmarshal([]byte(out), &replies); err == nil {
		return replies, nil
	}

	var wrapped struct {
		Translations []batchReply `json:"translations"`
	}
	if err := json.Unmarshal([]byte(out), &wrapped); err == nil && wrapped.Translations != nil {
		return wrapped.Translations, nil
	}

	start, end := strings.Index(out, "["), strings.LastIndex(out, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(out[start:end+1]), &replies); err == nil {
			return replies, nil
		}
	}
	return nil, &malformedError{err: fmt.Errorf("cannot decode %d bytes as translations", len(out))}
}
