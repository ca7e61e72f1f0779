package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/glossary"
	"github.com/valpere/epubtran/internal/llm"
	"github.com/valpere/epubtran/internal/postprocess"
	"github.com/valpere/epubtran/internal/prompt"
	"github.com/valpere/epubtran/internal/session"
)

var termSchema = json.RawMessage(`{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "source": {"type": "string"},
      "target": {"type": "string"},
      "note": {"type": "string"}
    },
    "required": ["source", "target"]
  }
}`)

// TermSink stores extracted terms. *store.Store satisfies it.
type TermSink interface {
	AddGlossaryTerm(ctx context.Context, sourceLang, targetLang, sourceTerm, targetTerm, note string) (string, error)
}

// Extractor builds a glossary from a source text, one unit at a time, on
// top of an ExtractionQueue so an interrupted extraction resumes where it
// stopped.
type Extractor struct {
	Generator llm.Generator
	Options   llm.Options
	Prompts   *prompt.Builder
	Sink      TermSink
	Sessions  *session.Manager
	Logger    *slog.Logger
}

// Run drains q. Terms found in each unit are stored right away and also
// added to the builder's glossary so later prompts skip them. Rate limits,
// cancellation and invalid requests stop the run with the remainder saved;
// any other failure skips the unit.
func (x *Extractor) Run(ctx context.Context, id string, q *session.ExtractionQueue) (int, error) {
	logger := x.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := x.Options
	opts.SystemInstruction = "You are a terminology assistant for literary translators. You output only JSON."
	opts.ResponseSchema = termSchema

	added := 0
	fn := func(ctx context.Context, u internal.Unit) error {
		out, err := x.Generator.Generate(ctx, x.Prompts.Extraction(u.Text), opts)
		if err != nil {
			switch llm.Classify(err) {
			case llm.KindRateLimit, llm.KindCancelled, llm.KindInvalidRequest:
				return fmt.Errorf("extraction stopped at unit %d: %w", u.Index, err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("extraction failed, skipping unit", "unit", u.Index, "error", err)
			return nil
		}
		terms, err := parseTerms(out)
		if err != nil {
			logger.Warn("unreadable extraction reply, skipping unit", "unit", u.Index, "error", err)
			return nil
		}
		for _, t := range terms {
			if _, err := x.Sink.AddGlossaryTerm(ctx, x.Prompts.SourceLang, x.Prompts.TargetLang, t.Source, t.Target, t.Note); err != nil {
				return fmt.Errorf("failed to store term %q: %w", t.Source, err)
			}
			x.Prompts.Glossary = append(x.Prompts.Glossary, t)
			added++
		}
		logger.Debug("unit extracted", "unit", u.Index, "terms", len(terms))
		return nil
	}

	save := func(q *session.ExtractionQueue) error {
		if x.Sessions == nil {
			return nil
		}
		return x.Sessions.SaveQueue(context.WithoutCancel(ctx), id, q)
	}
	return added, session.RunQueue(ctx, q, fn, save)
}

// parseTerms decodes a term array, dropping blank and duplicate sources.
func parseTerms(raw string) ([]glossary.Entry, error) {
	raw = postprocess.StripCodeFence(postprocess.Clean(raw))
	if i, j := strings.Index(raw, "["), strings.LastIndex(raw, "]"); i >= 0 && j > i {
		raw = raw[i : j+1]
	}
	var terms []glossary.Entry
	if err := json.Unmarshal([]byte(raw), &terms); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		t.Source, t.Target, t.Note = strings.TrimSpace(t.Source), strings.TrimSpace(t.Target), strings.TrimSpace(t.Note)
		if t.Source == "" || t.Target == "" || seen[t.Source] {
			continue
		}
		seen[t.Source] = true
		out = append(out, t)
	}
	return out, nil
}

// ExtractionUnits turns a job's units into plain-text queue units.
func ExtractionUnits(units []internal.Unit) []internal.Unit {
	out := make([]internal.Unit, 0, len(units))
	for _, u := range units {
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		out = append(out, internal.Unit{Index: u.Index, FileIndex: u.FileIndex, Text: u.Text})
	}
	return out
}
