// Package pipeline runs whole translation jobs: it derives units from a
// text or an EPUB, drives the scheduler, autosaves the session and
// assembles the output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/chunker"
	"github.com/valpere/epubtran/internal/document"
	"github.com/valpere/epubtran/internal/epub"
	"github.com/valpere/epubtran/internal/executor"
	"github.com/valpere/epubtran/internal/placeholder"
	"github.com/valpere/epubtran/internal/scheduler"
	"github.com/valpere/epubtran/internal/session"
)

// Env holds what every job needs. Sessions may be nil to run without
// persistence.
type Env struct {
	Translator scheduler.Translator
	Scheduler  scheduler.Config
	Sessions   *session.Manager
	Logger     *slog.Logger
	OnProgress func(internal.JobProgress)
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

type spineDoc struct {
	item      epub.Item
	doc       *document.Document
	fileIndex int
}

type Job struct {
	ID       string
	Snapshot *session.Snapshot

	env     Env
	sched   *scheduler.Scheduler
	logger  *slog.Logger
	units   []internal.Unit
	results map[int]internal.TranslationResult
	book    *epub.Book
	docs    []spineDoc

	// Set by Resume; consumed by the next Run.
	pending []internal.Unit
	seeds   []internal.TranslationResult
}

func (e Env) newJob(id string, snap *session.Snapshot) *Job {
	logger := e.logger().With("session", id)
	tr := e.Translator
	if snap.Mode == session.ModeText {
		tr = placeholder.Translator{Next: tr}
	}
	j := &Job{
		ID:       id,
		Snapshot: snap,
		env:      e,
		sched:    scheduler.New(tr, e.Scheduler, logger),
		logger:   logger,
		results:  make(map[int]internal.TranslationResult),
	}
	for _, r := range snap.Results() {
		j.results[r.ChunkIndex] = r
	}
	return j
}

func (e Env) newSnapshot(mode session.Mode, cfg session.RunConfig, text, fp string) *session.Snapshot {
	if e.Sessions != nil {
		return e.Sessions.New(mode, cfg, text, fp)
	}
	return &session.Snapshot{
		Meta:              session.Meta{Version: session.SnapshotVersion},
		SourceFingerprint: fp,
		Config:            cfg,
		Mode:              mode,
		SourceText:        text,
		TranslatedChunks:  map[int]session.ChunkRecord{},
	}
}

// NewTextJob splits text into line-aligned chunks of cfg.ChunkSize runes.
func (e Env) NewTextJob(id, text string, cfg session.RunConfig, fingerprint string) *Job {
	j := e.newJob(id, e.newSnapshot(session.ModeText, cfg, text, fingerprint))
	j.units = textUnits(text, cfg.ChunkSize)
	return j
}

func textUnits(text string, chunkSize int) []internal.Unit {
	chunks := chunker.SplitBySize(text, chunkSize)
	units := make([]internal.Unit, len(chunks))
	for i, c := range chunks {
		units[i] = internal.Unit{Index: i, Text: c}
	}
	return units
}

// NewEpubJob flattens every spine document and groups its text nodes into
// batches. A unit's FileIndex is its document's spine position.
func (e Env) NewEpubJob(id string, book *epub.Book, cfg session.RunConfig, fingerprint string) (*Job, error) {
	j := e.newJob(id, e.newSnapshot(session.ModeEpub, cfg, "", fingerprint))
	if err := j.loadBook(book); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Job) loadBook(book *epub.Book) error {
	cfg := j.Snapshot.Config
	j.book = book
	structure := &session.EpubStructure{OPFPath: book.OPFPath}

	for fi, item := range book.Documents() {
		data, err := book.Entry(item.Path)
		if err != nil {
			return err
		}
		doc, err := document.Flatten(string(data), item.ID, item.Path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", item.Path, err)
		}
		j.docs = append(j.docs, spineDoc{item: item, doc: doc, fileIndex: fi})
		structure.Documents = append(structure.Documents, session.EpubDocument{ID: item.ID, Path: item.Path})

		for _, group := range chunker.SplitNodesBySize(doc.TextNodes(), cfg.ChunkSize, cfg.MaxNodesPerChunk) {
			j.units = append(j.units, internal.Unit{
				Index:     len(j.units),
				FileIndex: fi,
				Text:      executor.JoinContents(group),
				Nodes:     group,
			})
		}
	}
	j.Snapshot.EpubStructure = structure
	j.logger.Info("epub loaded", "documents", len(j.docs), "units", len(j.units))
	return nil
}

// Resume rebuilds the job stored under id. The source is re-read from the
// recorded input path and checked against the fingerprint; a text session
// whose input is gone falls back to the stored source text.
func (e Env) Resume(ctx context.Context, id string) (*Job, error) {
	if e.Sessions == nil {
		return nil, errors.New("no session store configured")
	}
	snap, err := e.Sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	fp := ""
	if snap.Config.Input != "" {
		fp, err = session.FingerprintFile(snap.Config.Input)
		if err != nil && (snap.Mode == session.ModeEpub || !errors.Is(err, os.ErrNotExist)) {
			return nil, err
		}
	}
	if err := snap.Verify(fp); err != nil {
		return nil, err
	}

	j := e.newJob(id, snap)
	switch snap.Mode {
	case session.ModeText:
		j.units = textUnits(snap.SourceText, snap.Config.ChunkSize)
	case session.ModeEpub:
		book, err := epub.Open(snap.Config.Input)
		if err != nil {
			return nil, err
		}
		if err := j.loadBook(book); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown session mode %q", snap.Mode)
	}

	j.pending, j.seeds = session.Resume(snap, j.units)
	j.logger.Info("resuming session", "units", len(j.units), "reusable", len(j.seeds), "remaining", len(j.pending))
	return j, nil
}

func (j *Job) Units() []internal.Unit {
	return j.units
}

// Results returns the current results ordered by chunk index.
func (j *Job) Results() []internal.TranslationResult {
	out := make([]internal.TranslationResult, 0, len(j.results))
	for _, r := range j.results {
		out = append(out, r)
	}
	internal.SortResults(out)
	return out
}

// Pending returns the units a resumed job still has to work through,
// starting at the first one without a completed result. It is nil for a
// job that was not resumed.
func (j *Job) Pending() []internal.Unit {
	return j.pending
}

// Run translates every unit without a reusable result. After Resume only
// the completed seeds are offered for reuse. The session is saved after
// each accepted result and once more at the end, also when the run stops
// early.
func (j *Job) Run(ctx context.Context) error {
	prior := j.Results()
	if j.seeds != nil {
		prior = j.seeds
	}
	j.pending, j.seeds = nil, nil
	results, err := j.sched.Run(ctx, j.units, prior, j.callbacks(ctx))
	return j.finish(ctx, results, err)
}

// Retry re-translates exactly the given chunk indices.
func (j *Job) Retry(ctx context.Context, indices []int) error {
	known := make(map[int]bool, len(j.units))
	for _, u := range j.units {
		known[u.Index] = true
	}
	for _, i := range indices {
		if !known[i] {
			return fmt.Errorf("chunk %d does not exist (job has %d chunks)", i, len(j.units))
		}
	}
	results, err := j.sched.Retry(ctx, j.units, j.Results(), indices, j.callbacks(ctx))
	return j.finish(ctx, results, err)
}

func (j *Job) callbacks(ctx context.Context) scheduler.Callbacks {
	return scheduler.Callbacks{
		OnProgress: j.env.OnProgress,
		OnResult: func(r internal.TranslationResult) {
			j.results[r.ChunkIndex] = r
			if !r.Success {
				j.logger.Warn("chunk failed", "chunk", r.ChunkIndex, "reason", r.Reason, "error", r.Error)
			}
			j.autosave(ctx)
		},
	}
}

func (j *Job) finish(ctx context.Context, results []internal.TranslationResult, runErr error) error {
	for _, r := range results {
		j.results[r.ChunkIndex] = r
	}
	j.autosave(ctx)
	return runErr
}

// autosave is best-effort: a failed save is logged and the run goes on.
func (j *Job) autosave(ctx context.Context) {
	if err := j.Save(context.WithoutCancel(ctx)); err != nil {
		j.logger.Warn("autosave failed", "error", err)
	}
}

// Save records the current results in the snapshot and persists it.
func (j *Job) Save(ctx context.Context) error {
	j.Snapshot.Record(j.Results(), len(j.units))
	if j.env.Sessions == nil {
		return nil
	}
	return j.env.Sessions.Save(ctx, j.ID, j.Snapshot)
}

// Text joins the chunk translations in order. Chunks without a successful
// result keep their source text inside untranslated markers.
func (j *Job) Text() string {
	var b strings.Builder
	for _, u := range j.units {
		r, ok := j.results[u.Index]
		switch {
		case ok && r.Success:
			b.WriteString(r.TranslatedText)
		case strings.TrimSpace(u.Text) == "":
			b.WriteString(u.Text)
		default:
			b.WriteString(internal.MarkUntranslated(u.Text))
		}
	}
	return b.String()
}

// Book writes the translated documents back into the container and returns
// it. Nodes of failed or unprocessed units keep their source text inside
// untranslated markers.
func (j *Job) Book() (*epub.Book, error) {
	if j.book == nil {
		return nil, errors.New("job has no EPUB source")
	}
	byFile := make(map[int][]internal.Unit)
	for _, u := range j.units {
		byFile[u.FileIndex] = append(byFile[u.FileIndex], u)
	}

	for _, d := range j.docs {
		units := byFile[d.fileIndex]
		if len(units) == 0 {
			continue
		}
		translations := make(map[string]string)
		for _, u := range units {
			r, ok := j.results[u.Index]
			if ok && r.Success && len(r.TranslatedSegments) == len(u.Nodes) {
				for i, n := range u.Nodes {
					translations[n.ID] = r.TranslatedSegments[i]
				}
				continue
			}
			for _, n := range u.Nodes {
				if strings.TrimSpace(n.Content) != "" {
					translations[n.ID] = internal.MarkUntranslated(n.Content)
				}
			}
		}
		j.book.SetEntry(d.item.Path, []byte(document.Reconstruct(d.doc.WithTranslations(translations))))
	}
	return j.book, nil
}

// FailedIndices lists the chunks a reviewer should look at: failed units
// and units whose translation still carries an untranslated marker.
func FailedIndices(results []internal.TranslationResult) []int {
	var out []int
	for _, r := range results {
		if !r.Success || internal.HasUntranslated(r.TranslatedText) {
			out = append(out, r.ChunkIndex)
		}
	}
	return out
}

// LoadUnits derives the unit list of a text or EPUB file without setting up
// a translation run.
func LoadUnits(input string, cfg session.RunConfig) ([]internal.Unit, error) {
	if strings.EqualFold(filepath.Ext(input), ".epub") {
		book, err := epub.Open(input)
		if err != nil {
			return nil, err
		}
		cfg.Input = input
		job, err := Env{}.NewEpubJob("", book, cfg, "")
		if err != nil {
			return nil, err
		}
		return job.Units(), nil
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return textUnits(string(data), cfg.ChunkSize), nil
}
