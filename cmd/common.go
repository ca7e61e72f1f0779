/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/config"
	"github.com/valpere/epubtran/internal/detector"
	"github.com/valpere/epubtran/internal/executor"
	"github.com/valpere/epubtran/internal/glossary"
	"github.com/valpere/epubtran/internal/markdown"
	"github.com/valpere/epubtran/internal/pipeline"
	"github.com/valpere/epubtran/internal/prompt"
	"github.com/valpere/epubtran/internal/scheduler"
	"github.com/valpere/epubtran/internal/session"
	"github.com/valpere/epubtran/internal/store"
)

// detectSample is how much text language detection looks at.
const detectSample = 4000

// addModelFlags registers the flags shared by every command that calls a
// model. Defaults are empty: unset flags fall through to the config file,
// the environment and the built-in defaults.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "LLM provider: gemini, openrouter or ollama")
	cmd.Flags().String("model", "", "Model name (provider default if empty)")
	cmd.Flags().String("api-key", "", "Provider API key")
	cmd.Flags().String("base-url", "", "Provider base URL")
	cmd.Flags().Int("rpm", 0, "Requests per minute across all chunks (0 = config value)")
	cmd.Flags().Float64("temperature", 0, "Sampling temperature")
	cmd.Flags().String("glossary", "", "YAML glossary / story bible file")
	cmd.Flags().String("prompt", "", "Custom prompt template file")
}

// addRunFlags registers the flags that shape a new translation run.
func addRunFlags(cmd *cobra.Command) {
	addModelFlags(cmd)
	cmd.Flags().StringP("input", "i", "", "Input file to translate (required)")
	cmd.Flags().StringP("output", "o", "", "Output file for translation (required)")
	cmd.Flags().StringP("source", "s", "", "Source language code (auto to detect)")
	cmd.Flags().StringP("target", "t", "", "Target language code (required)")
	cmd.Flags().IntP("concurrency", "j", 0, "Chunks translated in parallel")
	cmd.Flags().Int("chunk-size", 0, "Maximum characters per chunk")
	cmd.Flags().Int("max-depth", 0, "Maximum subdivision depth for blocked chunks")
	cmd.Flags().Bool("no-context", false, "Do not pass the previous chunk as context")

	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
}

func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(settings.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// signalContext is cancelled on Ctrl-C so a run stops admitting chunks and
// saves its session.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// resolveSource replaces an "auto" source language with the detected one.
func resolveSource(s *config.Settings, sample string) {
	if s.SourceLang != "" && s.SourceLang != "auto" {
		return
	}
	if utf8.RuneCountInString(sample) > detectSample {
		sample = string([]rune(sample)[:detectSample])
	}
	if code, ok := detector.New().DetectISO(sample); ok {
		s.SourceLang = code
		fmt.Fprintf(os.Stderr, "Detected source language: %s\n", code)
	}
}

func newBuilder(ctx context.Context, db *store.Store, s *config.Settings) (*prompt.Builder, error) {
	b := &prompt.Builder{
		Template:   prompt.DefaultTemplate,
		SourceLang: s.SourceLang,
		TargetLang: s.TargetLang,
		MaxTerms:   s.Glossary.MaxTerms,
		MaxChars:   s.Glossary.MaxChars,
	}
	if s.PromptFile != "" {
		tmpl, err := prompt.LoadTemplate(s.PromptFile)
		if err != nil {
			return nil, err
		}
		b.Template = tmpl
	}

	terms, err := db.GlossaryFor(ctx, s.SourceLang, s.TargetLang)
	if err != nil {
		return nil, fmt.Errorf("failed to load glossary: %w", err)
	}
	b.Glossary = terms

	if s.Glossary.File != "" {
		f, err := glossary.Load(s.Glossary.File)
		if err != nil {
			return nil, err
		}
		b.Glossary = append(b.Glossary, f.Glossary...)
		b.Story = f.Story
	}
	return b, nil
}

func newEnv(ctx context.Context, db *store.Store, s *config.Settings) (pipeline.Env, error) {
	gen, err := s.Generator()
	if err != nil {
		return pipeline.Env{}, err
	}
	b, err := newBuilder(ctx, db, s)
	if err != nil {
		return pipeline.Env{}, err
	}
	logger := slog.Default()
	logger.Debug("translator ready", "provider", gen.Name(), "model", s.Model, "glossary_terms", len(b.Glossary))

	return pipeline.Env{
		Translator: executor.New(gen, b, s.ExecutorConfig(), logger),
		Scheduler:  s.SchedulerConfig(),
		Sessions:   session.NewManager(db, version),
		Logger:     logger,
		OnProgress: printProgress,
	}, nil
}

func printProgress(p internal.JobProgress) {
	eta := ""
	if p.ETASeconds != nil {
		eta = fmt.Sprintf(", ETA %ds", *p.ETASeconds)
	}
	fmt.Fprintf(os.Stderr, "\r[%d/%d] ok %d, failed %d%s   ", p.ProcessedChunks, p.TotalChunks, p.SuccessfulChunks, p.FailedChunks, eta)
	if p.ProcessedChunks == p.TotalChunks {
		fmt.Fprintln(os.Stderr)
	}
}

func runConfig(s *config.Settings, input, output string) session.RunConfig {
	return session.RunConfig{
		Provider:         s.Provider,
		Model:            s.Model,
		SourceLang:       s.SourceLang,
		TargetLang:       s.TargetLang,
		ChunkSize:        s.ChunkSize,
		MaxNodesPerChunk: s.MaxNodesPerChunk,
		Concurrency:      s.Concurrency,
		ContextChars:     s.ContextChars,
		UseContext:       s.UseContext,
		AllowSafetyRetry: s.Retry.AllowSafetyRetry,
		Input:            input,
		Output:           output,
	}
}

// applyRunConfig makes a resumed run use the settings it started with.
// Provider, model and concurrency may be overridden on the command line;
// credentials and connection settings always come from the current config.
func applyRunConfig(cmd *cobra.Command, s *config.Settings, rc session.RunConfig) {
	if !cmd.Flags().Changed("provider") {
		s.Provider = rc.Provider
	}
	if !cmd.Flags().Changed("model") {
		s.Model = rc.Model
	}
	if !cmd.Flags().Changed("concurrency") {
		s.Concurrency = rc.Concurrency
	}
	s.SourceLang = rc.SourceLang
	s.TargetLang = rc.TargetLang
	s.ChunkSize = rc.ChunkSize
	s.MaxNodesPerChunk = rc.MaxNodesPerChunk
	s.ContextChars = rc.ContextChars
	s.UseContext = rc.UseContext
	s.Retry.AllowSafetyRetry = rc.AllowSafetyRetry
}

// resumeJob rebuilds a stored session with its original run settings.
func resumeJob(ctx context.Context, cmd *cobra.Command, db *store.Store, id string) (*pipeline.Job, error) {
	snap, err := session.NewManager(db, version).Load(ctx, id)
	if err != nil {
		return nil, err
	}
	applyRunConfig(cmd, settings, snap.Config)

	env, err := newEnv(ctx, db, settings)
	if err != nil {
		return nil, err
	}
	job, err := env.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		job.Snapshot.Config.Output = out
	}
	job.Snapshot.Config.Provider = settings.Provider
	job.Snapshot.Config.Model = settings.Model
	job.Snapshot.Config.Concurrency = settings.Concurrency
	return job, nil
}

// writeJobOutput writes the text or EPUB result to the recorded output path.
// Text output to an .html file is rendered as an HTML page.
func writeJobOutput(job *pipeline.Job) error {
	out := job.Snapshot.Config.Output
	if out == "" {
		return errors.New("session has no output path")
	}
	if job.Snapshot.Mode == session.ModeEpub {
		book, err := job.Book()
		if err != nil {
			return err
		}
		return book.Save(out)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	text := job.Text()
	if markdown.WantsHTML(out) {
		name := strings.TrimSuffix(filepath.Base(job.Snapshot.Config.Input), filepath.Ext(job.Snapshot.Config.Input))
		text = markdown.Page(name, job.Snapshot.Config.TargetLang, []byte(text))
	}
	if err := os.WriteFile(out, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// finishRun reports the outcome of a run and writes the output when the run
// reached the end.
func finishRun(job *pipeline.Job, runErr error) error {
	switch {
	case errors.Is(runErr, scheduler.ErrRunHalted):
		fmt.Fprintf(os.Stderr, "\nRate limit reached: %v\n", runErr)
		fmt.Fprintf(os.Stderr, "Session saved. Continue later with: epubtran resume %s\n", job.ID)
		return runErr
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintf(os.Stderr, "\nInterrupted. Session saved. Continue with: epubtran resume %s\n", job.ID)
		return runErr
	case runErr != nil:
		return runErr
	}

	if err := writeJobOutput(job); err != nil {
		return err
	}
	results := job.Results()
	failed := pipeline.FailedIndices(results)
	fmt.Printf("Successfully translated %s to %s: %s\n", job.Snapshot.Config.SourceLang, job.Snapshot.Config.TargetLang, job.Snapshot.Config.Output)
	fmt.Printf("Session: %s\n", job.ID)
	if len(failed) > 0 {
		fmt.Printf("%d of %d chunks need review %v. Retry with: epubtran retry %s\n", len(failed), len(results), failed, job.ID)
	}
	return nil
}
