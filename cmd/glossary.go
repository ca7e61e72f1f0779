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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/epubtran/internal/glossary"
	"github.com/valpere/epubtran/internal/pipeline"
	"github.com/valpere/epubtran/internal/session"
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage the terminology glossary",
	Long: `Add, list, import, extract and delete terminology glossary entries.

Glossary entries ensure that specific source terms are always translated
to the same target term, which matters for names, places and invented
vocabulary in long fiction. Only the entries that literally occur in a
chunk are sent with it.`,
}

var (
	glossaryListSource string
	glossaryListTarget string
)

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all glossary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		// Pass empty strings to list everything; flags narrow the filter.
		entries, err := db.ListGlossaryTerms(context.Background(), glossaryListSource, glossaryListTarget)
		if err != nil {
			return fmt.Errorf("failed to list glossary: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("Glossary is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE LANG\tTARGET LANG\tSOURCE TERM\tTARGET TERM\tNOTE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.SourceLang, e.TargetLang, e.SourceTerm, e.TargetTerm, e.Note)
		}
		return w.Flush()
	},
}

var (
	glossarySource string
	glossaryTarget string
	glossaryNote   string
)

var glossaryAddCmd = &cobra.Command{
	Use:   "add <source-term> <target-term>",
	Short: "Add or update a glossary entry",
	Long: `Add a glossary entry mapping a source-language term to a target-language term.

Example:
  epubtran glossary add "Min-jun" "민준" --source en --target ko --note "protagonist"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLangs(); err != nil {
			return err
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if _, err := db.AddGlossaryTerm(context.Background(), glossarySource, glossaryTarget, args[0], args[1], glossaryNote); err != nil {
			return fmt.Errorf("failed to add glossary entry: %w", err)
		}
		fmt.Printf("Added: [%s→%s] %q → %q\n", glossarySource, glossaryTarget, args[0], args[1])
		return nil
	},
}

var glossaryImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import glossary entries from a YAML file",
	Long: `Import the "glossary" list of a YAML glossary file into the database.

The file layout is:
  glossary:
    - source: Min-jun
      target: 민준
      note: protagonist
  story_bible:
    characters: [...]
    world: [...]

The story bible part is not stored; pass the file with --glossary when
translating to use it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLangs(); err != nil {
			return err
		}
		f, err := glossary.Load(args[0])
		if err != nil {
			return err
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		for _, e := range f.Glossary {
			if _, err := db.AddGlossaryTerm(ctx, glossarySource, glossaryTarget, e.Source, e.Target, e.Note); err != nil {
				return fmt.Errorf("failed to import %q: %w", e.Source, err)
			}
		}
		fmt.Printf("Imported %d entries [%s→%s]\n", len(f.Glossary), glossarySource, glossaryTarget)
		return nil
	},
}

var (
	extractInput   string
	extractSession string
)

var glossaryExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract glossary terms from a book with the LLM",
	Long: `Ask the model for names and special terms in every chunk of a text or EPUB
file and store the suggested translations in the glossary. Terms already in
the glossary are not suggested again.

The extraction is saved as it goes. If it stops, continue it with
--session <id>.

Example:
  epubtran glossary extract -i book.epub --source en --target ko`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLangs(); err != nil {
			return err
		}
		settings.SourceLang, settings.TargetLang = glossarySource, glossaryTarget

		ctx, stop := signalContext()
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		mgr := session.NewManager(db, version)

		id := extractSession
		var q *session.ExtractionQueue
		if id != "" {
			if q, err = mgr.LoadQueue(ctx, id); err != nil {
				return err
			}
			if q == nil {
				return fmt.Errorf("no extraction queue for session %s", id)
			}
		} else {
			if extractInput == "" {
				return fmt.Errorf("--input is required for a new extraction")
			}
			units, err := pipeline.LoadUnits(extractInput, runConfig(settings, extractInput, ""))
			if err != nil {
				return err
			}
			id = mgr.NewID()
			q = session.NewQueue(pipeline.ExtractionUnits(units))
		}
		if q.Done() {
			fmt.Println("Extraction already complete.")
			return nil
		}

		gen, err := settings.Generator()
		if err != nil {
			return err
		}
		b, err := newBuilder(ctx, db, settings)
		if err != nil {
			return err
		}
		x := &pipeline.Extractor{
			Generator: gen,
			Options:   settings.ExecutorConfig().Options,
			Prompts:   b,
			Sink:      db,
			Sessions:  mgr,
		}

		fmt.Fprintf(os.Stderr, "Extraction %s: %d of %d chunks remaining\n", id, len(q.RemainingUnits), q.TotalUnitsAtStart)
		added, err := x.Run(ctx, id, q)
		fmt.Printf("Added %d glossary entries [%s→%s]\n", added, glossarySource, glossaryTarget)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Extraction stopped. Continue with: epubtran glossary extract --session %s --source %s --target %s\n",
				id, glossarySource, glossaryTarget)
			return err
		}
		return nil
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a glossary entry by ID",
	Long: `Delete a glossary entry by its ID (shown in "epubtran glossary list").

Example:
  epubtran glossary delete 0b6e2f4c-3a1d-4e5f-8a9b-7c6d5e4f3a2b`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteGlossaryTerm(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete glossary entry: %w", err)
		}
		fmt.Printf("Deleted glossary entry: %s\n", args[0])
		return nil
	},
}

func requireLangs() error {
	if glossarySource == "" {
		return fmt.Errorf("--source language flag is required")
	}
	if glossaryTarget == "" {
		return fmt.Errorf("--target language flag is required")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	// --source / --target flags on the list subcommand for optional filtering.
	glossaryListCmd.Flags().StringVarP(&glossaryListSource, "source", "s", "", "Filter by source language code (e.g. en)")
	glossaryListCmd.Flags().StringVarP(&glossaryListTarget, "target", "t", "", "Filter by target language code (e.g. ko)")

	// --source / --target are required for add, import and extract.
	for _, c := range []*cobra.Command{glossaryAddCmd, glossaryImportCmd, glossaryExtractCmd} {
		c.Flags().StringVarP(&glossarySource, "source", "s", "", "Source language code (e.g. en)")
		c.Flags().StringVarP(&glossaryTarget, "target", "t", "", "Target language code (e.g. ko)")
	}
	glossaryAddCmd.Flags().StringVar(&glossaryNote, "note", "", "Note sent to the model with the term")

	addModelFlags(glossaryExtractCmd)
	glossaryExtractCmd.Flags().StringVarP(&extractInput, "input", "i", "", "Text or EPUB file to extract terms from")
	glossaryExtractCmd.Flags().StringVar(&extractSession, "session", "", "Continue a stopped extraction")
	glossaryExtractCmd.Flags().Int("chunk-size", 0, "Maximum characters per chunk")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryImportCmd)
	glossaryCmd.AddCommand(glossaryExtractCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
}
