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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/epubtran/internal/document"
	"github.com/valpere/epubtran/internal/epub"
	"github.com/valpere/epubtran/internal/session"
)

var epubCmd = &cobra.Command{
	Use:   "epub",
	Short: "Translate an EPUB book",
	Long: `Translate the content documents of an EPUB book in spine order.

Each document is flattened into text nodes, which are sent in batches of at
most --max-nodes nodes and --chunk-size characters. Markup, images and
everything outside the spine documents are copied unchanged. Context is
never carried from one document into the next.

Example:
  epubtran epub -i book.epub -o book.ko.epub -t ko -j 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		if input == output {
			return fmt.Errorf("input file and output file cannot be the same")
		}
		if err := settings.Validate(); err != nil {
			return err
		}

		data, err := os.ReadFile(input)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		book, err := epub.Read(data)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if settings.SourceLang == "" || settings.SourceLang == "auto" {
			resolveSource(settings, sampleBook(book))
		}
		env, err := newEnv(ctx, db, settings)
		if err != nil {
			return err
		}
		id := env.Sessions.NewID()
		job, err := env.NewEpubJob(id, book, runConfig(settings, input, output), session.Fingerprint(input, data))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Session %s: %d documents, %d chunks\n", id, len(book.Documents()), len(job.Units()))

		return finishRun(job, job.Run(ctx))
	},
}

// sampleBook returns the text of the first spine documents for language
// detection.
func sampleBook(book *epub.Book) string {
	var b strings.Builder
	for _, item := range book.Documents() {
		data, err := book.Entry(item.Path)
		if err != nil {
			continue
		}
		doc, err := document.Flatten(string(data), item.ID, item.Path)
		if err != nil {
			continue
		}
		for _, n := range doc.TextNodes() {
			b.WriteString(n.Content)
			b.WriteString("\n")
		}
		if b.Len() > detectSample*4 {
			break
		}
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(epubCmd)
	addRunFlags(epubCmd)
	epubCmd.Flags().Int("max-nodes", 0, "Maximum text nodes per batch")
}
