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

	"github.com/valpere/epubtran/internal/audit"
	"github.com/valpere/epubtran/internal/detector"
	"github.com/valpere/epubtran/internal/pipeline"
	"github.com/valpere/epubtran/internal/session"
	"github.com/valpere/epubtran/internal/validator"
)

var auditAllLanguages bool

var auditCmd = &cobra.Command{
	Use:   "audit <session>",
	Short: "Flag suspicious chunks of a session",
	Long: `Fit translated length against source length over the successful chunks of a
session and flag outliers: chunks far shorter than predicted (possible
omission) and far longer (possible fabrication). Also flags chunks that do
not read as the target language.

Findings are advisory. Use "epubtran retry --chunk N" to redo a chunk.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		snap, err := session.NewManager(db, version).Load(context.Background(), args[0])
		if err != nil {
			return err
		}
		results := snap.Results()

		rep := audit.Analyze(results)
		if rep.Samples < audit.MinSamples {
			fmt.Printf("Length analysis skipped: %d successful chunks, need %d.\n", rep.Samples, audit.MinSamples)
		} else {
			fmt.Printf("Length fit over %d chunks: translated = %.3f * source + %.1f (residual stddev %.1f)\n",
				rep.Samples, rep.Slope, rep.Intercept, rep.StdDev)
		}

		det := detector.New(validator.BaseCode(snap.Config.TargetLang), validator.BaseCode(snap.Config.SourceLang))
		if auditAllLanguages {
			det = detector.New()
		}
		findings := append(rep.Suspicious, audit.CheckLanguage(results, snap.Config.TargetLang, validator.New(det))...)

		if failed := pipeline.FailedIndices(results); len(failed) > 0 {
			fmt.Printf("Failed or partly untranslated chunks: %v\n", failed)
		}
		if len(findings) == 0 {
			fmt.Println("No suspicious chunks.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHUNK\tKIND\tSOURCE\tTRANSLATED\tEXPECTED\tZ\tDETAIL")
		for _, f := range findings {
			if f.Kind == audit.KindWrongLanguage {
				fmt.Fprintf(w, "%d\t%s\t\t\t\t\t%s\n", f.ChunkIndex, f.Kind, f.Detail)
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.0f\t%.2f\t\n",
				f.ChunkIndex, f.Kind, f.SourceLength, f.TranslatedLength, f.Expected, f.ZScore)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().BoolVar(&auditAllLanguages, "all-languages", false, "Detect among all languages, not just source and target (slower)")
}
