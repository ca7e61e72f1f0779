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

	"github.com/spf13/cobra"

	"github.com/valpere/epubtran/internal/pipeline"
)

var retryChunks []int

var retryCmd = &cobra.Command{
	Use:   "retry <session>",
	Short: "Retranslate failed chunks of a session",
	Long: `Retranslate the chunks of a session that failed or still contain
[[UNTRANSLATED]] markers, then rewrite the output.

Use --chunk to retry specific chunks instead, for example with a different
model:
  epubtran retry <session> --chunk 12 --chunk 40 --model gemini-2.5-pro`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		job, err := resumeJob(ctx, cmd, db, args[0])
		if err != nil {
			return err
		}

		indices := retryChunks
		if len(indices) == 0 {
			indices = pipeline.FailedIndices(job.Results())
		}
		if len(indices) == 0 {
			fmt.Println("Nothing to retry.")
			return nil
		}
		fmt.Fprintf(os.Stderr, "Retrying %d chunks: %v\n", len(indices), indices)
		return finishRun(job, job.Retry(ctx, indices))
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
	addModelFlags(retryCmd)
	retryCmd.Flags().IntSliceVar(&retryChunks, "chunk", nil, "Chunk index to retry (repeatable; default all failed)")
	retryCmd.Flags().StringP("output", "o", "", "Override the output file recorded in the session")
	retryCmd.Flags().IntP("concurrency", "j", 0, "Chunks translated in parallel")
}
