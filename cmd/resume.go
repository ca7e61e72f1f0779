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
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session>",
	Short: "Continue an interrupted translation",
	Long: `Continue a translation session that stopped on a rate limit, an error or
Ctrl-C. Chunks that already completed are reused, and the run continues from
the first unfinished chunk in order.

The source file must be unchanged; its fingerprint is checked.

Example:
  epubtran resume 3f2a5c1e-8d4b-4a8e-9c7f-0b1d2e3f4a5b`,
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
		fmt.Fprintf(os.Stderr, "Resuming session %s: %d of %d chunks remaining\n", job.ID, len(job.Pending()), len(job.Units()))
		return finishRun(job, job.Run(ctx))
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	addModelFlags(resumeCmd)
	resumeCmd.Flags().StringP("output", "o", "", "Override the output file recorded in the session")
	resumeCmd.Flags().IntP("concurrency", "j", 0, "Chunks translated in parallel")
}
