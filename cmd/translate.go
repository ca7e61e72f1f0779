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

	"github.com/valpere/epubtran/internal/session"
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a plain text file",
	Long: `Translate a plain text file chunk by chunk.

The text is split on line boundaries into chunks of at most --chunk-size
characters. Chunks blocked by the provider's safety filter are split further
and retried; pieces that still fail are kept in the output between
[[UNTRANSLATED]] markers.

Example:
  epubtran translate -i novel.txt -o novel.ko.txt -t ko`,
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
		text := string(data)
		resolveSource(settings, text)

		ctx, stop := signalContext()
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		env, err := newEnv(ctx, db, settings)
		if err != nil {
			return err
		}
		id := env.Sessions.NewID()
		job := env.NewTextJob(id, text, runConfig(settings, input, output), session.Fingerprint(input, data))
		fmt.Fprintf(os.Stderr, "Session %s: %d chunks\n", id, len(job.Units()))

		return finishRun(job, job.Run(ctx))
	},
}

func init() {
	rootCmd.AddCommand(translateCmd)
	addRunFlags(translateCmd)
}
