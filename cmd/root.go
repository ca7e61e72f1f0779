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
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/epubtran/internal/config"
)

var version = "0.1.0"

var (
	cfgFile  string
	verbose  bool
	v        = config.NewViper()
	settings *config.Settings
)

// flagKeys maps command-line flags to settings keys. Only flags the running
// command defines are bound, so several commands can share a flag name.
var flagKeys = map[string]string{
	"provider":    "provider",
	"model":       "model",
	"api-key":     "api_key",
	"base-url":    "base_url",
	"source":      "source_lang",
	"target":      "target_lang",
	"concurrency": "concurrency",
	"chunk-size":  "chunk_size",
	"max-nodes":   "max_nodes_per_chunk",
	"rpm":         "requests_per_minute",
	"temperature": "temperature",
	"glossary":    "glossary.file",
	"prompt":      "prompt_file",
	"db":          "db_path",
	"max-depth":   "retry.max_depth",
}

var rootCmd = &cobra.Command{
	Use:   "epubtran",
	Short: "LLM document translator for plain text and EPUB",
	Long: `A CLI application that translates long documents with an LLM, one bounded
chunk at a time, carrying context between chunks and applying a glossary.

EPUB books are translated node by node so markup, images and structure are
kept intact. Every run is saved as a session that can be resumed, retried
and audited.

Supported providers: Gemini, OpenRouter, Ollama

Use "epubtran translate --help" or "epubtran epub --help" for options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if err := bindFlags(cmd, v); err != nil {
			return err
		}
		s, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		settings = s
		return nil
	},
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}
	if f := cmd.Flags().Lookup("no-context"); f != nil && f.Changed {
		v.Set("use_context", false)
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./epubtran.yaml or $HOME/.epubtran.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("db", "", "Session and glossary database path")
}
