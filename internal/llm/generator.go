// Package llm is the model client boundary: a Generator turns a prompt into
// text and reports failures as classifiable errors.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// SafetySetting is a provider-specific harm category threshold.
type SafetySetting struct {
	Category  string `mapstructure:"category" json:"category"`
	Threshold string `mapstructure:"threshold" json:"threshold"`
}

type Options struct {
	Model             string
	SystemInstruction string
	Temperature       float64
	TopP              float64
	MaxOutputTokens   int
	// ResponseSchema is a JSON Schema the response must follow. Nil means
	// free-form text.
	ResponseSchema json.RawMessage
	SafetySettings []SafetySetting
}

// Generator is implemented by every model backend.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// ClientConfig carries connection settings shared by the HTTP backends.
type ClientConfig struct {
	APIKey  string        `mapstructure:"api_key" json:"api_key"`
	Model   string        `mapstructure:"model" json:"model"`
	BaseURL string        `mapstructure:"base_url" json:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

func (c ClientConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 180 * time.Second
	}
	return c.Timeout
}

func pickModel(opts Options, fallback string) string {
	if opts.Model != "" {
		return opts.Model
	}
	return fallback
}
