package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "qwen2.5:7b"
)

// Ollama talks to a local Ollama server through /api/generate.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllama(cfg ClientConfig) *Ollama {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: cfg.timeout()},
	}
}

func (s *Ollama) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options map[string]any  `json:"options,omitempty"`
}

func (s *Ollama) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	options := map[string]any{"temperature": opts.Temperature}
	if opts.TopP > 0 {
		options["top_p"] = opts.TopP
	}
	if opts.MaxOutputTokens > 0 {
		options["num_predict"] = opts.MaxOutputTokens
	}

	req := ollamaRequest{
		Model:   pickModel(opts, s.model),
		Prompt:  prompt,
		System:  opts.SystemInstruction,
		Stream:  false,
		Format:  opts.ResponseSchema,
		Options: options,
	}

	var resp struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := postJSON(ctx, s.client, s.Name(), s.baseURL+"/api/generate", nil, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%s: %s", s.Name(), resp.Error)
	}
	return resp.Response, nil
}
