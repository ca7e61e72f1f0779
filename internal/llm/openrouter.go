package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "google/gemini-2.0-flash-001"
)

// OpenRouter talks to any OpenAI-compatible chat completions endpoint.
type OpenRouter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenRouter(cfg ClientConfig) *OpenRouter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenRouterModel
	}
	return &OpenRouter{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: cfg.timeout()},
	}
}

func (s *OpenRouter) Name() string {
	return "openrouter"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string       `json:"type"`
	JSONSchema *namedSchema `json:"json_schema,omitempty"`
}

type namedSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (s *OpenRouter) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if s.apiKey == "" {
		return "", &InvalidRequestError{Provider: s.Name(), Message: "API key required"}
	}

	req := chatRequest{
		Model:       pickModel(opts, s.model),
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxOutputTokens,
	}
	if opts.SystemInstruction != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: opts.SystemInstruction})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})
	if len(opts.ResponseSchema) > 0 {
		req.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &namedSchema{Name: "response", Schema: opts.ResponseSchema},
		}
	}

	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", s.apiKey),
		"HTTP-Referer":  "https://epubtran.local",
		"X-Title":       "EpubTran",
	}

	var resp chatResponse
	if err := postJSON(ctx, s.client, s.Name(), s.baseURL+"/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &ContentSafetyError{Provider: s.Name(), Reason: "empty response"}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &ContentSafetyError{Provider: s.Name(), Reason: choice.FinishReason}
	}
	return choice.Message.Content, nil
}
