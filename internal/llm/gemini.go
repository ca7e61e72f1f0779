package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// DefaultSafetySettings disables blocking for every adjustable category.
// Fiction routinely trips the default thresholds.
var DefaultSafetySettings = []SafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"SPII":               true,
}

// Gemini calls the Generative Language REST API.
type Gemini struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewGemini(cfg ClientConfig) *Gemini {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: cfg.timeout()},
	}
}

func (s *Gemini) Name() string {
	return "gemini"
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature        float64         `json:"temperature"`
	TopP               float64         `json:"topP,omitempty"`
	MaxOutputTokens    int             `json:"maxOutputTokens,omitempty"`
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage `json:"responseJsonSchema,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SafetySettings    []SafetySetting        `json:"safetySettings,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (s *Gemini) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if s.apiKey == "" {
		return "", &InvalidRequestError{Provider: s.Name(), Message: "API key required"}
	}

	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     opts.Temperature,
			TopP:            opts.TopP,
			MaxOutputTokens: opts.MaxOutputTokens,
		},
		SafetySettings: opts.SafetySettings,
	}
	if len(req.SafetySettings) == 0 {
		req.SafetySettings = DefaultSafetySettings
	}
	if opts.SystemInstruction != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: opts.SystemInstruction}}}
	}
	if len(opts.ResponseSchema) > 0 {
		req.GenerationConfig.ResponseMimeType = "application/json"
		req.GenerationConfig.ResponseJSONSchema = opts.ResponseSchema
	}

	// The key travels in a header; request errors quote the URL.
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, url.PathEscape(pickModel(opts, s.model)))
	headers := map[string]string{"x-goog-api-key": s.apiKey}

	var resp geminiResponse
	if err := postJSON(ctx, s.client, s.Name(), endpoint, headers, req, &resp); err != nil {
		return "", err
	}

	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return "", &ContentSafetyError{Provider: s.Name(), Reason: reason}
	}
	if len(resp.Candidates) == 0 {
		return "", &ContentSafetyError{Provider: s.Name(), Reason: "empty response"}
	}

	cand := resp.Candidates[0]
	if blockedFinishReasons[cand.FinishReason] {
		return "", &ContentSafetyError{Provider: s.Name(), Reason: cand.FinishReason}
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
