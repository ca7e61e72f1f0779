package llm

import "fmt"

// New builds the named backend.
func New(provider string, cfg ClientConfig) (Generator, error) {
	switch provider {
	case "gemini", "":
		return NewGemini(cfg), nil
	case "openrouter", "openai":
		return NewOpenRouter(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	}
	return nil, fmt.Errorf("unknown provider: %s", provider)
}
