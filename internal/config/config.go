// Package config loads run settings from defaults, an optional YAML file
// and EPUBTRAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/epubtran/internal/chunker"
	"github.com/valpere/epubtran/internal/executor"
	"github.com/valpere/epubtran/internal/llm"
	"github.com/valpere/epubtran/internal/prompt"
	"github.com/valpere/epubtran/internal/scheduler"
)

const EnvPrefix = "EPUBTRAN"

type RetrySettings struct {
	MaxDepth         int  `mapstructure:"max_depth"`
	MinSize          int  `mapstructure:"min_size"`
	AllowSafetyRetry bool `mapstructure:"allow_safety_retry"`
}

type GlossarySettings struct {
	MaxTerms int `mapstructure:"max_terms"`
	MaxChars int `mapstructure:"max_chars"`
	// File is a YAML glossary/story bible merged with the stored terms.
	File string `mapstructure:"file"`
}

type Settings struct {
	Provider          string           `mapstructure:"provider"`
	Model             string           `mapstructure:"model"`
	APIKey            string           `mapstructure:"api_key"`
	BaseURL           string           `mapstructure:"base_url"`
	Timeout           time.Duration    `mapstructure:"timeout"`
	Temperature       float64          `mapstructure:"temperature"`
	TopP              float64          `mapstructure:"top_p"`
	MaxOutputTokens   int              `mapstructure:"max_output_tokens"`
	RequestsPerMinute int              `mapstructure:"requests_per_minute"`
	Concurrency       int              `mapstructure:"concurrency"`
	ChunkSize         int              `mapstructure:"chunk_size"`
	MaxNodesPerChunk  int              `mapstructure:"max_nodes_per_chunk"`
	ContextChars      int              `mapstructure:"context_chars"`
	UseContext        bool             `mapstructure:"use_context"`
	Retry             RetrySettings    `mapstructure:"retry"`
	Glossary          GlossarySettings `mapstructure:"glossary"`
	SourceLang        string           `mapstructure:"source_lang"`
	TargetLang        string           `mapstructure:"target_lang"`
	DBPath            string           `mapstructure:"db_path"`
	PromptFile        string           `mapstructure:"prompt_file"`
}

// SetDefaults registers a default for every key. AutomaticEnv only
// resolves keys viper already knows about.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "gemini")
	v.SetDefault("model", "")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("timeout", 180*time.Second)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("top_p", 0.95)
	v.SetDefault("max_output_tokens", 8192)
	v.SetDefault("requests_per_minute", 15)
	v.SetDefault("concurrency", 1)
	v.SetDefault("chunk_size", 4000)
	v.SetDefault("max_nodes_per_chunk", 40)
	v.SetDefault("context_chars", chunker.DefaultContextChars)
	v.SetDefault("use_context", true)
	v.SetDefault("retry.max_depth", executor.DefaultMaxDepth)
	v.SetDefault("retry.min_size", executor.DefaultMinSize)
	v.SetDefault("retry.allow_safety_retry", true)
	v.SetDefault("glossary.max_terms", prompt.DefaultMaxTerms)
	v.SetDefault("glossary.max_chars", prompt.DefaultMaxChars)
	v.SetDefault("glossary.file", "")
	v.SetDefault("source_lang", "auto")
	v.SetDefault("target_lang", "")
	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("prompt_file", "")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "epubtran.db"
	}
	return filepath.Join(home, ".epubtran", "epubtran.db")
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file into v, or the first default location that exists when
// file is empty, and decodes the result. A missing explicit file is an
// error.
func Load(v *viper.Viper, file string) (*Settings, error) {
	if file == "" {
		file = findConfig()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if s.APIKey == "" {
		s.APIKey = providerKey(s.Provider)
	}
	return &s, nil
}

func findConfig() string {
	candidates := []string{"epubtran.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".epubtran.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// providerKey falls back to the provider's conventional key variable.
func providerKey(provider string) string {
	switch provider {
	case "openrouter", "openai":
		return os.Getenv("OPENROUTER_API_KEY")
	case "gemini", "":
		if k := os.Getenv("GEMINI_API_KEY"); k != "" {
			return k
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}

// Validate checks the settings a translation run needs.
func (s *Settings) Validate() error {
	var errs []error
	if s.TargetLang == "" {
		errs = append(errs, errors.New("target language is required"))
	}
	if s.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", s.ChunkSize))
	}
	if s.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", s.Concurrency))
	}
	if s.MaxNodesPerChunk < 1 {
		errs = append(errs, fmt.Errorf("max_nodes_per_chunk must be at least 1, got %d", s.MaxNodesPerChunk))
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %g", s.Temperature))
	}
	return errors.Join(errs...)
}

func (s *Settings) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		APIKey:  s.APIKey,
		Model:   s.Model,
		BaseURL: s.BaseURL,
		Timeout: s.Timeout,
	}
}

// Generator builds the configured backend behind the shared rate gate.
func (s *Settings) Generator() (llm.Generator, error) {
	gen, err := llm.New(s.Provider, s.ClientConfig())
	if err != nil {
		return nil, err
	}
	return llm.NewGate(gen, s.RequestsPerMinute), nil
}

func (s *Settings) ExecutorConfig() executor.Config {
	opts := llm.Options{
		Model:           s.Model,
		Temperature:     s.Temperature,
		TopP:            s.TopP,
		MaxOutputTokens: s.MaxOutputTokens,
	}
	if s.Provider == "gemini" || s.Provider == "" {
		opts.SafetySettings = llm.DefaultSafetySettings
	}
	return executor.Config{
		Options:  opts,
		MaxDepth: s.Retry.MaxDepth,
		MinSize:  s.Retry.MinSize,
	}
}

func (s *Settings) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Concurrency:      s.Concurrency,
		ContextChars:     s.ContextChars,
		DisableContext:   !s.UseContext,
		AllowSafetyRetry: s.Retry.AllowSafetyRetry,
	}
}
