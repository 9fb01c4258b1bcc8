package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/model"
	"github.com/dgallion1/docsum/internal/prompt"
	"github.com/dgallion1/docsum/internal/segment"
	"github.com/dgallion1/docsum/internal/summary"
)

type Config struct {
	// HTTP server
	Port         string `yaml:"port"`
	DocsumAPIKey string `yaml:"-"`

	// Model provider
	Provider         string        `yaml:"provider"` // openai | anthropic | gemini
	Model            string        `yaml:"model"`
	Temperature      float64       `yaml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens"`
	MaxRetries       int           `yaml:"max_retries"` // Total attempts per call.
	CallTimeout      time.Duration `yaml:"call_timeout"`
	OpenAIAPIKey     string        `yaml:"-"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	AnthropicAPIKey  string        `yaml:"-"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	GeminiAPIKey     string        `yaml:"-"`
	GeminiBaseURL    string        `yaml:"gemini_base_url"`

	// Segmentation
	Mode            string `yaml:"mode"` // auto | always | never
	Threshold       int    `yaml:"threshold"`
	Overlap         int    `yaml:"overlap"`
	CutAtReferences bool   `yaml:"cut_at_references"`

	// Summary shape and reduction
	BulletCap         int `yaml:"bullet_cap"`
	MaxWords          int `yaml:"max_words"`
	ReduceCapacity    int `yaml:"reduce_capacity"`
	MaxReductionDepth int `yaml:"max_reduction_depth"`

	Prompts prompt.Set `yaml:"prompts"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`
	Concurrency  int `yaml:"concurrency"` // Documents summarized at once by `run`.

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Job state and stats
	JobTTL      time.Duration `yaml:"job_ttl"`
	StatsWindow time.Duration `yaml:"stats_window"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port: "8090",

		Provider:    "openai",
		Model:       "gpt-5-mini",
		Temperature: 1,
		MaxTokens:   4096,
		MaxRetries:  3,
		CallTimeout: 180 * time.Second,

		Mode:            string(segment.ModeAuto),
		Threshold:       8000,
		Overlap:         500,
		CutAtReferences: true,

		BulletCap:         4,
		MaxWords:          25,
		ReduceCapacity:    6000,
		MaxReductionDepth: 3,

		Prompts: prompt.Default(),

		WorkerCount:  4,
		MaxQueueSize: 100,
		Concurrency:  2,

		MaxUploadBytes: 52428800, // 50MB

		JobTTL:      1 * time.Hour,
		StatsWindow: 1 * time.Hour,

		PDFFallbackPdftotext: true,
	}
}

// Load reads the configuration from the environment over the defaults.
func Load() Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile overlays a YAML file on the defaults, then the environment on top.
// Prompt templates left empty in the file keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		fileCfg := cfg
		fileCfg.Prompts = prompt.Set{}
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		fileCfg.Prompts = cfg.Prompts.Merge(fileCfg.Prompts)
		cfg = fileCfg
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.DocsumAPIKey = envOr("DOCSUM_API_KEY", c.DocsumAPIKey)

	c.Provider = strings.ToLower(envOr("MODEL_PROVIDER", c.Provider))
	c.Model = envOr("MODEL", c.Model)
	c.Temperature = envFloat("TEMPERATURE", c.Temperature)
	c.MaxTokens = envInt("MAX_TOKENS", c.MaxTokens)
	c.MaxRetries = envInt("MAX_RETRIES", c.MaxRetries)
	c.CallTimeout = envDuration("CALL_TIMEOUT", c.CallTimeout)
	c.OpenAIAPIKey = envOr("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = envOr("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AnthropicBaseURL = envOr("ANTHROPIC_BASE_URL", c.AnthropicBaseURL)
	c.GeminiAPIKey = envOr("GEMINI_API_KEY", envOr("GOOGLE_API_KEY", c.GeminiAPIKey))
	c.GeminiBaseURL = envOr("GEMINI_BASE_URL", c.GeminiBaseURL)

	c.Mode = envOr("SUMMARY_MODE", c.Mode)
	c.Threshold = envInt("CHUNK_THRESHOLD", c.Threshold)
	c.Overlap = envInt("CHUNK_OVERLAP", c.Overlap)
	c.CutAtReferences = envBool("CUT_AT_REFERENCES", c.CutAtReferences)

	c.BulletCap = envInt("BULLET_CAP", c.BulletCap)
	c.MaxWords = envInt("MAX_WORDS", c.MaxWords)
	c.ReduceCapacity = envInt("REDUCE_CAPACITY", c.ReduceCapacity)
	c.MaxReductionDepth = envInt("MAX_REDUCTION_DEPTH", c.MaxReductionDepth)

	c.WorkerCount = envInt("WORKER_COUNT", c.WorkerCount)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)
	c.Concurrency = envInt("CONCURRENCY", c.Concurrency)
	c.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.JobTTL = envDuration("JOB_TTL", c.JobTTL)
	c.StatsWindow = envDuration("STATS_WINDOW", c.StatsWindow)
	c.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", c.PDFFallbackPdftotext)

	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 52428800
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 1 * time.Hour
	}
}

// Validate rejects invalid combinations before any model call is made.
func (c Config) Validate() error {
	if err := c.SegmentConfig().Validate(); err != nil {
		return err
	}
	if err := model.CheckTemperature(c.Model, c.Temperature); err != nil {
		return err
	}
	checks := []struct {
		name string
		v    int
	}{
		{"max_retries", c.MaxRetries},
		{"bullet_cap", c.BulletCap},
		{"max_words", c.MaxWords},
		{"reduce_capacity", c.ReduceCapacity},
		{"max_reduction_depth", c.MaxReductionDepth},
	}
	for _, ch := range checks {
		if ch.v <= 0 {
			return apperr.Newf(apperr.KindConfiguration, "%s must be positive, got %d", ch.name, ch.v)
		}
	}
	if err := c.Prompts.Validate(); err != nil {
		return apperr.New(apperr.KindConfiguration, "invalid prompts", err)
	}
	switch c.Provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return apperr.New(apperr.KindConfiguration, "OPENAI_API_KEY is required", nil)
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return apperr.New(apperr.KindConfiguration, "ANTHROPIC_API_KEY is required", nil)
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return apperr.New(apperr.KindConfiguration, "GEMINI_API_KEY is required", nil)
		}
	default:
		return apperr.Newf(apperr.KindConfiguration, "unknown provider %q", c.Provider)
	}
	return nil
}

// ValidateServer adds the checks only the HTTP server needs.
func (c Config) ValidateServer() error {
	if c.DocsumAPIKey == "" {
		return apperr.New(apperr.KindConfiguration, "DOCSUM_API_KEY is required", nil)
	}
	return c.Validate()
}

// SegmentConfig returns the segmentation settings.
func (c Config) SegmentConfig() segment.Config {
	return segment.Config{
		Mode:            segment.Mode(strings.ToLower(strings.TrimSpace(c.Mode))),
		Threshold:       c.Threshold,
		Overlap:         c.Overlap,
		CutAtReferences: c.CutAtReferences,
	}
}

// InvokerConfig returns the model call policy.
func (c Config) InvokerConfig() model.Config {
	return model.Config{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxAttempts: c.MaxRetries,
		CallTimeout: c.CallTimeout,
		MaxTokens:   c.MaxTokens,
	}
}

// Rules returns the bullet limits.
func (c Config) Rules() summary.Rules {
	return summary.Rules{BulletCap: c.BulletCap, MaxWords: c.MaxWords}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
