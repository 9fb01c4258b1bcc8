package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/prompt"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.OpenAIAPIKey = "sk-test"
	return cfg
}

func TestDefaults_Validate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SUMMARY_MODE", "always")
	t.Setenv("CHUNK_THRESHOLD", "5000")
	t.Setenv("TEMPERATURE", "0.2")
	t.Setenv("CALL_TIMEOUT", "45s")
	t.Setenv("WORKER_COUNT", "-1")
	t.Setenv("CHUNK_OVERLAP", "not-a-number")

	cfg := Load()
	if cfg.Mode != "always" || cfg.Threshold != 5000 || cfg.Temperature != 0.2 {
		t.Errorf("expected env overrides, got mode=%s threshold=%d temp=%v", cfg.Mode, cfg.Threshold, cfg.Temperature)
	}
	if cfg.CallTimeout != 45*time.Second {
		t.Errorf("expected 45s call timeout, got %v", cfg.CallTimeout)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("expected invalid worker count to fall back to 4, got %d", cfg.WorkerCount)
	}
	if cfg.Overlap != 500 {
		t.Errorf("expected unparsable overlap to keep default, got %d", cfg.Overlap)
	}
}

func TestLoadFile_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsum.yaml")
	yml := `
provider: anthropic
model: claude-sonnet-4-5
temperature: 0.3
threshold: 12000
overlap: 400
call_timeout: 90s
prompts:
  map: "Only this part: {chunk}"
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHUNK_OVERLAP", "600")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != "anthropic" || cfg.Model != "claude-sonnet-4-5" || cfg.Threshold != 12000 {
		t.Errorf("expected file values, got %+v", cfg)
	}
	if cfg.Overlap != 600 {
		t.Errorf("expected env to win over file, got overlap %d", cfg.Overlap)
	}
	if cfg.CallTimeout != 90*time.Second {
		t.Errorf("expected 90s call timeout, got %v", cfg.CallTimeout)
	}
	if cfg.Prompts.Map != "Only this part: {chunk}" {
		t.Errorf("expected map prompt override, got %q", cfg.Prompts.Map)
	}
	if cfg.Prompts.Reduce != prompt.Default().Reduce {
		t.Error("expected reduce prompt to keep its default")
	}
	if cfg.BulletCap != 4 {
		t.Errorf("expected unset fields to keep defaults, got bullet cap %d", cfg.BulletCap)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fixed temperature", func(c *Config) { c.Model = "gpt-5"; c.Temperature = 0.2 }},
		{"bad mode", func(c *Config) { c.Mode = "sometimes" }},
		{"overlap too large", func(c *Config) { c.Overlap = c.Threshold }},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"zero depth", func(c *Config) { c.MaxReductionDepth = 0 }},
		{"unknown provider", func(c *Config) { c.Provider = "llama" }},
		{"missing key", func(c *Config) { c.OpenAIAPIKey = "" }},
		{"broken prompt", func(c *Config) { c.Prompts.Map = "no placeholder" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !apperr.IsKind(err, apperr.KindConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestValidateServer_RequiresAPIKey(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateServer(); err == nil {
		t.Error("expected missing DOCSUM_API_KEY to fail")
	}
	cfg.DocsumAPIKey = "secret"
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
