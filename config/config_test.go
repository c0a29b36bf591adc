package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"elamath/config"
)

func TestLoad_DefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_GROQ_KEY", "gsk-test")
	t.Setenv("TEST_ELEVEN_KEY", "el-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := `
transcriber:
  api_key: ${TEST_GROQ_KEY}
analyzer:
  api_key: ${TEST_GROQ_KEY}
synthesizer:
  api_key: ${TEST_ELEVEN_KEY}
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yamlData), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Transcriber.APIKey != "gsk-test" || cfg.Analyzer.APIKey != "gsk-test" {
		t.Errorf("groq keys not expanded: %q / %q", cfg.Transcriber.APIKey, cfg.Analyzer.APIKey)
	}
	if cfg.Synthesizer.APIKey != "el-test" {
		t.Errorf("elevenlabs key: got %q", cfg.Synthesizer.APIKey)
	}

	defaults := []struct {
		name string
		got  any
		want any
	}{
		{"server.addr", cfg.Server.Addr, ":7860"},
		{"transcriber.model", cfg.Transcriber.Model, "whisper-large-v3"},
		{"analyzer.provider", cfg.Analyzer.Provider, "groq"},
		{"synthesizer.provider", cfg.Synthesizer.Provider, "elevenlabs"},
		{"retry.max_attempts", cfg.Retry.MaxAttempts, 1},
		{"output.dir", cfg.Output.Dir, "./answers"},
		{"log.level", cfg.Log.Level, "debug"},
		{"log.format", cfg.Log.Format, "text"},
		{"metrics.path", cfg.Metrics.Path, "/metrics"},
		{"server.trust_proxy_headers", cfg.Server.TrustProxyHeaders, false},
	}
	for _, d := range defaults {
		if d.got != d.want {
			t.Errorf("%s: got %v, want %v", d.name, d.got, d.want)
		}
	}

	if got := config.Duration(cfg.Output.TTL); got != time.Hour {
		t.Errorf("output.ttl: got %v, want 1h", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown analyzer",
			yaml:    "analyzer:\n  provider: llava\n",
			wantErr: "analyzer.provider",
		},
		{
			name:    "unknown synthesizer",
			yaml:    "synthesizer:\n  provider: gtts\n",
			wantErr: "synthesizer.provider",
		},
		{
			name:    "bad duration",
			yaml:    "output:\n  ttl: forever\n",
			wantErr: "output.ttl",
		},
		{
			name:    "zero sweep interval",
			yaml:    "output:\n  sweep_interval: 0s\n",
			wantErr: "output.sweep_interval",
		},
		{
			name:    "negative sweep interval",
			yaml:    "output:\n  sweep_interval: -5m\n",
			wantErr: "output.sweep_interval",
		},
		{
			name:    "negative retries",
			yaml:    "retry:\n  max_attempts: -2\n",
			wantErr: "retry.max_attempts",
		},
		{
			name:    "low sample rate",
			yaml:    "media:\n  sample_rate: 4000\n",
			wantErr: "media.sample_rate",
		},
		{
			name:    "malformed yaml",
			yaml:    "server: [",
			wantErr: "parsing config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error: got %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_Providers(t *testing.T) {
	for _, provider := range []string{"groq", "openai", "gemini", "anthropic"} {
		cfg, err := config.Parse([]byte("analyzer:\n  provider: " + provider + "\n"))
		if err != nil {
			t.Errorf("provider %s: %v", provider, err)
			continue
		}
		if cfg.Analyzer.Provider != provider {
			t.Errorf("provider: got %s, want %s", cfg.Analyzer.Provider, provider)
		}
	}
}
