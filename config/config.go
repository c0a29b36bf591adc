package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
	Media       MediaConfig       `yaml:"media"`
	Output      OutputConfig      `yaml:"output"`
	Retry       RetryConfig       `yaml:"retry"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	AuthToken   string `yaml:"auth_token"`
	RateLimit   int    `yaml:"rate_limit"` // requests per minute per client
	MaxUploadMB int    `yaml:"max_upload_mb"`

	// honor X-Forwarded-For and X-Real-IP; enable only behind a trusted proxy
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

type TranscriberConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Timeout  string `yaml:"timeout"`
}

type AnalyzerConfig struct {
	Provider  string `yaml:"provider"` // groq, openai, gemini, anthropic
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`
}

type SynthesizerConfig struct {
	Provider     string `yaml:"provider"` // elevenlabs, openai
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Voice        string `yaml:"voice"`
	Model        string `yaml:"model"`
	OutputFormat string `yaml:"output_format"`
	Timeout      string `yaml:"timeout"`
}

type MediaConfig struct {
	FFmpegPath    string `yaml:"ffmpeg_path"`
	SampleRate    int    `yaml:"sample_rate"`
	MaxImageBytes int64  `yaml:"max_image_bytes"`
}

type OutputConfig struct {
	Dir           string `yaml:"dir"`
	TTL           string `yaml:"ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

type RetryConfig struct {
	MaxAttempts  int    `yaml:"max_attempts"`
	InitialDelay string `yaml:"initial_delay"`
	MaxDelay     string `yaml:"max_delay"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references from the environment, applies defaults
// and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":7860"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 30
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 20
	}
	if c.Transcriber.Model == "" {
		c.Transcriber.Model = "whisper-large-v3"
	}
	if c.Transcriber.Timeout == "" {
		c.Transcriber.Timeout = "60s"
	}
	if c.Analyzer.Provider == "" {
		c.Analyzer.Provider = "groq"
	}
	if c.Analyzer.MaxTokens == 0 {
		c.Analyzer.MaxTokens = 1024
	}
	if c.Analyzer.Timeout == "" {
		c.Analyzer.Timeout = "60s"
	}
	if c.Synthesizer.Provider == "" {
		c.Synthesizer.Provider = "elevenlabs"
	}
	if c.Synthesizer.Timeout == "" {
		c.Synthesizer.Timeout = "60s"
	}
	if c.Media.SampleRate == 0 {
		c.Media.SampleRate = 22050
	}
	if c.Media.FFmpegPath == "" {
		c.Media.FFmpegPath = "ffmpeg"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "./answers"
	}
	if c.Output.TTL == "" {
		c.Output.TTL = "1h"
	}
	if c.Output.SweepInterval == "" {
		c.Output.SweepInterval = "5m"
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 1
	}
	if c.Retry.InitialDelay == "" {
		c.Retry.InitialDelay = "250ms"
	}
	if c.Retry.MaxDelay == "" {
		c.Retry.MaxDelay = "5s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) Validate() error {
	switch c.Analyzer.Provider {
	case "groq", "openai", "gemini", "anthropic":
	default:
		return fmt.Errorf("analyzer.provider: unknown provider %q", c.Analyzer.Provider)
	}

	switch c.Synthesizer.Provider {
	case "elevenlabs", "openai":
	default:
		return fmt.Errorf("synthesizer.provider: unknown provider %q", c.Synthesizer.Provider)
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Server.MaxUploadMB < 0 {
		return fmt.Errorf("server.max_upload_mb must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Media.SampleRate < 8000 {
		return fmt.Errorf("media.sample_rate must be at least 8000, got %d", c.Media.SampleRate)
	}

	durations := map[string]string{
		"transcriber.timeout":   c.Transcriber.Timeout,
		"analyzer.timeout":      c.Analyzer.Timeout,
		"synthesizer.timeout":   c.Synthesizer.Timeout,
		"output.ttl":            c.Output.TTL,
		"output.sweep_interval": c.Output.SweepInterval,
		"retry.initial_delay":   c.Retry.InitialDelay,
		"retry.max_delay":       c.Retry.MaxDelay,
	}
	for field, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	if Duration(c.Output.SweepInterval) <= 0 {
		return fmt.Errorf("output.sweep_interval must be positive, got %s", c.Output.SweepInterval)
	}

	return nil
}

// Duration parses a field already checked by Validate.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
