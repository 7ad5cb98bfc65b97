package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "20s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Agent     AgentConfig     `yaml:"agent"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	ReadTimeout      Duration `yaml:"read_timeout"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	IdleTimeout      Duration `yaml:"idle_timeout"`
	GracefulShutdown Duration `yaml:"graceful_shutdown"`
	MaxBodyBytes     int64    `yaml:"max_body_bytes"`
}

// GeminiConfig configures the upstream generate-content API and the
// quota/backoff layer in front of it. An empty APIKey switches the client
// into offline fallback mode.
type GeminiConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`

	// Knowledge cache sizing. Keys are truncated normalized prompts, so
	// near-duplicate definition questions deliberately collide.
	CacheCapacity int `yaml:"cache_capacity"`
	CacheKeyLimit int `yaml:"cache_key_limit"`

	// Quota (429) backoff falls back to QuotaDefaultBackoff when the response
	// body carries no retry hint. Overload (503) starts from
	// OverloadBaseBackoff, honors a suggested delay clamped to
	// [OverloadMinBackoff, OverloadMaxBackoff], then applies ±25% jitter.
	QuotaDefaultBackoff Duration `yaml:"quota_default_backoff"`
	OverloadBaseBackoff Duration `yaml:"overload_base_backoff"`
	OverloadMinBackoff  Duration `yaml:"overload_min_backoff"`
	OverloadMaxBackoff  Duration `yaml:"overload_max_backoff"`
}

type AgentConfig struct {
	// DuplicateWindow bounds the repeat-action suppression log.
	DuplicateWindow Duration `yaml:"duplicate_window"`
	// ContextTurns caps how many recent messages feed the routing prompt.
	ContextTurns int `yaml:"context_turns"`
	// SessionTTL expires idle schedule slot-filling sessions.
	SessionTTL Duration `yaml:"session_ttl"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	MetricsPort int    `yaml:"metrics_port"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             5000,
			ReadTimeout:      Duration(30 * time.Second),
			WriteTimeout:     Duration(120 * time.Second),
			IdleTimeout:      Duration(120 * time.Second),
			GracefulShutdown: Duration(30 * time.Second),
			MaxBodyBytes:     1 << 20,
		},
		Gemini: GeminiConfig{
			BaseURL:             "https://generativelanguage.googleapis.com",
			Model:               "gemini-1.5-flash",
			CacheCapacity:       200,
			CacheKeyLimit:       200,
			QuotaDefaultBackoff: Duration(20 * time.Second),
			OverloadBaseBackoff: Duration(8 * time.Second),
			OverloadMinBackoff:  Duration(3 * time.Second),
			OverloadMaxBackoff:  Duration(15 * time.Second),
		},
		Agent: AgentConfig{
			DuplicateWindow: Duration(15 * time.Second),
			ContextTurns:    6,
			SessionTTL:      Duration(10 * time.Minute),
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			MetricsPort: 9090,
		},
	}
}
