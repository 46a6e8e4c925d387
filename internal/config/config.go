package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main mnemo configuration
type Config struct {
	// LLM provider and models
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Backend process tuning
	Backend BackendConfig `json:"backend" mapstructure:"backend"`

	// Frontend client tuning
	Client ClientConfig `json:"client" mapstructure:"client"`

	// Janitor sweep schedule
	Janitor JanitorConfig `json:"janitor" mapstructure:"janitor"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// State directory holding per-project runtime dirs
	StateDir string `json:"state_dir" mapstructure:"state_dir"`
}

// LLMConfig selects the provider and the models the agents run on.
type LLMConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	Model    string `json:"model" mapstructure:"model"`
	// FastModel serves shallow recall and memorize. Empty falls back
	// to Model.
	FastModel string `json:"fast_model" mapstructure:"fast_model"`
	// APIKey overrides the provider SDK's environment default.
	APIKey           string `json:"api_key" mapstructure:"api_key"`
	OracleTimeoutSec int    `json:"oracle_timeout_seconds" mapstructure:"oracle_timeout_seconds"`
}

// BackendConfig tunes the backend process lifecycle.
type BackendConfig struct {
	IdleTimeoutSec   int `json:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
	CheckIntervalSec int `json:"check_interval_seconds" mapstructure:"check_interval_seconds"`
	ShutdownGraceSec int `json:"shutdown_grace_seconds" mapstructure:"shutdown_grace_seconds"`
}

// ClientConfig tunes backend discovery and keep-alive from the frontend.
type ClientConfig struct {
	HeartbeatSec  int `json:"heartbeat_seconds" mapstructure:"heartbeat_seconds"`
	SpawnAttempts int `json:"spawn_attempts" mapstructure:"spawn_attempts"`
	SpawnPollMs   int `json:"spawn_poll_ms" mapstructure:"spawn_poll_ms"`
}

// JanitorConfig controls cleanup of dead project runtime dirs.
type JanitorConfig struct {
	Schedule      string `json:"schedule" mapstructure:"schedule"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	// File overrides the per-project log path. Empty lets each backend
	// log under its own runtime dir.
	File     string `json:"file" mapstructure:"file"`
	MaxSize  int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge   int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress bool   `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:         "anthropic",
			Model:            "claude-sonnet-4-5-20250929",
			FastModel:        "claude-haiku-20251001",
			OracleTimeoutSec: 60,
		},
		Backend: BackendConfig{
			IdleTimeoutSec:   600,
			CheckIntervalSec: 30,
			ShutdownGraceSec: 5,
		},
		Client: ClientConfig{
			HeartbeatSec:  240,
			SpawnAttempts: 10,
			SpawnPollMs:   500,
		},
		Janitor: JanitorConfig{
			Schedule:      "@hourly",
			RetentionDays: 7,
		},
		Logging: LoggingConfig{
			Level:    "info",
			MaxSize:  100,
			MaxAge:   7,
			Compress: true,
		},
		StateDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("invalid provider %s (must be: anthropic, openai)", c.LLM.Provider)
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}

	if c.LLM.OracleTimeoutSec < 0 {
		return fmt.Errorf("llm.oracle_timeout_seconds must be >= 0")
	}
	if c.Backend.IdleTimeoutSec < 0 {
		return fmt.Errorf("backend.idle_timeout_seconds must be >= 0")
	}
	if c.Backend.CheckIntervalSec < 0 {
		return fmt.Errorf("backend.check_interval_seconds must be >= 0")
	}
	if c.Backend.ShutdownGraceSec < 0 {
		return fmt.Errorf("backend.shutdown_grace_seconds must be >= 0")
	}
	if c.Client.HeartbeatSec < 0 {
		return fmt.Errorf("client.heartbeat_seconds must be >= 0")
	}
	if c.Client.SpawnAttempts < 0 {
		return fmt.Errorf("client.spawn_attempts must be >= 0")
	}
	if c.Client.SpawnPollMs < 0 {
		return fmt.Errorf("client.spawn_poll_ms must be >= 0")
	}
	if c.Janitor.RetentionDays < 0 {
		return fmt.Errorf("janitor.retention_days must be >= 0")
	}

	if c.Logging.Level != "" {
		valid := false
		for _, level := range []string{"trace", "debug", "info", "warn", "error", "fatal", "disabled"} {
			if c.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid log level: %s", c.Logging.Level)
		}
	}

	return nil
}
