package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateProvider(t *testing.T) {
	v := NewValidator()

	t.Run("valid providers", func(t *testing.T) {
		providers := []string{"anthropic", "openai"}
		for _, provider := range providers {
			assert.NoError(t, v.ValidateProvider(provider))
		}
	})

	t.Run("empty provider uses default", func(t *testing.T) {
		assert.NoError(t, v.ValidateProvider(""))
	})

	t.Run("invalid provider", func(t *testing.T) {
		err := v.ValidateProvider("gemini")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})
}

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid anthropic key", func(t *testing.T) {
		err := v.ValidateAPIKey("sk-ant-test123", "anthropic")
		assert.NoError(t, err)
	})

	t.Run("invalid anthropic key", func(t *testing.T) {
		err := v.ValidateAPIKey("invalid-key", "anthropic")
		assert.Error(t, err)
	})

	t.Run("valid openai key", func(t *testing.T) {
		err := v.ValidateAPIKey("sk-test123", "openai")
		assert.NoError(t, err)
	})

	t.Run("invalid openai key", func(t *testing.T) {
		err := v.ValidateAPIKey("invalid-key", "openai")
		assert.Error(t, err)
	})

	t.Run("empty key", func(t *testing.T) {
		err := v.ValidateAPIKey("", "anthropic")
		assert.Error(t, err)
	})
}

func TestValidateModel(t *testing.T) {
	v := NewValidator()

	t.Run("any model name", func(t *testing.T) {
		err := v.ValidateModel("claude-sonnet-4-5-20250929")
		assert.NoError(t, err)
	})

	t.Run("empty model", func(t *testing.T) {
		err := v.ValidateModel("")
		assert.Error(t, err)
	})
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	t.Run("valid levels", func(t *testing.T) {
		levels := []string{"trace", "debug", "info", "warn", "error", "fatal", "disabled"}
		for _, level := range levels {
			assert.NoError(t, v.ValidateLogLevel(level))
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		err := v.ValidateLogLevel("verbose")
		assert.Error(t, err)
	})
}

func TestValidateSchedule(t *testing.T) {
	v := NewValidator()

	t.Run("descriptor schedule", func(t *testing.T) {
		assert.NoError(t, v.ValidateSchedule("@hourly"))
	})

	t.Run("cron expression", func(t *testing.T) {
		assert.NoError(t, v.ValidateSchedule("30 * * * *"))
	})

	t.Run("empty schedule uses default", func(t *testing.T) {
		assert.NoError(t, v.ValidateSchedule(""))
	})

	t.Run("invalid schedule", func(t *testing.T) {
		err := v.ValidateSchedule("whenever")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid schedule")
	})
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("default config passes", func(t *testing.T) {
		errs := v.ValidateConfig(DefaultConfig())
		assert.Empty(t, errs)
	})

	t.Run("collects all problems", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.Provider = "gemini"
		cfg.LLM.Model = ""
		cfg.Logging.Level = "verbose"
		cfg.Janitor.Schedule = "whenever"
		cfg.Janitor.RetentionDays = -1

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 5)
	})

	t.Run("set api key must match provider format", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.APIKey = "not-a-key"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "sk-ant-")
	})

	t.Run("empty api key is fine", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.APIKey = ""

		errs := v.ValidateConfig(cfg)
		assert.Empty(t, errs)
	})
}
