package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Mnemo Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Provider
	for {
		fmt.Printf("LLM provider (anthropic/openai) [%s]: ", cfg.LLM.Provider)
		provider, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if provider == "" {
			break
		}

		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.LLM.Provider = provider
		break
	}

	// API Key
	for {
		fmt.Print("API key (press Enter to use the provider's environment variable): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			break
		}

		if err := validator.ValidateAPIKey(key, cfg.LLM.Provider); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.LLM.APIKey = key
		break
	}

	fmt.Println()

	// Models
	fmt.Printf("Model for deep recall [%s]: ", cfg.LLM.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.LLM.Model = model
	}

	fmt.Printf("Fast model for shallow recall and memorize [%s]: ", cfg.LLM.FastModel)
	fastModel, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if fastModel != "" {
		cfg.LLM.FastModel = fastModel
	}

	fmt.Println()

	// Log Level
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
