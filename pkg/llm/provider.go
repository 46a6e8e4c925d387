package llm

import (
	"context"
	"fmt"
)

// Provider is a chat completion backend capable of tool use.
type Provider interface {
	// Complete makes a single model call.
	Complete(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// Request contains the parameters for a model call.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  float64
	MaxTokens    int
}

// ToolDefinition describes a tool offered to the model. InputSchema is
// a JSON schema object with "type", "properties" and optionally
// "required".
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Response contains the model's reply.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// Config selects and authenticates a provider.
type Config struct {
	Provider string
	APIKey   string
}

// NewProvider creates a provider from config. An empty provider name
// defaults to anthropic.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropicProvider(cfg.APIKey), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func schemaRequired(schema map[string]interface{}) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []interface{}:
		fields := make([]string, 0, len(required))
		for _, v := range required {
			if s, ok := v.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	default:
		return nil
	}
}
