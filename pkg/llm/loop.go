package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Tool is a callable offered to the model inside a tool loop.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}

	// Final marks a terminating tool: the loop stops when the model
	// calls it with valid input, and its parameters become the outcome.
	Final bool

	// Handler executes a non-final tool call. The returned string goes
	// back to the model; a returned error is stringified and goes back
	// the same way.
	Handler func(ctx context.Context, params map[string]interface{}) (string, error)
}

// LoopConfig drives RunToolLoop.
type LoopConfig struct {
	Provider     Provider
	Model        string
	SystemPrompt string
	Prompt       string
	Tools        []Tool
	MaxTurns     int
	Temperature  float64
	MaxTokens    int
	Logger       zerolog.Logger
}

// Outcome is the final tool invocation that ended a loop.
type Outcome struct {
	Tool       string
	Parameters map[string]interface{}
	Usage      TokenUsage
}

// RunToolLoop runs a bounded tool-use conversation: send the prompt,
// execute the tool calls the model makes, feed results back, repeat.
// The loop ends when the model calls a Final tool; exhausting MaxTurns
// without one returns a nil outcome and no error.
func RunToolLoop(ctx context.Context, cfg LoopConfig) (*Outcome, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}

	defs := make([]ToolDefinition, 0, len(cfg.Tools))
	byName := make(map[string]*Tool, len(cfg.Tools))
	for i := range cfg.Tools {
		tool := &cfg.Tools[i]
		defs = append(defs, ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
		byName[tool.Name] = tool
	}

	messages := []Message{{Role: RoleUser, Content: cfg.Prompt}}
	var usage TokenUsage

	for turn := 0; turn < maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		response, err := CompleteWithRetry(ctx, cfg.Provider, Request{
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			Messages:     messages,
			Tools:        defs,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		usage.Add(response.Usage)

		if len(response.ToolCalls) == 0 {
			messages = append(messages, Message{Role: RoleAssistant, Content: response.Content})
			messages = append(messages, Message{
				Role:    RoleUser,
				Content: "Respond by calling one of the provided tools.",
			})
			continue
		}

		results := make([]Message, 0, len(response.ToolCalls))
		for _, call := range response.ToolCalls {
			tool, exists := byName[call.Name]
			if !exists {
				results = append(results, toolResult(call.ID, fmt.Sprintf("unknown tool: %s", call.Name)))
				continue
			}

			if problem := validateToolInput(tool, call.Parameters); problem != "" {
				cfg.Logger.Debug().
					Str("tool", call.Name).
					Str("problem", problem).
					Msg("Rejected tool input")
				results = append(results, toolResult(call.ID, fmt.Sprintf("invalid input: %s", problem)))
				continue
			}

			if tool.Final {
				return &Outcome{
					Tool:       call.Name,
					Parameters: call.Parameters,
					Usage:      usage,
				}, nil
			}

			output, err := tool.Handler(ctx, call.Parameters)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				output = err.Error()
			}
			results = append(results, toolResult(call.ID, output))
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})
		messages = append(messages, results...)
	}

	cfg.Logger.Warn().
		Str("model", cfg.Model).
		Int("maxTurns", maxTurns).
		Msg("Tool loop ended without a final tool call")
	return nil, nil
}

func toolResult(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content}
}

func validateToolInput(tool *Tool, params map[string]interface{}) string {
	if tool.InputSchema == nil {
		return ""
	}

	document := params
	if document == nil {
		document = map[string]interface{}{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(tool.InputSchema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return err.Error()
	}
	if result.Valid() {
		return ""
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return strings.Join(problems, "; ")
}
