package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/pkg/llm"
	"github.com/harun/mnemo/pkg/store"
)

const defaultTimeout = 60 * time.Second

const systemPrompt = "You judge whether candidate memory content is worth " +
	"storing in a long-term knowledge base. Respond only by calling the " +
	"provided tools."

const evaluatePrompt = `Judge whether the following memory content meets the quality bar.

Check two things:

1. Relevance: the content must be strongly related to the keyword set, and the keywords must summarize the content completely and accurately.

2. No redundant material: a code snippet or quoted passage that already comes with a way to retrieve it (source location, URL, citation) is redundant; only the pointer should be kept. Short examples of one to three lines are fine.

Keywords: %s

Content:
%s

Call accept if the content qualifies, otherwise call reject with a concrete reason.`

// Config configures the quality gate.
type Config struct {
	Provider llm.Provider
	Model    string
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Oracle is an LLM-backed quality gate for memory content. It
// implements store.QualityOracle: a single-shot model call that must
// end in an accept or reject verdict.
type Oracle struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
	logger   zerolog.Logger
}

// New creates an oracle.
func New(cfg Config) (*Oracle, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Oracle{
		provider: cfg.Provider,
		model:    cfg.Model,
		timeout:  timeout,
		logger:   cfg.Logger,
	}, nil
}

// Evaluate judges content under the given keywords. A missing verdict
// is an error, not an accept.
func (o *Oracle) Evaluate(ctx context.Context, keywords []string, content string) (store.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	outcome, err := llm.RunToolLoop(ctx, llm.LoopConfig{
		Provider:     o.provider,
		Model:        o.model,
		SystemPrompt: systemPrompt,
		Prompt:       fmt.Sprintf(evaluatePrompt, strings.Join(keywords, ", "), content),
		Tools:        []llm.Tool{acceptTool(), rejectTool()},
		MaxTurns:     1,
		Logger:       o.logger,
	})
	if err != nil {
		return store.Verdict{}, err
	}
	if outcome == nil {
		return store.Verdict{}, fmt.Errorf("quality gate returned no verdict")
	}

	switch outcome.Tool {
	case "accept":
		return store.Verdict{Accepted: true}, nil
	case "reject":
		reason, _ := outcome.Parameters["reason"].(string)
		if reason == "" {
			reason = "no reason given"
		}
		o.logger.Warn().
			Strs("keywords", keywords).
			Str("reason", reason).
			Msg("Content rejected by quality gate")
		return store.Verdict{Accepted: false, Reason: reason}, nil
	default:
		return store.Verdict{}, fmt.Errorf("unexpected verdict tool: %s", outcome.Tool)
	}
}

func acceptTool() llm.Tool {
	return llm.Tool{
		Name:        "accept",
		Description: "Judge the memory content as acceptable",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
			"required":   []string{},
		},
		Final: true,
	}
}

func rejectTool() llm.Tool {
	return llm.Tool{
		Name:        "reject",
		Description: "Judge the memory content as unacceptable",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"reason": map[string]interface{}{
					"type":        "string",
					"description": "The concrete reason for rejection",
				},
			},
			"required": []string{"reason"},
		},
		Final: true,
	}
}
