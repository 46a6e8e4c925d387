package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/pkg/llm"
	"github.com/harun/mnemo/pkg/store"
)

const (
	shallowRecallTurns = 10
	deepRecallTurns    = 20
	memorizeTurns      = 20

	// prefilterLimit caps the ranked listing embedded in a deep recall
	// prompt.
	prefilterLimit = 10
)

// AgentConfig configures the inner agents that execute recall and
// memorize requests against the store.
type AgentConfig struct {
	Provider  llm.Provider
	Model     string // deep recall
	FastModel string // shallow recall and memorize
	Store     *store.Store
	Logger    zerolog.Logger
}

// Agents runs bounded tool-use conversations over the memory store.
type Agents struct {
	provider  llm.Provider
	model     string
	fastModel string
	store     *store.Store
	logger    zerolog.Logger
}

// NewAgents creates the agent layer.
func NewAgents(cfg AgentConfig) (*Agents, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.FastModel == "" {
		cfg.FastModel = cfg.Model
	}

	return &Agents{
		provider:  cfg.Provider,
		model:     cfg.Model,
		fastModel: cfg.FastModel,
		store:     cfg.Store,
		logger:    cfg.Logger,
	}, nil
}

// Recall searches the store for memories relevant to the interest and
// assembles a report. Deep mode spends a larger budget on the primary
// model and seeds the prompt with a ranked listing. A nil report means
// the agent ran out of budget without submitting one.
func (a *Agents) Recall(ctx context.Context, interest string, deep bool) (*string, error) {
	a.logger.Info().Str("interest", interest).Bool("deep", deep).Msg("Recall started")

	model, turns := a.fastModel, shallowRecallTurns
	if deep {
		model, turns = a.model, deepRecallTurns
	}

	outcome, err := llm.RunToolLoop(ctx, llm.LoopConfig{
		Provider: a.provider,
		Model:    model,
		Prompt:   a.recallPrompt(interest, deep),
		Tools: []llm.Tool{
			store.ListMemoriesTool(a.store),
			store.ReadMemoryTool(a.store),
			submitTool(),
		},
		MaxTurns: turns,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("recall agent: %w", err)
	}
	if outcome == nil {
		a.logger.Warn().Str("interest", interest).Msg("Recall ended without a report")
		return nil, nil
	}

	report, _ := outcome.Parameters["report"].(string)
	a.logger.Info().
		Str("interest", interest).
		Int("inputTokens", outcome.Usage.InputTokens).
		Int("outputTokens", outcome.Usage.OutputTokens).
		Msg("Recall completed")
	return &report, nil
}

func (a *Agents) recallPrompt(interest string, deep bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recall what the memory store holds about: %s\n\n", interest)
	b.WriteString(`Work through it like this:
1. Use list_memories to find candidate memories
2. Use read_memory to read the promising ones
3. Call submit with a consolidated report in Markdown

Notes:
- list_memories results are ranked by match quality
- read_memory takes the exact keyword set of one memory
- besides answering the interest directly, include useful background detail
- if nothing relevant is stored, submit the report "no relevant memories"`)

	if deep {
		if listing := a.prefilter(interest); listing != "" {
			b.WriteString("\n\nKeyword sets already ranked against the interest:\n")
			b.WriteString(listing)
		}
	}
	return b.String()
}

// prefilter ranks stored keyword sets against the interest text so a
// deep recall does not burn its first turns rediscovering them.
func (a *Agents) prefilter(interest string) string {
	results := a.store.SearchText(interest)
	if len(results) == 0 {
		return ""
	}
	if len(results) > prefilterLimit {
		results = results[:prefilterLimit]
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(r.Keywords, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Memorize folds content into the store, merging with existing memories
// where they overlap and creating new ones where they do not. It
// returns the agent's summary of what changed, empty when the agent ran
// out of budget before calling done.
func (a *Agents) Memorize(ctx context.Context, content string) (string, error) {
	a.logger.Info().Int("contentLength", len(content)).Msg("Memorize started")

	outcome, err := llm.RunToolLoop(ctx, llm.LoopConfig{
		Provider: a.provider,
		Model:    a.fastModel,
		Prompt:   memorizePrompt(content),
		Tools: []llm.Tool{
			store.ListMemoriesTool(a.store),
			store.ReadMemoryTool(a.store),
			store.CreateMemoryTool(a.store),
			store.UpdateMemoryTool(a.store),
			doneTool(),
		},
		MaxTurns: memorizeTurns,
		Logger:   a.logger,
	})
	if err != nil {
		return "", fmt.Errorf("memorize agent: %w", err)
	}
	if outcome == nil {
		a.logger.Warn().Int("contentLength", len(content)).Msg("Memorize ended without done")
		return "", nil
	}

	summary, _ := outcome.Parameters["summary"].(string)
	return summary, nil
}

func memorizePrompt(content string) string {
	return fmt.Sprintf(`Save the following content into the memory store:

%s

---------
Work through it like this:
1. Use list_memories to search for similar existing memories
2. Use read_memory to read the relevant ones
3. Decide and apply changes, as many as needed:
   - call update_memory to merge new content into an existing memory
   - call create_memory to store content under a new keyword set
4. When everything is saved, call done

Principles:
- every memory stays within 1000 words
- keywords are lowercase letters and digits, each with at least one letter, and together they accurately describe the content
- details matter: keep all of them, except the redundant material below
- avoid redundant code and quoted passages: when their source is known (file path, URL), keep only the pointer

Tools reply with success or failure messages. Adjust to their feedback.`, content)
}

func submitTool() llm.Tool {
	return llm.Tool{
		Name:        "submit",
		Description: "Submit the final recall report.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"report": map[string]interface{}{
					"type":        "string",
					"description": "Consolidated recall report in Markdown.",
				},
			},
			"required": []string{"report"},
		},
		Final: true,
	}
}

func doneTool() llm.Tool {
	return llm.Tool{
		Name:        "done",
		Description: "Finish after all save operations are applied.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"summary": map[string]interface{}{
					"type":        "string",
					"description": "What was created or updated, and under which keywords.",
				},
			},
			"required": []string{"summary"},
		},
		Final: true,
	}
}
