package backend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/mnemo/pkg/llm"
	"github.com/harun/mnemo/pkg/store"
)

type scriptedReply struct {
	response *llm.Response
	err      error
}

// scriptedProvider returns canned replies in order; once the script is
// exhausted it answers with plain text, which the loop treats as a
// nudge-and-continue turn.
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []llm.Request
}

func (p *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if len(p.replies) == 0 {
		return &llm.Response{Content: "thinking"}, nil
	}
	next := p.replies[0]
	p.replies = p.replies[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.response, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func toolUse(name string, params map[string]interface{}) scriptedReply {
	return scriptedReply{response: &llm.Response{
		ToolCalls: []llm.ToolCall{{ID: "call-1", Name: name, Parameters: params}},
	}}
}

func keywordArgs(words ...string) []interface{} {
	out := make([]interface{}, len(words))
	for i, w := range words {
		out[i] = w
	}
	return out
}

// toolMessages collects the tool-result contents threaded into a request.
func toolMessages(req llm.Request) []string {
	var out []string
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleTool {
			out = append(out, msg.Content)
		}
	}
	return out
}

func createTestAgents(t *testing.T, provider llm.Provider) (*Agents, *store.Store) {
	t.Helper()

	st, err := store.New(store.Config{
		ProjectDir: t.TempDir(),
		Logger:     testLogger(),
	})
	require.NoError(t, err)

	agents, err := NewAgents(AgentConfig{
		Provider:  provider,
		Model:     "primary-model",
		FastModel: "fast-model",
		Store:     st,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	return agents, st
}

func TestNewAgents(t *testing.T) {
	t.Run("should require provider", func(t *testing.T) {
		_, err := NewAgents(AgentConfig{Model: "m", Store: &store.Store{}})
		assert.ErrorContains(t, err, "provider is required")
	})

	t.Run("should require store", func(t *testing.T) {
		_, err := NewAgents(AgentConfig{Provider: &scriptedProvider{}, Model: "m"})
		assert.ErrorContains(t, err, "store is required")
	})

	t.Run("should require model", func(t *testing.T) {
		_, err := NewAgents(AgentConfig{Provider: &scriptedProvider{}, Store: &store.Store{}})
		assert.ErrorContains(t, err, "model is required")
	})

	t.Run("should fall back to the primary model for fast calls", func(t *testing.T) {
		agents, err := NewAgents(AgentConfig{
			Provider: &scriptedProvider{},
			Model:    "primary-model",
			Store:    &store.Store{},
		})
		require.NoError(t, err)
		assert.Equal(t, "primary-model", agents.fastModel)
	})
}

func TestRecallShallow(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		toolUse("submit", map[string]interface{}{"report": "the report"}),
	}}
	agents, _ := createTestAgents(t, provider)

	report, err := agents.Recall(context.Background(), "jwt auth", false)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "the report", *report)

	req := provider.request(0)
	assert.Equal(t, "fast-model", req.Model)
	assert.Contains(t, req.Messages[0].Content, "jwt auth")

	names := make([]string, 0, len(req.Tools))
	for _, def := range req.Tools {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []string{"list_memories", "read_memory", "submit"}, names)
}

func TestRecallDeepSeedsRankedListing(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		toolUse("submit", map[string]interface{}{"report": "deep report"}),
	}}
	agents, st := createTestAgents(t, provider)

	ctx := context.Background()
	_, err := st.Create(ctx, []string{"auth", "jwt"}, "JWT notes")
	require.NoError(t, err)
	_, err = st.Create(ctx, []string{"db", "postgres"}, "DB notes")
	require.NoError(t, err)

	report, err := agents.Recall(ctx, "jwt auth tokens", true)
	require.NoError(t, err)
	require.NotNil(t, report)

	req := provider.request(0)
	assert.Equal(t, "primary-model", req.Model)

	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "Keyword sets already ranked")
	assert.Contains(t, prompt, "auth, jwt")
	assert.NotContains(t, prompt, "postgres")
}

func TestRecallDeepWithEmptyStore(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		toolUse("submit", map[string]interface{}{"report": "no relevant memories"}),
	}}
	agents, _ := createTestAgents(t, provider)

	report, err := agents.Recall(context.Background(), "anything", true)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.NotContains(t, provider.request(0).Messages[0].Content, "Keyword sets already ranked")
}

func TestRecallReadsThroughStoreTools(t *testing.T) {
	agents, st := createTestAgents(t, &scriptedProvider{})
	ctx := context.Background()
	_, err := st.Create(ctx, []string{"auth", "jwt"}, "JWT uses RS256 here")
	require.NoError(t, err)

	provider := &scriptedProvider{replies: []scriptedReply{
		toolUse("list_memories", map[string]interface{}{}),
		toolUse("read_memory", map[string]interface{}{"keywords": keywordArgs("auth", "jwt")}),
		toolUse("submit", map[string]interface{}{"report": "from store"}),
	}}
	agents.provider = provider

	report, err := agents.Recall(ctx, "jwt", false)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "from store", *report)

	require.Equal(t, 3, provider.requestCount())

	listResults := toolMessages(provider.request(1))
	require.Len(t, listResults, 1)
	assert.Contains(t, listResults[0], "auth, jwt")

	// The final request carries the whole history: listing result first,
	// then the read result.
	readResults := toolMessages(provider.request(2))
	require.Len(t, readResults, 2)
	assert.Contains(t, readResults[1], "JWT uses RS256 here")
}

func TestRecallBudgetExhausted(t *testing.T) {
	provider := &scriptedProvider{}
	agents, _ := createTestAgents(t, provider)

	report, err := agents.Recall(context.Background(), "anything", false)
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, shallowRecallTurns, provider.requestCount())
}

func TestRecallProviderError(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		{err: errors.New("invalid api key")},
	}}
	agents, _ := createTestAgents(t, provider)

	_, err := agents.Recall(context.Background(), "anything", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recall agent")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestMemorizeCreatesMemory(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		toolUse("create_memory", map[string]interface{}{
			"keywords": keywordArgs("cache", "redis"),
			"content":  "Use Redis for hot paths.",
		}),
		toolUse("done", map[string]interface{}{"summary": "created (cache, redis)"}),
	}}
	agents, st := createTestAgents(t, provider)

	summary, err := agents.Memorize(context.Background(), "We cache hot paths in Redis.")
	require.NoError(t, err)
	assert.Equal(t, "created (cache, redis)", summary)

	snap, err := st.Read([]string{"cache", "redis"})
	require.NoError(t, err)
	assert.Equal(t, "Use Redis for hot paths.", snap.Content)

	req := provider.request(0)
	assert.Equal(t, "fast-model", req.Model)
	assert.Contains(t, req.Messages[0].Content, "We cache hot paths in Redis.")
	assert.Contains(t, req.Messages[0].Content, "1000 words")
}

func TestMemorizeUpdatesExisting(t *testing.T) {
	agents, st := createTestAgents(t, &scriptedProvider{})
	ctx := context.Background()
	snap, err := st.Create(ctx, []string{"go", "testing"}, "Use testify.")
	require.NoError(t, err)

	provider := &scriptedProvider{replies: []scriptedReply{
		toolUse("update_memory", map[string]interface{}{
			"keywords":    keywordArgs("go", "testing"),
			"version":     snap.Version,
			"old_content": "Use testify.",
			"new_content": "Use testify and require for fatals.",
		}),
		toolUse("done", map[string]interface{}{"summary": "merged testing notes"}),
	}}
	agents.provider = provider

	summary, err := agents.Memorize(ctx, "Prefer require for fatal assertions.")
	require.NoError(t, err)
	assert.Equal(t, "merged testing notes", summary)

	updated, err := st.Read([]string{"go", "testing"})
	require.NoError(t, err)
	assert.Equal(t, "Use testify and require for fatals.", updated.Content)
}

func TestMemorizeSelfCorrectsOnToolFailure(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		toolUse("create_memory", map[string]interface{}{
			"keywords": keywordArgs("Redis", "cache"),
			"content":  "Use Redis.",
		}),
		toolUse("create_memory", map[string]interface{}{
			"keywords": keywordArgs("cache", "redis"),
			"content":  "Use Redis.",
		}),
		toolUse("done", map[string]interface{}{"summary": "created after fixing keywords"}),
	}}
	agents, st := createTestAgents(t, provider)

	summary, err := agents.Memorize(context.Background(), "Use Redis.")
	require.NoError(t, err)
	assert.Equal(t, "created after fixing keywords", summary)

	feedback := toolMessages(provider.request(1))
	require.Len(t, feedback, 1)
	assert.Contains(t, feedback[0], "failed to create")

	_, err = st.Read([]string{"cache", "redis"})
	assert.NoError(t, err)
}

func TestMemorizeBudgetExhausted(t *testing.T) {
	provider := &scriptedProvider{}
	agents, _ := createTestAgents(t, provider)

	summary, err := agents.Memorize(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, summary)
	assert.Equal(t, memorizeTurns, provider.requestCount())
}
