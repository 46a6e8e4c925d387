package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReply struct {
	response *Response
	err      error
}

type fakeProvider struct {
	mu       sync.Mutex
	replies  []fakeReply
	requests []Request
}

func (f *fakeProvider) Complete(ctx context.Context, request Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, request)
	if len(f.replies) == 0 {
		return &Response{Content: "done"}, nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply.response, reply.err
}

func (f *fakeProvider) Name() string {
	return "fake"
}

func (f *fakeProvider) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeProvider) request(i int) Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func toolUseReply(id, name string, params map[string]interface{}) fakeReply {
	return fakeReply{response: &Response{
		ToolCalls: []ToolCall{{ID: id, Name: name, Parameters: params}},
		Usage:     &TokenUsage{InputTokens: 10, OutputTokens: 5},
	}}
}

func submitTool() Tool {
	return Tool{
		Name:        "submit",
		Description: "Submit the final report",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"report": map[string]interface{}{"type": "string"},
			},
			"required": []string{"report"},
		},
		Final: true,
	}
}

func echoTool(calls *[]map[string]interface{}) Tool {
	return Tool{
		Name:        "echo",
		Description: "Echo the given text",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "string"},
			},
			"required": []string{"text"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			if calls != nil {
				*calls = append(*calls, params)
			}
			return fmt.Sprintf("echo: %v", params["text"]), nil
		},
	}
}

func testLoopConfig(provider Provider, tools ...Tool) LoopConfig {
	return LoopConfig{
		Provider: provider,
		Model:    "test-model",
		Prompt:   "do the thing",
		Tools:    tools,
		MaxTurns: 5,
		Logger:   zerolog.Nop(),
	}
}

func findToolMessage(request Request, callID string) (Message, bool) {
	for _, msg := range request.Messages {
		if msg.Role == RoleTool && msg.ToolCallID == callID {
			return msg, true
		}
	}
	return Message{}, false
}

func TestRunToolLoopFinalTool(t *testing.T) {
	provider := &fakeProvider{replies: []fakeReply{
		toolUseReply("t1", "submit", map[string]interface{}{"report": "all good"}),
	}}

	outcome, err := RunToolLoop(context.Background(), testLoopConfig(provider, submitTool()))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, "submit", outcome.Tool)
	assert.Equal(t, "all good", outcome.Parameters["report"])
	assert.Equal(t, TokenUsage{InputTokens: 10, OutputTokens: 5}, outcome.Usage)
	assert.Equal(t, 1, provider.requestCount())
}

func TestRunToolLoopThreadsToolResults(t *testing.T) {
	provider := &fakeProvider{replies: []fakeReply{
		toolUseReply("t1", "echo", map[string]interface{}{"text": "hi"}),
		toolUseReply("t2", "submit", map[string]interface{}{"report": "ok"}),
	}}

	var calls []map[string]interface{}
	outcome, err := RunToolLoop(context.Background(), testLoopConfig(provider, echoTool(&calls), submitTool()))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	require.Len(t, calls, 1)
	assert.Equal(t, "hi", calls[0]["text"])

	require.Equal(t, 2, provider.requestCount())
	second := provider.request(1)

	result, found := findToolMessage(second, "t1")
	require.True(t, found)
	assert.Equal(t, "echo: hi", result.Content)
}

func TestRunToolLoopHandlerErrorGoesBackToModel(t *testing.T) {
	failing := Tool{
		Name:        "flaky",
		Description: "Always fails",
		InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return "", errors.New("backing file vanished")
		},
	}
	provider := &fakeProvider{replies: []fakeReply{
		toolUseReply("t1", "flaky", map[string]interface{}{}),
		toolUseReply("t2", "submit", map[string]interface{}{"report": "recovered"}),
	}}

	outcome, err := RunToolLoop(context.Background(), testLoopConfig(provider, failing, submitTool()))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	result, found := findToolMessage(provider.request(1), "t1")
	require.True(t, found)
	assert.Equal(t, "backing file vanished", result.Content)
}

func TestRunToolLoopRejectsInvalidInput(t *testing.T) {
	provider := &fakeProvider{replies: []fakeReply{
		toolUseReply("t1", "echo", map[string]interface{}{}),
		toolUseReply("t2", "submit", map[string]interface{}{"report": "ok"}),
	}}

	var calls []map[string]interface{}
	outcome, err := RunToolLoop(context.Background(), testLoopConfig(provider, echoTool(&calls), submitTool()))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Empty(t, calls)

	result, found := findToolMessage(provider.request(1), "t1")
	require.True(t, found)
	assert.Contains(t, result.Content, "invalid input")
}

func TestRunToolLoopFinalToolInvalidInput(t *testing.T) {
	provider := &fakeProvider{replies: []fakeReply{
		toolUseReply("t1", "submit", map[string]interface{}{}),
		toolUseReply("t2", "submit", map[string]interface{}{"report": "second try"}),
	}}

	outcome, err := RunToolLoop(context.Background(), testLoopConfig(provider, submitTool()))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, "second try", outcome.Parameters["report"])
	assert.Equal(t, 2, provider.requestCount())
}

func TestRunToolLoopUnknownTool(t *testing.T) {
	provider := &fakeProvider{replies: []fakeReply{
		toolUseReply("t1", "bogus", map[string]interface{}{}),
		toolUseReply("t2", "submit", map[string]interface{}{"report": "ok"}),
	}}

	outcome, err := RunToolLoop(context.Background(), testLoopConfig(provider, submitTool()))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	result, found := findToolMessage(provider.request(1), "t1")
	require.True(t, found)
	assert.Equal(t, "unknown tool: bogus", result.Content)
}

func TestRunToolLoopBudgetExhausted(t *testing.T) {
	provider := &fakeProvider{replies: []fakeReply{
		toolUseReply("t1", "echo", map[string]interface{}{"text": "one"}),
		toolUseReply("t2", "echo", map[string]interface{}{"text": "two"}),
	}}

	var calls []map[string]interface{}
	cfg := testLoopConfig(provider, echoTool(&calls), submitTool())
	cfg.MaxTurns = 2

	outcome, err := RunToolLoop(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Len(t, calls, 2)
}

func TestRunToolLoopTextOnlyNudges(t *testing.T) {
	provider := &fakeProvider{replies: []fakeReply{
		{response: &Response{Content: "let me think"}},
		toolUseReply("t1", "submit", map[string]interface{}{"report": "ok"}),
	}}

	outcome, err := RunToolLoop(context.Background(), testLoopConfig(provider, submitTool()))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	second := provider.request(1)
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Contains(t, last.Content, "tools")
}

func TestRunToolLoopProviderError(t *testing.T) {
	provider := &fakeProvider{replies: []fakeReply{
		{err: errors.New("invalid api key")},
	}}

	outcome, err := RunToolLoop(context.Background(), testLoopConfig(provider, submitTool()))
	assert.Error(t, err)
	assert.Nil(t, outcome)
}

func TestRunToolLoopCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &fakeProvider{}
	_, err := RunToolLoop(ctx, testLoopConfig(provider, submitTool()))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, provider.requestCount())
}

func TestRunToolLoopRequiresProvider(t *testing.T) {
	_, err := RunToolLoop(context.Background(), LoopConfig{})
	assert.Error(t, err)
}
