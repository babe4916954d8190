package agents

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/stretchr/testify/require"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/memory"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/server"
)

// echoModel answers every request with "echo: <last user text>".
type echoModel struct {
	mu       sync.Mutex
	requests []agent.Request
	err      error
}

func (m *echoModel) reply(req agent.Request) (*agent.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	last := req.Messages[len(req.Messages)-1]
	return &agent.Response{
		Message:    agent.Message{Role: agent.RoleAssistant, Content: []agent.ContentBlock{agent.TextBlock("echo: " + last.Text())}},
		StopReason: agent.StopEndTurn,
	}, nil
}

func (m *echoModel) Converse(_ context.Context, req agent.Request) (*agent.Response, error) {
	return m.reply(req)
}

func (m *echoModel) ConverseStream(_ context.Context, req agent.Request, fn func(agent.StreamEvent) error) (*agent.Response, error) {
	r, err := m.reply(req)
	if err != nil {
		return nil, err
	}
	if err := fn(agent.StreamEvent{Type: agent.EventText, Text: r.Message.Text()}); err != nil {
		return nil, err
	}
	return r, nil
}

func rc(session string, headers map[string]string) *server.RequestContext {
	canon := map[string]string{}
	for k, v := range headers {
		canon[http.CanonicalHeaderKey(k)] = v
	}
	return &server.RequestContext{SessionID: session, Headers: canon}
}

func TestPrompt(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"set", map[string]any{"prompt": "hi"}, "hi"},
		{"missing", map[string]any{}, "fallback"},
		{"blank", map[string]any{"prompt": "  "}, "fallback"},
		{"not a string", map[string]any{"prompt": 42}, "fallback"},
		{"nil payload", nil, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Prompt(tt.payload, "fallback"))
		})
	}
}

type fakeKeys struct {
	calls int
	token string
	err   error
}

func (f *fakeKeys) Resolve(_ context.Context, token string) (string, error) {
	f.calls++
	f.token = token
	if f.err != nil {
		return "", f.err
	}
	return "sk-ant-test", nil
}

func TestClaude(t *testing.T) {
	keys := &fakeKeys{}
	model := &echoModel{}
	var gotKey string
	c := &Claude{Keys: keys, NewModel: func(k string) agent.Model { gotKey = k; return model }}
	entry := c.Entrypoint()

	ctx := context.Background()
	req := &server.RequestContext{WorkloadAccessToken: "wat"}
	out, err := entry(ctx, map[string]any{}, req)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"result": map[string]any{
		"role":    "assistant",
		"content": []map[string]any{{"text": "echo: " + DefaultPrompt}},
	}}, out)

	_, err = entry(ctx, map[string]any{"prompt": "again"}, req)
	require.NoError(t, err)
	require.Equal(t, 1, keys.calls)
	require.Equal(t, "wat", keys.token)
	require.Equal(t, "sk-ant-test", gotKey)
	require.Len(t, model.requests, 2)
	require.Len(t, model.requests[1].Messages, 3)
}

func TestClaudeKeyFailure(t *testing.T) {
	keys := &fakeKeys{err: errors.New("no token")}
	c := &Claude{Keys: keys, NewModel: func(string) agent.Model { return &echoModel{} }}
	_, err := c.Entrypoint()(context.Background(), nil, &server.RequestContext{})
	require.ErrorContains(t, err, "resolving API key: no token")

	keys.err = nil
	_, err = c.Entrypoint()(context.Background(), nil, &server.RequestContext{WorkloadAccessToken: "t"})
	require.NoError(t, err)
	require.Equal(t, 2, keys.calls)
}

type fakeData struct {
	mu      sync.Mutex
	created []*bedrockagentcore.CreateEventInput
	listed  []*bedrockagentcore.ListEventsInput
}

func (f *fakeData) CreateEvent(_ context.Context, in *bedrockagentcore.CreateEventInput, _ ...func(*bedrockagentcore.Options)) (*bedrockagentcore.CreateEventOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return &bedrockagentcore.CreateEventOutput{}, nil
}

func (f *fakeData) ListEvents(_ context.Context, in *bedrockagentcore.ListEventsInput, _ ...func(*bedrockagentcore.Options)) (*bedrockagentcore.ListEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, in)
	return &bedrockagentcore.ListEventsOutput{}, nil
}

func (f *fakeData) RetrieveMemoryRecords(context.Context, *bedrockagentcore.RetrieveMemoryRecordsInput, ...func(*bedrockagentcore.Options)) (*bedrockagentcore.RetrieveMemoryRecordsOutput, error) {
	return &bedrockagentcore.RetrieveMemoryRecordsOutput{}, nil
}

func TestMemoryNotConfigured(t *testing.T) {
	m := &Memory{Model: &echoModel{}}
	out, err := m.Entrypoint()(context.Background(), map[string]any{"prompt": "hi"}, rc("", nil))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"error": memory.NotConfiguredMessage}, out)
}

func TestMemoryActorsAndSessions(t *testing.T) {
	data := &fakeData{}
	model := &echoModel{}
	m := &Memory{MemoryID: "mem-1", Data: data, Model: model}
	entry := m.Entrypoint()
	ctx := context.Background()

	out, err := entry(ctx, map[string]any{"prompt": "I like chocolate"}, rc("s1", map[string]string{server.HeaderActorID: "alice"}))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"response": "echo: I like chocolate"}, out)

	_, err = entry(ctx, map[string]any{}, rc("", nil))
	require.NoError(t, err)

	require.Len(t, data.listed, 2)
	require.Equal(t, "alice", aws.ToString(data.listed[0].ActorId))
	require.Equal(t, "s1", aws.ToString(data.listed[0].SessionId))
	require.Equal(t, memory.DefaultActorID, aws.ToString(data.listed[1].ActorId))
	require.Equal(t, memory.DefaultSessionID, aws.ToString(data.listed[1].SessionId))

	// user + assistant per invocation
	require.Len(t, data.created, 4)
	require.Equal(t, MemorySystemPrompt, model.requests[0].System)
	require.Len(t, model.requests[1].Messages, 1)
	require.Equal(t, "Hello!", model.requests[1].Messages[0].Text())

	// Same actor and session reuse the loaded conversation.
	_, err = entry(ctx, map[string]any{"prompt": "more"}, rc("s1", map[string]string{server.HeaderActorID: "alice"}))
	require.NoError(t, err)
	require.Len(t, data.listed, 2)
	require.Len(t, model.requests[2].Messages, 3)
}

func TestMultimodalRetriesToolFailure(t *testing.T) {
	calls := 0
	tools := func(context.Context) ([]agent.Tool, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("ffprobe missing")
		}
		return nil, nil
	}
	model := &echoModel{}
	entry := NewMultimodal(model, tools)

	_, err := entry(context.Background(), nil, rc("", nil))
	require.ErrorContains(t, err, "ffprobe missing")

	out, err := entry(context.Background(), nil, rc("", nil))
	require.NoError(t, err)
	result := out.(map[string]any)["result"].(map[string]any)
	require.Equal(t, "assistant", result["role"])
	require.Equal(t, MultimodalSystemPrompt, model.requests[0].System)
	require.Equal(t, DefaultMultimodalPrompt, model.requests[0].Messages[0].Text())
}

func TestSupport(t *testing.T) {
	tool := agent.NewTool("get_customer_profile", "profile", agent.ObjectSchema(nil, nil),
		func(context.Context, map[string]any) ([]agent.ContentBlock, error) { return nil, nil })
	model := &echoModel{}
	entry := NewSupport(model, StaticTools(tool))

	out, err := entry(context.Background(), map[string]any{"prompt": "warranty for MNO33333333"}, rc("", nil))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"response": "echo: warranty for MNO33333333"}, out)
	require.Equal(t, SupportSystemPrompt, model.requests[0].System)
	require.Len(t, model.requests[0].Tools, 1)
	require.Equal(t, "get_customer_profile", model.requests[0].Tools[0].Name)

	failing := NewSupport(model, func(context.Context) ([]agent.Tool, error) { return nil, errors.New("403") })
	_, err = failing(context.Background(), nil, rc("", nil))
	require.ErrorContains(t, err, "loading gateway tools: 403")
}

func collect(t *testing.T, out any) []any {
	t.Helper()
	ch, ok := out.(<-chan any)
	require.True(t, ok, "expected a stream, got %T", out)
	var events []any
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestResearcherStreams(t *testing.T) {
	model := &echoModel{}
	r := &Researcher{Model: model, SystemPrompt: ResearcherSystemPrompt(time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC))}
	entry := r.Entrypoint()
	ctx := context.Background()

	out, err := entry(ctx, map[string]any{"prompt": "What is AgentCore?"}, rc("s1", nil))
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"data": "echo: What is AgentCore?"}}, collect(t, out))
	require.Contains(t, model.requests[0].System, "**Today's Date:** Monday, July 14, 2025")

	out, err = entry(ctx, map[string]any{"prompt": "And pricing?"}, rc("s1", nil))
	require.NoError(t, err)
	collect(t, out)
	require.Len(t, model.requests[1].Messages, 3)

	out, err = entry(ctx, map[string]any{"prompt": "new"}, rc("s2", nil))
	require.NoError(t, err)
	collect(t, out)
	require.Len(t, model.requests[2].Messages, 1)
}

func TestResearcherErrors(t *testing.T) {
	r := &Researcher{
		Model: &echoModel{},
		Tools: func(context.Context) ([]agent.Tool, error) { return nil, errors.New("gateway down") },
	}
	out, err := r.Entrypoint()(context.Background(), map[string]any{"prompt": "x"}, rc("s1", nil))
	require.NoError(t, err)
	events := collect(t, out)
	require.Len(t, events, 1)
	require.ErrorContains(t, events[0].(error), "gateway down")

	r = &Researcher{Model: &echoModel{err: errors.New("throttled")}}
	out, err = r.Entrypoint()(context.Background(), map[string]any{"prompt": "x"}, rc("s1", nil))
	require.NoError(t, err)
	events = collect(t, out)
	require.Len(t, events, 1)
	require.ErrorContains(t, events[0].(error), "throttled")
}

// toolThenAnswer asks for the "lookup" tool once, then answers with the
// tool's result.
type toolThenAnswer struct {
	requests []agent.Request
}

func (m *toolThenAnswer) Converse(_ context.Context, req agent.Request) (*agent.Response, error) {
	m.requests = append(m.requests, req)
	last := req.Messages[len(req.Messages)-1]
	for _, b := range last.Content {
		if b.ToolResult != nil {
			return &agent.Response{
				Message:    agent.Message{Role: agent.RoleAssistant, Content: []agent.ContentBlock{agent.TextBlock("found " + b.ToolResult.Content[0].Text)}},
				StopReason: agent.StopEndTurn,
			}, nil
		}
	}
	return &agent.Response{
		Message: agent.Message{Role: agent.RoleAssistant, Content: []agent.ContentBlock{
			{ToolUse: &agent.ToolUse{ID: "t1", Name: "lookup", Input: map[string]any{}}},
		}},
		StopReason: agent.StopToolUse,
	}, nil
}

func (m *toolThenAnswer) ConverseStream(ctx context.Context, req agent.Request, _ func(agent.StreamEvent) error) (*agent.Response, error) {
	return m.Converse(ctx, req)
}

func TestGraphAgent(t *testing.T) {
	lookup := agent.NewTool("lookup", "Look something up", agent.ObjectSchema(nil, nil),
		func(context.Context, map[string]any) ([]agent.ContentBlock, error) {
			return []agent.ContentBlock{agent.TextBlock("42")}, nil
		})
	model := &toolThenAnswer{}
	entry := NewGraphAgent(model, []agent.Tool{lookup}, nil)

	out, err := entry(context.Background(), map[string]any{"prompt": "what is the answer?"}, rc("", nil))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"result": "found 42"}, out)
	require.Len(t, model.requests, 2)
	require.Equal(t, "lookup", model.requests[0].Tools[0].Name)

	// Each invocation starts from an empty state.
	_, err = entry(context.Background(), nil, rc("", nil))
	require.NoError(t, err)
	require.Len(t, model.requests, 4)
	require.Len(t, model.requests[2].Messages, 1)
	require.Equal(t, DefaultGraphPrompt, model.requests[2].Messages[0].Text())
}

func TestGraphAgentError(t *testing.T) {
	entry := NewGraphAgent(&echoModel{err: errors.New("throttled")}, nil, nil)
	_, err := entry(context.Background(), map[string]any{"prompt": "x"}, rc("", nil))
	require.ErrorContains(t, err, "throttled")
}
