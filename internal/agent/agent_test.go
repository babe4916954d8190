package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	replies  []*Response
	requests []Request
	err      error
	// fail is returned, one per call, before any reply.
	fail []error
}

func (m *scriptedModel) next(req Request) (*Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.fail) > 0 {
		err := m.fail[0]
		m.fail = m.fail[1:]
		return nil, err
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func (m *scriptedModel) Converse(_ context.Context, req Request) (*Response, error) {
	return m.next(req)
}

func (m *scriptedModel) ConverseStream(_ context.Context, req Request, fn func(StreamEvent) error) (*Response, error) {
	r, err := m.next(req)
	if err != nil {
		return nil, err
	}
	for _, use := range r.Message.ToolUses() {
		if err := fn(StreamEvent{Type: EventToolUse, Tool: use.Name}); err != nil {
			return nil, err
		}
	}
	for _, word := range strings.SplitAfter(r.Message.Text(), " ") {
		if err := fn(StreamEvent{Type: EventText, Text: word}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func text(s string) *Response {
	return &Response{Message: Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(s)}}, StopReason: StopEndTurn}
}

func toolCall(id, name string, input map[string]any) *Response {
	return &Response{
		Message: Message{Role: RoleAssistant, Content: []ContentBlock{
			{ToolUse: &ToolUse{ID: id, Name: name, Input: input}},
		}},
		StopReason: StopToolUse,
	}
}

func echoTool() Tool {
	return NewTool("echo", "Echo the input", ObjectSchema([]string{"value"}, map[string]string{"value": "text"}),
		func(_ context.Context, input map[string]any) ([]ContentBlock, error) {
			v, err := StringArg(input, "value")
			if err != nil {
				return nil, err
			}
			return []ContentBlock{TextBlock("echo: " + v)}, nil
		})
}

func TestInvokeToolLoop(t *testing.T) {
	model := &scriptedModel{replies: []*Response{
		toolCall("t1", "echo", map[string]any{"value": "hi"}),
		text("done"),
	}}
	a := New(model, WithSystemPrompt("be brief"), WithTools(echoTool()))

	reply, err := a.Invoke(context.Background(), "say hi")
	require.NoError(t, err)
	require.Equal(t, "done", reply.Text())

	require.Len(t, model.requests, 2)
	require.Equal(t, "be brief", model.requests[0].System)
	require.Equal(t, "echo", model.requests[0].Tools[0].Name)

	msgs := a.Messages()
	require.Len(t, msgs, 4)
	result := msgs[2].Content[0].ToolResult
	require.NotNil(t, result)
	require.Equal(t, "t1", result.ToolUseID)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, "echo: hi", result.Content[0].Text)
}

func TestToolErrorsBecomeResults(t *testing.T) {
	model := &scriptedModel{replies: []*Response{
		toolCall("t1", "echo", map[string]any{}),
		toolCall("t2", "missing", nil),
		text("ok"),
	}}
	a := New(model, WithTools(echoTool()))

	_, err := a.Invoke(context.Background(), "x")
	require.NoError(t, err)

	msgs := a.Messages()
	first := msgs[2].Content[0].ToolResult
	require.Equal(t, StatusError, first.Status)
	require.Contains(t, first.Content[0].Text, `missing argument "value"`)
	second := msgs[4].Content[0].ToolResult
	require.Equal(t, "Unknown tool: missing", second.Content[0].Text)
}

func TestMaxTurns(t *testing.T) {
	model := &scriptedModel{replies: []*Response{
		toolCall("1", "echo", map[string]any{"value": "a"}),
		toolCall("2", "echo", map[string]any{"value": "b"}),
	}}
	a := New(model, WithTools(echoTool()), WithMaxTurns(2))
	_, err := a.Invoke(context.Background(), "loop")
	require.ErrorIs(t, err, ErrMaxTurns)
}

func roles(msgs []Message) []Role {
	out := make([]Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestFailedTurnIsRolledBack(t *testing.T) {
	sess := &fakeSession{}
	model := &scriptedModel{
		fail:    []error{errors.New("throttled")},
		replies: []*Response{text("hello")},
	}
	a := New(model, WithSession(sess))

	_, err := a.Invoke(context.Background(), "first")
	require.ErrorContains(t, err, "throttled")
	require.Empty(t, a.Messages())
	require.Empty(t, sess.appended)

	reply, err := a.Invoke(context.Background(), "second")
	require.NoError(t, err)
	require.Equal(t, "hello", reply.Text())
	require.Equal(t, []Role{RoleUser}, roles(model.requests[1].Messages))
	require.Equal(t, "second", model.requests[1].Messages[0].Text())
	require.Equal(t, []Role{RoleUser, RoleAssistant}, roles(a.Messages()))
	require.Len(t, sess.appended, 2)
}

func TestMaxTurnsIsRolledBack(t *testing.T) {
	model := &scriptedModel{replies: []*Response{
		toolCall("1", "echo", map[string]any{"value": "a"}),
		text("recovered"),
	}}
	a := New(model, WithTools(echoTool()), WithMaxTurns(1))

	_, err := a.Invoke(context.Background(), "loop")
	require.ErrorIs(t, err, ErrMaxTurns)
	require.Empty(t, a.Messages())

	_, err = a.Invoke(context.Background(), "again")
	require.NoError(t, err)
	require.Equal(t, []Role{RoleUser}, roles(model.requests[1].Messages))
	require.Equal(t, []Role{RoleUser, RoleAssistant}, roles(a.Messages()))
}

func TestStreamFiltersToolEvents(t *testing.T) {
	model := &scriptedModel{replies: []*Response{
		toolCall("t1", "echo", map[string]any{"value": "x"}),
		text("Hello streaming world"),
	}}
	a := New(model, WithTools(echoTool()))

	var got []any
	for ev := range a.Stream(context.Background(), "go") {
		got = append(got, ev)
	}
	require.Equal(t, []any{
		map[string]any{"data": "Hello "},
		map[string]any{"data": "streaming "},
		map[string]any{"data": "world"},
	}, got)
}

func TestStreamSendsError(t *testing.T) {
	a := New(&scriptedModel{err: errors.New("throttled")})
	var got []any
	for ev := range a.Stream(context.Background(), "go") {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	require.ErrorContains(t, got[0].(error), "throttled")
}

type fakeSession struct {
	history  []Message
	facts    []string
	appended []Message
	loads    int
}

func (s *fakeSession) History(context.Context) ([]Message, error) {
	s.loads++
	return s.history, nil
}

func (s *fakeSession) Recall(context.Context, string) ([]string, error) { return s.facts, nil }

func (s *fakeSession) Append(_ context.Context, m Message) error {
	s.appended = append(s.appended, m)
	return nil
}

func TestSession(t *testing.T) {
	sess := &fakeSession{
		history: []Message{UserMessage(TextBlock("I like tea")), {Role: RoleAssistant, Content: []ContentBlock{TextBlock("Noted")}}},
		facts:   []string{"User prefers tea"},
	}
	model := &scriptedModel{replies: []*Response{text("Tea"), text("Still tea")}}
	a := New(model, WithSession(sess))

	_, err := a.Invoke(context.Background(), "What do I like?")
	require.NoError(t, err)
	_, err = a.Invoke(context.Background(), "Again?")
	require.NoError(t, err)

	require.Equal(t, 1, sess.loads)
	require.Len(t, sess.appended, 4)
	require.Equal(t, "What do I like?", sess.appended[0].Text())
	require.Equal(t, "Tea", sess.appended[1].Text())
	first := model.requests[0]
	require.Len(t, first.Messages, 3)
	require.Equal(t, "I like tea", first.Messages[0].Text())
	require.Contains(t, first.Messages[2].Content[0].Text, "<user_context>\n- User prefers tea\n</user_context>")
	require.Equal(t, "What do I like?", first.Messages[2].Content[1].Text)
}

func TestLazy(t *testing.T) {
	calls := 0
	l := NewLazy(func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("not yet")
		}
		return "agent", nil
	})

	_, err := l.Get(context.Background())
	require.Error(t, err)
	v, err := l.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "agent", v)
	v, err = l.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "agent", v)
	require.Equal(t, 2, calls)
}

func TestMessageJSON(t *testing.T) {
	m := Message{Role: RoleAssistant, Content: []ContentBlock{
		TextBlock("Hello"),
		{ToolUse: &ToolUse{ID: "x", Name: "y"}},
	}}
	require.Equal(t, map[string]any{
		"role":    "assistant",
		"content": []map[string]any{{"text": "Hello"}},
	}, m.JSON())
}
