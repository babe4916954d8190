package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	contentType string
	body        string
	err         error
	got         *bedrockagentcore.InvokeAgentRuntimeInput
}

func (f *fakeRuntime) InvokeAgentRuntime(_ context.Context, in *bedrockagentcore.InvokeAgentRuntimeInput, _ ...func(*bedrockagentcore.Options)) (*bedrockagentcore.InvokeAgentRuntimeOutput, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockagentcore.InvokeAgentRuntimeOutput{
		ContentType: aws.String(f.contentType),
		Response:    io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

const testARN = "arn:aws:bedrock-agentcore:us-west-2:123456789012:runtime/claude-abc"

func TestInvoke(t *testing.T) {
	fake := &fakeRuntime{
		contentType: "application/json",
		body:        `{"result":{"role":"assistant","content":[{"text":"Hi there"}]}}`,
	}
	res, err := New(fake).Invoke(context.Background(), Request{AgentARN: testARN, Prompt: "Hello"})
	require.NoError(t, err)
	require.Equal(t, "Hi there", res.Text())
	require.Len(t, res.SessionID, 36)

	require.Equal(t, testARN, aws.ToString(fake.got.AgentRuntimeArn))
	require.Equal(t, "DEFAULT", aws.ToString(fake.got.Qualifier))
	require.Equal(t, res.SessionID, aws.ToString(fake.got.RuntimeSessionId))
	require.Nil(t, fake.got.RuntimeUserId)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(fake.got.Payload, &payload))
	require.Equal(t, map[string]string{"prompt": "Hello"}, payload)
}

func TestInvokeKeepsSessionID(t *testing.T) {
	fake := &fakeRuntime{contentType: "application/json", body: `{"response":"ok"}`}
	sid := NewConversationSessionID("user-demo-conversation")
	res, err := New(fake).Invoke(context.Background(), Request{AgentARN: testARN, Prompt: "x", SessionID: sid, UserID: "alice"})
	require.NoError(t, err)
	require.Equal(t, sid, res.SessionID)
	require.Equal(t, "alice", aws.ToString(fake.got.RuntimeUserId))
	require.True(t, strings.HasPrefix(sid, "user-demo-conversation-"))
	require.GreaterOrEqual(t, len(sid), 33)
}

func TestInvokeErrors(t *testing.T) {
	_, err := New(&fakeRuntime{}).Invoke(context.Background(), Request{AgentARN: testARN})
	require.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = New(&fakeRuntime{err: errors.New("AccessDenied")}).Invoke(context.Background(), Request{AgentARN: testARN, Prompt: "x"})
	require.ErrorContains(t, err, "AccessDenied")

	_, err = New(&fakeRuntime{contentType: "application/json", body: "not json"}).Invoke(context.Background(), Request{AgentARN: testARN, Prompt: "x"})
	require.ErrorContains(t, err, "decoding response")
}

func TestInvokeEventStream(t *testing.T) {
	fake := &fakeRuntime{
		contentType: "text/event-stream",
		body:        "data: \"Hello\"\n\ndata: {\"content\":\" world\"}\n\n",
	}
	res, err := New(fake).Invoke(context.Background(), Request{AgentARN: testARN, Prompt: "x"})
	require.NoError(t, err)
	require.Nil(t, res.Body)
	require.Equal(t, "Hello\n world", res.Text())
}

func TestStream(t *testing.T) {
	fake := &fakeRuntime{
		contentType: "text/event-stream; charset=utf-8",
		body:        "data: {\"data\":\"one \"}\n\n: keepalive\n\ndata: {\"data\":\"two\"}\n\n",
	}
	var got []string
	_, err := New(fake).Stream(context.Background(), Request{AgentARN: testARN, Prompt: "x"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"one ", "two"}, got)
}

func TestStreamPlainChunks(t *testing.T) {
	fake := &fakeRuntime{contentType: "application/octet-stream", body: "raw text"}
	var b strings.Builder
	_, err := New(fake).Stream(context.Background(), Request{AgentARN: testARN, Prompt: "x"}, func(s string) error {
		b.WriteString(s)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "raw text", b.String())
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"content":"abc"}`, "abc"},
		{`{"data":"abc"}`, "abc"},
		{`"quoted"`, "quoted"},
		{`{"error":"boom","type":"stream_error"}`, "Error: boom"},
		{`{"other":1}`, `{"other":1}`},
		{`plain`, "plain"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ChunkText(tt.in), tt.in)
	}
}

func TestResponseText(t *testing.T) {
	require.Equal(t, "a", ResponseText(map[string]any{"response": "a"}))
	require.Equal(t, "b", ResponseText(map[string]any{"result": "b"}))
	require.Equal(t, "x\ny", ResponseText(map[string]any{"result": map[string]any{
		"content": []any{map[string]any{"text": "x"}, map[string]any{"image": 1}, map[string]any{"text": "y"}},
	}}))
	require.Equal(t, "{\n  \"error\": \"nope\"\n}", ResponseText(map[string]any{"error": "nope"}))
}
