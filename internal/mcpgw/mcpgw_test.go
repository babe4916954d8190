package mcpgw

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestSigV4Transport(t *testing.T) {
	var gotAuth, gotBody, gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotDate = r.Header.Get("X-Amz-Date")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewSigV4Transport(credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "token"), "us-west-2")
	tr.Now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	client := &http.Client{Transport: tr}

	resp, err := client.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0"}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.True(t, strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20250102/us-west-2/bedrock-agentcore/aws4_request"), gotAuth)
	require.Equal(t, "20250102T030405Z", gotDate)
	require.Equal(t, `{"jsonrpc":"2.0"}`, gotBody)
}

type fakeMCP struct {
	pages   []mcp.ListToolsResult
	cursors []mcp.Cursor
	called  mcp.CallToolRequest
	result  *mcp.CallToolResult
}

func (f *fakeMCP) ListToolsByPage(_ context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	f.cursors = append(f.cursors, req.Params.Cursor)
	page := f.pages[len(f.cursors)-1]
	return &page, nil
}

func (f *fakeMCP) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.called = req
	return f.result, nil
}

func (f *fakeMCP) Close() error { return nil }

func page(next mcp.Cursor, names ...string) mcp.ListToolsResult {
	var res mcp.ListToolsResult
	res.NextCursor = next
	for _, n := range names {
		res.Tools = append(res.Tools, mcp.Tool{Name: n, Description: n + " tool"})
	}
	return res
}

func TestListToolsPaginates(t *testing.T) {
	fake := &fakeMCP{pages: []mcp.ListToolsResult{
		page("p2", "CustomerSupportLambda___get_customer_profile"),
		page("", "CustomerSupportLambda___check_warranty_status", "NasaMarsWeather___getInsightWeather"),
	}}
	tools, err := NewClient(fake).ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 3)
	require.Equal(t, []mcp.Cursor{"", "p2"}, fake.cursors)
}

func TestAgentTools(t *testing.T) {
	fake := &fakeMCP{
		pages: []mcp.ListToolsResult{page("", "lookup")},
		result: &mcp.CallToolResult{Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: `{"customer_id":"CUST001"}`},
		}},
	}
	tools, err := NewClient(fake).AgentTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "lookup", tools[0].Spec().Name)
	require.Equal(t, "object", tools[0].Spec().InputSchema["type"])

	out, err := tools[0].Call(context.Background(), map[string]any{"customer_id": "CUST001"})
	require.NoError(t, err)
	require.Equal(t, `{"customer_id":"CUST001"}`, out[0].Text)
	require.Equal(t, "lookup", fake.called.Params.Name)
}

func TestCallError(t *testing.T) {
	fake := &fakeMCP{result: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "customer not found"}},
	}}
	_, err := NewClient(fake).Call(context.Background(), "lookup", nil)
	require.EqualError(t, err, "customer not found")
}

func TestDialRejectsURLWithoutRegion(t *testing.T) {
	_, err := Dial(context.Background(), "https://localhost/mcp", aws.AnonymousCredentials{})
	require.Error(t, err)
}
