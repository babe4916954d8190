// Package invoke calls agents hosted on AgentCore Runtime and decodes their
// responses.
package invoke

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/google/uuid"
)

// DefaultQualifier is the endpoint qualifier used by all tutorial clients.
const DefaultQualifier = "DEFAULT"

const (
	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"
	ssePrefix       = "data: "
)

// ErrEmptyPrompt is returned when a request carries no prompt.
var ErrEmptyPrompt = errors.New("prompt is required")

// RuntimeAPI is the subset of the AgentCore data plane client used here.
type RuntimeAPI interface {
	InvokeAgentRuntime(ctx context.Context, in *bedrockagentcore.InvokeAgentRuntimeInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.InvokeAgentRuntimeOutput, error)
}

// Request describes one invocation.
type Request struct {
	AgentARN  string
	Prompt    string
	SessionID string // generated when empty
	UserID    string // optional runtime user id
}

// Result is a decoded, non-streaming response.
type Result struct {
	Body        map[string]any
	Raw         []byte
	SessionID   string
	ContentType string
}

// Text returns the human-readable text of the response.
func (r *Result) Text() string {
	if r.Body == nil {
		return string(r.Raw)
	}
	return ResponseText(r.Body)
}

// Client invokes AgentCore Runtime agents.
type Client struct {
	API       RuntimeAPI
	Qualifier string
}

// New returns a Client using the DEFAULT qualifier.
func New(api RuntimeAPI) *Client {
	return &Client{API: api, Qualifier: DefaultQualifier}
}

// NewSessionID returns a random runtime session id.
func NewSessionID() string {
	return uuid.NewString()
}

// NewConversationSessionID returns prefix-<uuid>. Runtime session ids must
// be at least 33 characters, which the uuid alone satisfies.
func NewConversationSessionID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Payload encodes the {"prompt": ...} request body.
func Payload(prompt string) ([]byte, error) {
	b, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return b, nil
}

func (c *Client) call(ctx context.Context, req *Request) (*bedrockagentcore.InvokeAgentRuntimeOutput, error) {
	if req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if req.SessionID == "" {
		req.SessionID = NewSessionID()
	}
	payload, err := Payload(req.Prompt)
	if err != nil {
		return nil, err
	}

	qualifier := c.Qualifier
	if qualifier == "" {
		qualifier = DefaultQualifier
	}

	in := &bedrockagentcore.InvokeAgentRuntimeInput{
		AgentRuntimeArn:  aws.String(req.AgentARN),
		RuntimeSessionId: aws.String(req.SessionID),
		Payload:          payload,
		Qualifier:        aws.String(qualifier),
	}
	if req.UserID != "" {
		in.RuntimeUserId = aws.String(req.UserID)
	}

	out, err := c.API.InvokeAgentRuntime(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("invoking agent: %w", err)
	}
	return out, nil
}

// Invoke sends the prompt and decodes the complete response. The response
// stream is concatenated before decoding. Non-JSON bodies are returned in
// Raw with a nil Body.
func (c *Client) Invoke(ctx context.Context, req Request) (*Result, error) {
	out, err := c.call(ctx, &req)
	if err != nil {
		return nil, err
	}
	defer out.Response.Close()

	res := &Result{
		SessionID:   req.SessionID,
		ContentType: aws.ToString(out.ContentType),
	}

	if strings.Contains(res.ContentType, contentTypeSSE) {
		var lines []string
		if err := readSSE(out.Response, func(data string) error {
			lines = append(lines, ChunkText(data))
			return nil
		}); err != nil {
			return nil, err
		}
		res.Raw = []byte(strings.Join(lines, "\n"))
		return res, nil
	}

	raw, err := io.ReadAll(out.Response)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	res.Raw = raw

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		if strings.Contains(res.ContentType, contentTypeJSON) {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		return res, nil
	}
	res.Body = body
	return res, nil
}

// Stream sends the prompt and calls fn with the display text of every chunk
// as it arrives. Server-sent event responses are split on "data: " lines;
// other responses are forwarded read by read. It returns the session id used.
func (c *Client) Stream(ctx context.Context, req Request, fn func(text string) error) (string, error) {
	out, err := c.call(ctx, &req)
	if err != nil {
		return req.SessionID, err
	}
	defer out.Response.Close()

	if strings.Contains(aws.ToString(out.ContentType), contentTypeSSE) {
		return req.SessionID, readSSE(out.Response, func(data string) error {
			return fn(ChunkText(data))
		})
	}

	buf := make([]byte, 4096)
	for {
		n, err := out.Response.Read(buf)
		if n > 0 {
			if ferr := fn(ChunkText(string(buf[:n]))); ferr != nil {
				return req.SessionID, ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return req.SessionID, nil
		}
		if err != nil {
			return req.SessionID, fmt.Errorf("reading stream: %w", err)
		}
	}
}

func readSSE(r io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		if err := fn(strings.TrimPrefix(line, ssePrefix)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

// ChunkText renders one streamed chunk: the "content" (or "data") field of
// a JSON object, the value of a JSON string, or the raw chunk otherwise.
func ChunkText(chunk string) string {
	var v any
	if err := json.Unmarshal([]byte(chunk), &v); err != nil {
		return chunk
	}
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		for _, key := range []string{"content", "data"} {
			if s, ok := v[key].(string); ok {
				return s
			}
		}
		if s, ok := v["error"].(string); ok {
			return "Error: " + s
		}
	}
	return chunk
}

// ResponseText extracts the reply text from a decoded response body. It
// understands {"response": "..."}, {"result": {"content": [{"text": ...}]}}
// and {"result": "..."}, and falls back to indented JSON.
func ResponseText(body map[string]any) string {
	if s, ok := body["response"].(string); ok {
		return s
	}
	switch result := body["result"].(type) {
	case string:
		return result
	case map[string]any:
		if texts := contentTexts(result["content"]); len(texts) > 0 {
			return strings.Join(texts, "\n")
		}
	}
	return PrettyJSON(body)
}

func contentTexts(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var texts []string
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := m["text"].(string); ok {
			texts = append(texts, s)
		}
	}
	return texts
}

// PrettyJSON indents v with two spaces.
func PrettyJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
