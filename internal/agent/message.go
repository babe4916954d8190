package agent

import (
	"strings"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason reports why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Tool result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Image is an inline image. Format is png, jpeg, gif or webp.
type Image struct {
	Format string
	Bytes  []byte
}

// Document is an inline document such as a PDF or a text file.
type Document struct {
	Format string
	Name   string
	Bytes  []byte
}

// ToolUse is a tool invocation requested by the model.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult answers a ToolUse.
type ToolResult struct {
	ToolUseID string
	Status    string
	Content   []ContentBlock
}

// ContentBlock is one element of a message. Exactly one field is set.
type ContentBlock struct {
	Text       string
	Image      *Image
	Document   *Document
	ToolUse    *ToolUse
	ToolResult *ToolResult
}

// TextBlock returns a text content block.
func TextBlock(s string) ContentBlock { return ContentBlock{Text: s} }

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// UserMessage returns a user message holding the given blocks.
func UserMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleUser, Content: blocks}
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, c := range m.Content {
		b.WriteString(c.Text)
	}
	return b.String()
}

// ToolUses returns the tool invocations in the message.
func (m Message) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, c := range m.Content {
		if c.ToolUse != nil {
			uses = append(uses, *c.ToolUse)
		}
	}
	return uses
}

// JSON renders the message in the shape returned by agent entrypoints:
// {"role": ..., "content": [{"text": ...}, ...]}. Only text blocks are kept.
func (m Message) JSON() map[string]any {
	content := []map[string]any{}
	for _, c := range m.Content {
		if c.Text != "" {
			content = append(content, map[string]any{"text": c.Text})
		}
	}
	return map[string]any{"role": string(m.Role), "content": content}
}

// ToolSpec describes a tool to the model. InputSchema is a JSON schema
// object.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is a single model call.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// Response is the model's reply to a Request.
type Response struct {
	Message    Message
	StopReason StopReason
}

// EventType classifies a StreamEvent.
type EventType string

const (
	EventText    EventType = "text"
	EventToolUse EventType = "tool_use"
)

// StreamEvent is emitted while a model response streams in.
type StreamEvent struct {
	Type EventType
	Text string // for EventText
	Tool string // for EventToolUse
}
