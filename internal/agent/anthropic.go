package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic defaults used by the Claude agent.
const (
	AnthropicMaxTokens   = 4000
	AnthropicTemperature = 0.3
)

// AnthropicModel calls the Anthropic Messages API directly.
type AnthropicModel struct {
	Client      *anthropic.Client
	ModelID     string
	MaxTokens   int64
	Temperature float64
}

// NewAnthropicModel returns an AnthropicModel authenticated with apiKey.
func NewAnthropicModel(apiKey, modelID string, opts ...option.RequestOption) *AnthropicModel {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(opts...)
	return &AnthropicModel{
		Client:      &client,
		ModelID:     modelID,
		MaxTokens:   AnthropicMaxTokens,
		Temperature: AnthropicTemperature,
	}
}

func (m *AnthropicModel) params(req Request) anthropic.MessageNewParams {
	body := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.ModelID),
		MaxTokens:   m.MaxTokens,
		Temperature: anthropic.Float(m.Temperature),
		Messages:    toAnthropicMessages(req.Messages),
		Tools:       toAnthropicTools(req.Tools),
	}
	if req.System != "" {
		body.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return body
}

// Converse implements Model.
func (m *AnthropicModel) Converse(ctx context.Context, req Request) (*Response, error) {
	msg, err := m.Client.Messages.New(ctx, m.params(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	return fromAnthropicMessage(msg)
}

// ConverseStream implements Model.
func (m *AnthropicModel) ConverseStream(ctx context.Context, req Request, fn func(StreamEvent) error) (*Response, error) {
	stream := m.Client.Messages.NewStreaming(ctx, m.params(req))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic stream: %w", err)
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if use, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				if err := fn(StreamEvent{Type: EventToolUse, Tool: use.Name}); err != nil {
					return nil, err
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				if err := fn(StreamEvent{Type: EventText, Text: delta.Text}); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	return fromAnthropicMessage(&message)
}

func toAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	var tools []anthropic.ToolUnionParam
	for _, s := range specs {
		schema := anthropic.ToolInputSchemaParam{Properties: s.InputSchema["properties"]}
		if req, ok := s.InputSchema["required"].([]string); ok {
			schema.Required = req
		}
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: schema,
			},
		})
	}
	return tools
}

func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range m.Content {
			switch {
			case c.Image != nil:
				blocks = append(blocks, anthropic.NewImageBlockBase64(
					"image/"+c.Image.Format,
					base64.StdEncoding.EncodeToString(c.Image.Bytes),
				))
			case c.Document != nil:
				blocks = append(blocks, anthropicDocument(c.Document))
			case c.ToolUse != nil:
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ToolUse.ID, c.ToolUse.Input, c.ToolUse.Name))
			case c.ToolResult != nil:
				var text string
				for _, rc := range c.ToolResult.Content {
					text += rc.Text
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(c.ToolResult.ToolUseID, text, c.ToolResult.Status == StatusError))
			case c.Text != "":
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			}
		}
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// anthropicDocument sends PDFs as base64 and everything else as plain text.
func anthropicDocument(doc *Document) anthropic.ContentBlockParamUnion {
	if doc.Format == "pdf" {
		return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(doc.Bytes),
		})
	}
	return anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: string(doc.Bytes)})
}

func fromAnthropicMessage(msg *anthropic.Message) (*Response, error) {
	resp := &Response{
		Message:    Message{Role: RoleAssistant},
		StopReason: StopReason(msg.StopReason),
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Message.Content = append(resp.Message.Content, TextBlock(b.Text))
		case anthropic.ToolUseBlock:
			input := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &input); err != nil {
					return nil, fmt.Errorf("decoding tool input for %s: %w", b.Name, err)
				}
			}
			resp.Message.Content = append(resp.Message.Content, ContentBlock{
				ToolUse: &ToolUse{ID: b.ID, Name: b.Name, Input: input},
			})
		}
	}
	return resp, nil
}
