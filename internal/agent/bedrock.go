package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockAPI is the subset of the Bedrock runtime client used here.
type BedrockAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockModel calls a Bedrock model through the Converse API.
type BedrockModel struct {
	Client      BedrockAPI
	ModelID     string
	MaxTokens   int32
	Temperature *float32
}

// NewBedrockModel returns a BedrockModel for modelID.
func NewBedrockModel(client BedrockAPI, modelID string) *BedrockModel {
	return &BedrockModel{Client: client, ModelID: modelID}
}

func (m *BedrockModel) inference() *types.InferenceConfiguration {
	if m.MaxTokens == 0 && m.Temperature == nil {
		return nil
	}
	cfg := &types.InferenceConfiguration{Temperature: m.Temperature}
	if m.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(m.MaxTokens)
	}
	return cfg
}

// Converse implements Model.
func (m *BedrockModel) Converse(ctx context.Context, req Request) (*Response, error) {
	msgs, err := toBedrockMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	out, err := m.Client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(m.ModelID),
		Messages:        msgs,
		System:          toBedrockSystem(req.System),
		ToolConfig:      toBedrockTools(req.Tools),
		InferenceConfig: m.inference(),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock converse: unexpected output type %T", out.Output)
	}
	reply, err := fromBedrockMessage(msg.Value)
	if err != nil {
		return nil, err
	}
	return &Response{Message: reply, StopReason: StopReason(out.StopReason)}, nil
}

// ConverseStream implements Model.
func (m *BedrockModel) ConverseStream(ctx context.Context, req Request, fn func(StreamEvent) error) (*Response, error) {
	msgs, err := toBedrockMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	out, err := m.Client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(m.ModelID),
		Messages:        msgs,
		System:          toBedrockSystem(req.System),
		ToolConfig:      toBedrockTools(req.Tools),
		InferenceConfig: m.inference(),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse stream: %w", err)
	}

	stream := out.GetStream()
	defer stream.Close()

	resp, err := accumulateStream(stream.Events(), fn)
	if err != nil {
		return nil, err
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("bedrock converse stream: %w", err)
	}
	return resp, nil
}

type pendingTool struct {
	id, name string
	input    []byte
}

// accumulateStream folds ConverseStream events into a Response, reporting
// text deltas and tool starts to fn.
func accumulateStream(events <-chan types.ConverseStreamOutput, fn func(StreamEvent) error) (*Response, error) {
	resp := &Response{Message: Message{Role: RoleAssistant}, StopReason: StopEndTurn}
	var text []byte
	var tool *pendingTool

	flushText := func() {
		if len(text) > 0 {
			resp.Message.Content = append(resp.Message.Content, TextBlock(string(text)))
			text = nil
		}
	}

	for ev := range events {
		switch v := ev.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if start, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				flushText()
				tool = &pendingTool{
					id:   aws.ToString(start.Value.ToolUseId),
					name: aws.ToString(start.Value.Name),
				}
				if err := fn(StreamEvent{Type: EventToolUse, Tool: tool.name}); err != nil {
					return nil, err
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch d := v.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				text = append(text, d.Value...)
				if err := fn(StreamEvent{Type: EventText, Text: d.Value}); err != nil {
					return nil, err
				}
			case *types.ContentBlockDeltaMemberToolUse:
				if tool != nil {
					tool.input = append(tool.input, aws.ToString(d.Value.Input)...)
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockStop:
			if tool != nil {
				input := map[string]any{}
				if len(tool.input) > 0 {
					if err := json.Unmarshal(tool.input, &input); err != nil {
						return nil, fmt.Errorf("decoding input for tool %s: %w", tool.name, err)
					}
				}
				resp.Message.Content = append(resp.Message.Content, ContentBlock{
					ToolUse: &ToolUse{ID: tool.id, Name: tool.name, Input: input},
				})
				tool = nil
			} else {
				flushText()
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			resp.StopReason = StopReason(v.Value.StopReason)
		}
	}
	flushText()
	return resp, nil
}

func toBedrockSystem(system string) []types.SystemContentBlock {
	if system == "" {
		return nil
	}
	return []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
}

func toBedrockTools(specs []ToolSpec) *types.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}
	cfg := &types.ToolConfiguration{}
	for _, s := range specs {
		schema := s.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(s.Name),
				Description: aws.String(s.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return cfg
}

func toBedrockMessages(msgs []Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		content, err := toBedrockContent(m.Content)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Message{
			Role:    types.ConversationRole(m.Role),
			Content: content,
		})
	}
	return out, nil
}

func toBedrockContent(blocks []ContentBlock) ([]types.ContentBlock, error) {
	var out []types.ContentBlock
	for _, c := range blocks {
		switch {
		case c.Image != nil:
			out = append(out, &types.ContentBlockMemberImage{Value: bedrockImage(c.Image)})
		case c.Document != nil:
			out = append(out, &types.ContentBlockMemberDocument{Value: bedrockDocument(c.Document)})
		case c.ToolUse != nil:
			input := c.ToolUse.Input
			if input == nil {
				input = map[string]any{}
			}
			out = append(out, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: aws.String(c.ToolUse.ID),
				Name:      aws.String(c.ToolUse.Name),
				Input:     document.NewLazyDocument(input),
			}})
		case c.ToolResult != nil:
			var content []types.ToolResultContentBlock
			for _, rc := range c.ToolResult.Content {
				switch {
				case rc.Image != nil:
					content = append(content, &types.ToolResultContentBlockMemberImage{Value: bedrockImage(rc.Image)})
					continue
				case rc.Document != nil:
					content = append(content, &types.ToolResultContentBlockMemberDocument{Value: bedrockDocument(rc.Document)})
					continue
				}
				content = append(content, &types.ToolResultContentBlockMemberText{Value: rc.Text})
			}
			out = append(out, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: aws.String(c.ToolResult.ToolUseID),
				Status:    types.ToolResultStatus(c.ToolResult.Status),
				Content:   content,
			}})
		case c.Text != "":
			out = append(out, &types.ContentBlockMemberText{Value: c.Text})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("message has no content")
	}
	return out, nil
}

func bedrockImage(img *Image) types.ImageBlock {
	return types.ImageBlock{
		Format: types.ImageFormat(img.Format),
		Source: &types.ImageSourceMemberBytes{Value: img.Bytes},
	}
}

func bedrockDocument(doc *Document) types.DocumentBlock {
	return types.DocumentBlock{
		Format: types.DocumentFormat(doc.Format),
		Name:   aws.String(doc.Name),
		Source: &types.DocumentSourceMemberBytes{Value: doc.Bytes},
	}
}

func fromBedrockMessage(m types.Message) (Message, error) {
	msg := Message{Role: Role(m.Role)}
	for _, c := range m.Content {
		switch v := c.(type) {
		case *types.ContentBlockMemberText:
			msg.Content = append(msg.Content, TextBlock(v.Value))
		case *types.ContentBlockMemberToolUse:
			input := map[string]any{}
			if v.Value.Input != nil {
				if err := v.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
					return msg, fmt.Errorf("decoding input for tool %s: %w", aws.ToString(v.Value.Name), err)
				}
			}
			msg.Content = append(msg.Content, ContentBlock{ToolUse: &ToolUse{
				ID:    aws.ToString(v.Value.ToolUseId),
				Name:  aws.ToString(v.Value.Name),
				Input: input,
			}})
		}
	}
	return msg, nil
}
