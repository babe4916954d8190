package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is something the model can call.
type Tool interface {
	Spec() ToolSpec
	Call(ctx context.Context, input map[string]any) ([]ContentBlock, error)
}

// ToolFunc adapts a function into a Tool.
type ToolFunc struct {
	ToolSpec
	Fn func(ctx context.Context, input map[string]any) ([]ContentBlock, error)
}

// NewTool returns a Tool named name.
func NewTool(name, description string, schema map[string]any, fn func(ctx context.Context, input map[string]any) ([]ContentBlock, error)) *ToolFunc {
	return &ToolFunc{
		ToolSpec: ToolSpec{Name: name, Description: description, InputSchema: schema},
		Fn:       fn,
	}
}

// Spec implements Tool.
func (t *ToolFunc) Spec() ToolSpec { return t.ToolSpec }

// Call implements Tool.
func (t *ToolFunc) Call(ctx context.Context, input map[string]any) ([]ContentBlock, error) {
	return t.Fn(ctx, input)
}

// ObjectSchema builds a JSON schema object with string properties.
func ObjectSchema(required []string, props map[string]string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, desc := range props {
		properties[name] = map[string]any{"type": "string", "description": desc}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringArg returns input[key] as a string.
func StringArg(input map[string]any, key string) (string, error) {
	v, ok := input[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

// JSONBlock renders v as an indented JSON text block.
func JSONBlock(v any) ContentBlock {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return TextBlock(fmt.Sprint(v))
	}
	return TextBlock(string(b))
}

func callTool(ctx context.Context, tools map[string]Tool, use ToolUse) ToolResult {
	res := ToolResult{ToolUseID: use.ID, Status: StatusSuccess}
	tool, ok := tools[use.Name]
	if !ok {
		res.Status = StatusError
		res.Content = []ContentBlock{TextBlock(fmt.Sprintf("Unknown tool: %s", use.Name))}
		return res
	}
	content, err := tool.Call(ctx, use.Input)
	if err != nil {
		res.Status = StatusError
		res.Content = []ContentBlock{TextBlock(fmt.Sprintf("Error: %v", err))}
		return res
	}
	if len(content) == 0 {
		content = []ContentBlock{TextBlock("")}
	}
	res.Content = content
	return res
}
