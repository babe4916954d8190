package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
)

// Files larger than this are rejected by the image and document tools.
const maxFileBytes = 3_750_000

func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if info.Size() > maxFileBytes {
		return nil, fmt.Errorf("file %s is too large (%d bytes, max %d)", path, info.Size(), maxFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// ImageReader is the image_reader tool: it loads a local image so the model
// can see it.
func ImageReader() agent.Tool {
	return agent.NewTool(
		"image_reader",
		"Read a PNG, JPEG, GIF or WebP image file from disk so it can be analyzed.",
		agent.ObjectSchema([]string{"image_path"}, map[string]string{
			"image_path": "Path to the image file",
		}),
		func(_ context.Context, input map[string]any) ([]agent.ContentBlock, error) {
			path, err := agent.StringArg(input, "image_path")
			if err != nil {
				return nil, err
			}
			format := imageFormats[ext(path)]
			if format == "" {
				return nil, fmt.Errorf("unsupported image format: %s", ext(path))
			}
			data, err := readLimited(path)
			if err != nil {
				return nil, err
			}
			return []agent.ContentBlock{{Image: &agent.Image{Format: format, Bytes: data}}}, nil
		},
	)
}

var docNameChars = regexp.MustCompile(`[^A-Za-z0-9\s\-\(\)\[\]]+`)

// DocumentName converts a file name into a name Bedrock accepts for a
// document block.
func DocumentName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := strings.TrimSpace(docNameChars.ReplaceAllString(base, "-"))
	if name == "" {
		return "document"
	}
	return name
}

// FileRead is the file_read tool. Text-like files are returned as text,
// other supported documents as document blocks.
func FileRead() agent.Tool {
	return agent.NewTool(
		"file_read",
		"Read a document (PDF, CSV, DOC/DOCX, XLS/XLSX, HTML, TXT, MD) from disk so it can be analyzed.",
		agent.ObjectSchema([]string{"path"}, map[string]string{
			"path": "Path to the document",
		}),
		func(_ context.Context, input map[string]any) ([]agent.ContentBlock, error) {
			path, err := agent.StringArg(input, "path")
			if err != nil {
				return nil, err
			}
			e := ext(path)
			format := documentFormats[e]
			if format == "" {
				return nil, fmt.Errorf("unsupported document format: %s", e)
			}
			data, err := readLimited(path)
			if err != nil {
				return nil, err
			}
			if textFormats[e] {
				return []agent.ContentBlock{agent.TextBlock(string(data))}, nil
			}
			return []agent.ContentBlock{{Document: &agent.Document{
				Format: format,
				Name:   DocumentName(path),
				Bytes:  data,
			}}}, nil
		},
	)
}
