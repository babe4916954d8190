package tools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the broad category of a media file.
type Kind string

const (
	KindImage       Kind = "image"
	KindVideo       Kind = "video"
	KindDocument    Kind = "document"
	KindUnsupported Kind = "unsupported"
)

var imageFormats = map[string]string{
	"png":  "png",
	"jpg":  "jpeg",
	"jpeg": "jpeg",
	"gif":  "gif",
	"webp": "webp",
}

var videoFormats = map[string]bool{
	"mp4": true, "mov": true, "avi": true, "mkv": true, "webm": true,
}

// documentFormats maps extensions to Bedrock document formats. Text-like
// formats are returned to the model as text.
var documentFormats = map[string]string{
	"pdf":  "pdf",
	"csv":  "csv",
	"doc":  "doc",
	"docx": "docx",
	"xls":  "xls",
	"xlsx": "xlsx",
	"html": "html",
	"txt":  "txt",
	"md":   "md",
}

var textFormats = map[string]bool{"csv": true, "html": true, "txt": true, "md": true}

func ext(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// FileKind classifies path by its extension.
func FileKind(path string) Kind {
	e := ext(path)
	switch {
	case imageFormats[e] != "":
		return KindImage
	case videoFormats[e]:
		return KindVideo
	case documentFormats[e] != "":
		return KindDocument
	default:
		return KindUnsupported
	}
}

// AnalysisPrompt returns the prompt the multimodal client sends for path.
// Only images, videos and PDFs are supported.
func AnalysisPrompt(path string) (string, error) {
	switch e := ext(path); {
	case imageFormats[e] != "":
		return fmt.Sprintf("Analyze the image %s in detail and describe everything you observe", path), nil
	case videoFormats[e]:
		return fmt.Sprintf("Analyze the video %s and describe in detail the actions and scenes you observe", path), nil
	case e == "pdf":
		return fmt.Sprintf("Summarize the content of the document %s", path), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", e)
	}
}
