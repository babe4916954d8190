package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
)

func TestFrameIndices(t *testing.T) {
	tests := []struct {
		name       string
		total, max int
		want       []int
	}{
		{"one frame picks the middle", 100, 1, []int{50}},
		{"two frames pick the ends", 100, 2, []int{0, 99}},
		{"three frames are evenly spaced", 90, 3, []int{0, 30, 60}},
		{"uneven division", 10, 3, []int{0, 3, 6}},
		{"short video clamps", 2, 3, []int{0, 0, 0}},
		{"empty video", 0, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FrameIndices(tt.total, tt.max))
		})
	}
}

func TestFrameCountFromStreamInfo(t *testing.T) {
	tests := []struct {
		name    string
		info    string
		want    int
		wantErr string
	}{
		{
			name: "mp4 nb_frames",
			info: `{"streams":[{"codec_type":"audio"},{"codec_type":"video","nb_frames":"300","avg_frame_rate":"30/1","duration":"10.0"}]}`,
			want: 300,
		},
		{
			name: "webm stream duration",
			info: `{"streams":[{"codec_type":"video","avg_frame_rate":"25/1","duration":"4.000000"}],"format":{"duration":"4.100000"}}`,
			want: 100,
		},
		{
			name: "mkv container duration",
			info: `{"streams":[{"codec_type":"video","avg_frame_rate":"30000/1001"}],"format":{"duration":"10.010000"}}`,
			want: 300,
		},
		{
			name:    "no duration",
			info:    `{"streams":[{"codec_type":"video","avg_frame_rate":"25/1"}]}`,
			wantErr: "no frame count or duration",
		},
		{
			name:    "unknown rate",
			info:    `{"streams":[{"codec_type":"video","avg_frame_rate":"0/0"}],"format":{"duration":"3"}}`,
			wantErr: "not positive",
		},
		{
			name:    "audio only",
			info:    `{"streams":[{"codec_type":"audio"}]}`,
			wantErr: "no video stream",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := frameCountFromStreamInfo(tt.info)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, n)
		})
	}
}

func TestCalculate(t *testing.T) {
	tests := map[string]string{
		"2 + 3 * 4":       "14",
		"sqrt(16)":        "4",
		"pow(2, 10)":      "1024",
		"10 / 4":          "2.5",
		"2 ** 3":          "8",
		"round(pi * 100)": "314",
	}
	for in, want := range tests {
		got, err := Calculate(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := Calculate("2 +")
	require.Error(t, err)
	_, err = Calculate("import os")
	require.Error(t, err)
}

func TestFileKindAndPrompt(t *testing.T) {
	require.Equal(t, KindImage, FileKind("photo.JPG"))
	require.Equal(t, KindVideo, FileKind("clip.mov"))
	require.Equal(t, KindDocument, FileKind("report.pdf"))
	require.Equal(t, KindUnsupported, FileKind("archive.zip"))

	p, err := AnalysisPrompt("cat.png")
	require.NoError(t, err)
	require.Equal(t, "Analyze the image cat.png in detail and describe everything you observe", p)

	p, err = AnalysisPrompt("a.webm")
	require.NoError(t, err)
	require.Equal(t, "Analyze the video a.webm and describe in detail the actions and scenes you observe", p)

	p, err = AnalysisPrompt("doc.pdf")
	require.NoError(t, err)
	require.Equal(t, "Summarize the content of the document doc.pdf", p)

	_, err = AnalysisPrompt("notes.docx")
	require.ErrorContains(t, err, "unsupported file type: docx")
}

func TestDocumentName(t *testing.T) {
	require.Equal(t, "Q3 report (final)", DocumentName("/tmp/Q3 report (final).pdf"))
	require.Equal(t, "data-v2", DocumentName("data_v2.csv"))
}

func TestImageReaderAndFileRead(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "pixel.jpg")
	require.NoError(t, os.WriteFile(img, []byte{0xff, 0xd8}, 0o600))
	csv := filepath.Join(dir, "rows.csv")
	require.NoError(t, os.WriteFile(csv, []byte("a,b\n1,2\n"), 0o600))

	blocks, err := ImageReader().Call(context.Background(), map[string]any{"image_path": img})
	require.NoError(t, err)
	require.Equal(t, "jpeg", blocks[0].Image.Format)

	blocks, err = FileRead().Call(context.Background(), map[string]any{"path": csv})
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", blocks[0].Text)

	_, err = ImageReader().Call(context.Background(), map[string]any{"image_path": filepath.Join(dir, "missing.png")})
	require.ErrorContains(t, err, "file not found")
}

type fakeExtractor struct {
	total     int
	requested []int
	mu        sync.Mutex
}

func (f *fakeExtractor) FrameCount(string) (int, error) { return f.total, nil }

func (f *fakeExtractor) Frame(_ string, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, n)
	return []byte{byte(n)}, nil
}

type frameModel struct {
	mu      sync.Mutex
	prompts []string
	fail    bool
}

func (m *frameModel) Converse(_ context.Context, req agent.Request) (*agent.Response, error) {
	if m.fail {
		return nil, errors.New("throttled")
	}
	msg := req.Messages[0]
	m.mu.Lock()
	m.prompts = append(m.prompts, msg.Content[0].Text)
	m.mu.Unlock()
	desc := "a cat"
	if msg.Content[1].Image.Bytes[0] > 0 {
		desc = "a dog"
	}
	return &agent.Response{Message: agent.Message{Role: agent.RoleAssistant, Content: []agent.ContentBlock{agent.TextBlock(desc)}}}, nil
}

func (m *frameModel) ConverseStream(context.Context, agent.Request, func(agent.StreamEvent) error) (*agent.Response, error) {
	return nil, errors.New("not supported")
}

func TestVideoReader(t *testing.T) {
	video := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("fake"), 0o600))

	model := &frameModel{}
	extractor := &fakeExtractor{total: 90}
	vr := &VideoReader{Model: model, ModelID: "vision", Region: "us-west-2", Extractor: extractor}

	report, err := vr.Analyze(context.Background(), video, "")
	require.NoError(t, err)
	require.ElementsMatch(t, []int{0, 30, 60}, extractor.requested)
	require.ElementsMatch(t, []string{
		"Frame 1: " + defaultVideoPrompt,
		"Frame 2: " + defaultVideoPrompt,
		"Frame 3: " + defaultVideoPrompt,
	}, model.prompts)
	require.True(t, strings.HasPrefix(report, "Video Analysis Results:\n\n**Frame 1:** a cat\n\n**Frame 2:** a dog\n\n**Frame 3:** a dog\n\n---\n"))
	require.Contains(t, report, "- Frames Analyzed: 3\n")
	require.Contains(t, report, "- Video Path: "+video)

	_, err = vr.Analyze(context.Background(), filepath.Join(t.TempDir(), "none.mp4"), "")
	require.ErrorContains(t, err, "video file not found")

	_, err = (&VideoReader{Model: &frameModel{fail: true}, Extractor: &fakeExtractor{total: 10}}).Analyze(context.Background(), video, "x")
	require.ErrorContains(t, err, "throttled")

	_, err = (&VideoReader{Model: model, Extractor: &fakeExtractor{}}).Analyze(context.Background(), video, "x")
	require.ErrorContains(t, err, "failed to extract frames")
}
