package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/sync/errgroup"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
)

// DefaultMaxFrames is the number of frames analysed per video.
const DefaultMaxFrames = 3

const defaultVideoPrompt = "Describe what you see in this video"

// DefaultVideoSystemPrompt is used when the video reader has no system prompt.
const DefaultVideoSystemPrompt = "Always answer in the same language you are asked."

// FrameIndices picks up to max frame indices from a video of total frames:
// the middle frame for one, first and last for two, and evenly spaced
// frames starting at 0 otherwise, with the last clamped to total-1.
func FrameIndices(total, max int) []int {
	if total <= 0 || max <= 0 {
		return nil
	}
	switch max {
	case 1:
		return []int{total / 2}
	case 2:
		return []int{0, total - 1}
	}
	step := total / max
	indices := make([]int, max)
	for i := range indices {
		indices[i] = i * step
	}
	if indices[max-1] >= total {
		indices[max-1] = total - 1
	}
	return indices
}

// FrameExtractor reads frames out of a video file.
type FrameExtractor interface {
	FrameCount(path string) (int, error)
	// Frame returns frame n encoded as JPEG.
	Frame(path string, n int) ([]byte, error)
}

// FFmpegExtractor extracts frames with the ffmpeg and ffprobe binaries.
type FFmpegExtractor struct {
	// Stderr receives ffmpeg's log output. Nil discards it.
	Stderr io.Writer
}

type streamInfo struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		NbFrames     string `json:"nb_frames"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// FrameCount implements FrameExtractor.
func (x FFmpegExtractor) FrameCount(path string) (int, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, err)
	}
	n, err := frameCountFromStreamInfo(out)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// frameCountFromStreamInfo reads the frame count of the first video stream from
// ffprobe JSON. Containers that do not record nb_frames, such as Matroska
// and WebM, get duration times average frame rate, using the container
// duration when the stream has none.
func frameCountFromStreamInfo(out string) (int, error) {
	var info streamInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return 0, fmt.Errorf("decoding ffprobe output: %w", err)
	}
	for _, s := range info.Streams {
		if s.CodecType != "video" {
			continue
		}
		if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
			return n, nil
		}
		rate, err := parseRate(s.AvgFrameRate)
		if err != nil {
			return 0, err
		}
		duration := s.Duration
		if duration == "" {
			duration = info.Format.Duration
		}
		secs, err := strconv.ParseFloat(duration, 64)
		if err != nil || secs <= 0 {
			return 0, fmt.Errorf("no frame count or duration in ffprobe output")
		}
		return int(math.Round(secs * rate)), nil
	}
	return 0, errors.New("no video stream")
}

// parseRate parses an ffprobe rate such as "30000/1001" or "25".
func parseRate(r string) (float64, error) {
	num, den, found := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("frame rate %q: %w", r, err)
	}
	d := 1.0
	if found {
		if d, err = strconv.ParseFloat(den, 64); err != nil {
			return 0, fmt.Errorf("frame rate %q: %w", r, err)
		}
	}
	if n <= 0 || d <= 0 {
		return 0, fmt.Errorf("frame rate %q is not positive", r)
	}
	return n / d, nil
}

// Frame implements FrameExtractor.
func (x FFmpegExtractor) Frame(path string, n int) ([]byte, error) {
	stderr := x.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	buf := bytes.NewBuffer(nil)
	err := ffmpeg.Input(path).
		Filter("select", ffmpeg.Args{fmt.Sprintf("gte(n,%d)", n)}).
		Output("pipe:", ffmpeg.KwArgs{"vframes": 1, "format": "image2", "vcodec": "mjpeg"}).
		WithOutput(buf, stderr).
		Run()
	if err != nil {
		return nil, fmt.Errorf("extracting frame %d: %w", n, err)
	}
	return buf.Bytes(), nil
}

// ExtractFrames returns up to max JPEG frames of the video at path.
func ExtractFrames(x FrameExtractor, path string, max int) ([][]byte, error) {
	total, err := x.FrameCount(path)
	if err != nil {
		return nil, err
	}
	var frames [][]byte
	for _, idx := range FrameIndices(total, max) {
		frame, err := x.Frame(path, idx)
		if err != nil {
			return nil, err
		}
		if len(frame) > 0 {
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

// VideoReader analyses a local video by sending a few key frames to a
// vision model, one call per frame.
type VideoReader struct {
	Model        agent.Model
	ModelID      string
	Region       string
	SystemPrompt string
	Extractor    FrameExtractor
	MaxFrames    int
}

// Analyze extracts frames from path and returns the combined report.
func (v *VideoReader) Analyze(ctx context.Context, path, prompt string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("video file not found: %s", path)
	}
	if prompt == "" {
		prompt = defaultVideoPrompt
	}
	system := v.SystemPrompt
	if system == "" {
		system = DefaultVideoSystemPrompt
	}
	maxFrames := v.MaxFrames
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	extractor := v.Extractor
	if extractor == nil {
		extractor = FFmpegExtractor{}
	}

	frames, err := ExtractFrames(extractor, path, maxFrames)
	if err != nil {
		return "", fmt.Errorf("extracting frames: %w", err)
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("failed to extract frames from video")
	}

	analyses := make([]string, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	for i, frame := range frames {
		g.Go(func() error {
			resp, err := v.Model.Converse(gctx, agent.Request{
				System: system,
				Messages: []agent.Message{agent.UserMessage(
					agent.TextBlock(fmt.Sprintf("Frame %d: %s", i+1, prompt)),
					agent.ContentBlock{Image: &agent.Image{Format: "jpeg", Bytes: frame}},
				)},
			})
			if err != nil {
				return fmt.Errorf("analyzing frame %d: %w", i+1, err)
			}
			analyses[i] = fmt.Sprintf("**Frame %d:** %s", i+1, resp.Message.Text())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return FormatVideoReport(analyses, v.ModelID, v.Region, path), nil
}

// FormatVideoReport renders per-frame analyses and technical details.
func FormatVideoReport(analyses []string, modelID, region, path string) string {
	var b strings.Builder
	b.WriteString("Video Analysis Results:\n\n")
	b.WriteString(strings.Join(analyses, "\n\n"))
	b.WriteString("\n\n---\n**Technical Details:**\n")
	fmt.Fprintf(&b, "- Model Used: %s\n", modelID)
	fmt.Fprintf(&b, "- Region: %s\n", region)
	fmt.Fprintf(&b, "- Video Path: %s\n", path)
	fmt.Fprintf(&b, "- Frames Analyzed: %d\n", len(analyses))
	return b.String()
}

// Tool returns v as the video_reader tool.
func (v *VideoReader) Tool() agent.Tool {
	return agent.NewTool(
		"video_reader",
		"Analyze a local MP4, MOV, AVI, MKV or WebM video by extracting key frames and describing them.",
		agent.ObjectSchema([]string{"video_path"}, map[string]string{
			"video_path":  "Path to the local video file",
			"text_prompt": "Question or instruction for analyzing the video",
		}),
		func(ctx context.Context, input map[string]any) ([]agent.ContentBlock, error) {
			path, err := agent.StringArg(input, "video_path")
			if err != nil {
				return nil, err
			}
			prompt, _ := input["text_prompt"].(string)
			report, err := v.Analyze(ctx, path, prompt)
			if err != nil {
				return nil, fmt.Errorf("processing video: %w", err)
			}
			return []agent.ContentBlock{agent.TextBlock(report)}, nil
		},
	)
}
