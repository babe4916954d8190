// multimodal-agent hosts an agent that reads images, documents and videos
// from the container file system. Videos are analysed frame by frame, which
// needs ffmpeg and ffprobe on PATH.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agents"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/awsutil"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/config"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/logging"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/server"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/tools"
)

func main() {
	config.LoadDotEnv()
	logger := logging.New("multimodal-agent")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAgent()
	if err != nil {
		logger.Fatal("loading configuration", "err", err)
	}
	awsCfg, err := awsutil.LoadConfig(ctx, cfg.Region)
	if err != nil {
		logger.Fatal("loading AWS configuration", "err", err)
	}

	modelID := cfg.ModelOrDefault(config.DefaultVisionModelID)
	model := agent.NewBedrockModel(bedrockruntime.NewFromConfig(awsCfg), modelID)
	video := &tools.VideoReader{
		Model:     model,
		ModelID:   modelID,
		Region:    cfg.Region,
		Extractor: tools.FFmpegExtractor{},
	}
	entry := agents.NewMultimodal(model, agents.StaticTools(
		tools.ImageReader(),
		tools.FileRead(),
		video.Tool(),
	))

	logger.Info("starting", "model", modelID)
	if err := server.New(entry, logger).Run(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
}
