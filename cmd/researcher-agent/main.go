// researcher-agent hosts the streaming AWS research agent deployed by the
// CDK examples. When GATEWAY_URL is set the agent uses the gateway's web
// extract and blog search tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agents"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/awsutil"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/config"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/logging"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/server"
)

const researcherMaxTokens = 4096

func main() {
	config.LoadDotEnv()
	logger := logging.New("researcher-agent")

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

	modelID := cfg.ModelOrDefault(config.DefaultResearcherModelID)
	model := agent.NewBedrockModel(bedrockruntime.NewFromConfig(awsCfg), modelID)
	model.MaxTokens = researcherMaxTokens

	r := &agents.Researcher{
		Model:        model,
		SystemPrompt: agents.ResearcherSystemPrompt(time.Now()),
		Logger:       logger,
	}
	if cfg.GatewayURL != "" {
		gw := &agents.Gateway{URL: cfg.GatewayURL, Credentials: awsCfg.Credentials}
		defer gw.Close() //nolint:errcheck
		r.Tools = gw.Tools
	}

	logger.Info("starting", "model", modelID, "gateway", cfg.GatewayURL)
	if err := server.New(r.Entrypoint(), logger).Run(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Error("server stopped", "err", err)
	}
}
