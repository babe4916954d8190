// support-agent hosts the customer support agent. Its tools (customer
// profiles, warranty checks and NASA Mars weather) come from the AgentCore
// Gateway named by GATEWAY_URL, reached over MCP with SigV4 signing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agents"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/awsutil"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/config"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/logging"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/server"
)

const supportTemperature = 0.7

func main() {
	config.LoadDotEnv()
	logger := logging.New("support-agent")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAgent()
	if err != nil {
		logger.Fatal("loading configuration", "err", err)
	}
	if cfg.GatewayURL == "" {
		logger.Fatal("GATEWAY_URL environment variable is required")
	}
	region, err := awsutil.RegionFromGatewayURL(cfg.GatewayURL)
	if err != nil {
		logger.Fatal("reading gateway region", "err", err)
	}
	awsCfg, err := awsutil.LoadConfig(ctx, region)
	if err != nil {
		logger.Fatal("loading AWS configuration", "err", err)
	}

	gw := &agents.Gateway{URL: cfg.GatewayURL, Credentials: awsCfg.Credentials}
	defer gw.Close() //nolint:errcheck

	modelID := cfg.ModelOrDefault(config.DefaultBedrockModelID)
	model := agent.NewBedrockModel(bedrockruntime.NewFromConfig(awsCfg), modelID)
	model.Temperature = aws.Float32(supportTemperature)

	logger.Info("starting", "model", modelID, "gateway", cfg.GatewayURL, "region", region)
	if err := server.New(agents.NewSupport(model, gw.Tools), logger).Run(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Error("server stopped", "err", err)
	}
}
