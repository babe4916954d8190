// memory-agent hosts a calculator agent whose conversation is stored in
// AgentCore Memory. Facts and preferences extracted for the actor (the
// X-Amzn-Bedrock-AgentCore-Runtime-Custom-Actor-Id header, default "user")
// are retrieved before each turn.
//
// Environment:
//
//	BEDROCK_AGENTCORE_MEMORY_ID  memory id; without it every invocation
//	                             answers with an error payload
//	MODEL_ID                     Bedrock model (default Claude 3.7 Sonnet)
//	AWS_REGION                   region (default us-west-2)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
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
	logger := logging.New("memory-agent")

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
	if cfg.MemoryID == "" {
		logger.Warn("BEDROCK_AGENTCORE_MEMORY_ID is not set")
	}

	modelID := cfg.ModelOrDefault(config.DefaultBedrockModelID)
	m := &agents.Memory{
		MemoryID: cfg.MemoryID,
		Data:     bedrockagentcore.NewFromConfig(awsCfg),
		Model:    agent.NewBedrockModel(bedrockruntime.NewFromConfig(awsCfg), modelID),
		Tools:    []agent.Tool{tools.Calculator()},
		Logger:   logger,
	}

	logger.Info("starting", "model", modelID, "memory", cfg.MemoryID)
	if err := server.New(m.Entrypoint(), logger).Run(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
}
