// langgraph-agent hosts the graph-style agent: a chatbot node and a tools
// node that loop until the model stops calling tools. No state is kept
// between invocations.
//
// Deploy with:
//
//	agentcore launch --entrypoint cmd/langgraph-agent --name langgraph_agent
//
// Environment:
//
//	MODEL_ID    Bedrock model (default Claude 3.5 Haiku)
//	AWS_REGION  region (default us-west-2)
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
	logger := logging.New("langgraph-agent")

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

	modelID := cfg.ModelOrDefault(config.DefaultGraphModelID)
	model := agent.NewBedrockModel(bedrockruntime.NewFromConfig(awsCfg), modelID)
	entry := agents.NewGraphAgent(model, []agent.Tool{tools.Calculator()}, logger)

	logger.Info("starting", "model", modelID)
	if err := server.New(entry, logger).Run(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
}
