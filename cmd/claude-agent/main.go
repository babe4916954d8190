// claude-agent hosts an agent that calls the Anthropic API directly. The API
// key is read from CLAUDE_APIKEY or, on the first invocation, from the
// ClaudeAPIKeys credential provider of AgentCore Identity using the
// workload access token of the request.
//
// Usage:
//
//	claude-agent
//
// Environment:
//
//	PORT           listen port (default 8080)
//	AWS_REGION     region of AgentCore Identity (default us-west-2)
//	MODEL_ID       Anthropic model (default claude-3-5-haiku-20241022)
//	CLAUDE_APIKEY  API key; skips AgentCore Identity when set
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agents"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/awsutil"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/config"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/identity"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/logging"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/server"
)

func main() {
	config.LoadDotEnv()
	logger := logging.New("claude-agent")

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

	modelID := cfg.ModelOrDefault(config.DefaultAnthropicModelID)
	c := &agents.Claude{
		Keys: identity.NewClaudeKeyProvider(bedrockagentcore.NewFromConfig(awsCfg), logger),
		NewModel: func(apiKey string) agent.Model {
			return agent.NewAnthropicModel(apiKey, modelID)
		},
	}

	logger.Info("starting", "model", modelID)
	if err := server.New(c.Entrypoint(), logger).Run(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
}
