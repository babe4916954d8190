// Package config parses the environment passed to agent containers and CLIs.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Default model identifiers used by the tutorial agents.
const (
	DefaultBedrockModelID    = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"
	DefaultResearcherModelID = "global.anthropic.claude-haiku-4-5-20251001-v1:0"
	DefaultVisionModelID     = "us.anthropic.claude-3-5-sonnet-20241022-v2:0"
	DefaultAnthropicModelID  = "claude-3-5-haiku-20241022"
	DefaultGraphModelID      = "us.anthropic.claude-3-5-haiku-20241022-v1:0"
)

// Agent is the environment of an agent container.
type Agent struct {
	Port         int    `env:"PORT" envDefault:"8080"`
	Region       string `env:"AWS_REGION" envDefault:"us-west-2"`
	ModelID      string `env:"MODEL_ID"`
	GatewayURL   string `env:"GATEWAY_URL"`
	MemoryID     string `env:"BEDROCK_AGENTCORE_MEMORY_ID"`
	ClaudeAPIKey string `env:"CLAUDE_APIKEY"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Client is the environment read by the invocation CLIs.
type Client struct {
	AgentARN          string `env:"AGENT_ARN"`
	StreamingAgentARN string `env:"STREAMING_AGENT_ARN"`
	Region            string `env:"AWS_REGION"`
	Prompt            string `env:"PROMPT"`
	Entrypoint        string `env:"ENTRYPOINT"`
}

// LoadDotEnv loads the named .env files (or ./.env) into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// LoadAgent parses the agent environment.
func LoadAgent() (Agent, error) {
	var c Agent
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parsing agent environment: %w", err)
	}
	return c, nil
}

// LoadClient parses the client environment.
func LoadClient() (Client, error) {
	var c Client
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parsing client environment: %w", err)
	}
	return c, nil
}

// ModelOrDefault returns the configured model id or fallback.
func (a Agent) ModelOrDefault(fallback string) string {
	if a.ModelID != "" {
		return a.ModelID
	}
	return fallback
}
