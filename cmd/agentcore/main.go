// agentcore is the operator CLI for the AgentCore tutorials: it launches
// agents to AgentCore Runtime, deploys the CDK stacks, pushes secrets,
// provisions the customer support gateway and invokes deployed agents.
//
// Usage:
//
//	agentcore <command> [flags]
//
// Examples:
//
//	agentcore launch --entrypoint cmd/claude-agent
//	agentcore invoke arn:aws:bedrock-agentcore:us-west-2:123456789012:runtime/my_agent-abc
//	agentcore stream --prompt "Tell me a story about AI agents"
//	agentcore memory long
//	agentcore gateway setup
//	agentcore cdk-deploy --dry-run
//
// Install:
//
//	go install github.com/elizabethfuentes12/bedrock-agentcore-samples/cmd/agentcore@latest
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/awsutil"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/config"
)

// globals are the persistent flags shared by every command.
type globals struct {
	region  string
	envFile string
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "agentcore",
		Short:         "Launch, deploy and invoke agents on AWS Bedrock AgentCore",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if g.envFile != "" {
				config.LoadDotEnv(g.envFile)
			} else {
				config.LoadDotEnv()
			}
		},
	}
	root.PersistentFlags().StringVar(&g.region, "region", "", "AWS region (default: AWS_REGION, the agent ARN or us-east-1)")
	root.PersistentFlags().StringVar(&g.envFile, "env", "", "Path to a .env file loaded before running (default: ./.env)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Show verbose output")

	root.AddCommand(
		newLaunchCmd(g),
		newCDKDeployCmd(g),
		newPushSecretsCmd(g),
		newInvokeCmd(g),
		newStreamCmd(g),
		newSessionCmd(g),
		newMemoryCmd(g),
		newMultimodalCmd(g),
		newGatewayCmd(g),
	)
	return root
}

// awsConfig loads the SDK configuration for the resolved region.
func (g *globals) awsConfig(ctx context.Context) (aws.Config, string, error) {
	region := awsutil.ResolveRegion(g.region)
	cfg, err := awsutil.LoadConfig(ctx, region)
	return cfg, region, err
}

// awsConfigForARN loads the SDK configuration for calls against arn,
// falling back to the region embedded in the ARN.
func (g *globals) awsConfigForARN(ctx context.Context, arn string) (aws.Config, string, error) {
	region, err := awsutil.RegionForARN(g.region, arn)
	if err != nil {
		return aws.Config{}, "", err
	}
	cfg, err := awsutil.LoadConfig(ctx, region)
	return cfg, region, err
}
