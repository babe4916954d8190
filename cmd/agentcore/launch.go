package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/config"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/launcher"
)

type launchOptions struct {
	entrypoint     string
	name           string
	executionRole  string
	ecrRepository  string
	env            []string
	systemPackages []string
	dir            string
	configureOnly  bool
}

func newLaunchCmd(g *globals) *cobra.Command {
	o := &launchOptions{}
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Configure an agent and deploy it to AgentCore Runtime",
		Long: `Configure an agent entrypoint, then build its container for linux/arm64,
push it to ECR, ensure an execution role and create or update the agent
runtime. The configuration is kept in ` + launcher.ConfigFileName + ` so a
second launch updates the same runtime.

The entrypoint is a main package directory or a file inside it, relative to
--dir, and defaults to ENTRYPOINT.`,
		Example: `  agentcore launch --entrypoint cmd/claude-agent
  agentcore launch --entrypoint cmd/memory-agent --env BEDROCK_AGENTCORE_MEMORY_ID=mem-123
  agentcore launch --entrypoint cmd/multimodal-agent --system-package ffmpeg`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLaunch(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.entrypoint, "entrypoint", "e", "", "Agent main package (default: ENTRYPOINT)")
	f.StringVar(&o.name, "name", "", "Agent name (default: derived from the entrypoint)")
	f.StringVar(&o.executionRole, "execution-role", "", "Existing execution role ARN (default: auto-create)")
	f.StringVar(&o.ecrRepository, "ecr-repository", "", "Existing ECR repository URI (default: auto-create)")
	f.StringArrayVar(&o.env, "env-var", nil, "Runtime environment variable KEY=VALUE (repeatable)")
	f.StringArrayVar(&o.systemPackages, "system-package", nil, "Extra Alpine package for the image (repeatable)")
	f.StringVar(&o.dir, "dir", ".", "Docker build context and module root")
	f.BoolVar(&o.configureOnly, "configure-only", false, "Write the configuration and stop")
	return cmd
}

func runLaunch(cmd *cobra.Command, g *globals, o *launchOptions) error {
	if o.entrypoint == "" {
		c, err := config.LoadClient()
		if err != nil {
			return err
		}
		o.entrypoint = c.Entrypoint
	}
	if o.entrypoint == "" {
		return errors.New("ENTRYPOINT is required: pass --entrypoint or export ENTRYPOINT=cmd/claude-agent")
	}
	env, err := parseEnvPairs(o.env)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, region, err := g.awsConfig(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	agentCfg, err := launcher.Configure(o.dir, launcher.Options{
		Entrypoint:     o.entrypoint,
		AgentName:      o.name,
		Region:         region,
		ExecutionRole:  o.executionRole,
		ECRRepository:  o.ecrRepository,
		Environment:    env,
		SystemPackages: o.systemPackages,
	})
	if err != nil {
		return fmt.Errorf("configuring agent: %w", err)
	}
	fmt.Fprintf(out, "Configured %s (entrypoint %s) in %s\n", agentCfg.Name, agentCfg.Entrypoint, launcher.ConfigFileName)
	if o.configureOnly {
		return nil
	}

	fmt.Fprintf(out, "Deploying %s to %s...\n\n", agentCfg.Name, region)
	l := &launcher.Launcher{
		ECR:     ecr.NewFromConfig(cfg),
		IAM:     iam.NewFromConfig(cfg),
		STS:     sts.NewFromConfig(cfg),
		Runtime: bedrockagentcorecontrol.NewFromConfig(cfg),
		Docker:  launcher.ExecRunner{Dir: o.dir, Out: out, Verbose: g.verbose},
		Out:     out,
		Dir:     o.dir,
	}
	res, err := l.Launch(ctx, agentCfg)
	if err != nil {
		return fmt.Errorf("launching %s: %w", agentCfg.Name, err)
	}

	file, err := launcher.LoadFile(o.dir)
	if err != nil {
		return err
	}
	file.Agents[agentCfg.Name] = agentCfg
	if err := launcher.SaveFile(o.dir, file); err != nil {
		return err
	}

	fmt.Fprintln(out)
	if res.Created {
		fmt.Fprintf(out, "Agent created: %s\n", res.AgentARN)
	} else {
		fmt.Fprintf(out, "Agent updated: %s\n", res.AgentARN)
	}
	fmt.Fprintln(out, "\nTo invoke it:")
	fmt.Fprintf(out, "  export AGENT_ARN=%s\n", res.AgentARN)
	fmt.Fprintln(out, "  agentcore invoke")
	return nil
}

// parseEnvPairs turns KEY=VALUE flags into a map.
func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid environment variable %q, want KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}
