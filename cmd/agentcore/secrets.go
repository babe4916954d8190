package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/spf13/cobra"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/envfile"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/identity"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/secrets"
)

const defaultSecretPrefix = "agentcore"

type secretsOptions struct {
	prefix         string
	project        string
	dryRun         bool
	registerClaude bool
}

func (o *secretsOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.prefix, "prefix", defaultSecretPrefix, "Secret name prefix")
	f.StringVar(&o.project, "project", "", "Project name for ~/"+envfile.DefaultConfigDir+"/projects/{project}/.env lookup")
	f.BoolVar(&o.dryRun, "dry-run", false, "Preview changes without creating secrets")
	f.BoolVar(&o.registerClaude, "register-claude-key", false, "Also store CLAUDE_APIKEY in the "+identity.ClaudeProviderName+" credential provider")
}

func newPushSecretsCmd(g *globals) *cobra.Command {
	o := &secretsOptions{}
	cmd := &cobra.Command{
		Use:   "push-secrets [ENV_FILE]",
		Short: "Push .env values to AWS Secrets Manager",
		Long: `Read KEY=VALUE pairs from a .env file and create or update one secret per
group: {prefix}/llm, {prefix}/search and {prefix}/config.

If ENV_FILE is not given, searches in order:
  1. .env (current directory)
  2. ../.env (parent directory)
  3. ~/` + envfile.DefaultConfigDir + `/projects/{project}/.env (if --project is set)
  4. ~/` + envfile.DefaultConfigDir + `/.env

The project is detected from the stackName in config.json when not set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			ctx := cmd.Context()
			cfg, region, err := g.awsConfig(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := pushSecrets(ctx, cfg, out, path, o, g.verbose); err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Done!")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "To verify:")
			fmt.Fprintf(out, "  aws secretsmanager list-secrets --region %s --filter Key=name,Values=%s/ --no-cli-pager\n", region, o.prefix)
			return nil
		},
	}
	o.addFlags(cmd)
	return cmd
}

// resolveEnvFile returns the .env file to read: the given path (also tried
// relative to the parent directory) or the first file found by
// envfile.Find.
func resolveEnvFile(path, project string) (string, error) {
	if path == "" {
		if project == "" {
			project = envfile.DetectProjectName()
		}
		return envfile.Find(project)
	}
	if _, err := os.Stat(path); err == nil || filepath.IsAbs(path) {
		return path, nil
	}
	parent := filepath.Join("..", path)
	if _, err := os.Stat(parent); err == nil {
		return parent, nil
	}
	return "", fmt.Errorf("%s: %w", path, os.ErrNotExist)
}

// pushSecrets parses the env file into the default groups and writes them,
// optionally registering the Claude key with AgentCore Identity.
func pushSecrets(ctx context.Context, cfg aws.Config, out io.Writer, path string, o *secretsOptions, verbose bool) error {
	envPath, err := resolveEnvFile(path, o.project)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reading from: %s\n", envPath)

	groups := envfile.DefaultGroups()
	found, err := envfile.Parse(envPath, groups)
	if err != nil {
		return fmt.Errorf("parsing env file: %w", err)
	}
	if verbose {
		for _, key := range found {
			fmt.Fprintf(out, "  Found %s\n", key)
		}
	}

	fmt.Fprintf(out, "AWS Region: %s\n", cfg.Region)
	fmt.Fprintf(out, "Secret prefix: %s\n", o.prefix)
	if o.dryRun {
		fmt.Fprintln(out, "Mode: DRY RUN (no changes will be made)")
	}
	fmt.Fprintln(out)

	pusher := &secrets.Pusher{Out: out, Prefix: o.prefix}
	if !o.dryRun {
		pusher.Client = secretsmanager.NewFromConfig(cfg)
	}
	if err := pusher.Push(ctx, groups); err != nil {
		return err
	}

	if !o.registerClaude {
		return nil
	}
	key := claudeKey(groups)
	if key == "" {
		return errors.New("CLAUDE_APIKEY not found in " + envPath)
	}
	if o.dryRun {
		fmt.Fprintf(out, "[DRY RUN] Would register %s with %s\n", identity.Preview(key), identity.ClaudeProviderName)
		return nil
	}
	arn, created, err := secrets.RegisterAPIKey(ctx, bedrockagentcorecontrol.NewFromConfig(cfg), identity.ClaudeProviderName, key)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "Created credential provider: %s\n", arn)
	} else {
		fmt.Fprintf(out, "Updated credential provider: %s\n", arn)
	}
	return nil
}

func claudeKey(groups []envfile.SecretGroup) string {
	for _, g := range groups {
		if v := g.Keys["CLAUDE_APIKEY"]; v != "" {
			return v
		}
	}
	return ""
}
