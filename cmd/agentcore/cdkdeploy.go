package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/envfile"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/launcher"
)

// lambdaBuild is a Lambda main package and the asset directory the CDK
// stacks expect its bootstrap binary in.
type lambdaBuild struct {
	asset string
	pkg   string
}

var lambdaBuilds = []lambdaBuild{
	{asset: "web-extract", pkg: "./cmd/web-extract-lambda"},
	{asset: "blog-search", pkg: "./cmd/blog-search-lambda"},
	{asset: "customer-support", pkg: "./cmd/customer-support-lambda"},
}

type cdkDeployOptions struct {
	secretsOptions
	envFile       string
	appDir        string
	stackName     string
	skipSecrets   bool
	skipBootstrap bool
	skipLambdas   bool
}

func newCDKDeployCmd(g *globals) *cobra.Command {
	o := &cdkDeployOptions{}
	cmd := &cobra.Command{
		Use:   "cdk-deploy",
		Short: "Push secrets, build the Lambda tools, bootstrap CDK and deploy a stack",
		Long: `Deploy one of the CDK apps under examples/.

Steps:
  1. Push secrets from .env to AWS Secrets Manager
  2. Build the Lambda tool binaries into {app-dir}/build
  3. Bootstrap AWS CDK (if needed)
  4. Deploy the CDK stack (cdk diff with --dry-run)`,
		Example: `  agentcore cdk-deploy --app-dir examples/1-cdk-go
  agentcore cdk-deploy --app-dir examples/2-cdk-json --skip-secrets
  agentcore cdk-deploy --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCDKDeploy(cmd.Context(), cmd.OutOrStdout(), g, o)
		},
	}
	o.addFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&o.envFile, "env-file", "", "Path to the .env file pushed to Secrets Manager (default: auto-detect)")
	f.StringVar(&o.appDir, "app-dir", "examples/1-cdk-go", "Directory holding the CDK app (cdk.json)")
	f.StringVar(&o.stackName, "stack-name", "", "Stack name shown in the outputs hint (default: detected project)")
	f.BoolVar(&o.skipSecrets, "skip-secrets", false, "Skip pushing secrets")
	f.BoolVar(&o.skipBootstrap, "skip-bootstrap", false, "Skip CDK bootstrap")
	f.BoolVar(&o.skipLambdas, "skip-lambdas", false, "Skip building the Lambda binaries")
	return cmd
}

func runCDKDeploy(ctx context.Context, out io.Writer, g *globals, o *cdkDeployOptions) error {
	cfg, region, err := g.awsConfig(ctx)
	if err != nil {
		return err
	}
	if o.project == "" {
		o.project = envfile.DetectProjectName()
	}
	if o.stackName == "" {
		o.stackName = o.project
	}

	fmt.Fprintln(out, "=== AWS AgentCore Deployment ===")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Region: %s\n", region)
	if o.project != "" {
		fmt.Fprintf(out, "Project: %s\n", o.project)
	}
	fmt.Fprintf(out, "CDK app: %s\n", o.appDir)
	if o.dryRun {
		fmt.Fprintln(out, "Mode: DRY RUN (no changes will be made)")
	}
	fmt.Fprintln(out)

	ident, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("getting AWS identity: %w", err)
	}
	account := aws.ToString(ident.Account)
	fmt.Fprintf(out, "AWS Account: %s\n\n", account)

	if o.skipSecrets {
		fmt.Fprintln(out, "=== Step 1: Skipping secrets (--skip-secrets) ===")
	} else {
		fmt.Fprintln(out, "=== Step 1: Push Secrets ===")
		err := pushSecrets(ctx, cfg, out, o.envFile, &o.secretsOptions, g.verbose)
		switch {
		case errors.Is(err, envfile.ErrNotFound), errors.Is(err, os.ErrNotExist):
			fmt.Fprintf(out, "Warning: %v, skipping secrets push\n", err)
		case err != nil:
			return fmt.Errorf("pushing secrets: %w", err)
		}
	}
	fmt.Fprintln(out)

	if o.skipLambdas {
		fmt.Fprintln(out, "=== Step 2: Skipping Lambda build (--skip-lambdas) ===")
	} else {
		fmt.Fprintln(out, "=== Step 2: Build Lambda tools ===")
		if err := buildLambdas(ctx, out, o.appDir, g.verbose); err != nil {
			return fmt.Errorf("building lambdas: %w", err)
		}
	}
	fmt.Fprintln(out)

	cdk := launcher.ExecRunner{Dir: o.appDir, Out: out, Verbose: true}
	if o.skipBootstrap {
		fmt.Fprintln(out, "=== Step 3: Skipping bootstrap (--skip-bootstrap) ===")
	} else {
		fmt.Fprintln(out, "=== Step 3: Bootstrap CDK ===")
		target := fmt.Sprintf("aws://%s/%s", account, region)
		fmt.Fprintf(out, "Bootstrap target: %s\n", target)
		if o.dryRun {
			fmt.Fprintln(out, "[DRY RUN] Would run: cdk bootstrap "+target)
		} else if err := cdk.Run(ctx, "", "cdk", "bootstrap", target); err != nil {
			fmt.Fprintln(out, "  Bootstrap completed (or already bootstrapped)")
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "=== Step 4: Deploy ===")
	if o.dryRun {
		fmt.Fprintln(out, "Running cdk diff...")
		// cdk diff exits non-zero when there are differences.
		_ = cdk.Run(ctx, "", "cdk", "diff")
	} else {
		fmt.Fprintln(out, "Running cdk deploy...")
		if err := cdk.Run(ctx, "", "cdk", "deploy", "--require-approval", "never"); err != nil {
			return fmt.Errorf("deploying: %w", err)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "=== Deployment Complete ===")
	if !o.dryRun && o.stackName != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To get outputs:")
		fmt.Fprintf(out, "  aws cloudformation describe-stacks --stack-name %s --region %s --query 'Stacks[0].Outputs' --no-cli-pager\n", o.stackName, region)
	}
	return nil
}

// buildLambdas cross-compiles every Lambda tool for the provided.al2023
// arm64 runtime into {appDir}/build/{asset}/bootstrap.
func buildLambdas(ctx context.Context, out io.Writer, appDir string, verbose bool) error {
	gobuild := launcher.ExecRunner{
		Out:     out,
		Verbose: verbose,
		Env:     []string{"GOOS=linux", "GOARCH=arm64", "CGO_ENABLED=0"},
	}
	for _, b := range lambdaBuilds {
		dst := filepath.Join(appDir, "build", b.asset, "bootstrap")
		fmt.Fprintf(out, "  %s -> %s\n", b.pkg, dst)
		if err := gobuild.Run(ctx, "", "go", "build", "-tags", "lambda.norpc", "-o", dst, b.pkg); err != nil {
			return err
		}
	}
	return nil
}
