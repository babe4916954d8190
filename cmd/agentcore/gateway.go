package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/gateway"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/launcher"
)

const nasaKeyPrompt = "Enter your NASA API Key (get free at https://api.nasa.gov/): "

func newGatewayCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Provision the customer support AgentCore Gateway",
	}
	cmd.AddCommand(newGatewaySetupCmd(g))
	return cmd
}

// supportLambdaPkg is the main package zipped into the support template's
// Lambda code.
const supportLambdaPkg = "./cmd/customer-support-lambda"

type gatewaySetupOptions struct {
	templateFile string
	nasaKey      string
	codeBucket   string
	codeKey      string
	skipBuild    bool
}

// applyCode sets where the support Lambda code comes from. Unless skipBuild
// is set, build produces the zip when the stack is created.
func (o *gatewaySetupOptions) applyCode(setup *gateway.Setup, build func(context.Context) ([]byte, error)) error {
	if o.skipBuild && o.codeBucket == "" {
		return errors.New("--code-bucket is required with --skip-build")
	}
	setup.CodeBucket = o.codeBucket
	setup.CodeKey = o.codeKey
	if !o.skipBuild {
		setup.LambdaCode = build
	}
	return nil
}

// buildSupportLambda cross-compiles the support Lambda for provided.al2023
// arm64 and zips its bootstrap.
func buildSupportLambda(out io.Writer, verbose bool) func(context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		dir, err := os.MkdirTemp("", "customer-support-lambda")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)

		dst := filepath.Join(dir, "bootstrap")
		gobuild := launcher.ExecRunner{
			Out:     out,
			Verbose: verbose,
			Env:     []string{"GOOS=linux", "GOARCH=arm64", "CGO_ENABLED=0"},
		}
		if err := gobuild.Run(ctx, "", "go", "build", "-tags", "lambda.norpc", "-o", dst, supportLambdaPkg); err != nil {
			return nil, err
		}
		binary, err := os.ReadFile(dst)
		if err != nil {
			return nil, err
		}
		return gateway.ZipBootstrap(binary)
	}
}

func newGatewaySetupCmd(g *globals) *cobra.Command {
	o := &gatewaySetupOptions{}
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Deploy the support stack, the gateway and its Lambda and NASA targets",
		Long: `Deploy the ` + gateway.StackName + ` CloudFormation stack, create the
` + gateway.GatewayName + ` gateway (MCP, AWS_IAM) and add two targets: the
customer support Lambda and the NASA Mars weather OpenAPI. The NASA API key
is read from --nasa-api-key, NASA_API_KEY or the terminal; leaving it empty
skips the NASA target.

When the stack does not exist yet, ` + supportLambdaPkg + ` is built and
uploaded to --code-bucket (default: a new agentcore-gateway-<id> bucket).
With --skip-build the zip must already be at --code-bucket/--code-key.
Run from the repository root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, region, err := g.awsConfig(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			setup := &gateway.Setup{
				Stacks:    cloudformation.NewFromConfig(cfg),
				Control:   bedrockagentcorecontrol.NewFromConfig(cfg),
				Storage:   s3.NewFromConfig(cfg),
				Region:    region,
				Out:       out,
				PromptKey: nasaKeySource(o.nasaKey, cmd.InOrStdin(), out),
			}
			if err := o.applyCode(setup, buildSupportLambda(out, g.verbose)); err != nil {
				return err
			}
			if o.templateFile != "" {
				body, err := os.ReadFile(o.templateFile)
				if err != nil {
					return fmt.Errorf("reading template: %w", err)
				}
				setup.TemplateBody = string(body)
			}

			fmt.Fprintln(out, "=== Setting up Customer Support Gateway ===")
			fmt.Fprintln(out)
			res, err := setup.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "\n=== Setup Complete ===")
			fmt.Fprintf(out, "Region: %s\n", region)
			fmt.Fprintf(out, "Stack Name: %s\n", gateway.StackName)
			fmt.Fprintf(out, "Gateway URL: %s\n", res.GatewayURL)
			fmt.Fprintf(out, "Execution Role ARN: %s\n", res.RuntimeRoleARN)
			fmt.Fprintln(out, "\nNext Steps:")
			fmt.Fprintln(out, "1. Pass the Execution Role ARN to 'agentcore launch --execution-role'")
			fmt.Fprintln(out, "2. Pass the Gateway URL with 'agentcore launch --env-var GATEWAY_URL=...'")
			return nil
		},
	}
	cmd.Flags().StringVar(&o.templateFile, "template", "", "CloudFormation template (default: the bundled customer support template)")
	cmd.Flags().StringVar(&o.nasaKey, "nasa-api-key", "", "NASA API key (default: NASA_API_KEY or prompt)")
	cmd.Flags().StringVar(&o.codeBucket, "code-bucket", "", "S3 bucket for the support Lambda zip (default: a new bucket)")
	cmd.Flags().StringVar(&o.codeKey, "code-key", gateway.DefaultLambdaCodeKey, "S3 key of the support Lambda zip")
	cmd.Flags().BoolVar(&o.skipBuild, "skip-build", false, "Use a zip already uploaded to --code-bucket")
	return cmd
}

// nasaKeySource returns the flag value, NASA_API_KEY, or a function that
// reads the key from the terminal without echo. Non-terminal input is read
// as one line.
func nasaKeySource(flagValue string, in io.Reader, out io.Writer) func() (string, error) {
	return func() (string, error) {
		if flagValue != "" {
			return flagValue, nil
		}
		if v := os.Getenv("NASA_API_KEY"); v != "" {
			return v, nil
		}
		fmt.Fprint(out, nasaKeyPrompt)
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			return string(b), err
		}
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
