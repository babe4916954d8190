// Package secrets pushes .env groups to AWS Secrets Manager and registers
// API keys with AgentCore Identity.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/envfile"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// IdentityAPI is the subset of the AgentCore control client used to manage
// API key credential providers.
type IdentityAPI interface {
	ListApiKeyCredentialProviders(ctx context.Context, in *bedrockagentcorecontrol.ListApiKeyCredentialProvidersInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListApiKeyCredentialProvidersOutput, error)
	CreateApiKeyCredentialProvider(ctx context.Context, in *bedrockagentcorecontrol.CreateApiKeyCredentialProviderInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateApiKeyCredentialProviderOutput, error)
	UpdateApiKeyCredentialProvider(ctx context.Context, in *bedrockagentcorecontrol.UpdateApiKeyCredentialProviderInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.UpdateApiKeyCredentialProviderOutput, error)
}

// Pusher writes secret groups. A nil client puts it in dry-run mode.
type Pusher struct {
	Client SecretsAPI
	Out    io.Writer
	Prefix string
}

// DryRun reports whether the pusher only prints what it would do.
func (p *Pusher) DryRun() bool { return p.Client == nil }

// Push creates or updates one secret per non-empty group, named
// {prefix}/{group}.
func (p *Pusher) Push(ctx context.Context, groups []envfile.SecretGroup) error {
	for _, group := range groups {
		secretName := fmt.Sprintf("%s/%s", p.Prefix, group.Name)
		if err := p.processGroup(ctx, secretName, group); err != nil {
			return fmt.Errorf("processing %s: %w", secretName, err)
		}
	}
	return nil
}

func (p *Pusher) processGroup(ctx context.Context, secretName string, group envfile.SecretGroup) error {
	if len(group.Keys) == 0 {
		fmt.Fprintf(p.Out, "Skipping %s (no keys found)\n", secretName)
		return nil
	}

	secretValue, err := group.JSON()
	if err != nil {
		return err
	}

	fmt.Fprintf(p.Out, "Creating/updating: %s\n", secretName)
	fmt.Fprintf(p.Out, "  Keys: %s\n", strings.Join(group.KeyNames(), ", "))

	if p.DryRun() {
		fmt.Fprintf(p.Out, "  [DRY RUN] Would create with: %s\n", envfile.MaskSecretValues(secretValue))
		return nil
	}

	// Try to update existing secret first
	_, err = p.Client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(secretName),
		SecretString: aws.String(secretValue),
	})
	if err == nil {
		fmt.Fprintf(p.Out, "  Updated existing secret\n")
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("updating secret: %w", err)
	}

	_, err = p.Client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(secretName),
		Description:  aws.String(group.Description),
		SecretString: aws.String(secretValue),
	})
	if err != nil {
		return fmt.Errorf("creating secret: %w", err)
	}
	fmt.Fprintf(p.Out, "  Created new secret\n")
	return nil
}

// FindAPIKeyProvider returns the ARN of the named API key credential
// provider, or "" when it does not exist.
func FindAPIKeyProvider(ctx context.Context, client IdentityAPI, name string) (string, error) {
	var next *string
	for {
		out, err := client.ListApiKeyCredentialProviders(ctx, &bedrockagentcorecontrol.ListApiKeyCredentialProvidersInput{
			NextToken: next,
		})
		if err != nil {
			return "", fmt.Errorf("listing API key credential providers: %w", err)
		}
		for _, p := range out.CredentialProviders {
			if aws.ToString(p.Name) == name {
				return aws.ToString(p.CredentialProviderArn), nil
			}
		}
		if out.NextToken == nil {
			return "", nil
		}
		next = out.NextToken
	}
}

// RegisterAPIKey creates the named API key credential provider, or rotates
// its key when it already exists. It returns the provider ARN.
func RegisterAPIKey(ctx context.Context, client IdentityAPI, name, apiKey string) (string, bool, error) {
	arn, err := FindAPIKeyProvider(ctx, client, name)
	if err != nil {
		return "", false, err
	}
	if arn != "" {
		_, err := client.UpdateApiKeyCredentialProvider(ctx, &bedrockagentcorecontrol.UpdateApiKeyCredentialProviderInput{
			Name:   aws.String(name),
			ApiKey: aws.String(apiKey),
		})
		if err != nil {
			return "", false, fmt.Errorf("updating credential provider %s: %w", name, err)
		}
		return arn, false, nil
	}

	out, err := client.CreateApiKeyCredentialProvider(ctx, &bedrockagentcorecontrol.CreateApiKeyCredentialProviderInput{
		Name:   aws.String(name),
		ApiKey: aws.String(apiKey),
	})
	if err != nil {
		return "", false, fmt.Errorf("creating credential provider %s: %w", name, err)
	}
	return aws.ToString(out.CredentialProviderArn), true, nil
}
