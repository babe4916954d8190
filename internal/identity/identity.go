// Package identity fetches third-party API keys from AgentCore Identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/charmbracelet/log"
)

// ClaudeProviderName is the credential provider holding the Anthropic key.
const ClaudeProviderName = "ClaudeAPIKeys"

// ClaudeKeyEnv is the environment variable that short-circuits the lookup.
const ClaudeKeyEnv = "CLAUDE_APIKEY"

// ErrNoToken is returned when a lookup is needed but the request carried no
// workload access token.
var ErrNoToken = errors.New("no workload access token on the request")

// APIKeyAPI is the subset of the AgentCore data plane client used here.
type APIKeyAPI interface {
	GetResourceApiKey(ctx context.Context, in *bedrockagentcore.GetResourceApiKeyInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.GetResourceApiKeyOutput, error)
}

// APIKeyProvider resolves an API key once per process: from EnvVar when it
// is set, otherwise from the named credential provider.
type APIKeyProvider struct {
	Client       APIKeyAPI
	ProviderName string
	EnvVar       string
	Logger       *log.Logger

	mu  sync.Mutex
	key string
}

// NewClaudeKeyProvider returns the provider used by the Claude agent.
func NewClaudeKeyProvider(client APIKeyAPI, logger *log.Logger) *APIKeyProvider {
	return &APIKeyProvider{
		Client:       client,
		ProviderName: ClaudeProviderName,
		EnvVar:       ClaudeKeyEnv,
		Logger:       logger,
	}
}

// Resolve returns the API key. workloadToken is the WorkloadAccessToken
// header of the current invocation and is only used on the first lookup.
func (p *APIKeyProvider) Resolve(ctx context.Context, workloadToken string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != "" {
		return p.key, nil
	}
	if p.EnvVar != "" {
		if v := os.Getenv(p.EnvVar); v != "" {
			p.key = v
			return v, nil
		}
	}
	if workloadToken == "" {
		return "", ErrNoToken
	}

	out, err := p.Client.GetResourceApiKey(ctx, &bedrockagentcore.GetResourceApiKeyInput{
		ResourceCredentialProviderName: aws.String(p.ProviderName),
		WorkloadIdentityToken:          aws.String(workloadToken),
	})
	if err != nil {
		return "", fmt.Errorf("getting API key from %s: %w", p.ProviderName, err)
	}
	key := aws.ToString(out.ApiKey)
	if key == "" {
		return "", fmt.Errorf("credential provider %s returned an empty key", p.ProviderName)
	}
	if p.Logger != nil {
		p.Logger.Info("API key received", "provider", p.ProviderName, "key", Preview(key))
	}
	p.key = key
	return key, nil
}

// Preview returns the first 10 characters of key followed by "...".
func Preview(key string) string {
	if len(key) > 10 {
		key = key[:10]
	}
	return key + "..."
}
