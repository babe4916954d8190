// Package agentcore provides AWS CDK constructs for Bedrock AgentCore
// deployments: an MCP gateway fronting Lambda tools and an agent runtime
// that reaches it through GATEWAY_URL.
package agentcore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Defaults used by ApplyDefaults.
const (
	DefaultModelID            = "global.anthropic.claude-haiku-4-5-20251001-v1:0"
	DefaultGatewayName        = "aws-blogs-mcp"
	DefaultGatewayDescription = "AWS Blogs search and page extraction"
	DefaultRuntimeName        = "AWS_Researcher"
	DefaultRuntimeDescription = "Your AWS Researcher using curated Blogs published by AWS Experts"
	DefaultLambdaTimeout      = 900
	DefaultLambdaMemoryMB     = 512
	DefaultLogRetentionDays   = 30
)

// Network modes for the agent runtime.
const (
	NetworkModePublic = "PUBLIC"
	NetworkModeVPC    = "VPC"
)

var runtimeNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// StackConfig describes one AgentCore stack.
type StackConfig struct {
	StackName     string            `json:"stackName" yaml:"stackName"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tags          map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	RemovalPolicy string            `json:"removalPolicy,omitempty" yaml:"removalPolicy,omitempty"`
	ModelID       string            `json:"modelId,omitempty" yaml:"modelId,omitempty"`

	Gateway       *GatewayConfig       `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	Runtime       *RuntimeConfig       `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Lambdas       []LambdaConfig       `json:"lambdas,omitempty" yaml:"lambdas,omitempty"`
	Tables        *TablesConfig        `json:"tables,omitempty" yaml:"tables,omitempty"`
	VPC           *VPCConfig           `json:"vpc,omitempty" yaml:"vpc,omitempty"`
	Secrets       *SecretsConfig       `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"`
	IAM           *IAMConfig           `json:"iam,omitempty" yaml:"iam,omitempty"`
}

// GatewayConfig configures the MCP gateway.
type GatewayConfig struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// RuntimeConfig configures the agent runtime. Exactly one of
// ContainerImage and Directory must be set; Directory is built into an
// ECR image asset at synth time.
type RuntimeConfig struct {
	Name           string            `json:"name" yaml:"name"`
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`
	ContainerImage string            `json:"containerImage,omitempty" yaml:"containerImage,omitempty"`
	Directory      string            `json:"directory,omitempty" yaml:"directory,omitempty"`
	Dockerfile     string            `json:"dockerfile,omitempty" yaml:"dockerfile,omitempty"`
	Platform       string            `json:"platform,omitempty" yaml:"platform,omitempty"`
	NetworkMode    string            `json:"networkMode,omitempty" yaml:"networkMode,omitempty"`
	Environment    map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	SecretsARNs    []string          `json:"secretsArns,omitempty" yaml:"secretsArns,omitempty"`
	CreateEndpoint bool              `json:"createEndpoint,omitempty" yaml:"createEndpoint,omitempty"`
	MaxLifetime    int               `json:"maxLifetimeSeconds,omitempty" yaml:"maxLifetimeSeconds,omitempty"`
}

// LambdaConfig declares one Lambda tool function and the gateway target
// that exposes its tools.
type LambdaConfig struct {
	// Name is the construct id and target name. Defaults to the first tool.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Tools names built-in target definitions (see Targets).
	Tools []string `json:"tools" yaml:"tools"`

	// Description of the gateway target. Defaults to the description of a
	// single tool, or the tool list.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// CodeDir holds the compiled bootstrap binary.
	CodeDir string `json:"codeDir" yaml:"codeDir"`

	TimeoutSeconds int               `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	MemoryMB       int               `json:"memoryMb,omitempty" yaml:"memoryMb,omitempty"`
	Environment    map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// TablesConfig enables the customer support DynamoDB tables.
type TablesConfig struct {
	CustomerSupport bool `json:"customerSupport" yaml:"customerSupport"`
}

// VPCConfig configures VPC networking for the runtime.
type VPCConfig struct {
	VPCID              string   `json:"vpcId,omitempty" yaml:"vpcId,omitempty"`
	SubnetIDs          []string `json:"subnetIds,omitempty" yaml:"subnetIds,omitempty"`
	SecurityGroupIDs   []string `json:"securityGroupIds,omitempty" yaml:"securityGroupIds,omitempty"`
	CreateVPC          bool     `json:"createVpc,omitempty" yaml:"createVpc,omitempty"`
	VPCCidr            string   `json:"vpcCidr,omitempty" yaml:"vpcCidr,omitempty"`
	MaxAZs             int      `json:"maxAzs,omitempty" yaml:"maxAzs,omitempty"`
	EnableVPCEndpoints bool     `json:"enableVpcEndpoints,omitempty" yaml:"enableVpcEndpoints,omitempty"`
}

// SecretsConfig creates a Secrets Manager secret for the runtime.
type SecretsConfig struct {
	SecretName string `json:"secretName,omitempty" yaml:"secretName,omitempty"`

	// Keys are the JSON keys the secret is expected to hold. Values are
	// pushed after deployment (see the push-secrets command).
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// ObservabilityConfig controls CloudWatch logging.
type ObservabilityConfig struct {
	EnableCloudWatchLogs bool `json:"enableCloudWatchLogs" yaml:"enableCloudWatchLogs"`
	LogRetentionDays     int  `json:"logRetentionDays,omitempty" yaml:"logRetentionDays,omitempty"`
}

// IAMConfig controls the runtime execution role.
type IAMConfig struct {
	RoleARN                string   `json:"roleArn,omitempty" yaml:"roleArn,omitempty"`
	BedrockModelIDs        []string `json:"bedrockModelIds,omitempty" yaml:"bedrockModelIds,omitempty"`
	AdditionalPolicies     []string `json:"additionalPolicies,omitempty" yaml:"additionalPolicies,omitempty"`
	PermissionsBoundaryARN string   `json:"permissionsBoundaryArn,omitempty" yaml:"permissionsBoundaryArn,omitempty"`
}

// DefaultVPCConfig returns a new two-AZ VPC with interface endpoints.
func DefaultVPCConfig() *VPCConfig {
	return &VPCConfig{
		CreateVPC:          true,
		VPCCidr:            "10.0.0.0/16",
		MaxAZs:             2,
		EnableVPCEndpoints: true,
	}
}

// ApplyDefaults fills unset fields.
func (c *StackConfig) ApplyDefaults() {
	if c.ModelID == "" {
		c.ModelID = DefaultModelID
	}
	if c.RemovalPolicy == "" {
		c.RemovalPolicy = "destroy"
	}
	if c.Tags == nil {
		c.Tags = map[string]string{}
	}
	if c.Gateway != nil {
		if c.Gateway.Name == "" {
			c.Gateway.Name = DefaultGatewayName
		}
		if c.Gateway.Description == "" {
			c.Gateway.Description = DefaultGatewayDescription
		}
	}
	if c.Runtime != nil {
		if c.Runtime.Name == "" {
			c.Runtime.Name = DefaultRuntimeName
		}
		if c.Runtime.Description == "" {
			c.Runtime.Description = DefaultRuntimeDescription
		}
		if c.Runtime.NetworkMode == "" {
			c.Runtime.NetworkMode = NetworkModePublic
			if c.VPC != nil {
				c.Runtime.NetworkMode = NetworkModeVPC
			}
		}
		if c.Runtime.Environment == nil {
			c.Runtime.Environment = map[string]string{}
		}
	}
	for i := range c.Lambdas {
		l := &c.Lambdas[i]
		if l.Name == "" && len(l.Tools) > 0 {
			l.Name = l.Tools[0]
		}
		if l.Description == "" {
			l.Description = lambdaDescription(l.Tools)
		}
		if l.TimeoutSeconds == 0 {
			l.TimeoutSeconds = DefaultLambdaTimeout
		}
		if l.MemoryMB == 0 {
			l.MemoryMB = DefaultLambdaMemoryMB
		}
	}
	if c.VPC != nil && c.VPC.CreateVPC {
		if c.VPC.VPCCidr == "" {
			c.VPC.VPCCidr = "10.0.0.0/16"
		}
		if c.VPC.MaxAZs == 0 {
			c.VPC.MaxAZs = 2
		}
	}
	if c.Observability != nil && c.Observability.LogRetentionDays == 0 {
		c.Observability.LogRetentionDays = DefaultLogRetentionDays
	}
}

func lambdaDescription(tools []string) string {
	if len(tools) == 1 {
		if t, ok := Targets[tools[0]]; ok {
			return t.Description
		}
	}
	return "Lambda tools: " + strings.Join(tools, ", ")
}

// Validate reports every configuration problem found.
func (c *StackConfig) Validate() error {
	var errs []error
	if c.StackName == "" {
		errs = append(errs, errors.New("stackName is required"))
	}
	switch c.RemovalPolicy {
	case "", "destroy", "retain":
	default:
		errs = append(errs, fmt.Errorf("removalPolicy must be destroy or retain, got %q", c.RemovalPolicy))
	}
	if c.Gateway == nil && c.Runtime == nil && len(c.Lambdas) == 0 {
		errs = append(errs, errors.New("at least one of gateway, runtime or lambdas is required"))
	}
	if len(c.Lambdas) > 0 && c.Gateway == nil {
		errs = append(errs, errors.New("lambdas require a gateway"))
	}

	names := map[string]bool{}
	tools := map[string]bool{}
	for i, l := range c.Lambdas {
		if len(l.Tools) == 0 {
			errs = append(errs, fmt.Errorf("lambdas[%d]: at least one tool is required", i))
		}
		for _, tool := range l.Tools {
			if _, ok := Targets[tool]; !ok {
				errs = append(errs, fmt.Errorf("lambdas[%d]: unknown tool %q", i, tool))
			}
			if tools[tool] {
				errs = append(errs, fmt.Errorf("lambdas[%d]: tool %q is served twice", i, tool))
			}
			tools[tool] = true
		}
		if l.Name != "" && names[l.Name] {
			errs = append(errs, fmt.Errorf("lambdas[%d]: duplicate name %q", i, l.Name))
		}
		names[l.Name] = true
		if l.CodeDir == "" {
			errs = append(errs, fmt.Errorf("lambdas[%d]: codeDir is required", i))
		}
		if l.TimeoutSeconds < 0 || l.TimeoutSeconds > 900 {
			errs = append(errs, fmt.Errorf("lambdas[%d]: timeoutSeconds must be between 1 and 900", i))
		}
		if l.MemoryMB != 0 && (l.MemoryMB < 128 || l.MemoryMB > 10240) {
			errs = append(errs, fmt.Errorf("lambdas[%d]: memoryMb must be between 128 and 10240", i))
		}
	}

	if r := c.Runtime; r != nil {
		if !runtimeNamePattern.MatchString(r.Name) {
			errs = append(errs, fmt.Errorf("runtime.name %q must start with a letter and contain only letters, digits and underscores (max 48)", r.Name))
		}
		if (r.ContainerImage == "") == (r.Directory == "") {
			errs = append(errs, errors.New("runtime requires exactly one of containerImage or directory"))
		}
		switch r.NetworkMode {
		case NetworkModePublic:
		case NetworkModeVPC:
			if c.VPC == nil {
				errs = append(errs, errors.New("runtime.networkMode VPC requires vpc"))
			}
		default:
			errs = append(errs, fmt.Errorf("runtime.networkMode must be PUBLIC or VPC, got %q", r.NetworkMode))
		}
		for k := range r.Environment {
			if strings.TrimSpace(k) == "" {
				errs = append(errs, errors.New("runtime.environment has an empty key"))
			}
		}
	}

	if v := c.VPC; v != nil {
		if v.VPCID == "" && !v.CreateVPC {
			errs = append(errs, errors.New("vpc requires vpcId or createVpc"))
		}
		if v.VPCID != "" && v.CreateVPC {
			errs = append(errs, errors.New("vpc cannot set both vpcId and createVpc"))
		}
	}
	if o := c.Observability; o != nil && o.LogRetentionDays < 0 {
		errs = append(errs, errors.New("observability.logRetentionDays must not be negative"))
	}
	return errors.Join(errs...)
}
