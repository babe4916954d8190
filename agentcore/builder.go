package agentcore

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
)

// StackBuilder provides a fluent interface for building AgentCore stacks.
type StackBuilder struct {
	config StackConfig
}

// NewStackBuilder creates a new stack builder.
func NewStackBuilder(stackName string) *StackBuilder {
	return &StackBuilder{
		config: StackConfig{
			StackName: stackName,
			Tags:      make(map[string]string),
		},
	}
}

// WithDescription sets the stack description.
func (b *StackBuilder) WithDescription(description string) *StackBuilder {
	b.config.Description = description
	return b
}

// WithModel sets the MODEL_ID passed to the runtime.
func (b *StackBuilder) WithModel(modelID string) *StackBuilder {
	b.config.ModelID = modelID
	return b
}

// WithGateway adds an MCP gateway.
func (b *StackBuilder) WithGateway(name, description string) *StackBuilder {
	b.config.Gateway = &GatewayConfig{Name: name, Description: description}
	return b
}

// WithLambdaTool adds a Lambda serving a single built-in tool.
func (b *StackBuilder) WithLambdaTool(tool, codeDir string) *StackBuilder {
	return b.WithLambda(LambdaConfig{Tools: []string{tool}, CodeDir: codeDir})
}

// WithLambda adds a Lambda tool function.
func (b *StackBuilder) WithLambda(config LambdaConfig) *StackBuilder {
	b.config.Lambdas = append(b.config.Lambdas, config)
	return b
}

// WithCustomerSupport adds the customer support tables and the Lambda
// serving get_customer_profile and check_warranty_status.
func (b *StackBuilder) WithCustomerSupport(codeDir string) *StackBuilder {
	b.config.Tables = &TablesConfig{CustomerSupport: true}
	return b.WithLambda(LambdaConfig{
		Name:    "customer_support",
		Tools:   []string{ToolGetCustomerProfile, ToolCheckWarrantyStatus},
		CodeDir: codeDir,
	})
}

// WithRuntime sets the agent runtime.
func (b *StackBuilder) WithRuntime(config RuntimeConfig) *StackBuilder {
	b.config.Runtime = &config
	return b
}

// WithVPC configures VPC settings.
func (b *StackBuilder) WithVPC(config *VPCConfig) *StackBuilder {
	b.config.VPC = config
	return b
}

// WithExistingVPC uses an existing VPC.
func (b *StackBuilder) WithExistingVPC(vpcID string, subnetIDs []string) *StackBuilder {
	b.config.VPC = &VPCConfig{VPCID: vpcID, SubnetIDs: subnetIDs}
	return b
}

// WithNewVPC creates a new VPC with the specified CIDR.
func (b *StackBuilder) WithNewVPC(cidr string, maxAZs int) *StackBuilder {
	b.config.VPC = &VPCConfig{
		CreateVPC:          true,
		VPCCidr:            cidr,
		MaxAZs:             maxAZs,
		EnableVPCEndpoints: true,
	}
	return b
}

// WithSecret creates a Secrets Manager secret readable by the runtime.
func (b *StackBuilder) WithSecret(name string, keys ...string) *StackBuilder {
	b.config.Secrets = &SecretsConfig{SecretName: name, Keys: keys}
	return b
}

// WithCloudWatchLogs creates a log group kept for retentionDays.
func (b *StackBuilder) WithCloudWatchLogs(retentionDays int) *StackBuilder {
	b.config.Observability = &ObservabilityConfig{
		EnableCloudWatchLogs: true,
		LogRetentionDays:     retentionDays,
	}
	return b
}

// WithExistingRole uses an existing runtime execution role.
func (b *StackBuilder) WithExistingRole(roleARN string) *StackBuilder {
	if b.config.IAM == nil {
		b.config.IAM = &IAMConfig{}
	}
	b.config.IAM.RoleARN = roleARN
	return b
}

// WithBedrockModels restricts model access to specific models.
func (b *StackBuilder) WithBedrockModels(modelIDs ...string) *StackBuilder {
	if b.config.IAM == nil {
		b.config.IAM = &IAMConfig{}
	}
	b.config.IAM.BedrockModelIDs = modelIDs
	return b
}

// WithTags adds tags to all resources.
func (b *StackBuilder) WithTags(tags map[string]string) *StackBuilder {
	for k, v := range tags {
		b.config.Tags[k] = v
	}
	return b
}

// WithTag adds a single tag.
func (b *StackBuilder) WithTag(key, value string) *StackBuilder {
	b.config.Tags[key] = value
	return b
}

// RetainOnDelete keeps tables, secrets and logs when the stack is deleted.
func (b *StackBuilder) RetainOnDelete() *StackBuilder {
	b.config.RemovalPolicy = "retain"
	return b
}

// Config returns the current configuration.
func (b *StackBuilder) Config() StackConfig {
	return b.config
}

// Validate applies defaults and validates the current configuration.
func (b *StackBuilder) Validate() error {
	b.config.ApplyDefaults()
	return b.config.Validate()
}

// Build creates the AgentCore stack.
func (b *StackBuilder) Build(scope constructs.Construct) *AgentCoreStack {
	return NewAgentCoreStack(scope, b.config.StackName, b.config)
}

// RuntimeBuilder provides a fluent interface for runtime configurations.
type RuntimeBuilder struct {
	config RuntimeConfig
}

// NewRuntimeBuilder starts a runtime with the given name.
func NewRuntimeBuilder(name string) *RuntimeBuilder {
	return &RuntimeBuilder{config: RuntimeConfig{Name: name, Environment: map[string]string{}}}
}

// FromDirectory builds the container from a local Docker context.
func (b *RuntimeBuilder) FromDirectory(dir string) *RuntimeBuilder {
	b.config.Directory = dir
	b.config.ContainerImage = ""
	return b
}

// FromImage uses a prebuilt container image URI.
func (b *RuntimeBuilder) FromImage(uri string) *RuntimeBuilder {
	b.config.ContainerImage = uri
	b.config.Directory = ""
	return b
}

// WithDockerfile sets the Dockerfile path, relative to the directory.
func (b *RuntimeBuilder) WithDockerfile(path string) *RuntimeBuilder {
	b.config.Dockerfile = path
	return b
}

// WithDescription sets the runtime description.
func (b *RuntimeBuilder) WithDescription(description string) *RuntimeBuilder {
	b.config.Description = description
	return b
}

// WithEnvVar adds a single environment variable.
func (b *RuntimeBuilder) WithEnvVar(key, value string) *RuntimeBuilder {
	b.config.Environment[key] = value
	return b
}

// WithSecrets grants the runtime read access to secret ARNs.
func (b *RuntimeBuilder) WithSecrets(secretARNs ...string) *RuntimeBuilder {
	b.config.SecretsARNs = append(b.config.SecretsARNs, secretARNs...)
	return b
}

// InVPC runs the runtime in the stack VPC.
func (b *RuntimeBuilder) InVPC() *RuntimeBuilder {
	b.config.NetworkMode = NetworkModeVPC
	return b
}

// WithEndpoint adds a named runtime endpoint.
func (b *RuntimeBuilder) WithEndpoint() *RuntimeBuilder {
	b.config.CreateEndpoint = true
	return b
}

// WithMaxLifetime bounds session lifetime in seconds.
func (b *RuntimeBuilder) WithMaxLifetime(seconds int) *RuntimeBuilder {
	b.config.MaxLifetime = seconds
	return b
}

// Build returns the runtime configuration.
func (b *RuntimeBuilder) Build() RuntimeConfig {
	return b.config
}

// NewApp creates a new CDK app.
func NewApp() awscdk.App {
	return awscdk.NewApp(nil)
}

// Synth synthesizes the CDK app to CloudFormation templates.
func Synth(app awscdk.App) {
	app.Synth(nil)
}
