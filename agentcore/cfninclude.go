package agentcore

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/cloudformationinclude"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// CustomerSupportStackName is the stack name gateway setup deploys the
// customer support template under.
const CustomerSupportStackName = "customer-support-lambda-stack"

// Logical ids of the customer support template outputs.
const (
	SupportOutputLambdaArn       = "CustomerSupportLambdaArn"
	SupportOutputGatewayRoleArn  = "GatewayAgentCoreRoleArn"
	SupportOutputRuntimeRoleArn  = "AgentCoreRuntimeExecutionRoleArn"
	SupportOutputProfileTable    = "CustomerProfileTableName"
	SupportOutputWarrantyTable   = "WarrantyTableName"
	supportParamLambdaCodeBucket = "LambdaCodeBucket"
	supportParamLambdaCodeKey    = "LambdaCodeKey"
)

// IncludedStack is a CDK stack built from an existing CloudFormation
// template, such as the customer support template that `agentcore gateway
// setup` deploys through the CloudFormation API.
type IncludedStack struct {
	awscdk.Stack

	Template cloudformationinclude.CfnInclude
}

// IncludeConfig configures an IncludedStack.
type IncludeConfig struct {
	StackName string

	// TemplateFile is a JSON or YAML CloudFormation template.
	TemplateFile string

	// Parameters replace template parameters with fixed values.
	Parameters map[string]string

	// RenameLogicalIds lets CDK rename the template's logical IDs. Leave it
	// false when adopting resources of a stack created by gateway setup.
	RenameLogicalIds bool

	Tags map[string]string
}

// NewIncludedStack creates a CDK stack around an existing template.
func NewIncludedStack(scope constructs.Construct, config IncludeConfig) *IncludedStack {
	stack := awscdk.NewStack(scope, jsii.String(config.StackName), &awscdk.StackProps{
		StackName: jsii.String(config.StackName),
		Tags:      convertTags(config.Tags),
	})

	props := &cloudformationinclude.CfnIncludeProps{
		TemplateFile:       jsii.String(config.TemplateFile),
		PreserveLogicalIds: jsii.Bool(!config.RenameLogicalIds),
	}
	if len(config.Parameters) > 0 {
		params := make(map[string]interface{}, len(config.Parameters))
		for k, v := range config.Parameters {
			params[k] = v
		}
		props.Parameters = &params
	}

	return &IncludedStack{
		Stack:    stack,
		Template: cloudformationinclude.NewCfnInclude(stack, jsii.String("Template"), props),
	}
}

// Resource returns a resource of the included template by logical ID.
func (s *IncludedStack) Resource(logicalID string) awscdk.CfnResource {
	return s.Template.GetResource(jsii.String(logicalID))
}

// OutputValue returns the value of a template output, for wiring the
// support Lambda or roles into other stacks of the same app.
func (s *IncludedStack) OutputValue(logicalID string) interface{} {
	return s.Template.GetOutput(jsii.String(logicalID)).Value()
}

// IncludeBuilder builds IncludedStacks.
type IncludeBuilder struct {
	config IncludeConfig
}

// NewIncludeBuilder starts an IncludedStack for templateFile.
func NewIncludeBuilder(stackName, templateFile string) *IncludeBuilder {
	return &IncludeBuilder{
		config: IncludeConfig{
			StackName:    stackName,
			TemplateFile: templateFile,
			Parameters:   make(map[string]string),
			Tags:         make(map[string]string),
		},
	}
}

// NewCustomerSupportInclude starts the customer support template stack with
// the Lambda zip at s3://bucket/key. An empty key keeps the template default.
func NewCustomerSupportInclude(templateFile, bucket, key string) *IncludeBuilder {
	b := NewIncludeBuilder(CustomerSupportStackName, templateFile).
		WithParameter(supportParamLambdaCodeBucket, bucket)
	if key != "" {
		b.WithParameter(supportParamLambdaCodeKey, key)
	}
	return b
}

// WithParameter sets a template parameter.
func (b *IncludeBuilder) WithParameter(name, value string) *IncludeBuilder {
	b.config.Parameters[name] = value
	return b
}

// WithTags adds tags.
func (b *IncludeBuilder) WithTags(tags map[string]string) *IncludeBuilder {
	for k, v := range tags {
		b.config.Tags[k] = v
	}
	return b
}

// Config returns the accumulated configuration.
func (b *IncludeBuilder) Config() IncludeConfig {
	return b.config
}

// Build creates the stack.
func (b *IncludeBuilder) Build(scope constructs.Construct) *IncludedStack {
	return NewIncludedStack(scope, b.config)
}
