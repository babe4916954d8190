package agentcore

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsbedrockagentcore"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// AgentCoreStack is a CDK stack with Lambda tools behind an MCP gateway and
// an agent runtime that uses the gateway.
type AgentCoreStack struct {
	awscdk.Stack

	Config StackConfig

	VPC           awsec2.IVpc
	SecurityGroup awsec2.ISecurityGroup
	Secret        awssecretsmanager.ISecret
	LogGroup      awslogs.ILogGroup

	// Functions holds the tool Lambdas by LambdaConfig.Name.
	Functions map[string]awslambda.Function

	CustomerTable awsdynamodb.Table
	WarrantyTable awsdynamodb.Table

	Gateway     awsbedrockagentcore.CfnGateway
	GatewayRole awsiam.Role
	Targets     map[string]awsbedrockagentcore.CfnGatewayTarget

	Runtime     awsbedrockagentcore.CfnRuntime
	RuntimeRole awsiam.IRole
	Endpoint    awsbedrockagentcore.CfnRuntimeEndpoint
}

// NewAgentCoreStack creates the stack. It panics on an invalid
// configuration, as CDK construct constructors do.
func NewAgentCoreStack(scope constructs.Construct, id string, config StackConfig) *AgentCoreStack {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("invalid stack configuration: %v", err))
	}

	props := &awscdk.StackProps{
		StackName: jsii.String(config.StackName),
		Tags:      convertTags(config.Tags),
	}
	if config.Description != "" {
		props.Description = jsii.String(config.Description)
	}

	s := &AgentCoreStack{
		Stack:     awscdk.NewStack(scope, jsii.String(id), props),
		Config:    config,
		Functions: make(map[string]awslambda.Function),
		Targets:   make(map[string]awsbedrockagentcore.CfnGatewayTarget),
	}

	s.createVPC()
	s.createSecurityGroup()
	s.createSecret()
	s.createLogGroup()

	s.createTables()
	for _, l := range config.Lambdas {
		s.createLambda(l)
	}
	s.grantTables()

	if config.Gateway != nil {
		s.createGateway()
		for _, l := range config.Lambdas {
			s.AddLambdaTarget(l.Name, l.Description, l.Tools, s.Functions[l.Name].FunctionArn())
		}
	}
	if config.Runtime != nil {
		s.createRuntime()
	}

	s.addOutputs()
	return s
}

func (s *AgentCoreStack) removalPolicy() awscdk.RemovalPolicy {
	if s.Config.RemovalPolicy == "retain" {
		return awscdk.RemovalPolicy_RETAIN
	}
	return awscdk.RemovalPolicy_DESTROY
}

// agentCorePrincipal trusts bedrock-agentcore only for calls made on
// behalf of this account and region.
func (s *AgentCoreStack) agentCorePrincipal() awsiam.IPrincipal {
	account := *s.Stack.Account()
	region := *s.Stack.Region()
	return awsiam.NewServicePrincipal(jsii.String("bedrock-agentcore.amazonaws.com"), &awsiam.ServicePrincipalOpts{
		Conditions: &map[string]interface{}{
			"StringEquals": map[string]interface{}{"aws:SourceAccount": account},
			"ArnLike": map[string]interface{}{
				"aws:SourceArn": fmt.Sprintf("arn:aws:bedrock-agentcore:%s:%s:*", region, account),
			},
		},
	})
}

func (s *AgentCoreStack) createVPC() {
	vpcConfig := s.Config.VPC
	if vpcConfig == nil {
		return
	}

	if vpcConfig.VPCID != "" {
		s.VPC = awsec2.Vpc_FromLookup(s.Stack, jsii.String("VPC"), &awsec2.VpcLookupOptions{
			VpcId: jsii.String(vpcConfig.VPCID),
		})
		return
	}

	vpc := awsec2.NewVpc(s.Stack, jsii.String("VPC"), &awsec2.VpcProps{
		VpcName:            jsii.String(fmt.Sprintf("%s-vpc", s.Config.StackName)),
		IpAddresses:        awsec2.IpAddresses_Cidr(jsii.String(vpcConfig.VPCCidr)),
		MaxAzs:             jsii.Number(float64(vpcConfig.MaxAZs)),
		NatGateways:        jsii.Number(1),
		EnableDnsHostnames: jsii.Bool(true),
		EnableDnsSupport:   jsii.Bool(true),
		SubnetConfiguration: &[]*awsec2.SubnetConfiguration{
			{Name: jsii.String("Public"), SubnetType: awsec2.SubnetType_PUBLIC, CidrMask: jsii.Number(24)},
			{Name: jsii.String("Private"), SubnetType: awsec2.SubnetType_PRIVATE_WITH_EGRESS, CidrMask: jsii.Number(24)},
		},
	})
	s.VPC = vpc

	if vpcConfig.EnableVPCEndpoints {
		addVPCEndpoints(vpc)
	}
}

// addVPCEndpoints lets the runtime reach Bedrock, ECR, logs and secrets
// without leaving the VPC.
func addVPCEndpoints(vpc awsec2.Vpc) {
	interfaces := map[string]awsec2.InterfaceVpcEndpointAwsService{
		"BedrockRuntimeEndpoint": awsec2.InterfaceVpcEndpointAwsService_BEDROCK_RUNTIME(),
		"SecretsManagerEndpoint": awsec2.InterfaceVpcEndpointAwsService_SECRETS_MANAGER(),
		"LogsEndpoint":           awsec2.InterfaceVpcEndpointAwsService_CLOUDWATCH_LOGS(),
		"EcrApiEndpoint":         awsec2.InterfaceVpcEndpointAwsService_ECR(),
		"EcrDkrEndpoint":         awsec2.InterfaceVpcEndpointAwsService_ECR_DOCKER(),
	}
	for _, id := range sortedKeys(interfaces) {
		vpc.AddInterfaceEndpoint(jsii.String(id), &awsec2.InterfaceVpcEndpointOptions{
			Service: interfaces[id],
		})
	}
	vpc.AddGatewayEndpoint(jsii.String("S3Endpoint"), &awsec2.GatewayVpcEndpointOptions{
		Service: awsec2.GatewayVpcEndpointAwsService_S3(),
	})
}

func (s *AgentCoreStack) createSecurityGroup() {
	if s.VPC == nil {
		return
	}
	if ids := s.Config.VPC.SecurityGroupIDs; len(ids) > 0 {
		s.SecurityGroup = awsec2.SecurityGroup_FromSecurityGroupId(s.Stack, jsii.String("SecurityGroup"), jsii.String(ids[0]), &awsec2.SecurityGroupImportOptions{})
		return
	}
	s.SecurityGroup = awsec2.NewSecurityGroup(s.Stack, jsii.String("SecurityGroup"), &awsec2.SecurityGroupProps{
		Vpc:               s.VPC,
		SecurityGroupName: jsii.String(fmt.Sprintf("%s-sg", s.Config.StackName)),
		Description:       jsii.String(fmt.Sprintf("Security group for the %s agent runtime", s.Config.StackName)),
		AllowAllOutbound:  jsii.Bool(true),
	})
}

func (s *AgentCoreStack) createSecret() {
	if s.Config.Secrets == nil {
		return
	}
	name := s.Config.Secrets.SecretName
	if name == "" {
		name = fmt.Sprintf("%s-secrets", s.Config.StackName)
	}
	s.Secret = awssecretsmanager.NewSecret(s.Stack, jsii.String("Secrets"), &awssecretsmanager.SecretProps{
		SecretName:    jsii.String(name),
		Description:   jsii.String(fmt.Sprintf("API keys for %s", s.Config.StackName)),
		RemovalPolicy: s.removalPolicy(),
	})
}

func (s *AgentCoreStack) createLogGroup() {
	if s.Config.Observability == nil || !s.Config.Observability.EnableCloudWatchLogs {
		return
	}
	s.LogGroup = awslogs.NewLogGroup(s.Stack, jsii.String("LogGroup"), &awslogs.LogGroupProps{
		LogGroupName:  jsii.String(fmt.Sprintf("/aws/agentcore/%s", s.Config.StackName)),
		Retention:     retentionDays(s.Config.Observability.LogRetentionDays),
		RemovalPolicy: s.removalPolicy(),
	})
}

// retentionDays rounds days up to the next retention CloudWatch supports.
func retentionDays(days int) awslogs.RetentionDays {
	switch {
	case days <= 1:
		return awslogs.RetentionDays_ONE_DAY
	case days <= 7:
		return awslogs.RetentionDays_ONE_WEEK
	case days <= 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case days <= 30:
		return awslogs.RetentionDays_ONE_MONTH
	case days <= 90:
		return awslogs.RetentionDays_THREE_MONTHS
	case days <= 180:
		return awslogs.RetentionDays_SIX_MONTHS
	case days <= 365:
		return awslogs.RetentionDays_ONE_YEAR
	default:
		return awslogs.RetentionDays_INFINITE
	}
}

func (s *AgentCoreStack) output(id string, value *string, description string) {
	awscdk.NewCfnOutput(s.Stack, jsii.String(id), &awscdk.CfnOutputProps{
		Value:       value,
		Description: jsii.String(description),
	})
}

func (s *AgentCoreStack) addOutputs() {
	if s.Runtime != nil {
		s.output("AgentArn", s.Runtime.AttrAgentRuntimeArn(), "Agent runtime ARN")
		s.output("AgentRuntimeId", s.Runtime.AttrAgentRuntimeId(), "Agent runtime ID")
		s.output("RuntimeRoleArn", s.RuntimeRole.RoleArn(), "Agent runtime execution role ARN")
	}
	if s.Endpoint != nil {
		s.output("EndpointArn", s.Endpoint.AttrAgentRuntimeEndpointArn(), "Agent runtime endpoint ARN")
	}
	if s.Gateway != nil {
		s.output("GatewayUrl", s.Gateway.AttrGatewayUrl(), "MCP gateway URL")
		s.output("GatewayId", s.Gateway.AttrGatewayIdentifier(), "MCP gateway ID")
		s.output("GatewayArn", s.Gateway.AttrGatewayArn(), "MCP gateway ARN")
		s.output("GatewayRoleArn", s.GatewayRole.RoleArn(), "MCP gateway service role ARN")
	}
	for _, name := range sortedKeys(s.Functions) {
		s.output(constructID(name)+"FunctionArn", s.Functions[name].FunctionArn(), fmt.Sprintf("%s Lambda ARN", name))
	}
	if s.CustomerTable != nil {
		s.output("CustomerTableName", s.CustomerTable.TableName(), "Customer profile table")
		s.output("WarrantyTableName", s.WarrantyTable.TableName(), "Warranty table")
	}
	if s.VPC != nil {
		s.output("VPCID", s.VPC.VpcId(), "VPC ID")
	}
	if s.Secret != nil {
		s.output("SecretArn", s.Secret.SecretArn(), "API key secret ARN")
	}
	if s.LogGroup != nil {
		s.output("LogGroupName", s.LogGroup.LogGroupName(), "CloudWatch log group")
	}
}

func convertTags(tags map[string]string) *map[string]*string {
	if len(tags) == 0 {
		return nil
	}
	result := make(map[string]*string, len(tags))
	for k, v := range tags {
		result[k] = jsii.String(v)
	}
	return &result
}
