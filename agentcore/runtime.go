package agentcore

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2/awsbedrockagentcore"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecrassets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/jsii-runtime-go"
)

// Runtime environment variables set by the stack.
const (
	EnvGatewayURL = "GATEWAY_URL"
	EnvModelID    = "MODEL_ID"
)

func (s *AgentCoreStack) createRuntime() {
	cfg := s.Config.Runtime
	s.createRuntimeRole()

	containerURI := jsii.String(cfg.ContainerImage)
	var image awsecrassets.DockerImageAsset
	if cfg.Directory != "" {
		props := &awsecrassets.DockerImageAssetProps{
			Directory: jsii.String(cfg.Directory),
			Platform:  awsecrassets.Platform_LINUX_ARM64(),
		}
		if cfg.Platform == "linux/amd64" {
			props.Platform = awsecrassets.Platform_LINUX_AMD64()
		}
		if cfg.Dockerfile != "" {
			props.File = jsii.String(cfg.Dockerfile)
		}
		image = awsecrassets.NewDockerImageAsset(s.Stack, jsii.String("AgentImage"), props)
		image.Repository().GrantPull(s.RuntimeRole)
		containerURI = image.ImageUri()
	}

	env := map[string]*string{EnvModelID: jsii.String(s.Config.ModelID)}
	if s.Gateway != nil {
		env[EnvGatewayURL] = s.Gateway.AttrGatewayUrl()
	}
	for k, v := range cfg.Environment {
		env[k] = jsii.String(v)
	}

	props := &awsbedrockagentcore.CfnRuntimeProps{
		AgentRuntimeName: jsii.String(cfg.Name),
		Description:      jsii.String(cfg.Description),
		RoleArn:          s.RuntimeRole.RoleArn(),
		AgentRuntimeArtifact: &awsbedrockagentcore.CfnRuntime_AgentRuntimeArtifactProperty{
			ContainerConfiguration: &awsbedrockagentcore.CfnRuntime_ContainerConfigurationProperty{
				ContainerUri: containerURI,
			},
		},
		NetworkConfiguration: s.networkConfiguration(),
		EnvironmentVariables: &env,
		Tags:                 convertTags(s.Config.Tags),
	}
	if cfg.MaxLifetime > 0 {
		props.LifecycleConfiguration = &awsbedrockagentcore.CfnRuntime_LifecycleConfigurationProperty{
			MaxLifetime: jsii.Number(float64(cfg.MaxLifetime)),
		}
	}

	s.Runtime = awsbedrockagentcore.NewCfnRuntime(s.Stack, jsii.String("Runtime"), props)
	s.Runtime.Node().AddDependency(s.RuntimeRole)
	if image != nil {
		s.Runtime.Node().AddDependency(image)
	}

	if cfg.CreateEndpoint {
		s.Endpoint = awsbedrockagentcore.NewCfnRuntimeEndpoint(s.Stack, jsii.String("RuntimeEndpoint"), &awsbedrockagentcore.CfnRuntimeEndpointProps{
			Name:           jsii.String(fmt.Sprintf("%s_endpoint", cfg.Name)),
			AgentRuntimeId: s.Runtime.AttrAgentRuntimeId(),
			Description:    jsii.String(fmt.Sprintf("Endpoint for %s", cfg.Name)),
			Tags:           convertTags(s.Config.Tags),
		})
	}
}

func (s *AgentCoreStack) networkConfiguration() *awsbedrockagentcore.CfnRuntime_NetworkConfigurationProperty {
	if s.Config.Runtime.NetworkMode != NetworkModeVPC {
		return &awsbedrockagentcore.CfnRuntime_NetworkConfigurationProperty{
			NetworkMode: jsii.String(NetworkModePublic),
		}
	}
	return &awsbedrockagentcore.CfnRuntime_NetworkConfigurationProperty{
		NetworkMode: jsii.String(NetworkModeVPC),
		NetworkModeConfig: &awsbedrockagentcore.CfnRuntime_VpcConfigProperty{
			SecurityGroups: s.securityGroupIDs(),
			Subnets:        s.privateSubnetIDs(),
		},
	}
}

func (s *AgentCoreStack) privateSubnetIDs() *[]*string {
	if ids := s.Config.VPC.SubnetIDs; len(ids) > 0 {
		return jsii.Strings(ids...)
	}
	subnets := s.VPC.PrivateSubnets()
	if subnets == nil {
		return &[]*string{}
	}
	ids := make([]*string, len(*subnets))
	for i, subnet := range *subnets {
		ids[i] = subnet.SubnetId()
	}
	return &ids
}

func (s *AgentCoreStack) securityGroupIDs() *[]*string {
	if s.SecurityGroup == nil {
		return &[]*string{}
	}
	return &[]*string{s.SecurityGroup.SecurityGroupId()}
}

func (s *AgentCoreStack) createRuntimeRole() {
	iamConfig := s.Config.IAM
	if iamConfig != nil && iamConfig.RoleARN != "" {
		s.RuntimeRole = awsiam.Role_FromRoleArn(s.Stack, jsii.String("RuntimeRole"), jsii.String(iamConfig.RoleARN), &awsiam.FromRoleArnOptions{})
		return
	}

	role := awsiam.NewRole(s.Stack, jsii.String("RuntimeRole"), &awsiam.RoleProps{
		AssumedBy:   s.agentCorePrincipal(),
		Description: jsii.String(fmt.Sprintf("Execution role for the %s runtime", s.Config.Runtime.Name)),
	})
	role.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Actions: jsii.Strings(
			"bedrock-agentcore:*",
			"agent-credential-provider:*",
			"iam:PassRole",
			"secretsmanager:GetSecretValue",
			"ecr:*",
			"dynamodb:*",
			"cloudwatch:*",
			"logs:*",
			"xray:*",
		),
		Resources: jsii.Strings("*"),
	}))
	role.AddToPolicy(s.bedrockStatement())

	if s.Secret != nil {
		s.Secret.GrantRead(role, nil)
	}
	for i, arn := range s.Config.Runtime.SecretsARNs {
		secret := awssecretsmanager.Secret_FromSecretCompleteArn(s.Stack, jsii.String(fmt.Sprintf("RuntimeSecret%d", i)), jsii.String(arn))
		secret.GrantRead(role, nil)
	}

	if iamConfig != nil {
		for i, arn := range iamConfig.AdditionalPolicies {
			role.AddManagedPolicy(awsiam.ManagedPolicy_FromManagedPolicyArn(s.Stack, jsii.String(fmt.Sprintf("RuntimePolicy%d", i)), jsii.String(arn)))
		}
		if iamConfig.PermissionsBoundaryARN != "" {
			awsiam.PermissionsBoundary_Of(role).Apply(
				awsiam.ManagedPolicy_FromManagedPolicyArn(s.Stack, jsii.String("PermissionsBoundary"), jsii.String(iamConfig.PermissionsBoundaryARN)),
			)
		}
	}
	s.RuntimeRole = role
}

// bedrockStatement allows model inference, restricted to the configured
// models when any are listed.
func (s *AgentCoreStack) bedrockStatement() awsiam.PolicyStatement {
	resources := []string{"*"}
	if s.Config.IAM != nil && len(s.Config.IAM.BedrockModelIDs) > 0 {
		resources = resources[:0]
		for _, id := range s.Config.IAM.BedrockModelIDs {
			resources = append(resources,
				fmt.Sprintf("arn:aws:bedrock:*::foundation-model/%s", id),
				fmt.Sprintf("arn:aws:bedrock:*:*:inference-profile/%s", id),
			)
		}
	}
	return awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect:    awsiam.Effect_ALLOW,
		Actions:   jsii.Strings("bedrock:InvokeModel", "bedrock:InvokeModelWithResponseStream"),
		Resources: jsii.Strings(resources...),
	})
}
