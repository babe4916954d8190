package agentcore

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2/awsbedrockagentcore"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/jsii-runtime-go"
)

func (s *AgentCoreStack) createGateway() {
	s.GatewayRole = awsiam.NewRole(s.Stack, jsii.String("GatewayRole"), &awsiam.RoleProps{
		AssumedBy:   s.agentCorePrincipal(),
		Description: jsii.String(fmt.Sprintf("Service role for the %s gateway", s.Config.Gateway.Name)),
	})
	s.GatewayRole.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Actions: jsii.Strings(
			"bedrock-agentcore:*",
			"bedrock:*",
			"agent-credential-provider:*",
			"iam:PassRole",
			"secretsmanager:GetSecretValue",
			"lambda:InvokeFunction",
		),
		Resources: jsii.Strings("*"),
	}))

	s.Gateway = awsbedrockagentcore.NewCfnGateway(s.Stack, jsii.String("Gateway"), &awsbedrockagentcore.CfnGatewayProps{
		Name:           jsii.String(s.Config.Gateway.Name),
		Description:    jsii.String(s.Config.Gateway.Description),
		AuthorizerType: jsii.String("AWS_IAM"),
		ProtocolType:   jsii.String("MCP"),
		RoleArn:        s.GatewayRole.RoleArn(),
		Tags:           convertTags(s.Config.Tags),
	})
	s.Gateway.Node().AddDependency(s.GatewayRole)
}

// AddLambdaTarget exposes the named built-in tools of the Lambda at
// lambdaARN through the gateway. The gateway calls the Lambda with its own
// role.
func (s *AgentCoreStack) AddLambdaTarget(name, description string, tools []string, lambdaARN *string) awsbedrockagentcore.CfnGatewayTarget {
	if s.Gateway == nil {
		panic("AddLambdaTarget: stack has no gateway")
	}
	payload := make([]interface{}, 0, len(tools))
	for _, tool := range tools {
		t, ok := Targets[tool]
		if !ok {
			panic(fmt.Sprintf("AddLambdaTarget: unknown tool %q", tool))
		}
		payload = append(payload, t.property())
	}

	target := awsbedrockagentcore.NewCfnGatewayTarget(s.Stack, jsii.String("Target-"+name), &awsbedrockagentcore.CfnGatewayTargetProps{
		Name:              jsii.String(TargetName(name)),
		Description:       jsii.String(TargetDescription(description)),
		GatewayIdentifier: s.Gateway.AttrGatewayIdentifier(),
		CredentialProviderConfigurations: &[]interface{}{
			&awsbedrockagentcore.CfnGatewayTarget_CredentialProviderConfigurationProperty{
				CredentialProviderType: jsii.String("GATEWAY_IAM_ROLE"),
			},
		},
		TargetConfiguration: &awsbedrockagentcore.CfnGatewayTarget_TargetConfigurationProperty{
			Mcp: &awsbedrockagentcore.CfnGatewayTarget_McpTargetConfigurationProperty{
				Lambda: &awsbedrockagentcore.CfnGatewayTarget_McpLambdaTargetConfigurationProperty{
					LambdaArn: lambdaARN,
					ToolSchema: &awsbedrockagentcore.CfnGatewayTarget_ToolSchemaProperty{
						InlinePayload: &payload,
					},
				},
			},
		},
	})
	target.Node().AddDependency(s.Gateway)
	s.Targets[name] = target
	return target
}
