package launcher

import (
	"encoding/json"
	"fmt"
)

// PolicyDocument is an IAM policy.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is one IAM policy statement.
type Statement struct {
	Sid       string         `json:"Sid,omitempty"`
	Effect    string         `json:"Effect"`
	Principal map[string]any `json:"Principal,omitempty"`
	Action    []string       `json:"Action"`
	Resource  any            `json:"Resource,omitempty"`
	Condition map[string]any `json:"Condition,omitempty"`
}

// JSON renders the document.
func (p PolicyDocument) JSON() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RoleName is the name of the execution role auto-created for agentName.
func RoleName(region, agentName string) string {
	name := fmt.Sprintf("AmazonBedrockAgentCoreRuntime-%s-%s", region, agentName)
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// TrustPolicy lets AgentCore assume the execution role for runtimes in
// account and region only.
func TrustPolicy(account, region string) PolicyDocument {
	return PolicyDocument{
		Version: "2012-10-17",
		Statement: []Statement{{
			Sid:       "AssumeRolePolicy",
			Effect:    "Allow",
			Principal: map[string]any{"Service": "bedrock-agentcore.amazonaws.com"},
			Action:    []string{"sts:AssumeRole"},
			Condition: map[string]any{
				"StringEquals": map[string]string{"aws:SourceAccount": account},
				"ArnLike": map[string]string{
					"aws:SourceArn": fmt.Sprintf("arn:aws:bedrock-agentcore:%s:%s:*", region, account),
				},
			},
		}},
	}
}

// ExecutionPolicy grants the runtime what the agents in this repository
// need: pulling its image, logs, traces, model invocation, memory,
// identity and gateway access.
func ExecutionPolicy(account, region string) PolicyDocument {
	arn := func(service, resource string) string {
		return fmt.Sprintf("arn:aws:%s:%s:%s:%s", service, region, account, resource)
	}
	return PolicyDocument{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Sid:      "ECRImageAccess",
				Effect:   "Allow",
				Action:   []string{"ecr:BatchGetImage", "ecr:GetDownloadUrlForLayer"},
				Resource: arn("ecr", "repository/*"),
			},
			{
				Sid:      "ECRTokenAccess",
				Effect:   "Allow",
				Action:   []string{"ecr:GetAuthorizationToken"},
				Resource: "*",
			},
			{
				Sid:      "Logs",
				Effect:   "Allow",
				Action:   []string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents", "logs:DescribeLogStreams", "logs:DescribeLogGroups"},
				Resource: arn("logs", "log-group:/aws/bedrock-agentcore/runtimes/*"),
			},
			{
				Sid:      "Observability",
				Effect:   "Allow",
				Action:   []string{"xray:PutTraceSegments", "xray:PutTelemetryRecords", "xray:GetSamplingRules", "xray:GetSamplingTargets", "cloudwatch:PutMetricData"},
				Resource: "*",
			},
			{
				Sid:      "BedrockModelInvocation",
				Effect:   "Allow",
				Action:   []string{"bedrock:InvokeModel", "bedrock:InvokeModelWithResponseStream"},
				Resource: []string{"arn:aws:bedrock:*::foundation-model/*", arn("bedrock", "*")},
			},
			{
				Sid:    "AgentCore",
				Effect: "Allow",
				Action: []string{
					"bedrock-agentcore:CreateEvent",
					"bedrock-agentcore:ListEvents",
					"bedrock-agentcore:RetrieveMemoryRecords",
					"bedrock-agentcore:GetWorkloadAccessToken",
					"bedrock-agentcore:GetWorkloadAccessTokenForJWT",
					"bedrock-agentcore:GetWorkloadAccessTokenForUserId",
					"bedrock-agentcore:GetResourceApiKey",
					"bedrock-agentcore:InvokeGateway",
				},
				Resource: "*",
			},
		},
	}
}
