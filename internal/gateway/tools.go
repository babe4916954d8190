package gateway

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"
)

// ToolDef describes one tool served by a Lambda target. Every property is
// a string.
type ToolDef struct {
	Name        string
	Description string
	Properties  []string
	Required    []string
}

// CustomerSupportTools are the tools implemented by the customer support
// Lambda.
func CustomerSupportTools() []ToolDef {
	return []ToolDef{
		{
			Name:        "get_customer_profile",
			Description: "Retrieve customer profile using customer ID, email, or phone number",
			Properties:  []string{"customer_id", "email", "phone"},
			Required:    []string{"customer_id"},
		},
		{
			Name:        "check_warranty_status",
			Description: "Check the warranty status of a product using its serial number and optionally verify via email",
			Properties:  []string{"serial_number", "customer_email"},
			Required:    []string{"serial_number"},
		},
	}
}

// Schema renders the tool input schema in the control plane shape.
func (d ToolDef) Schema() *types.SchemaDefinition {
	props := make(map[string]types.SchemaDefinition, len(d.Properties))
	for _, p := range d.Properties {
		props[p] = types.SchemaDefinition{Type: types.SchemaType("string")}
	}
	return &types.SchemaDefinition{
		Type:       types.SchemaType("object"),
		Properties: props,
		Required:   d.Required,
	}
}

// LambdaTargetConfiguration builds an MCP Lambda target with an inline
// tool schema.
func LambdaTargetConfiguration(lambdaARN string, tools []ToolDef) types.TargetConfiguration {
	defs := make([]types.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, types.ToolDefinition{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: t.Schema(),
		})
	}
	return &types.TargetConfigurationMemberMcp{
		Value: &types.McpTargetConfigurationMemberLambda{
			Value: types.McpLambdaTargetConfiguration{
				LambdaArn:  aws.String(lambdaARN),
				ToolSchema: &types.ToolSchemaMemberInlinePayload{Value: defs},
			},
		},
	}
}

// OpenAPITargetConfiguration builds an MCP target backed by an OpenAPI
// document stored in S3.
func OpenAPITargetConfiguration(s3URI string) types.TargetConfiguration {
	return &types.TargetConfigurationMemberMcp{
		Value: &types.McpTargetConfigurationMemberOpenApiSchema{
			Value: &types.ApiSchemaConfigurationMemberS3{
				Value: types.S3Configuration{Uri: aws.String(s3URI)},
			},
		},
	}
}

// IAMRoleCredentials makes the gateway call the target with its own role.
func IAMRoleCredentials() []types.CredentialProviderConfiguration {
	return []types.CredentialProviderConfiguration{
		{CredentialProviderType: types.CredentialProviderType("GATEWAY_IAM_ROLE")},
	}
}

// APIKeyQueryCredentials passes the key stored in providerARN as the query
// parameter param.
func APIKeyQueryCredentials(providerARN, param string) []types.CredentialProviderConfiguration {
	return []types.CredentialProviderConfiguration{
		{
			CredentialProviderType: types.CredentialProviderType("API_KEY"),
			CredentialProvider: &types.CredentialProviderMemberApiKeyCredentialProvider{
				Value: types.GatewayApiKeyCredentialProvider{
					ProviderArn:             aws.String(providerARN),
					CredentialParameterName: aws.String(param),
					CredentialLocation:      types.ApiKeyCredentialLocation("QUERY_PARAMETER"),
				},
			},
		},
	}
}
