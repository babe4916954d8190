package agentcore

import (
	"sort"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2/awsbedrockagentcore"
	"github.com/aws/jsii-runtime-go"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/gateway"
)

// MaxTargetDescription is the longest description a gateway target accepts.
const MaxTargetDescription = 200

// Schema is a JSON schema fragment for a tool input.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]Schema
	Required    []string
}

// ToolTarget is a tool served by a Lambda behind the gateway.
type ToolTarget struct {
	Name        string
	Description string
	InputSchema Schema
}

// Built-in tool names.
const (
	ToolWebExtract          = "web_extract"
	ToolBlogsSearch         = "aws_blogs_search"
	ToolGetCustomerProfile  = "get_customer_profile"
	ToolCheckWarrantyStatus = "check_warranty_status"
)

// WebExtractTarget fetches pages and returns their text.
var WebExtractTarget = ToolTarget{
	Name: ToolWebExtract,
	Description: `Extract content from one or more web pages.
Args:
    urls (str | list[str]): A single URL string or a list of URLs to extract content from.

Returns:
    str: A formatted string containing the extracted content from each URL, including
        the full raw content, any images found (if requested), and information about any URLs that failed to be processed.
`,
	InputSchema: Schema{
		Type: "object",
		Properties: map[string]Schema{
			"urls": {Type: "string", Description: "A single URL string or a list of URLs to extract content from."},
		},
		Required: []string{"urls"},
	},
}

// BlogsSearchTarget searches the AWS blogs.
var BlogsSearchTarget = ToolTarget{
	Name: ToolBlogsSearch,
	Description: `Perform a search in official AWS Blogs. Returns the search results as a json with the title, link, and description of each result ranked by relevance.

Args:
    query (str): The search query to be sent for the blog search.
    page (int | 1, optional): specific page to retrieve (each page has 25 results) Valid values: 1-2, Defaults to 1.
    Returns: results (List[dict]): The blog search results, a list of objects.
`,
	InputSchema: Schema{
		Type: "object",
		Properties: map[string]Schema{
			"query": {Type: "string", Description: "The search query to be sent for the blog search."},
			"page":  {Type: "integer", Description: "The page to return, each page has 25 elements."},
		},
		Required: []string{"query"},
	},
}

// Targets indexes the built-in tool targets by tool name.
var Targets = map[string]ToolTarget{
	ToolWebExtract:  WebExtractTarget,
	ToolBlogsSearch: BlogsSearchTarget,
}

func init() {
	for _, t := range gateway.CustomerSupportTools() {
		props := make(map[string]Schema, len(t.Properties))
		for _, p := range t.Properties {
			props[p] = Schema{Type: "string"}
		}
		Targets[t.Name] = ToolTarget{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: Schema{Type: "object", Properties: props, Required: t.Required},
		}
	}
}

// TargetName returns the gateway target name for a tool: underscores become
// hyphens and "-target" is appended.
func TargetName(tool string) string {
	return strings.ReplaceAll(tool, "_", "-") + "-target"
}

// TargetDescription truncates desc to MaxTargetDescription characters.
func TargetDescription(desc string) string {
	runes := []rune(desc)
	if len(runes) <= MaxTargetDescription {
		return desc
	}
	return string(runes[:MaxTargetDescription])
}

func (s Schema) property() *awsbedrockagentcore.CfnGatewayTarget_SchemaDefinitionProperty {
	p := &awsbedrockagentcore.CfnGatewayTarget_SchemaDefinitionProperty{
		Type: jsii.String(s.Type),
	}
	if s.Description != "" {
		p.Description = jsii.String(s.Description)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
		for name, sub := range s.Properties {
			props[name] = sub.property()
		}
		p.Properties = &props
	}
	if len(s.Required) > 0 {
		required := append([]string(nil), s.Required...)
		sort.Strings(required)
		p.Required = jsii.Strings(required...)
	}
	return p
}

func (t ToolTarget) property() *awsbedrockagentcore.CfnGatewayTarget_ToolDefinitionProperty {
	return &awsbedrockagentcore.CfnGatewayTarget_ToolDefinitionProperty{
		Name:        jsii.String(t.Name),
		Description: jsii.String(t.Description),
		InputSchema: t.InputSchema.property(),
	}
}
