// Package lambdas holds helpers shared by the Lambda functions served as
// AgentCore Gateway targets.
package lambdas

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"
)

// ToolNameKey is the client context entry carrying the invoked tool.
const ToolNameKey = "bedrockAgentCoreToolName"

// ToolDelimiter separates the target name from the tool name in gateway
// tool names ("CustomerSupportLambda___get_customer_profile").
const ToolDelimiter = "___"

// StripTarget returns the tool name without its "<target>___" prefix.
func StripTarget(name string) string {
	if _, tool, ok := strings.Cut(name, ToolDelimiter); ok {
		return tool
	}
	return name
}

// ToolName returns the gateway tool being invoked, read from the Lambda
// client context, or "" when the function was not invoked by a gateway.
func ToolName(ctx context.Context) string {
	lc, ok := lambdacontext.FromContext(ctx)
	if !ok || lc.ClientContext.Custom == nil {
		return ""
	}
	return StripTarget(lc.ClientContext.Custom[ToolNameKey])
}
