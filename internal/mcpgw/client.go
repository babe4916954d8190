package mcpgw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/awsutil"
)

// MCPClient is the subset of the mcp-go client used here.
type MCPClient interface {
	ListToolsByPage(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Client lists and calls gateway tools.
type Client struct {
	mcp MCPClient
}

// NewClient wraps an already initialized MCP client.
func NewClient(c MCPClient) *Client { return &Client{mcp: c} }

// Dial connects to the gateway at url, signing requests with creds. The
// signing region is parsed from the gateway host name.
func Dial(ctx context.Context, url string, creds aws.CredentialsProvider) (*Client, error) {
	region, err := awsutil.RegionFromGatewayURL(url)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Transport: NewSigV4Transport(creds, region)}

	c, err := client.NewStreamableHttpClient(url, transport.WithHTTPBasicClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating MCP client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting MCP client: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "bedrock-agentcore-samples", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, req); err != nil {
		c.Close() //nolint:errcheck
		return nil, fmt.Errorf("initializing MCP session with %s: %w", url, err)
	}
	return NewClient(c), nil
}

// Close closes the MCP session.
func (c *Client) Close() error { return c.mcp.Close() }

// ListTools returns every tool exposed by the gateway, following
// pagination cursors until none is returned.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	req := mcp.ListToolsRequest{}
	for {
		res, err := c.mcp.ListToolsByPage(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		req.Params.Cursor = res.NextCursor
	}
}

// Call invokes a tool and concatenates its text content.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("calling tool %s: %w", name, err)
	}

	var sb strings.Builder
	for _, content := range res.Content {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}
	if res.IsError {
		return "", errors.New(sb.String())
	}
	return sb.String(), nil
}

// AgentTools lists the gateway tools and adapts them for an agent.
func (c *Client) AgentTools(ctx context.Context) ([]agent.Tool, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]agent.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, c.adapt(t))
	}
	return out, nil
}

func (c *Client) adapt(t mcp.Tool) agent.Tool {
	schema := map[string]any{"type": "object", "properties": t.InputSchema.Properties}
	if schema["properties"] == nil {
		schema["properties"] = map[string]any{}
	}
	if len(t.InputSchema.Required) > 0 {
		schema["required"] = t.InputSchema.Required
	}
	name := t.Name
	return agent.NewTool(name, t.Description, schema, func(ctx context.Context, input map[string]any) ([]agent.ContentBlock, error) {
		text, err := c.Call(ctx, name, input)
		if err != nil {
			return nil, err
		}
		return []agent.ContentBlock{agent.TextBlock(text)}, nil
	})
}
