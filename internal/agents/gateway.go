package agents

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/mcpgw"
)

// Gateway lists tools from an AgentCore Gateway. The MCP session is opened
// on first use and stays open, since the returned tools call through it.
type Gateway struct {
	URL         string
	Credentials aws.CredentialsProvider

	mu     sync.Mutex
	client *mcpgw.Client
}

// Tools implements ToolSource.
func (g *Gateway) Tools(ctx context.Context) ([]agent.Tool, error) {
	g.mu.Lock()
	if g.client == nil {
		c, err := mcpgw.Dial(context.WithoutCancel(ctx), g.URL, g.Credentials)
		if err != nil {
			g.mu.Unlock()
			return nil, err
		}
		g.client = c
	}
	c := g.client
	g.mu.Unlock()
	return c.AgentTools(ctx)
}

// Close ends the MCP session, if one was opened.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}
