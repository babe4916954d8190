// Package agents defines the entrypoints of the tutorial agents. Each
// constructor returns a server.Entrypoint; the binaries under cmd/ only load
// configuration, build clients and run the harness.
package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/memory"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/server"
)

// Prompt returns payload["prompt"], or fallback when it is missing, empty or
// not a string.
func Prompt(payload map[string]any, fallback string) string {
	if s, ok := payload["prompt"].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

// ToolSource returns the tools an agent is built with.
type ToolSource func(ctx context.Context) ([]agent.Tool, error)

// StaticTools returns a ToolSource that always yields tools.
func StaticTools(tools ...agent.Tool) ToolSource {
	return func(context.Context) ([]agent.Tool, error) { return tools, nil }
}

// sessionAgents keeps one agent per key so that concurrent runtime sessions
// served by one container do not share a conversation. The map is not
// evicted: AgentCore Runtime pins each session to its own microVM, so a
// container only ever sees a handful of keys.
type sessionAgents struct {
	mu     sync.Mutex
	agents map[string]*agent.Agent
}

func (s *sessionAgents) get(key string, build func() (*agent.Agent, error)) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[key]; ok {
		return a, nil
	}
	a, err := build()
	if err != nil {
		return nil, err
	}
	if s.agents == nil {
		s.agents = map[string]*agent.Agent{}
	}
	s.agents[key] = a
	return a, nil
}

// KeyResolver returns an API key for the current invocation.
type KeyResolver interface {
	Resolve(ctx context.Context, workloadToken string) (string, error)
}

// Claude is the agent that calls the Anthropic API with a key held by
// AgentCore Identity.
type Claude struct {
	Keys     KeyResolver
	NewModel func(apiKey string) agent.Model

	mu    sync.Mutex
	agent *agent.Agent
}

func (c *Claude) get(ctx context.Context, token string) (*agent.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agent != nil {
		return c.agent, nil
	}
	key, err := c.Keys.Resolve(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolving API key: %w", err)
	}
	c.agent = agent.New(c.NewModel(key))
	return c.agent, nil
}

// Entrypoint returns {"result": message}.
func (c *Claude) Entrypoint() server.Entrypoint {
	return func(ctx context.Context, payload map[string]any, rc *server.RequestContext) (any, error) {
		a, err := c.get(ctx, rc.WorkloadAccessToken)
		if err != nil {
			return nil, err
		}
		msg, err := a.Invoke(ctx, Prompt(payload, DefaultPrompt))
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": msg.JSON()}, nil
	}
}

// Memory is the agent backed by AgentCore Memory. The actor comes from the
// custom Actor-Id header and the session from the runtime session id.
type Memory struct {
	MemoryID string
	Data     memory.DataAPI
	Model    agent.Model
	Tools    []agent.Tool
	Logger   *log.Logger

	agents sessionAgents
}

// Entrypoint returns {"response": text}, or {"error": ...} when no memory id
// is configured.
func (m *Memory) Entrypoint() server.Entrypoint {
	return func(ctx context.Context, payload map[string]any, rc *server.RequestContext) (any, error) {
		if m.MemoryID == "" {
			return map[string]any{"error": memory.NotConfiguredMessage}, nil
		}
		actor := rc.Header(server.HeaderActorID)
		if actor == "" {
			actor = memory.DefaultActorID
		}
		session := rc.SessionID
		if session == "" {
			session = memory.DefaultSessionID
		}

		a, err := m.agents.get(actor+"/"+session, func() (*agent.Agent, error) {
			sm, err := memory.NewSessionManager(m.Data, memory.Config{
				MemoryID:  m.MemoryID,
				SessionID: session,
				ActorID:   actor,
				Retrieval: memory.UserRetrieval(actor),
			})
			if err != nil {
				return nil, err
			}
			if m.Logger != nil {
				m.Logger.Info("memory session", "actor", actor, "session", session)
			}
			return agent.New(m.Model,
				agent.WithSystemPrompt(MemorySystemPrompt),
				agent.WithTools(m.Tools...),
				agent.WithSession(sm),
			), nil
		})
		if err != nil {
			return nil, err
		}

		msg, err := a.Invoke(ctx, Prompt(payload, DefaultMemoryPrompt))
		if err != nil {
			return nil, err
		}
		return map[string]any{"response": msg.Text()}, nil
	}
}

// NewMultimodal returns the entrypoint of the image, document and video
// agent. The agent is built on the first invocation.
func NewMultimodal(model agent.Model, tools ToolSource) server.Entrypoint {
	lazy := agent.NewLazy(func(ctx context.Context) (*agent.Agent, error) {
		ts, err := tools(ctx)
		if err != nil {
			return nil, err
		}
		return agent.New(model,
			agent.WithSystemPrompt(MultimodalSystemPrompt),
			agent.WithTools(ts...),
		), nil
	})
	return func(ctx context.Context, payload map[string]any, _ *server.RequestContext) (any, error) {
		a, err := lazy.Get(ctx)
		if err != nil {
			return nil, err
		}
		msg, err := a.Invoke(ctx, Prompt(payload, DefaultMultimodalPrompt))
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": msg.JSON()}, nil
	}
}

// NewSupport returns the entrypoint of the customer support agent, whose
// tools come from the gateway. It replies {"response": text}.
func NewSupport(model agent.Model, tools ToolSource) server.Entrypoint {
	lazy := agent.NewLazy(func(ctx context.Context) (*agent.Agent, error) {
		ts, err := tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading gateway tools: %w", err)
		}
		return agent.New(model,
			agent.WithSystemPrompt(SupportSystemPrompt),
			agent.WithTools(ts...),
		), nil
	})
	return func(ctx context.Context, payload map[string]any, _ *server.RequestContext) (any, error) {
		a, err := lazy.Get(ctx)
		if err != nil {
			return nil, err
		}
		msg, err := a.Invoke(ctx, Prompt(payload, ""))
		if err != nil {
			return nil, err
		}
		return map[string]any{"response": msg.Text()}, nil
	}
}

// NewGraphAgent returns the entrypoint of the chatbot/tools graph agent.
// Every invocation runs the graph from an empty state: the chatbot node
// calls the model, control moves to the tools node while the last message
// requests tools and back to the chatbot, and ends on a plain answer. It
// replies {"result": text of the last message}.
func NewGraphAgent(model agent.Model, tools []agent.Tool, logger *log.Logger) server.Entrypoint {
	return func(ctx context.Context, payload map[string]any, _ *server.RequestContext) (any, error) {
		if logger != nil {
			logger.Info("received payload", "payload", payload)
		}
		state := agent.New(model, agent.WithTools(tools...))
		msg, err := state.Invoke(ctx, Prompt(payload, DefaultGraphPrompt))
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": msg.Text()}, nil
	}
}

// Researcher is the streaming AWS research agent. It keeps one conversation
// per runtime session.
type Researcher struct {
	Model        agent.Model
	Tools        ToolSource
	SystemPrompt string
	Logger       *log.Logger

	agents sessionAgents
}

// Entrypoint streams {"data": text} events. Failures, including failing to
// build the agent, are sent as stream_error events.
func (r *Researcher) Entrypoint() server.Entrypoint {
	return func(ctx context.Context, payload map[string]any, rc *server.RequestContext) (any, error) {
		prompt := Prompt(payload, "")
		if r.Logger != nil {
			r.Logger.Info("research request", "session", rc.SessionID, "prompt", prompt)
		}
		a, err := r.agents.get(rc.SessionID, func() (*agent.Agent, error) {
			var tools []agent.Tool
			if r.Tools != nil {
				ts, err := r.Tools(ctx)
				if err != nil {
					return nil, fmt.Errorf("loading gateway tools: %w", err)
				}
				tools = ts
			}
			return agent.New(r.Model,
				agent.WithSystemPrompt(r.SystemPrompt),
				agent.WithTools(tools...),
			), nil
		})
		if err != nil {
			return errorStream(err), nil
		}
		return a.Stream(ctx, prompt), nil
	}
}

func errorStream(err error) <-chan any {
	ch := make(chan any, 1)
	ch <- err
	close(ch)
	return ch
}
