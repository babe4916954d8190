// Package agent runs a model-plus-tools loop: the model is called with the
// conversation, requested tools are executed, and their results are fed back
// until the model produces a final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxTurns bounds the number of model calls per invocation.
const DefaultMaxTurns = 20

// ErrMaxTurns is returned when the model keeps requesting tools.
var ErrMaxTurns = errors.New("agent exceeded maximum number of turns")

// Model is a conversational model that supports tool use.
type Model interface {
	Converse(ctx context.Context, req Request) (*Response, error)
	// ConverseStream is Converse that reports events to fn as they arrive.
	ConverseStream(ctx context.Context, req Request, fn func(StreamEvent) error) (*Response, error)
}

// Session persists a conversation outside the process.
type Session interface {
	// History returns the previous turns of the session.
	History(ctx context.Context) ([]Message, error)
	// Recall returns long-term facts relevant to query.
	Recall(ctx context.Context, query string) ([]string, error)
	// Append records one message.
	Append(ctx context.Context, msg Message) error
}

// Agent holds a conversation with a model. It is safe for concurrent use;
// invocations are serialized.
type Agent struct {
	Model        Model
	SystemPrompt string
	Tools        []Tool
	MaxTurns     int
	Session      Session

	mu       sync.Mutex
	messages []Message
	loaded   bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(s string) Option { return func(a *Agent) { a.SystemPrompt = s } }

// WithTools adds tools.
func WithTools(tools ...Tool) Option { return func(a *Agent) { a.Tools = append(a.Tools, tools...) } }

// WithSession attaches a session store.
func WithSession(s Session) Option { return func(a *Agent) { a.Session = s } }

// WithMaxTurns overrides DefaultMaxTurns.
func WithMaxTurns(n int) Option { return func(a *Agent) { a.MaxTurns = n } }

// New returns an Agent using model.
func New(model Model, opts ...Option) *Agent {
	a := &Agent{Model: model, MaxTurns: DefaultMaxTurns}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Messages returns a copy of the conversation so far.
func (a *Agent) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.messages...)
}

// Invoke sends a text prompt and returns the final assistant message.
func (a *Agent) Invoke(ctx context.Context, prompt string) (Message, error) {
	return a.run(ctx, UserMessage(TextBlock(prompt)), nil)
}

// InvokeContent is Invoke with arbitrary content blocks, such as images.
func (a *Agent) InvokeContent(ctx context.Context, content ...ContentBlock) (Message, error) {
	return a.run(ctx, UserMessage(content...), nil)
}

// Stream sends a text prompt and returns a channel of events suitable for
// server-sent events. Only text deltas are forwarded, as {"data": text};
// tool-use deltas and other internal events are dropped. A failure is sent
// as an error value before the channel closes.
func (a *Agent) Stream(ctx context.Context, prompt string) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		send := func(v any) error {
			select {
			case out <- v:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		_, err := a.run(ctx, UserMessage(TextBlock(prompt)), func(ev StreamEvent) error {
			if ev.Type != EventText || ev.Text == "" {
				return nil
			}
			return send(map[string]any{"data": ev.Text})
		})
		if err != nil && ctx.Err() == nil {
			_ = send(err)
		}
	}()
	return out
}

func (a *Agent) specs() ([]ToolSpec, map[string]Tool) {
	specs := make([]ToolSpec, 0, len(a.Tools))
	byName := make(map[string]Tool, len(a.Tools))
	for _, t := range a.Tools {
		s := t.Spec()
		specs = append(specs, s)
		byName[s.Name] = t
	}
	return specs, byName
}

func (a *Agent) prepare(ctx context.Context, user Message) (Message, error) {
	if a.Session == nil {
		return user, nil
	}
	if !a.loaded {
		history, err := a.Session.History(ctx)
		if err != nil {
			return user, fmt.Errorf("loading session history: %w", err)
		}
		a.messages = append(append([]Message(nil), history...), a.messages...)
		a.loaded = true
	}

	facts, err := a.Session.Recall(ctx, user.Text())
	if err != nil {
		return user, fmt.Errorf("retrieving memories: %w", err)
	}
	if len(facts) > 0 {
		ctxBlock := "<user_context>\n"
		for _, f := range facts {
			ctxBlock += "- " + f + "\n"
		}
		ctxBlock += "</user_context>"
		user.Content = append([]ContentBlock{TextBlock(ctxBlock)}, user.Content...)
	}
	return user, nil
}

// persist saves msgs to the session without touching the in-memory history.
func (a *Agent) persist(ctx context.Context, msgs ...Message) error {
	if a.Session == nil {
		return nil
	}
	for _, msg := range msgs {
		if err := a.Session.Append(ctx, msg); err != nil {
			return fmt.Errorf("saving message: %w", err)
		}
	}
	return nil
}

// run executes one turn. A failed turn leaves the conversation as it was
// before the call, so the next prompt still alternates user and assistant.
func (a *Agent) run(ctx context.Context, user Message, emit func(StreamEvent) error) (Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	augmented, err := a.prepare(ctx, user)
	if err != nil {
		return Message{}, err
	}
	start := len(a.messages)
	reply, err := a.loop(ctx, augmented, emit)
	if err == nil {
		err = a.persist(ctx, user, reply)
	}
	if err != nil {
		a.messages = a.messages[:start]
		return Message{}, err
	}
	return reply, nil
}

func (a *Agent) loop(ctx context.Context, user Message, emit func(StreamEvent) error) (Message, error) {
	a.messages = append(a.messages, user)

	specs, tools := a.specs()
	maxTurns := a.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		req := Request{System: a.SystemPrompt, Messages: slices.Clone(a.messages), Tools: specs}

		var (
			resp *Response
			err  error
		)
		if emit != nil {
			resp, err = a.Model.ConverseStream(ctx, req, emit)
		} else {
			resp, err = a.Model.Converse(ctx, req)
		}
		if err != nil {
			return Message{}, err
		}
		resp.Message.Role = RoleAssistant

		if resp.StopReason != StopToolUse || len(resp.Message.ToolUses()) == 0 {
			a.messages = append(a.messages, resp.Message)
			return resp.Message, nil
		}

		a.messages = append(a.messages, resp.Message)
		a.messages = append(a.messages, runTools(ctx, tools, resp.Message.ToolUses()))
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
	}
	return Message{}, ErrMaxTurns
}

// runTools executes the requested tools concurrently and returns the user
// message carrying their results, in request order.
func runTools(ctx context.Context, tools map[string]Tool, uses []ToolUse) Message {
	results := make([]ToolResult, len(uses))
	var g errgroup.Group
	for i, use := range uses {
		g.Go(func() error {
			results[i] = callTool(ctx, tools, use)
			return nil
		})
	}
	_ = g.Wait()

	msg := Message{Role: RoleUser}
	for i := range results {
		msg.Content = append(msg.Content, ContentBlock{ToolResult: &results[i]})
	}
	return msg
}
