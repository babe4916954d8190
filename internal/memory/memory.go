// Package memory connects agents to AgentCore Memory: short-term
// conversation events per session and long-term records per actor.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore/types"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
)

// Defaults applied to the per-user namespaces.
const (
	DefaultTopK           = 3
	DefaultRelevanceScore = 0.5
	DefaultMaxHistory     = 40
	DefaultActorID        = "user"
	DefaultSessionID      = "default_session"
)

// NotConfiguredMessage is returned to callers of an agent that has no
// memory id.
const NotConfiguredMessage = "Memory not configured. Set BEDROCK_AGENTCORE_MEMORY_ID environment variable."

// ErrNotConfigured is returned when no memory id is set.
var ErrNotConfigured = errors.New("memory id is not set")

// DataAPI is the subset of the AgentCore data plane client used here.
type DataAPI interface {
	CreateEvent(ctx context.Context, in *bedrockagentcore.CreateEventInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.CreateEventOutput, error)
	ListEvents(ctx context.Context, in *bedrockagentcore.ListEventsInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.ListEventsOutput, error)
	RetrieveMemoryRecords(ctx context.Context, in *bedrockagentcore.RetrieveMemoryRecordsInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.RetrieveMemoryRecordsOutput, error)
}

// RetrievalConfig controls long-term retrieval from one namespace.
type RetrievalConfig struct {
	TopK           int32
	RelevanceScore float64
}

// Config identifies the memory, session and actor.
type Config struct {
	MemoryID   string
	SessionID  string
	ActorID    string
	Retrieval  map[string]RetrievalConfig
	MaxHistory int
}

// FactsNamespace returns the namespace of facts extracted for actorID.
func FactsNamespace(actorID string) string {
	return fmt.Sprintf("/users/%s/facts", actorID)
}

// PreferencesNamespace returns the namespace of actorID's preferences.
func PreferencesNamespace(actorID string) string {
	return fmt.Sprintf("/users/%s/preferences", actorID)
}

// UserRetrieval returns retrieval settings for the actor's facts and
// preferences namespaces.
func UserRetrieval(actorID string) map[string]RetrievalConfig {
	rc := RetrievalConfig{TopK: DefaultTopK, RelevanceScore: DefaultRelevanceScore}
	return map[string]RetrievalConfig{
		FactsNamespace(actorID):       rc,
		PreferencesNamespace(actorID): rc,
	}
}

// SessionManager implements agent.Session on top of AgentCore Memory.
type SessionManager struct {
	client DataAPI
	cfg    Config
	now    func() time.Time
}

var _ agent.Session = (*SessionManager)(nil)

// NewSessionManager returns a SessionManager. Empty session and actor ids
// fall back to the defaults.
func NewSessionManager(client DataAPI, cfg Config) (*SessionManager, error) {
	if cfg.MemoryID == "" {
		return nil, ErrNotConfigured
	}
	if cfg.ActorID == "" {
		cfg.ActorID = DefaultActorID
	}
	if cfg.SessionID == "" {
		cfg.SessionID = DefaultSessionID
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	return &SessionManager{client: client, cfg: cfg, now: time.Now}, nil
}

// Config returns the effective configuration.
func (m *SessionManager) Config() Config { return m.cfg }

// History implements agent.Session. Events are returned oldest first,
// trimmed to MaxHistory messages starting with a user turn.
func (m *SessionManager) History(ctx context.Context) ([]agent.Message, error) {
	var events []types.Event
	var next *string
	for {
		out, err := m.client.ListEvents(ctx, &bedrockagentcore.ListEventsInput{
			MemoryId:        aws.String(m.cfg.MemoryID),
			SessionId:       aws.String(m.cfg.SessionID),
			ActorId:         aws.String(m.cfg.ActorID),
			IncludePayloads: aws.Bool(true),
			NextToken:       next,
		})
		if err != nil {
			return nil, fmt.Errorf("listing events: %w", err)
		}
		events = append(events, out.Events...)
		if out.NextToken == nil {
			break
		}
		next = out.NextToken
	}

	sort.SliceStable(events, func(i, j int) bool {
		return aws.ToTime(events[i].EventTimestamp).Before(aws.ToTime(events[j].EventTimestamp))
	})

	var msgs []agent.Message
	for _, ev := range events {
		for _, p := range ev.Payload {
			conv, ok := p.(*types.PayloadTypeMemberConversational)
			if !ok {
				continue
			}
			text, ok := conv.Value.Content.(*types.ContentMemberText)
			if !ok || text.Value == "" {
				continue
			}
			role := agent.RoleUser
			if conv.Value.Role == types.RoleAssistant {
				role = agent.RoleAssistant
			}
			msgs = append(msgs, agent.Message{Role: role, Content: []agent.ContentBlock{agent.TextBlock(text.Value)}})
		}
	}
	return trimHistory(msgs, m.cfg.MaxHistory), nil
}

// trimHistory keeps the last max messages and drops leading assistant turns.
func trimHistory(msgs []agent.Message, max int) []agent.Message {
	if len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	for len(msgs) > 0 && msgs[0].Role != agent.RoleUser {
		msgs = msgs[1:]
	}
	return msgs
}

// Recall implements agent.Session: it searches each configured namespace
// and keeps records scoring at least the namespace's relevance threshold.
func (m *SessionManager) Recall(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" || len(m.cfg.Retrieval) == 0 {
		return nil, nil
	}

	namespaces := make([]string, 0, len(m.cfg.Retrieval))
	for ns := range m.cfg.Retrieval {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var facts []string
	for _, ns := range namespaces {
		rc := m.cfg.Retrieval[ns]
		out, err := m.client.RetrieveMemoryRecords(ctx, &bedrockagentcore.RetrieveMemoryRecordsInput{
			MemoryId:  aws.String(m.cfg.MemoryID),
			Namespace: aws.String(ns),
			SearchCriteria: &types.SearchCriteria{
				SearchQuery: aws.String(query),
				TopK:        aws.Int32(rc.TopK),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("retrieving records from %s: %w", ns, err)
		}
		for _, rec := range out.MemoryRecordSummaries {
			if aws.ToFloat64(rec.Score) < rc.RelevanceScore {
				continue
			}
			if text, ok := rec.Content.(*types.MemoryContentMemberText); ok && text.Value != "" {
				facts = append(facts, text.Value)
			}
		}
	}
	return facts, nil
}

// Append implements agent.Session. Only the text of the message is stored.
func (m *SessionManager) Append(ctx context.Context, msg agent.Message) error {
	text := msg.Text()
	if text == "" {
		return nil
	}
	role := types.RoleUser
	if msg.Role == agent.RoleAssistant {
		role = types.RoleAssistant
	}
	_, err := m.client.CreateEvent(ctx, &bedrockagentcore.CreateEventInput{
		MemoryId:       aws.String(m.cfg.MemoryID),
		ActorId:        aws.String(m.cfg.ActorID),
		SessionId:      aws.String(m.cfg.SessionID),
		EventTimestamp: aws.Time(m.now()),
		Payload: []types.PayloadType{
			&types.PayloadTypeMemberConversational{Value: types.Conversational{
				Content: &types.ContentMemberText{Value: text},
				Role:    role,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("creating event: %w", err)
	}
	return nil
}
