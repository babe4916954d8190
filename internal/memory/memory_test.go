package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	controltypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
)

type fakeData struct {
	pages     [][]types.Event
	records   map[string][]types.MemoryRecordSummary
	created   []*bedrockagentcore.CreateEventInput
	retrieved []*bedrockagentcore.RetrieveMemoryRecordsInput
}

func (f *fakeData) CreateEvent(_ context.Context, in *bedrockagentcore.CreateEventInput, _ ...func(*bedrockagentcore.Options)) (*bedrockagentcore.CreateEventOutput, error) {
	f.created = append(f.created, in)
	return &bedrockagentcore.CreateEventOutput{}, nil
}

func (f *fakeData) ListEvents(_ context.Context, in *bedrockagentcore.ListEventsInput, _ ...func(*bedrockagentcore.Options)) (*bedrockagentcore.ListEventsOutput, error) {
	page := 0
	if in.NextToken != nil {
		page = 1
	}
	out := &bedrockagentcore.ListEventsOutput{Events: f.pages[page]}
	if page+1 < len(f.pages) {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func (f *fakeData) RetrieveMemoryRecords(_ context.Context, in *bedrockagentcore.RetrieveMemoryRecordsInput, _ ...func(*bedrockagentcore.Options)) (*bedrockagentcore.RetrieveMemoryRecordsOutput, error) {
	f.retrieved = append(f.retrieved, in)
	return &bedrockagentcore.RetrieveMemoryRecordsOutput{MemoryRecordSummaries: f.records[aws.ToString(in.Namespace)]}, nil
}

func event(ts int64, role types.Role, text string) types.Event {
	return types.Event{
		EventTimestamp: aws.Time(time.Unix(ts, 0)),
		Payload: []types.PayloadType{&types.PayloadTypeMemberConversational{Value: types.Conversational{
			Role:    role,
			Content: &types.ContentMemberText{Value: text},
		}}},
	}
}

func record(score float64, text string) types.MemoryRecordSummary {
	return types.MemoryRecordSummary{Score: aws.Float64(score), Content: &types.MemoryContentMemberText{Value: text}}
}

func TestNewSessionManager(t *testing.T) {
	_, err := NewSessionManager(&fakeData{}, Config{})
	require.ErrorIs(t, err, ErrNotConfigured)

	m, err := NewSessionManager(&fakeData{}, Config{MemoryID: "mem-1"})
	require.NoError(t, err)
	require.Equal(t, "user", m.Config().ActorID)
	require.Equal(t, "default_session", m.Config().SessionID)
}

func TestUserRetrieval(t *testing.T) {
	require.Equal(t, map[string]RetrievalConfig{
		"/users/alice/facts":       {TopK: 3, RelevanceScore: 0.5},
		"/users/alice/preferences": {TopK: 3, RelevanceScore: 0.5},
	}, UserRetrieval("alice"))
}

func TestHistory(t *testing.T) {
	fake := &fakeData{pages: [][]types.Event{
		{event(3, types.RoleUser, "What is my name?"), event(1, types.RoleAssistant, "orphan reply")},
		{event(2, types.RoleUser, "I am Alice"), event(2, types.RoleAssistant, "Hi Alice")},
	}}
	m, err := NewSessionManager(fake, Config{MemoryID: "mem", MaxHistory: 3})
	require.NoError(t, err)

	msgs, err := m.History(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, agent.RoleUser, msgs[0].Role)
	require.Equal(t, "I am Alice", msgs[0].Text())
	require.Equal(t, "Hi Alice", msgs[1].Text())
	require.Equal(t, "What is my name?", msgs[2].Text())
}

func TestRecall(t *testing.T) {
	fake := &fakeData{records: map[string][]types.MemoryRecordSummary{
		"/users/bob/facts":       {record(0.9, "Bob is a software engineer"), record(0.2, "irrelevant")},
		"/users/bob/preferences": {record(0.5, "Prefers Python")},
	}}
	m, err := NewSessionManager(fake, Config{MemoryID: "mem", ActorID: "bob", Retrieval: UserRetrieval("bob")})
	require.NoError(t, err)

	facts, err := m.Recall(context.Background(), "What do I prefer?")
	require.NoError(t, err)
	require.Equal(t, []string{"Bob is a software engineer", "Prefers Python"}, facts)
	require.Len(t, fake.retrieved, 2)
	require.Equal(t, int32(3), aws.ToInt32(fake.retrieved[0].SearchCriteria.TopK))

	facts, err = m.Recall(context.Background(), "  ")
	require.NoError(t, err)
	require.Nil(t, facts)
}

func TestAppend(t *testing.T) {
	fake := &fakeData{}
	m, err := NewSessionManager(fake, Config{MemoryID: "mem", SessionID: "s1", ActorID: "carol"})
	require.NoError(t, err)
	m.now = func() time.Time { return time.Unix(100, 0) }

	require.NoError(t, m.Append(context.Background(), agent.Message{Role: agent.RoleAssistant, Content: []agent.ContentBlock{agent.TextBlock("Hello")}}))
	require.NoError(t, m.Append(context.Background(), agent.Message{Role: agent.RoleUser}))
	require.Len(t, fake.created, 1)

	in := fake.created[0]
	require.Equal(t, "carol", aws.ToString(in.ActorId))
	require.Equal(t, "s1", aws.ToString(in.SessionId))
	require.Equal(t, time.Unix(100, 0), aws.ToTime(in.EventTimestamp))
	conv := in.Payload[0].(*types.PayloadTypeMemberConversational)
	require.Equal(t, types.RoleAssistant, conv.Value.Role)
	require.Equal(t, "Hello", conv.Value.Content.(*types.ContentMemberText).Value)
}

type fakeControl struct {
	statuses []controltypes.MemoryStatus
	input    *bedrockagentcorecontrol.CreateMemoryInput
	gets     int
}

func (f *fakeControl) CreateMemory(_ context.Context, in *bedrockagentcorecontrol.CreateMemoryInput, _ ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateMemoryOutput, error) {
	f.input = in
	return &bedrockagentcorecontrol.CreateMemoryOutput{Memory: &controltypes.Memory{
		Id:     aws.String("mem-123"),
		Arn:    aws.String("arn:aws:bedrock-agentcore:us-west-2:1:memory/mem-123"),
		Status: controltypes.MemoryStatusCreating,
	}}, nil
}

func (f *fakeControl) GetMemory(context.Context, *bedrockagentcorecontrol.GetMemoryInput, ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.GetMemoryOutput, error) {
	status := f.statuses[f.gets]
	f.gets++
	return &bedrockagentcorecontrol.GetMemoryOutput{Memory: &controltypes.Memory{
		Id:            aws.String("mem-123"),
		Status:        status,
		FailureReason: aws.String("quota"),
	}}, nil
}

func TestCreate(t *testing.T) {
	fake := &fakeControl{statuses: []controltypes.MemoryStatus{controltypes.MemoryStatusCreating, controltypes.MemoryStatusActive}}
	created, err := Create(context.Background(), fake, CreateOptions{Name: "TutorialMemory", Backoff: &backoff.ZeroBackOff{}})
	require.NoError(t, err)
	require.Equal(t, "mem-123", created.ID)
	require.Equal(t, "ACTIVE", created.Status)
	require.Equal(t, 2, fake.gets)
	require.Equal(t, int32(30), aws.ToInt32(fake.input.EventExpiryDuration))
	require.Len(t, fake.input.MemoryStrategies, 2)

	semantic := fake.input.MemoryStrategies[0].(*controltypes.MemoryStrategyInputMemberSemanticMemoryStrategy)
	require.Equal(t, []string{"/users/{actorId}/facts"}, semantic.Value.Namespaces)

	failing := &fakeControl{statuses: []controltypes.MemoryStatus{controltypes.MemoryStatusFailed}}
	_, err = Create(context.Background(), failing, CreateOptions{Name: "Broken", Backoff: &backoff.ZeroBackOff{}})
	require.ErrorContains(t, err, "quota")
}
