package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// DefaultEventExpiryDays is how long short-term events are kept.
const DefaultEventExpiryDays = 30

// ControlAPI is the subset of the AgentCore control client used to manage
// memories.
type ControlAPI interface {
	CreateMemory(ctx context.Context, in *bedrockagentcorecontrol.CreateMemoryInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateMemoryOutput, error)
	GetMemory(ctx context.Context, in *bedrockagentcorecontrol.GetMemoryInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.GetMemoryOutput, error)
}

// CreateOptions describes a new memory.
type CreateOptions struct {
	Name            string
	Description     string
	EventExpiryDays int32
	// Backoff paces status checks. Nil polls every 5s.
	Backoff backoff.BackOff
}

// Created is a memory that reached ACTIVE.
type Created struct {
	ID     string
	ARN    string
	Status string
}

// Strategies returns the long-term strategies used by the memory agent:
// semantic facts and user preferences, each in its per-actor namespace.
func Strategies() []types.MemoryStrategyInput {
	return []types.MemoryStrategyInput{
		&types.MemoryStrategyInputMemberSemanticMemoryStrategy{Value: types.SemanticMemoryStrategyInput{
			Name:        aws.String("UserFacts"),
			Description: aws.String("Facts the user shares about themselves"),
			Namespaces:  []string{FactsNamespace("{actorId}")},
		}},
		&types.MemoryStrategyInputMemberUserPreferenceMemoryStrategy{Value: types.UserPreferenceMemoryStrategyInput{
			Name:        aws.String("UserPreferences"),
			Description: aws.String("Preferences the user expresses"),
			Namespaces:  []string{PreferencesNamespace("{actorId}")},
		}},
	}
}

// Create creates a memory with the default strategies and waits until it
// is ACTIVE.
func Create(ctx context.Context, client ControlAPI, opts CreateOptions) (*Created, error) {
	expiry := opts.EventExpiryDays
	if expiry == 0 {
		expiry = DefaultEventExpiryDays
	}
	b := opts.Backoff
	if b == nil {
		b = backoff.NewConstantBackOff(5 * time.Second)
	}

	in := &bedrockagentcorecontrol.CreateMemoryInput{
		Name:                aws.String(opts.Name),
		EventExpiryDuration: aws.Int32(expiry),
		MemoryStrategies:    Strategies(),
		ClientToken:         aws.String(uuid.NewString()),
	}
	if opts.Description != "" {
		in.Description = aws.String(opts.Description)
	}

	out, err := client.CreateMemory(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("creating memory %s: %w", opts.Name, err)
	}
	created := &Created{
		ID:     aws.ToString(out.Memory.Id),
		ARN:    aws.ToString(out.Memory.Arn),
		Status: string(out.Memory.Status),
	}

	if created.Status == string(types.MemoryStatusActive) {
		return created, nil
	}
	err = backoff.Retry(func() error {
		got, err := client.GetMemory(ctx, &bedrockagentcorecontrol.GetMemoryInput{MemoryId: aws.String(created.ID)})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("getting memory %s: %w", created.ID, err))
		}
		created.Status = string(got.Memory.Status)
		switch got.Memory.Status {
		case types.MemoryStatusActive:
			return nil
		case types.MemoryStatusFailed:
			return backoff.Permanent(fmt.Errorf("memory %s failed: %s", created.ID, aws.ToString(got.Memory.FailureReason)))
		}
		return fmt.Errorf("memory %s is %s", created.ID, created.Status)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return created, err
	}
	return created, nil
}
