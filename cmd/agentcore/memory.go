package main

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/spf13/cobra"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/config"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/invoke"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/memory"
)

const (
	defaultMemoryName    = "AgentCoreTutorialMemory"
	defaultExtractionGap = 25 * time.Second
)

func newMemoryCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Create an AgentCore Memory and test short- and long-term recall",
	}
	cmd.AddCommand(newMemoryCreateCmd(g), newMemoryShortCmd(g), newMemoryLongCmd(g))
	return cmd
}

func newMemoryCreateCmd(g *globals) *cobra.Command {
	var (
		name        string
		description string
		expiryDays  int32
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a memory with the semantic and preference strategies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, region, err := g.awsConfig(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Creating memory %s in %s (this can take a few minutes)...\n", name, region)

			created, err := memory.Create(ctx, bedrockagentcorecontrol.NewFromConfig(cfg), memory.CreateOptions{
				Name:            name,
				Description:     description,
				EventExpiryDays: expiryDays,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Memory ID: %s\n", created.ID)
			fmt.Fprintf(out, "Memory ARN: %s\n", created.ARN)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Pass it to the memory agent with:")
			fmt.Fprintf(out, "  BEDROCK_AGENTCORE_MEMORY_ID=%s\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", defaultMemoryName, "Memory name")
	cmd.Flags().StringVar(&description, "description", "Short- and long-term memory for the AgentCore tutorial agents", "Memory description")
	cmd.Flags().Int32Var(&expiryDays, "expiry-days", memory.DefaultEventExpiryDays, "Days short-term events are kept")
	return cmd
}

func newMemoryShortCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "short [AGENT_ARN]",
		Short: "Check that the agent remembers earlier messages of the same session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arn, err := agentARN(args, "AGENT_ARN", func(c config.Client) string { return c.AgentARN })
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			conv, region, err := g.newConversation(ctx, cmd, arn)
			if err != nil {
				return err
			}
			conv.userID = invoke.NewSessionID()

			out := conv.out
			fmt.Fprintf(out, "Testing short-term memory in session: %s\n", conv.sessionID)
			fmt.Fprintf(out, "Region: %s\n", region)
			fmt.Fprintln(out, rule(invocationLineWidth))

			steps := []struct{ label, prompt string }{
				{"Setting context...", "My name is Alice and I like chocolate ice cream"},
				{"Testing memory recall...", "What is my name and what do I like?"},
			}
			for i, step := range steps {
				fmt.Fprintf(out, "User: %s\n", conv.userID)
				fmt.Fprintf(out, "Message %d: %s\n", i+1, step.label)
				fmt.Fprintf(out, "Session: %s\n", conv.sessionID)
				fmt.Fprintf(out, "Prompt %d: %s\n", i+1, step.prompt)
				conv.askAndPrint(ctx, "Agent: ", step.prompt)
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, "Short-term memory test completed")
			return nil
		},
	}
}

func newMemoryLongCmd(g *globals) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "long [AGENT_ARN]",
		Short: "Check that facts from one session are recalled in a new session",
		Long: `Tell the agent about a user in one session, wait for long-term memory
extraction, then ask about the user from a second session.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arn, err := agentARN(args, "AGENT_ARN", func(c config.Client) string { return c.AgentARN })
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			conv, region, err := g.newConversation(ctx, cmd, arn)
			if err != nil {
				return err
			}

			out := conv.out
			fmt.Fprintln(out, "Testing long-term memory across sessions")
			fmt.Fprintf(out, "Region: %s\n", region)
			fmt.Fprintln(out, rule(invocationLineWidth))

			fmt.Fprintf(out, "Session 1: %s\n", conv.sessionID)
			fmt.Fprintln(out, "Storing user preferences...")
			conv.askAndPrint(ctx, "Agent: ", "My name is Sarah and I'm a software engineer. I prefer Python over JavaScript.")
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Waiting %s for long-term memory extraction...\n", wait)
			if err := sleep(ctx, wait); err != nil {
				return err
			}

			conv.sessionID = invoke.NewSessionID()
			fmt.Fprintf(out, "Session 2: %s\n", conv.sessionID)
			fmt.Fprintln(out, "Testing cross-session memory recall...")
			conv.askAndPrint(ctx, "Agent: ", "What do you remember about me? What's my name and what do I prefer?")

			fmt.Fprintln(out, "\nLong-term memory test completed")
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", defaultExtractionGap, "Time to wait for long-term memory extraction")
	return cmd
}
