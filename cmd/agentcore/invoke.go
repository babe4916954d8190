package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/spf13/cobra"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/config"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/invoke"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/tools"
)

// CalculatorPrompts exercise the calculator tool and in-session memory.
var CalculatorPrompts = []string{
	"What is 25 + 30?",
	"Now multiply that result by 2",
	"What was the first calculation I asked you to do?",
	"Calculate the square root of 144",
	"Add 10 to the previous result",
	"What is 15 * 8 + 7?",
	"Divide the previous result by 3",
}

// SessionPrompts build context across one conversation session.
var SessionPrompts = []string{
	"My name is Alice and I'm learning about AWS. Can you help me understand what EC2 is?",
	"Thanks! Can you also explain how EC2 pricing works? Remember, I'm still learning.",
	"What was my name again? And what topic were we discussing?",
}

const (
	defaultStreamPrompt  = "Tell me a story about AI agents"
	sessionPrefix        = "user-demo-conversation"
	multimodalFollowUp   = "What did you just analyze? What was the main content?"
	defaultSessionPause  = 2 * time.Second
	lineWidth            = 60
	multimodalLineWidth  = 80
	streamingLineWidth   = 30
	invocationLineWidth  = 50
	agentARNUsageMessage = "agent ARN is required: pass it as an argument or set %s"
)

func rule(width int) string { return strings.Repeat("-", width) }

func doubleRule(width int) string { return strings.Repeat("=", width) }

// agentARN returns the first argument, or the ARN taken from the client
// environment.
func agentARN(args []string, envName string, fromEnv func(config.Client) string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	c, err := config.LoadClient()
	if err != nil {
		return "", err
	}
	if arn := fromEnv(c); arn != "" {
		return arn, nil
	}
	return "", fmt.Errorf(agentARNUsageMessage, envName)
}

// conversation sends prompts to one agent within a single runtime session.
type conversation struct {
	client    *invoke.Client
	arn       string
	sessionID string
	userID    string
	out       io.Writer
}

func (g *globals) newConversation(ctx context.Context, cmd *cobra.Command, arn string) (*conversation, string, error) {
	cfg, region, err := g.awsConfigForARN(ctx, arn)
	if err != nil {
		return nil, "", err
	}
	return &conversation{
		client:    invoke.New(bedrockagentcore.NewFromConfig(cfg)),
		arn:       arn,
		sessionID: invoke.NewSessionID(),
		out:       cmd.OutOrStdout(),
	}, region, nil
}

// ask sends prompt and returns the reply text.
func (c *conversation) ask(ctx context.Context, prompt string) (string, error) {
	res, err := c.client.Invoke(ctx, invoke.Request{
		AgentARN:  c.arn,
		Prompt:    prompt,
		SessionID: c.sessionID,
		UserID:    c.userID,
	})
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// askAndPrint prints the reply with label, or the failure, and never
// aborts the conversation.
func (c *conversation) askAndPrint(ctx context.Context, label, prompt string) {
	text, err := c.ask(ctx, prompt)
	if err != nil {
		fmt.Fprintf(c.out, "Error invoking agent: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s%s\n", label, text)
}

func newInvokeCmd(g *globals) *cobra.Command {
	var prompts []string
	cmd := &cobra.Command{
		Use:   "invoke [AGENT_ARN]",
		Short: "Send the calculator prompts to an agent in one session",
		Long: `Invoke an agent with a series of prompts that share one runtime session,
so later prompts can refer to earlier answers.

The agent ARN defaults to AGENT_ARN. Without --prompt the calculator
prompts are sent.`,
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
			if len(prompts) == 0 {
				prompts = CalculatorPrompts
			}

			out := conv.out
			fmt.Fprintf(out, "Invoking agent: %s\n", arn)
			fmt.Fprintf(out, "Region: %s\n", region)
			fmt.Fprintln(out, rule(invocationLineWidth))
			fmt.Fprintf(out, "Using session ID: %s\n", conv.sessionID)
			fmt.Fprintln(out, doubleRule(lineWidth))

			for i, prompt := range prompts {
				fmt.Fprintf(out, "\n%d. Testing: %s\n", i+1, prompt)
				fmt.Fprintln(out, doubleRule(lineWidth))
				text, err := conv.ask(ctx, prompt)
				if err != nil {
					fmt.Fprintf(out, "Error invoking agent: %v\n", err)
					fmt.Fprintln(out, "Failed to get response from agent")
				} else {
					fmt.Fprintln(out, "Response:")
					fmt.Fprintln(out, text)
				}
				fmt.Fprintln(out, rule(lineWidth))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&prompts, "prompt", "p", nil, "Prompt to send (repeatable)")
	return cmd
}

func newStreamCmd(g *globals) *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "stream [AGENT_ARN]",
		Short: "Invoke a streaming agent and print chunks as they arrive",
		Long: `Invoke a streaming agent. The agent ARN defaults to STREAMING_AGENT_ARN
and the prompt to PROMPT or "` + defaultStreamPrompt + `".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arn, err := agentARN(args, "STREAMING_AGENT_ARN", func(c config.Client) string { return c.StreamingAgentARN })
			if err != nil {
				return err
			}
			if prompt == "" {
				c, err := config.LoadClient()
				if err != nil {
					return err
				}
				prompt = c.Prompt
			}
			if prompt == "" {
				prompt = defaultStreamPrompt
			}

			ctx := cmd.Context()
			conv, region, err := g.newConversation(ctx, cmd, arn)
			if err != nil {
				return err
			}
			out := conv.out
			fmt.Fprintf(out, "Invoking streaming agent: %s\n", arn)
			fmt.Fprintf(out, "Prompt: %s\n", prompt)
			fmt.Fprintf(out, "Region: %s\n", region)
			fmt.Fprintln(out, doubleRule(invocationLineWidth))
			fmt.Fprintln(out, "Streaming response:")
			fmt.Fprintln(out, rule(streamingLineWidth))

			_, err = conv.client.Stream(ctx, invoke.Request{
				AgentARN:  arn,
				Prompt:    prompt,
				SessionID: conv.sessionID,
			}, func(text string) error {
				_, err := fmt.Fprint(out, text)
				return err
			})
			if err != nil {
				fmt.Fprintf(out, "\nError invoking streaming agent: %v\n", err)
				return nil
			}
			fmt.Fprintln(out, "\n"+rule(streamingLineWidth))
			fmt.Fprintln(out, "Streaming completed")
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt to send (default: PROMPT)")
	return cmd
}

func newSessionCmd(g *globals) *cobra.Command {
	var pause time.Duration
	cmd := &cobra.Command{
		Use:   "session [AGENT_ARN]",
		Short: "Hold a three-message conversation in one named session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arn, err := agentARN(args, "AGENT_ARN", func(c config.Client) string { return c.AgentARN })
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			conv, _, err := g.newConversation(ctx, cmd, arn)
			if err != nil {
				return err
			}
			conv.sessionID = invoke.NewConversationSessionID(sessionPrefix)

			out := conv.out
			fmt.Fprintf(out, "Starting conversation with session: %s\n", conv.sessionID)
			fmt.Fprintln(out, doubleRule(lineWidth))

			labels := []string{"Setting context...", "Building on context...", "Testing session memory..."}
			for i, prompt := range SessionPrompts {
				if i > 0 {
					if err := sleep(ctx, pause); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "Message %d: %s\n", i+1, labels[i])
				conv.askAndPrint(ctx, "Agent: ", prompt)
				fmt.Fprintln(out)
			}

			fmt.Fprintln(out, doubleRule(lineWidth))
			fmt.Fprintf(out, "Session completed: %s\n", conv.sessionID)
			fmt.Fprintln(out, "Note: Session will remain active for 15 minutes (idle timeout)")
			fmt.Fprintln(out, "      or up to 8 hours (maximum lifetime)")
			return nil
		},
	}
	cmd.Flags().DurationVar(&pause, "pause", defaultSessionPause, "Pause between messages")
	return cmd
}

func newMultimodalCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multimodal AGENT_ARN FILE",
		Short: "Ask a multimodal agent to analyze a file, then ask a follow-up",
		Long: `Send an analysis prompt for an image (jpg, png, gif, webp), a video
(mp4, mov, avi, mkv, webm) or a PDF document, then a follow-up question in
the same session to check that the agent remembers what it analyzed.
The path must be readable by the agent container.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arn, path := args[0], args[1]
			prompt, err := tools.AnalysisPrompt(path)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			conv, _, err := g.newConversation(ctx, cmd, arn)
			if err != nil {
				return err
			}

			out := conv.out
			ext := strings.TrimPrefix(strings.ToUpper(filepath.Ext(path)), ".")
			fmt.Fprintf(out, "Analyzing %s file: %s\n", ext, path)
			fmt.Fprintf(out, "Question: %s\n", prompt)
			fmt.Fprintln(out, doubleRule(multimodalLineWidth))
			conv.askAndPrint(ctx, "Response:\n", prompt)

			fmt.Fprintln(out, "\n"+doubleRule(multimodalLineWidth))
			fmt.Fprintln(out, "Testing conversation memory...")
			fmt.Fprintf(out, "Question: %s\n", multimodalFollowUp)
			fmt.Fprintln(out, doubleRule(multimodalLineWidth))
			conv.askAndPrint(ctx, "Response:\n", multimodalFollowUp)
			return nil
		},
	}
	return cmd
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
