package launcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	actypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/cenkalti/backoff/v4"
)

// DefaultPollInterval is how often runtime status is checked after a
// create or update.
const DefaultPollInterval = 5 * time.Second

// ExecutionPolicyName is the inline policy attached to auto-created roles.
const ExecutionPolicyName = "BedrockAgentCoreRuntimeExecutionPolicy"

// ECRAPI is the subset of the ECR client used here.
type ECRAPI interface {
	DescribeRepositories(ctx context.Context, in *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	CreateRepository(ctx context.Context, in *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	GetAuthorizationToken(ctx context.Context, in *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// IAMAPI is the subset of the IAM client used here.
type IAMAPI interface {
	GetRole(ctx context.Context, in *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, in *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	PutRolePolicy(ctx context.Context, in *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
}

// STSAPI is the subset of the STS client used here.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// RuntimeAPI is the subset of the AgentCore control client used here.
type RuntimeAPI interface {
	ListAgentRuntimes(ctx context.Context, in *bedrockagentcorecontrol.ListAgentRuntimesInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListAgentRuntimesOutput, error)
	CreateAgentRuntime(ctx context.Context, in *bedrockagentcorecontrol.CreateAgentRuntimeInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateAgentRuntimeOutput, error)
	UpdateAgentRuntime(ctx context.Context, in *bedrockagentcorecontrol.UpdateAgentRuntimeInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.UpdateAgentRuntimeOutput, error)
	GetAgentRuntime(ctx context.Context, in *bedrockagentcorecontrol.GetAgentRuntimeInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.GetAgentRuntimeOutput, error)
}

// Launcher deploys a configured agent.
type Launcher struct {
	ECR     ECRAPI
	IAM     IAMAPI
	STS     STSAPI
	Runtime RuntimeAPI
	Docker  Runner
	Out     io.Writer

	// Dir is the docker build context.
	Dir string
	// Backoff paces runtime status polling; nil polls every
	// DefaultPollInterval.
	Backoff backoff.BackOff
}

// Result describes a launched agent.
type Result struct {
	AgentID  string
	AgentARN string
	ImageURI string
	RoleARN  string
	Created  bool
}

// Launch builds and pushes the agent image, ensures its execution role and
// creates or updates the runtime, waiting until it is READY. cfg is updated
// with the runtime identity.
func (l *Launcher) Launch(ctx context.Context, cfg *AgentConfig) (*Result, error) {
	ident, err := l.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("getting caller identity: %w", err)
	}
	account := aws.ToString(ident.Account)

	fmt.Fprintf(l.out(), "=== Step 1: ECR repository ===\n")
	repoURI, err := l.ensureRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	image := repoURI + ":latest"

	fmt.Fprintf(l.out(), "\n=== Step 2: Build and push %s ===\n", image)
	if err := l.buildAndPush(ctx, cfg, image); err != nil {
		return nil, err
	}

	fmt.Fprintf(l.out(), "\n=== Step 3: Execution role ===\n")
	roleARN, err := l.ensureRole(ctx, cfg, account)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(l.out(), "\n=== Step 4: Agent runtime %s ===\n", cfg.Name)
	res, err := l.deployRuntime(ctx, cfg, image, roleARN)
	if err != nil {
		return nil, err
	}
	if err := l.waitReady(ctx, res.AgentID); err != nil {
		return nil, err
	}

	cfg.AgentID = res.AgentID
	cfg.AgentARN = res.AgentARN
	return res, nil
}

// RepositoryName is the ECR repository auto-created for agentName.
func RepositoryName(agentName string) string {
	return "bedrock-agentcore-" + strings.ToLower(agentName)
}

func (l *Launcher) ensureRepository(ctx context.Context, cfg *AgentConfig) (string, error) {
	name := cfg.ECRRepository
	if name == "" {
		name = RepositoryName(cfg.Name)
	}
	// An explicit repository may be given as a full URI.
	if strings.Contains(name, ".dkr.ecr.") {
		return name, nil
	}

	out, err := l.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{RepositoryNames: []string{name}})
	if err == nil && len(out.Repositories) > 0 {
		fmt.Fprintf(l.out(), "Using existing repository: %s\n", name)
		return aws.ToString(out.Repositories[0].RepositoryUri), nil
	}
	var notFound *ecrtypes.RepositoryNotFoundException
	if err != nil && !errors.As(err, &notFound) {
		return "", fmt.Errorf("describing repository %s: %w", name, err)
	}
	if !cfg.AutoCreateECR {
		return "", fmt.Errorf("repository %s does not exist", name)
	}

	created, err := l.ECR.CreateRepository(ctx, &ecr.CreateRepositoryInput{RepositoryName: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("creating repository %s: %w", name, err)
	}
	fmt.Fprintf(l.out(), "Created repository: %s\n", name)
	return aws.ToString(created.Repository.RepositoryUri), nil
}

func (l *Launcher) buildAndPush(ctx context.Context, cfg *AgentConfig, image string) error {
	dir := l.Dir
	if dir == "" {
		dir = "."
	}
	written, err := EnsureDockerfile(dir, cfg)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintln(l.out(), "Generated Dockerfile")
	}

	user, password, endpoint, err := l.registryLogin(ctx)
	if err != nil {
		return err
	}
	if err := l.Docker.Run(ctx, password, "docker", "login", "--username", user, "--password-stdin", endpoint); err != nil {
		return fmt.Errorf("docker login: %w", err)
	}
	platform := cfg.Platform
	if platform == "" {
		platform = DefaultPlatform
	}
	if err := l.Docker.Run(ctx, "", "docker", "build", "--platform", platform, "-t", image, dir); err != nil {
		return fmt.Errorf("docker build: %w", err)
	}
	if err := l.Docker.Run(ctx, "", "docker", "push", image); err != nil {
		return fmt.Errorf("docker push: %w", err)
	}
	fmt.Fprintf(l.out(), "Pushed %s\n", image)
	return nil
}

// registryLogin decodes the ECR authorization token ("user:password").
func (l *Launcher) registryLogin(ctx context.Context) (user, password, endpoint string, err error) {
	out, err := l.ECR.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", "", "", fmt.Errorf("getting ECR authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return "", "", "", errors.New("ECR returned no authorization data")
	}
	data := out.AuthorizationData[0]
	decoded, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return "", "", "", fmt.Errorf("decoding ECR token: %w", err)
	}
	user, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", "", errors.New("malformed ECR token")
	}
	return user, password, aws.ToString(data.ProxyEndpoint), nil
}

func (l *Launcher) ensureRole(ctx context.Context, cfg *AgentConfig, account string) (string, error) {
	if cfg.ExecutionRole != "" {
		fmt.Fprintf(l.out(), "Using execution role: %s\n", cfg.ExecutionRole)
		return cfg.ExecutionRole, nil
	}
	if !cfg.AutoCreateExecutionRole {
		return "", errors.New("no execution role configured")
	}

	name := RoleName(cfg.Region, cfg.Name)
	got, err := l.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err == nil {
		fmt.Fprintf(l.out(), "Using existing role: %s\n", name)
		return aws.ToString(got.Role.Arn), nil
	}
	var noSuch *iamtypes.NoSuchEntityException
	if !errors.As(err, &noSuch) {
		return "", fmt.Errorf("getting role %s: %w", name, err)
	}

	trust, err := TrustPolicy(account, cfg.Region).JSON()
	if err != nil {
		return "", err
	}
	created, err := l.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(trust),
		Description:              aws.String("Execution role for AgentCore Runtime agent " + cfg.Name),
	})
	if err != nil {
		return "", fmt.Errorf("creating role %s: %w", name, err)
	}

	policy, err := ExecutionPolicy(account, cfg.Region).JSON()
	if err != nil {
		return "", err
	}
	_, err = l.IAM.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(name),
		PolicyName:     aws.String(ExecutionPolicyName),
		PolicyDocument: aws.String(policy),
	})
	if err != nil {
		return "", fmt.Errorf("attaching policy to %s: %w", name, err)
	}
	fmt.Fprintf(l.out(), "Created role: %s\n", name)
	return aws.ToString(created.Role.Arn), nil
}

func (l *Launcher) findRuntime(ctx context.Context, cfg *AgentConfig) (id, arn string, err error) {
	if cfg.AgentID != "" {
		return cfg.AgentID, cfg.AgentARN, nil
	}
	var next *string
	for {
		out, err := l.Runtime.ListAgentRuntimes(ctx, &bedrockagentcorecontrol.ListAgentRuntimesInput{NextToken: next})
		if err != nil {
			return "", "", fmt.Errorf("listing agent runtimes: %w", err)
		}
		for _, rt := range out.AgentRuntimes {
			if aws.ToString(rt.AgentRuntimeName) == cfg.Name {
				return aws.ToString(rt.AgentRuntimeId), aws.ToString(rt.AgentRuntimeArn), nil
			}
		}
		if out.NextToken == nil {
			return "", "", nil
		}
		next = out.NextToken
	}
}

func (l *Launcher) deployRuntime(ctx context.Context, cfg *AgentConfig, image, roleARN string) (*Result, error) {
	artifact := &actypes.AgentRuntimeArtifactMemberContainerConfiguration{
		Value: actypes.ContainerConfiguration{ContainerUri: aws.String(image)},
	}
	network := &actypes.NetworkConfiguration{NetworkMode: actypes.NetworkMode("PUBLIC")}
	res := &Result{ImageURI: image, RoleARN: roleARN}

	id, arn, err := l.findRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if id != "" {
		out, err := l.Runtime.UpdateAgentRuntime(ctx, &bedrockagentcorecontrol.UpdateAgentRuntimeInput{
			AgentRuntimeId:       aws.String(id),
			AgentRuntimeArtifact: artifact,
			NetworkConfiguration: network,
			RoleArn:              aws.String(roleARN),
			EnvironmentVariables: cfg.Environment,
		})
		if err != nil {
			return nil, fmt.Errorf("updating agent runtime %s: %w", id, err)
		}
		res.AgentID = id
		res.AgentARN = arn
		if out.AgentRuntimeArn != nil {
			res.AgentARN = aws.ToString(out.AgentRuntimeArn)
		}
		fmt.Fprintf(l.out(), "Updated agent runtime: %s\n", id)
		return res, nil
	}

	out, err := l.Runtime.CreateAgentRuntime(ctx, &bedrockagentcorecontrol.CreateAgentRuntimeInput{
		AgentRuntimeName:     aws.String(cfg.Name),
		AgentRuntimeArtifact: artifact,
		NetworkConfiguration: network,
		RoleArn:              aws.String(roleARN),
		EnvironmentVariables: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent runtime %s: %w", cfg.Name, err)
	}
	res.AgentID = aws.ToString(out.AgentRuntimeId)
	res.AgentARN = aws.ToString(out.AgentRuntimeArn)
	res.Created = true
	fmt.Fprintf(l.out(), "Created agent runtime: %s\n", res.AgentID)
	return res, nil
}

func (l *Launcher) waitReady(ctx context.Context, id string) error {
	fmt.Fprintln(l.out(), "Waiting for agent runtime to be ready...")
	b := l.Backoff
	if b == nil {
		b = backoff.NewConstantBackOff(DefaultPollInterval)
	}
	return backoff.Retry(func() error {
		out, err := l.Runtime.GetAgentRuntime(ctx, &bedrockagentcorecontrol.GetAgentRuntimeInput{AgentRuntimeId: aws.String(id)})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("getting agent runtime %s: %w", id, err))
		}
		status := string(out.Status)
		switch {
		case status == "READY":
			fmt.Fprintln(l.out(), "Agent runtime is ready!")
			return nil
		case strings.HasSuffix(status, "FAILED"):
			return backoff.Permanent(fmt.Errorf("agent runtime %s is %s", id, status))
		default:
			return fmt.Errorf("agent runtime %s is %s", id, status)
		}
	}, backoff.WithContext(b, ctx))
}

func (l *Launcher) out() io.Writer {
	if l.Out == nil {
		return io.Discard
	}
	return l.Out
}
