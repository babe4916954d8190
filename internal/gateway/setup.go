// Package gateway provisions the customer support AgentCore Gateway: the
// supporting CloudFormation stack, the gateway itself, a Lambda target and
// an OpenAPI target for the NASA Mars weather API.
package gateway

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/secrets"
)

// Names used by the customer support setup.
const (
	StackName           = "customer-support-lambda-stack"
	GatewayName         = "customer-support-gateway"
	LambdaTargetName    = "CustomerSupportLambda"
	NasaTargetName      = "NasaMarsWeather"
	NasaProviderName    = "NasaInsightAPIKey"
	NasaSpecObjectKey   = "nasa_mars_insights_openapi.json"
	NasaAPIKeyParam     = "api_key"
	BucketPrefix        = "agentcore-gateway-"
	DefaultPollEvery    = 5 * time.Second
	DefaultStackWait    = 15 * time.Minute
	defaultBucketRegion = "us-east-1"
)

// Template parameters locating the support Lambda code.
const (
	ParamLambdaCodeBucket = "LambdaCodeBucket"
	ParamLambdaCodeKey    = "LambdaCodeKey"
	DefaultLambdaCodeKey  = "customer-support-lambda.zip"
)

// Stack outputs read after deployment.
const (
	OutputLambdaARN      = "CustomerSupportLambdaArn"
	OutputGatewayRoleARN = "GatewayAgentCoreRoleArn"
	OutputRuntimeRoleARN = "AgentCoreRuntimeExecutionRoleArn"
)

//go:embed assets/customer_support_lambda.yaml
var customerSupportTemplate string

//go:embed assets/nasa_mars_insights_openapi.json
var nasaOpenAPISpec []byte

// CustomerSupportTemplate returns the bundled CloudFormation template.
func CustomerSupportTemplate() string { return customerSupportTemplate }

// StacksAPI is the subset of the CloudFormation client used here.
type StacksAPI interface {
	cloudformation.DescribeStacksAPIClient
	CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
}

// ControlAPI is the subset of the AgentCore control client used here.
type ControlAPI interface {
	secrets.IdentityAPI
	ListGateways(ctx context.Context, in *bedrockagentcorecontrol.ListGatewaysInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListGatewaysOutput, error)
	GetGateway(ctx context.Context, in *bedrockagentcorecontrol.GetGatewayInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.GetGatewayOutput, error)
	CreateGateway(ctx context.Context, in *bedrockagentcorecontrol.CreateGatewayInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateGatewayOutput, error)
	ListGatewayTargets(ctx context.Context, in *bedrockagentcorecontrol.ListGatewayTargetsInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListGatewayTargetsOutput, error)
	CreateGatewayTarget(ctx context.Context, in *bedrockagentcorecontrol.CreateGatewayTargetInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateGatewayTargetOutput, error)
}

// StorageAPI is the subset of the S3 client used here.
type StorageAPI interface {
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Infrastructure holds the ARNs produced by the CloudFormation stack.
type Infrastructure struct {
	LambdaARN      string
	GatewayRoleARN string
	RuntimeRoleARN string
}

// Result summarizes a completed setup.
type Result struct {
	Infrastructure
	GatewayID  string
	GatewayURL string
}

// Setup runs the gateway provisioning steps.
type Setup struct {
	Stacks  StacksAPI
	Control ControlAPI
	Storage StorageAPI
	Region  string
	Out     io.Writer

	// TemplateBody defaults to the bundled template.
	TemplateBody string
	Parameters   map[string]string

	// LambdaCode returns the zipped support Lambda. It is called only when
	// the stack is created; the zip goes to CodeBucket/CodeKey, or to a new
	// agentcore-gateway-<id> bucket when CodeBucket is empty. A CodeBucket
	// without LambdaCode names a zip that is already uploaded.
	LambdaCode func(ctx context.Context) ([]byte, error)
	CodeBucket string
	CodeKey    string

	// PromptKey asks the operator for the NASA API key. An empty answer
	// skips the NASA target.
	PromptKey func() (string, error)
	// OpenAPISpec defaults to the bundled NASA Mars InSight document.
	OpenAPISpec []byte

	// Backoff paces gateway status polling; nil polls every
	// DefaultPollEvery.
	Backoff   backoff.BackOff
	StackWait time.Duration
	NewID     func() string

	bucket string
}

// Run deploys the stack, ensures the gateway exists and adds the targets.
// Target failures are reported on Out and do not fail the run.
func (s *Setup) Run(ctx context.Context) (*Result, error) {
	fmt.Fprintln(s.out(), "1. Deploying infrastructure...")
	infra, err := s.DeployInfrastructure(ctx)
	if err != nil {
		return nil, fmt.Errorf("deploying infrastructure: %w", err)
	}

	fmt.Fprintln(s.out(), "\n2. Creating AgentCore Gateway...")
	id, url, err := s.EnsureGateway(ctx, infra.GatewayRoleARN)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	result := &Result{Infrastructure: *infra, GatewayID: id, GatewayURL: url}

	existing, err := s.targetNames(ctx, id)
	if err != nil {
		fmt.Fprintf(s.out(), "Error listing targets: %v\n", err)
		return result, nil
	}
	if !existing[LambdaTargetName] {
		if err := s.CreateLambdaTarget(ctx, id, infra.LambdaARN); err != nil {
			fmt.Fprintf(s.out(), "Error with Lambda target: %v\n", err)
		} else {
			fmt.Fprintln(s.out(), "Lambda target created successfully!")
		}
	}
	if !existing[NasaTargetName] {
		fmt.Fprintln(s.out(), "Setting up NASA API target...")
		if err := s.CreateNasaTarget(ctx, id); err != nil {
			fmt.Fprintf(s.out(), "Error with NASA target setup: %v\n", err)
		}
	}
	return result, nil
}

// DeployInfrastructure creates the CloudFormation stack unless it already
// exists, and reads its outputs. Before creating it the Lambda code is
// staged and every template parameter without a default must have a value.
func (s *Setup) DeployInfrastructure(ctx context.Context) (*Infrastructure, error) {
	exists, err := s.stackExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		fmt.Fprintln(s.out(), "Stack already exists, continuing...")
	} else if err := s.createStack(ctx); err != nil {
		return nil, err
	}

	out, err := s.Stacks.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(StackName)})
	if err != nil {
		return nil, fmt.Errorf("describing stack %s: %w", StackName, err)
	}
	if len(out.Stacks) == 0 {
		return nil, fmt.Errorf("stack %s not found", StackName)
	}
	return infrastructureFromOutputs(out.Stacks[0].Outputs)
}

func (s *Setup) stackExists(ctx context.Context) (bool, error) {
	out, err := s.Stacks.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(StackName)})
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist"):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("describing stack %s: %w", StackName, err)
	}
	return len(out.Stacks) > 0, nil
}

func (s *Setup) createStack(ctx context.Context) error {
	body := s.TemplateBody
	if body == "" {
		body = customerSupportTemplate
	}
	if err := s.stageLambdaCode(ctx); err != nil {
		return err
	}
	missing, err := MissingParameters(body, s.Parameters)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("stack parameters without a value: %s", strings.Join(missing, ", "))
	}

	_, err = s.Stacks.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(StackName),
		TemplateBody: aws.String(body),
		Capabilities: []cfntypes.Capability{cfntypes.CapabilityCapabilityIam},
		Parameters:   stackParameters(s.Parameters),
	})
	var exists *cfntypes.AlreadyExistsException
	switch {
	case errors.As(err, &exists):
		fmt.Fprintln(s.out(), "Stack already exists, continuing...")
		return nil
	case err != nil:
		return fmt.Errorf("creating stack %s: %w", StackName, err)
	}

	fmt.Fprintf(s.out(), "Creating stack %s...\n", StackName)
	wait := s.StackWait
	if wait == 0 {
		wait = DefaultStackWait
	}
	waiter := cloudformation.NewStackCreateCompleteWaiter(s.Stacks)
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(StackName)}, wait); err != nil {
		return fmt.Errorf("waiting for stack %s: %w", StackName, err)
	}
	fmt.Fprintln(s.out(), "Stack created successfully!")
	return nil
}

// stageLambdaCode uploads the support Lambda zip and points the
// LambdaCodeBucket and LambdaCodeKey parameters at it.
func (s *Setup) stageLambdaCode(ctx context.Context) error {
	if s.LambdaCode == nil && s.CodeBucket == "" {
		return nil
	}
	bucket, key := s.CodeBucket, s.CodeKey
	if key == "" {
		key = DefaultLambdaCodeKey
	}
	if s.LambdaCode != nil {
		fmt.Fprintln(s.out(), "Building customer support Lambda...")
		zipped, err := s.LambdaCode(ctx)
		if err != nil {
			return fmt.Errorf("building Lambda code: %w", err)
		}
		if bucket == "" {
			if bucket, err = s.ensureBucket(ctx); err != nil {
				return err
			}
		}
		_, err = s.Storage.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(zipped),
		})
		if err != nil {
			return fmt.Errorf("uploading %s: %w", key, err)
		}
		fmt.Fprintf(s.out(), "Uploaded Lambda code to s3://%s/%s\n", bucket, key)
	}

	params := make(map[string]string, len(s.Parameters)+2)
	for k, v := range s.Parameters {
		params[k] = v
	}
	params[ParamLambdaCodeBucket] = bucket
	params[ParamLambdaCodeKey] = key
	s.Parameters = params
	return nil
}

// MissingParameters lists, in template order, the parameters of a JSON or
// YAML CloudFormation template that have no Default and no value in params.
func MissingParameters(template string, params map[string]string) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(template), &doc); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	declared := mappingValue(doc.Content[0], "Parameters")
	if declared == nil || declared.Kind != yaml.MappingNode {
		return nil, nil
	}
	var missing []string
	for i := 0; i+1 < len(declared.Content); i += 2 {
		name := declared.Content[i].Value
		if mappingValue(declared.Content[i+1], "Default") != nil {
			continue
		}
		if params[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func stackParameters(params map[string]string) []cfntypes.Parameter {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]cfntypes.Parameter, 0, len(keys))
	for _, k := range keys {
		out = append(out, cfntypes.Parameter{ParameterKey: aws.String(k), ParameterValue: aws.String(params[k])})
	}
	return out
}

func infrastructureFromOutputs(outputs []cfntypes.Output) (*Infrastructure, error) {
	values := make(map[string]string, len(outputs))
	for _, o := range outputs {
		values[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	infra := &Infrastructure{
		LambdaARN:      values[OutputLambdaARN],
		GatewayRoleARN: values[OutputGatewayRoleARN],
		RuntimeRoleARN: values[OutputRuntimeRoleARN],
	}
	var missing []string
	for _, key := range []string{OutputLambdaARN, OutputGatewayRoleARN, OutputRuntimeRoleARN} {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("stack outputs missing: %s", strings.Join(missing, ", "))
	}
	return infra, nil
}

// EnsureGateway returns the id and URL of the named gateway, creating it
// with IAM authorization when it does not exist and waiting until it is
// ready.
func (s *Setup) EnsureGateway(ctx context.Context, roleARN string) (string, string, error) {
	id, err := s.findGateway(ctx)
	if err != nil {
		return "", "", err
	}
	if id != "" {
		got, err := s.Control.GetGateway(ctx, &bedrockagentcorecontrol.GetGatewayInput{GatewayIdentifier: aws.String(id)})
		if err != nil {
			return "", "", fmt.Errorf("getting gateway %s: %w", id, err)
		}
		fmt.Fprintf(s.out(), "Using existing gateway: %s\n", id)
		return id, aws.ToString(got.GatewayUrl), nil
	}

	created, err := s.Control.CreateGateway(ctx, &bedrockagentcorecontrol.CreateGatewayInput{
		Name:           aws.String(GatewayName),
		RoleArn:        aws.String(roleARN),
		ProtocolType:   "MCP",
		AuthorizerType: "AWS_IAM",
		Description:    aws.String("Customer Support Gateway with Lambda and NASA API targets"),
	})
	if err != nil {
		return "", "", fmt.Errorf("creating gateway: %w", err)
	}
	id = aws.ToString(created.GatewayId)
	fmt.Fprintf(s.out(), "Gateway created: %s\n", id)

	fmt.Fprintln(s.out(), "Waiting for gateway to be ready...")
	if err := s.waitForGateway(ctx, id); err != nil {
		return "", "", err
	}
	return id, aws.ToString(created.GatewayUrl), nil
}

func (s *Setup) findGateway(ctx context.Context) (string, error) {
	var next *string
	for {
		out, err := s.Control.ListGateways(ctx, &bedrockagentcorecontrol.ListGatewaysInput{NextToken: next})
		if err != nil {
			return "", fmt.Errorf("listing gateways: %w", err)
		}
		for _, g := range out.Items {
			if aws.ToString(g.Name) == GatewayName {
				return aws.ToString(g.GatewayId), nil
			}
		}
		if out.NextToken == nil {
			return "", nil
		}
		next = out.NextToken
	}
}

func (s *Setup) waitForGateway(ctx context.Context, id string) error {
	b := s.Backoff
	if b == nil {
		b = backoff.NewConstantBackOff(DefaultPollEvery)
	}
	return backoff.Retry(func() error {
		got, err := s.Control.GetGateway(ctx, &bedrockagentcorecontrol.GetGatewayInput{GatewayIdentifier: aws.String(id)})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("getting gateway %s: %w", id, err))
		}
		switch status := string(got.Status); status {
		case "READY", "ACTIVE":
			fmt.Fprintf(s.out(), "Gateway is now %s!\n", strings.ToLower(status))
			return nil
		case "FAILED":
			return backoff.Permanent(fmt.Errorf("gateway creation failed: %s", strings.Join(got.StatusReasons, "; ")))
		default:
			return fmt.Errorf("gateway %s is %s", id, status)
		}
	}, backoff.WithContext(b, ctx))
}

func (s *Setup) targetNames(ctx context.Context, gatewayID string) (map[string]bool, error) {
	names := map[string]bool{}
	var next *string
	for {
		out, err := s.Control.ListGatewayTargets(ctx, &bedrockagentcorecontrol.ListGatewayTargetsInput{
			GatewayIdentifier: aws.String(gatewayID),
			NextToken:         next,
		})
		if err != nil {
			return nil, err
		}
		for _, t := range out.Items {
			names[aws.ToString(t.Name)] = true
		}
		if out.NextToken == nil {
			return names, nil
		}
		next = out.NextToken
	}
}

// CreateLambdaTarget adds the customer support Lambda as an MCP target.
func (s *Setup) CreateLambdaTarget(ctx context.Context, gatewayID, lambdaARN string) error {
	_, err := s.Control.CreateGatewayTarget(ctx, &bedrockagentcorecontrol.CreateGatewayTargetInput{
		GatewayIdentifier:                aws.String(gatewayID),
		Name:                             aws.String(LambdaTargetName),
		Description:                      aws.String("Lambda Target for Customer Support"),
		TargetConfiguration:              LambdaTargetConfiguration(lambdaARN, CustomerSupportTools()),
		CredentialProviderConfigurations: IAMRoleCredentials(),
	})
	return err
}

// CreateNasaTarget uploads the NASA OpenAPI document to a fresh bucket and
// adds it as a target authenticated with the NasaInsightAPIKey provider.
// The key is prompted for only when the provider does not exist yet.
func (s *Setup) CreateNasaTarget(ctx context.Context, gatewayID string) error {
	providerARN, err := secrets.FindAPIKeyProvider(ctx, s.Control, NasaProviderName)
	if err != nil {
		return err
	}
	if providerARN != "" {
		fmt.Fprintln(s.out(), "Using existing NASA credential provider")
	} else {
		key, err := s.promptKey()
		if err != nil {
			return err
		}
		if key == "" {
			fmt.Fprintln(s.out(), "Skipping NASA target - no API key provided")
			return nil
		}
		created, err := s.Control.CreateApiKeyCredentialProvider(ctx, &bedrockagentcorecontrol.CreateApiKeyCredentialProviderInput{
			Name:   aws.String(NasaProviderName),
			ApiKey: aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("creating NASA credential provider: %w", err)
		}
		providerARN = aws.ToString(created.CredentialProviderArn)
		fmt.Fprintln(s.out(), "Created NASA credential provider")
	}

	uri, err := s.UploadSpec(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out(), "Uploaded OpenAPI spec to S3")

	_, err = s.Control.CreateGatewayTarget(ctx, &bedrockagentcorecontrol.CreateGatewayTargetInput{
		GatewayIdentifier:                aws.String(gatewayID),
		Name:                             aws.String(NasaTargetName),
		Description:                      aws.String("NASA Mars Weather API Target"),
		TargetConfiguration:              OpenAPITargetConfiguration(uri),
		CredentialProviderConfigurations: APIKeyQueryCredentials(providerARN, NasaAPIKeyParam),
	})
	if err != nil {
		return fmt.Errorf("creating NASA target: %w", err)
	}
	fmt.Fprintln(s.out(), "NASA target created successfully!")
	return nil
}

// UploadSpec stores the OpenAPI document in the setup bucket, which shares
// the Lambda code bucket when one was created, and returns its s3:// URI.
func (s *Setup) UploadSpec(ctx context.Context) (string, error) {
	bucket, err := s.ensureBucket(ctx)
	if err != nil {
		return "", err
	}

	spec := s.OpenAPISpec
	if spec == nil {
		spec = nasaOpenAPISpec
	}
	_, err = s.Storage.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(NasaSpecObjectKey),
		Body:   bytes.NewReader(spec),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", NasaSpecObjectKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, NasaSpecObjectKey), nil
}

// ensureBucket creates an agentcore-gateway-<id> bucket once per Setup.
func (s *Setup) ensureBucket(ctx context.Context) (string, error) {
	if s.bucket != "" {
		return s.bucket, nil
	}
	newID := s.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	bucket := BucketPrefix + newID()

	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if region := s.bucketRegion(); region != defaultBucketRegion {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}
	if _, err := s.Storage.CreateBucket(ctx, in); err != nil {
		return "", fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	s.bucket = bucket
	return bucket, nil
}

func (s *Setup) bucketRegion() string {
	if s.Region == "" {
		return defaultBucketRegion
	}
	return s.Region
}

func (s *Setup) promptKey() (string, error) {
	if s.PromptKey == nil {
		return "", nil
	}
	key, err := s.PromptKey()
	if err != nil {
		return "", fmt.Errorf("reading NASA API key: %w", err)
	}
	return strings.TrimSpace(key), nil
}

func (s *Setup) out() io.Writer {
	if s.Out == nil {
		return io.Discard
	}
	return s.Out
}
