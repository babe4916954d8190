package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

type fakeStacks struct {
	exists    bool
	createErr error
	created   *cloudformation.CreateStackInput
	outputs   []cfntypes.Output
}

func (f *fakeStacks) CreateStack(_ context.Context, in *cloudformation.CreateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.created = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &cloudformation.CreateStackOutput{StackId: aws.String("stack-1")}, nil
}

func (f *fakeStacks) DescribeStacks(_ context.Context, _ *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if !f.exists && f.created == nil {
		return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id " + StackName + " does not exist"}
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []cfntypes.Stack{{
		StackName:   aws.String(StackName),
		StackStatus: cfntypes.StackStatusCreateComplete,
		Outputs:     f.outputs,
	}}}, nil
}

func stackOutputs() []cfntypes.Output {
	return []cfntypes.Output{
		{OutputKey: aws.String(OutputLambdaARN), OutputValue: aws.String("arn:aws:lambda:us-west-2:123456789012:function:support")},
		{OutputKey: aws.String(OutputGatewayRoleARN), OutputValue: aws.String("arn:aws:iam::123456789012:role/gateway")},
		{OutputKey: aws.String(OutputRuntimeRoleARN), OutputValue: aws.String("arn:aws:iam::123456789012:role/runtime")},
	}
}

type fakeControl struct {
	gateways  []types.GatewaySummary
	statuses  []types.GatewayStatus
	getCalls  int
	created   *bedrockagentcorecontrol.CreateGatewayInput
	targets   []types.TargetSummary
	newTarget []*bedrockagentcorecontrol.CreateGatewayTargetInput
	providers []types.ApiKeyCredentialProviderItem
	newKey    string
}

func (f *fakeControl) ListGateways(context.Context, *bedrockagentcorecontrol.ListGatewaysInput, ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListGatewaysOutput, error) {
	return &bedrockagentcorecontrol.ListGatewaysOutput{Items: f.gateways}, nil
}

func (f *fakeControl) GetGateway(context.Context, *bedrockagentcorecontrol.GetGatewayInput, ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.GetGatewayOutput, error) {
	status := types.GatewayStatus("READY")
	if f.getCalls < len(f.statuses) {
		status = f.statuses[f.getCalls]
	}
	f.getCalls++
	return &bedrockagentcorecontrol.GetGatewayOutput{
		GatewayUrl: aws.String("https://gw-existing.gateway.bedrock-agentcore.us-west-2.amazonaws.com/mcp"),
		Status:     status,
	}, nil
}

func (f *fakeControl) CreateGateway(_ context.Context, in *bedrockagentcorecontrol.CreateGatewayInput, _ ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateGatewayOutput, error) {
	f.created = in
	return &bedrockagentcorecontrol.CreateGatewayOutput{
		GatewayId:  aws.String("gw-new"),
		GatewayUrl: aws.String("https://gw-new.gateway.bedrock-agentcore.us-west-2.amazonaws.com/mcp"),
	}, nil
}

func (f *fakeControl) ListGatewayTargets(context.Context, *bedrockagentcorecontrol.ListGatewayTargetsInput, ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListGatewayTargetsOutput, error) {
	return &bedrockagentcorecontrol.ListGatewayTargetsOutput{Items: f.targets}, nil
}

func (f *fakeControl) CreateGatewayTarget(_ context.Context, in *bedrockagentcorecontrol.CreateGatewayTargetInput, _ ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateGatewayTargetOutput, error) {
	f.newTarget = append(f.newTarget, in)
	return &bedrockagentcorecontrol.CreateGatewayTargetOutput{}, nil
}

func (f *fakeControl) ListApiKeyCredentialProviders(context.Context, *bedrockagentcorecontrol.ListApiKeyCredentialProvidersInput, ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListApiKeyCredentialProvidersOutput, error) {
	return &bedrockagentcorecontrol.ListApiKeyCredentialProvidersOutput{CredentialProviders: f.providers}, nil
}

func (f *fakeControl) CreateApiKeyCredentialProvider(_ context.Context, in *bedrockagentcorecontrol.CreateApiKeyCredentialProviderInput, _ ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateApiKeyCredentialProviderOutput, error) {
	f.newKey = aws.ToString(in.ApiKey)
	return &bedrockagentcorecontrol.CreateApiKeyCredentialProviderOutput{
		CredentialProviderArn: aws.String("arn:aws:bedrock-agentcore:us-west-2:123456789012:token-vault/default/apikeycredentialprovider/NasaInsightAPIKey"),
	}, nil
}

func (f *fakeControl) UpdateApiKeyCredentialProvider(context.Context, *bedrockagentcorecontrol.UpdateApiKeyCredentialProviderInput, ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.UpdateApiKeyCredentialProviderOutput, error) {
	return &bedrockagentcorecontrol.UpdateApiKeyCredentialProviderOutput{}, nil
}

type fakeStorage struct {
	bucket  *s3.CreateBucketInput
	buckets int
	object  *s3.PutObjectInput
	objects []string
	body    []byte
}

func (f *fakeStorage) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.bucket = in
	f.buckets++
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeStorage) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.object = in
	f.objects = append(f.objects, "s3://"+aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func newSetup(stacks *fakeStacks, control *fakeControl, storage *fakeStorage, key string) *Setup {
	return &Setup{
		Stacks:     stacks,
		Control:    control,
		Storage:    storage,
		Region:     "us-west-2",
		Out:        &bytes.Buffer{},
		PromptKey:  func() (string, error) { return key, nil },
		Parameters: map[string]string{ParamLambdaCodeBucket: "code"},
		NewID:      func() string { return "1234" },
		Backoff:    &backoff.ZeroBackOff{},
	}
}

func TestRunCreatesGatewayAndTargets(t *testing.T) {
	stacks := &fakeStacks{exists: true, outputs: stackOutputs()}
	control := &fakeControl{statuses: []types.GatewayStatus{"CREATING", "CREATING", "READY"}}
	storage := &fakeStorage{}
	setup := newSetup(stacks, control, storage, "nasa-key")

	res, err := setup.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "gw-new", res.GatewayID)
	require.Equal(t, "https://gw-new.gateway.bedrock-agentcore.us-west-2.amazonaws.com/mcp", res.GatewayURL)
	require.Equal(t, "arn:aws:iam::123456789012:role/runtime", res.RuntimeRoleARN)
	require.Equal(t, 3, control.getCalls)

	require.Equal(t, GatewayName, aws.ToString(control.created.Name))
	require.Equal(t, "arn:aws:iam::123456789012:role/gateway", aws.ToString(control.created.RoleArn))
	require.EqualValues(t, "MCP", control.created.ProtocolType)
	require.EqualValues(t, "AWS_IAM", control.created.AuthorizerType)

	require.Len(t, control.newTarget, 2)
	require.Equal(t, LambdaTargetName, aws.ToString(control.newTarget[0].Name))
	require.Equal(t, NasaTargetName, aws.ToString(control.newTarget[1].Name))
	require.Equal(t, "nasa-key", control.newKey)

	require.Equal(t, "agentcore-gateway-1234", aws.ToString(storage.bucket.Bucket))
	require.EqualValues(t, "us-west-2", storage.bucket.CreateBucketConfiguration.LocationConstraint)
	require.Equal(t, NasaSpecObjectKey, aws.ToString(storage.object.Key))
	require.Contains(t, string(storage.body), "getInsightWeather")

	creds := control.newTarget[1].CredentialProviderConfigurations[0]
	require.EqualValues(t, "API_KEY", creds.CredentialProviderType)
	apiKey, ok := creds.CredentialProvider.(*types.CredentialProviderMemberApiKeyCredentialProvider)
	require.True(t, ok)
	require.Equal(t, "api_key", aws.ToString(apiKey.Value.CredentialParameterName))
	require.EqualValues(t, "QUERY_PARAMETER", apiKey.Value.CredentialLocation)

	mcpCfg := control.newTarget[1].TargetConfiguration.(*types.TargetConfigurationMemberMcp)
	openAPI := mcpCfg.Value.(*types.McpTargetConfigurationMemberOpenApiSchema)
	s3Cfg := openAPI.Value.(*types.ApiSchemaConfigurationMemberS3)
	require.Equal(t, "s3://agentcore-gateway-1234/nasa_mars_insights_openapi.json", aws.ToString(s3Cfg.Value.Uri))
}

func TestRunReusesExistingGatewayAndTargets(t *testing.T) {
	stacks := &fakeStacks{exists: true, outputs: stackOutputs()}
	control := &fakeControl{
		gateways: []types.GatewaySummary{
			{GatewayId: aws.String("gw-other"), Name: aws.String("other")},
			{GatewayId: aws.String("gw-existing"), Name: aws.String(GatewayName)},
		},
		targets: []types.TargetSummary{
			{Name: aws.String(LambdaTargetName)},
			{Name: aws.String(NasaTargetName)},
		},
	}
	setup := newSetup(stacks, control, &fakeStorage{}, "")

	res, err := setup.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "gw-existing", res.GatewayID)
	require.Nil(t, control.created)
	require.Empty(t, control.newTarget)
}

func TestRunSkipsNasaTargetWithoutKey(t *testing.T) {
	stacks := &fakeStacks{exists: true, outputs: stackOutputs()}
	control := &fakeControl{}
	storage := &fakeStorage{}
	setup := newSetup(stacks, control, storage, "  ")

	_, err := setup.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, control.newTarget, 1)
	require.Equal(t, LambdaTargetName, aws.ToString(control.newTarget[0].Name))
	require.Nil(t, storage.bucket)
}

func TestRunReusesNasaProvider(t *testing.T) {
	stacks := &fakeStacks{exists: true, outputs: stackOutputs()}
	control := &fakeControl{providers: []types.ApiKeyCredentialProviderItem{{
		Name:                  aws.String(NasaProviderName),
		CredentialProviderArn: aws.String("arn:existing"),
	}}}
	setup := newSetup(stacks, control, &fakeStorage{}, "unused")

	_, err := setup.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, control.newKey)
	require.Len(t, control.newTarget, 2)
}

func TestGatewayFailure(t *testing.T) {
	control := &fakeControl{statuses: []types.GatewayStatus{"CREATING", "FAILED"}}
	setup := newSetup(&fakeStacks{}, control, &fakeStorage{}, "")

	_, _, err := setup.EnsureGateway(context.Background(), "arn:role")
	require.ErrorContains(t, err, "gateway creation failed")
}

func TestDeployInfrastructure(t *testing.T) {
	t.Run("creates and waits", func(t *testing.T) {
		stacks := &fakeStacks{outputs: stackOutputs()}
		setup := newSetup(stacks, &fakeControl{}, &fakeStorage{}, "")

		infra, err := setup.DeployInfrastructure(context.Background())
		require.NoError(t, err)
		require.Equal(t, "arn:aws:lambda:us-west-2:123456789012:function:support", infra.LambdaARN)
		require.Equal(t, []cfntypes.Capability{cfntypes.CapabilityCapabilityIam}, stacks.created.Capabilities)
		require.Contains(t, aws.ToString(stacks.created.TemplateBody), "CustomerProfileTable")
		require.Equal(t, "LambdaCodeBucket", aws.ToString(stacks.created.Parameters[0].ParameterKey))
	})

	t.Run("create error", func(t *testing.T) {
		stacks := &fakeStacks{createErr: errors.New("access denied")}
		setup := newSetup(stacks, &fakeControl{}, &fakeStorage{}, "")
		_, err := setup.DeployInfrastructure(context.Background())
		require.ErrorContains(t, err, "access denied")
	})

	t.Run("lost creation race", func(t *testing.T) {
		stacks := &fakeStacks{createErr: &cfntypes.AlreadyExistsException{}, outputs: stackOutputs()}
		setup := newSetup(stacks, &fakeControl{}, &fakeStorage{}, "")
		infra, err := setup.DeployInfrastructure(context.Background())
		require.NoError(t, err)
		require.NotNil(t, stacks.created)
		require.Equal(t, "arn:aws:iam::123456789012:role/runtime", infra.RuntimeRoleARN)
	})

	t.Run("missing outputs", func(t *testing.T) {
		stacks := &fakeStacks{exists: true, outputs: stackOutputs()[:1]}
		setup := newSetup(stacks, &fakeControl{}, &fakeStorage{}, "")
		_, err := setup.DeployInfrastructure(context.Background())
		require.EqualError(t, err, "stack outputs missing: GatewayAgentCoreRoleArn, AgentCoreRuntimeExecutionRoleArn")
	})
}

func TestMissingParameters(t *testing.T) {
	missing, err := MissingParameters(CustomerSupportTemplate(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{ParamLambdaCodeBucket}, missing)

	missing, err = MissingParameters(CustomerSupportTemplate(), map[string]string{ParamLambdaCodeBucket: "code"})
	require.NoError(t, err)
	require.Empty(t, missing)

	json := `{"Parameters": {"A": {"Type": "String"}, "B": {"Type": "String", "Default": "x"}, "C": {"Type": "String"}}}`
	missing, err = MissingParameters(json, map[string]string{"C": "set"})
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, missing)

	missing, err = MissingParameters("Resources: {}", nil)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestDeployInfrastructureRequiresCodeBucket(t *testing.T) {
	stacks := &fakeStacks{outputs: stackOutputs()}
	setup := newSetup(stacks, &fakeControl{}, &fakeStorage{}, "")
	setup.Parameters = nil

	_, err := setup.DeployInfrastructure(context.Background())
	require.EqualError(t, err, "stack parameters without a value: LambdaCodeBucket")
	require.Nil(t, stacks.created)
}

func TestRunStagesLambdaCode(t *testing.T) {
	stacks := &fakeStacks{outputs: stackOutputs()}
	storage := &fakeStorage{}
	setup := newSetup(stacks, &fakeControl{}, storage, "nasa-key")
	setup.Parameters = nil
	builds := 0
	setup.LambdaCode = func(context.Context) ([]byte, error) {
		builds++
		return ZipBootstrap([]byte("binary"))
	}

	_, err := setup.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, builds)
	require.Equal(t, 1, storage.buckets)
	require.Equal(t, []string{
		"s3://agentcore-gateway-1234/customer-support-lambda.zip",
		"s3://agentcore-gateway-1234/nasa_mars_insights_openapi.json",
	}, storage.objects)
	require.Equal(t, []cfntypes.Parameter{
		{ParameterKey: aws.String(ParamLambdaCodeBucket), ParameterValue: aws.String("agentcore-gateway-1234")},
		{ParameterKey: aws.String(ParamLambdaCodeKey), ParameterValue: aws.String(DefaultLambdaCodeKey)},
	}, stacks.created.Parameters)
}

func TestExistingStackSkipsLambdaCode(t *testing.T) {
	stacks := &fakeStacks{exists: true, outputs: stackOutputs()}
	setup := newSetup(stacks, &fakeControl{}, &fakeStorage{}, "")
	setup.Parameters = nil
	setup.LambdaCode = func(context.Context) ([]byte, error) { return nil, errors.New("should not build") }

	_, err := setup.DeployInfrastructure(context.Background())
	require.NoError(t, err)
	require.Nil(t, stacks.created)
}

func TestUploadedCodeBucket(t *testing.T) {
	stacks := &fakeStacks{outputs: stackOutputs()}
	storage := &fakeStorage{}
	setup := newSetup(stacks, &fakeControl{}, storage, "")
	setup.Parameters = nil
	setup.CodeBucket = "my-code"
	setup.CodeKey = "support/v2.zip"

	_, err := setup.DeployInfrastructure(context.Background())
	require.NoError(t, err)
	require.Empty(t, storage.objects)
	require.Equal(t, []cfntypes.Parameter{
		{ParameterKey: aws.String(ParamLambdaCodeBucket), ParameterValue: aws.String("my-code")},
		{ParameterKey: aws.String(ParamLambdaCodeKey), ParameterValue: aws.String("support/v2.zip")},
	}, stacks.created.Parameters)
}

func TestZipBootstrap(t *testing.T) {
	b, err := ZipBootstrap([]byte("#!binary"))
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	f := zr.File[0]
	require.Equal(t, "bootstrap", f.Name)
	require.NotZero(t, f.Mode()&0o111)
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "#!binary", string(content))
}

func TestUploadSpecUsEast1(t *testing.T) {
	storage := &fakeStorage{}
	setup := newSetup(&fakeStacks{}, &fakeControl{}, storage, "")
	setup.Region = "us-east-1"

	uri, err := setup.UploadSpec(context.Background())
	require.NoError(t, err)
	require.Equal(t, "s3://agentcore-gateway-1234/nasa_mars_insights_openapi.json", uri)
	require.Nil(t, storage.bucket.CreateBucketConfiguration)
}

func TestLambdaTargetConfiguration(t *testing.T) {
	cfg := LambdaTargetConfiguration("arn:lambda", CustomerSupportTools())
	lambda := cfg.(*types.TargetConfigurationMemberMcp).Value.(*types.McpTargetConfigurationMemberLambda)
	require.Equal(t, "arn:lambda", aws.ToString(lambda.Value.LambdaArn))

	defs := lambda.Value.ToolSchema.(*types.ToolSchemaMemberInlinePayload).Value
	require.Len(t, defs, 2)
	require.Equal(t, "get_customer_profile", aws.ToString(defs[0].Name))
	require.Equal(t, []string{"customer_id"}, defs[0].InputSchema.Required)
	require.Len(t, defs[0].InputSchema.Properties, 3)
	require.EqualValues(t, "string", defs[1].InputSchema.Properties["customer_email"].Type)
}
