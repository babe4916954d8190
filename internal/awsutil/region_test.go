package awsutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegionFromARN(t *testing.T) {
	tests := []struct {
		name    string
		arn     string
		want    string
		wantErr bool
	}{
		{"runtime arn", "arn:aws:bedrock-agentcore:us-west-2:123456789012:runtime/my_agent-abc", "us-west-2", false},
		{"eu region", "arn:aws:bedrock-agentcore:eu-central-1:123:runtime/x", "eu-central-1", false},
		{"too short", "arn:aws:bedrock-agentcore", "", true},
		{"empty region", "arn:aws:s3:::bucket", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RegionFromARN(tt.arn)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRegionForARN(t *testing.T) {
	arn := "arn:aws:bedrock-agentcore:ap-southeast-2:123:runtime/x"

	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv("AWS_REGION", "us-east-2")
		got, err := RegionForARN("eu-west-1", arn)
		require.NoError(t, err)
		require.Equal(t, "eu-west-1", got)
	})
	t.Run("env before arn", func(t *testing.T) {
		t.Setenv("AWS_REGION", "us-east-2")
		got, err := RegionForARN("", arn)
		require.NoError(t, err)
		require.Equal(t, "us-east-2", got)
	})
	t.Run("arn fallback", func(t *testing.T) {
		t.Setenv("AWS_REGION", "")
		got, err := RegionForARN("", arn)
		require.NoError(t, err)
		require.Equal(t, "ap-southeast-2", got)
	})
}

func TestResolveRegion(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	require.Equal(t, DefaultRegion, ResolveRegion(""))

	t.Setenv("AWS_DEFAULT_REGION", "eu-west-3")
	require.Equal(t, "eu-west-3", ResolveRegion(""))

	t.Setenv("AWS_REGION", "us-west-1")
	require.Equal(t, "us-west-1", ResolveRegion(""))
	require.Equal(t, "sa-east-1", ResolveRegion("sa-east-1"))
}

func TestRegionFromGatewayURL(t *testing.T) {
	got, err := RegionFromGatewayURL("https://customer-support-gateway-abc.gateway.bedrock-agentcore.us-west-2.amazonaws.com/mcp")
	require.NoError(t, err)
	require.Equal(t, "us-west-2", got)

	_, err = RegionFromGatewayURL("https://example.com/mcp")
	require.Error(t, err)
}
