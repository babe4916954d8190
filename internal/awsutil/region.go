// Package awsutil holds the small AWS helpers shared by the CLIs and agents:
// region resolution, ARN and URL parsing, and SDK config loading.
package awsutil

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultRegion is used when no other source provides a region.
const DefaultRegion = "us-east-1"

var gatewayRegionPattern = regexp.MustCompile(`\.([a-z]{2}-[a-z]+-\d+)\.`)

// ResolveRegion returns the first non-empty region from the explicit value,
// AWS_REGION, AWS_DEFAULT_REGION and finally DefaultRegion.
func ResolveRegion(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return DefaultRegion
}

// RegionFromARN extracts the region field of an ARN
// (arn:partition:service:region:account:resource).
func RegionFromARN(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 4 || parts[3] == "" {
		return "", fmt.Errorf("no region in ARN %q", arn)
	}
	return parts[3], nil
}

// RegionForARN resolves the region for calls against arn: the explicit
// value, then AWS_REGION, then the region embedded in the ARN.
func RegionForARN(explicit, arn string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r, nil
	}
	return RegionFromARN(arn)
}

// RegionFromGatewayURL extracts the AWS region from a gateway URL such as
// https://gw-123.gateway.bedrock-agentcore.us-west-2.amazonaws.com/mcp.
func RegionFromGatewayURL(url string) (string, error) {
	m := gatewayRegionPattern.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("could not extract region from URL: %s", url)
	}
	return m[1], nil
}

// LoadConfig loads the default AWS SDK configuration pinned to region.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}
