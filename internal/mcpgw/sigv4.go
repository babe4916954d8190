// Package mcpgw connects agents to an AgentCore Gateway over MCP
// streamable HTTP, signing requests with SigV4.
package mcpgw

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// SigningService is the SigV4 service name of AgentCore Gateway.
const SigningService = "bedrock-agentcore"

// HTTPSigner is implemented by *v4.Signer.
type HTTPSigner interface {
	SignHTTP(ctx context.Context, credentials aws.Credentials, r *http.Request, payloadHash string, service string, region string, signingTime time.Time, optFns ...func(*v4.SignerOptions)) error
}

// SigV4Transport signs every request with the given credentials before
// handing it to Base.
type SigV4Transport struct {
	Base        http.RoundTripper
	Credentials aws.CredentialsProvider
	Signer      HTTPSigner
	Region      string
	Service     string
	Now         func() time.Time
}

// NewSigV4Transport returns a transport signing for the gateway service in
// region.
func NewSigV4Transport(creds aws.CredentialsProvider, region string) *SigV4Transport {
	return &SigV4Transport{
		Base:        http.DefaultTransport,
		Credentials: creds,
		Signer:      v4.NewSigner(),
		Region:      region,
		Service:     SigningService,
		Now:         time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *SigV4Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	creds, err := t.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieving credentials: %w", err)
	}

	signed := req.Clone(ctx)
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		signed.Body = io.NopCloser(bytes.NewReader(body))
		signed.ContentLength = int64(len(body))
		signed.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	sum := sha256.Sum256(body)
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	if err := t.Signer.SignHTTP(ctx, creds, signed, hex.EncodeToString(sum[:]), t.Service, t.Region, now()); err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(signed)
}
