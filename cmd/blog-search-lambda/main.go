// blog-search-lambda serves the aws_blogs_search gateway tool.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/lambdas/blogsearch"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/logging"
)

func main() {
	s := &blogsearch.Searcher{
		Client: &http.Client{Timeout: 30 * time.Second},
		Logger: logging.New("blog-search"),
	}
	lambda.Start(func(ctx context.Context, ev blogsearch.Event) (blogsearch.Response, error) {
		return s.Search(ctx, ev), nil
	})
}
