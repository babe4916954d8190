// web-extract-lambda serves the web_extract gateway tool.
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/lambdas/webextract"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/logging"
)

func main() {
	e := &webextract.Extractor{Logger: logging.New("web-extract")}
	lambda.Start(e.Handle)
}
