// customer-support-lambda serves the get_customer_profile and
// check_warranty_status gateway tools from DynamoDB.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v9"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/lambdas/customersupport"
	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/logging"
)

type tables struct {
	Customer string `env:"CUSTOMER_TABLE" envDefault:"CustomerProfileTable"`
	Warranty string `env:"WARRANTY_TABLE" envDefault:"WarrantyTable"`
}

func main() {
	logger := logging.New("customer-support")

	var t tables
	if err := env.Parse(&t); err != nil {
		logger.Fatal("parsing environment", "err", err)
	}
	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Fatal("loading AWS configuration", "err", err)
	}

	h := customersupport.New(dynamodb.NewFromConfig(cfg), logger)
	h.CustomerTable = t.Customer
	h.WarrantyTable = t.Warranty
	lambda.Start(h.Handle)
}
