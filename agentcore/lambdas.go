package agentcore

import (
	"slices"
	"sort"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/jsii-runtime-go"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/lambdas/customersupport"
)

// Environment variables naming the customer support tables.
const (
	EnvCustomerTable = "CUSTOMER_TABLE"
	EnvWarrantyTable = "WARRANTY_TABLE"
)

// createLambda declares a Go tool function. CodeDir must contain a
// bootstrap binary built for linux/arm64.
func (s *AgentCoreStack) createLambda(cfg LambdaConfig) {
	env := make(map[string]*string, len(cfg.Environment))
	for k, v := range cfg.Environment {
		env[k] = jsii.String(v)
	}
	fn := awslambda.NewFunction(s.Stack, jsii.String(constructID(cfg.Name)), &awslambda.FunctionProps{
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Architecture: awslambda.Architecture_ARM_64(),
		Handler:      jsii.String("bootstrap"),
		Code:         awslambda.Code_FromAsset(jsii.String(cfg.CodeDir), nil),
		Timeout:      awscdk.Duration_Seconds(jsii.Number(float64(cfg.TimeoutSeconds))),
		MemorySize:   jsii.Number(float64(cfg.MemoryMB)),
		Tracing:      awslambda.Tracing_ACTIVE,
		Environment:  &env,
	})
	s.Functions[cfg.Name] = fn
}

// createTables declares the customer support tables: profiles keyed by
// customer_id with email and phone indexes, and warranties keyed by
// serial_number.
func (s *AgentCoreStack) createTables() {
	if s.Config.Tables == nil || !s.Config.Tables.CustomerSupport {
		return
	}
	s.CustomerTable = awsdynamodb.NewTable(s.Stack, jsii.String("CustomerProfileTable"), &awsdynamodb.TableProps{
		PartitionKey:  stringKey("customer_id"),
		BillingMode:   awsdynamodb.BillingMode_PAY_PER_REQUEST,
		RemovalPolicy: s.removalPolicy(),
	})
	indexes := map[string]string{customersupport.EmailIndex: "email", customersupport.PhoneIndex: "phone"}
	for _, index := range sortedKeys(indexes) {
		s.CustomerTable.AddGlobalSecondaryIndex(&awsdynamodb.GlobalSecondaryIndexProps{
			IndexName:    jsii.String(index),
			PartitionKey: stringKey(indexes[index]),
		})
	}
	s.WarrantyTable = awsdynamodb.NewTable(s.Stack, jsii.String("WarrantyTable"), &awsdynamodb.TableProps{
		PartitionKey:  stringKey("serial_number"),
		BillingMode:   awsdynamodb.BillingMode_PAY_PER_REQUEST,
		RemovalPolicy: s.removalPolicy(),
	})
}

// grantTables gives every function serving a customer support tool read
// access to the tables and their names.
func (s *AgentCoreStack) grantTables() {
	if s.CustomerTable == nil {
		return
	}
	for _, cfg := range s.Config.Lambdas {
		if !slices.Contains(cfg.Tools, ToolGetCustomerProfile) && !slices.Contains(cfg.Tools, ToolCheckWarrantyStatus) {
			continue
		}
		fn := s.Functions[cfg.Name]
		s.CustomerTable.GrantReadData(fn)
		s.WarrantyTable.GrantReadData(fn)
		fn.AddEnvironment(jsii.String(EnvCustomerTable), s.CustomerTable.TableName(), nil)
		fn.AddEnvironment(jsii.String(EnvWarrantyTable), s.WarrantyTable.TableName(), nil)
	}
}

func stringKey(name string) *awsdynamodb.Attribute {
	return &awsdynamodb.Attribute{Name: jsii.String(name), Type: awsdynamodb.AttributeType_STRING}
}

// constructID turns a tool name such as web_extract into WebExtract.
func constructID(name string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' }) {
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
