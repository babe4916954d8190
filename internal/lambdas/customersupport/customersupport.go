// Package customersupport implements the customer support Lambda: customer
// profile lookup and warranty checks backed by DynamoDB.
package customersupport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/charmbracelet/log"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/lambdas"
)

// Table and index names.
const (
	CustomerTable = "CustomerProfileTable"
	WarrantyTable = "WarrantyTable"
	EmailIndex    = "email-index"
	PhoneIndex    = "phone-index"
)

// Operations.
const (
	OpGetCustomerProfile  = "get_customer_profile"
	OpCheckWarrantyStatus = "check_warranty_status"
)

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Event is the tool input. Operation may be omitted when the function is
// invoked through a gateway, which names the tool in the client context.
type Event struct {
	Operation     string `json:"operation,omitempty"`
	CustomerID    string `json:"customer_id,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	SerialNumber  string `json:"serial_number,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// Handler serves both operations.
type Handler struct {
	DB            DynamoAPI
	CustomerTable string
	WarrantyTable string
	Logger        *log.Logger
}

// New returns a Handler using the default table names.
func New(db DynamoAPI, logger *log.Logger) *Handler {
	return &Handler{DB: db, CustomerTable: CustomerTable, WarrantyTable: WarrantyTable, Logger: logger}
}

func errorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// Handle dispatches the event. Failures are reported in an "error" field
// rather than failing the invocation.
func (h *Handler) Handle(ctx context.Context, ev Event) (map[string]any, error) {
	op := ev.Operation
	if op == "" {
		op = lambdas.ToolName(ctx)
	}
	if h.Logger != nil {
		h.Logger.Info("customer support request", "operation", op)
	}

	var (
		res map[string]any
		err error
	)
	switch op {
	case OpGetCustomerProfile:
		res, err = h.GetCustomerProfile(ctx, ev)
	case OpCheckWarrantyStatus:
		res, err = h.CheckWarrantyStatus(ctx, ev)
	default:
		return errorResult("Unknown operation"), nil
	}
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("customer support request failed", "operation", op, "err", err)
		}
		return errorResult(err.Error()), nil
	}
	return res, nil
}

// GetCustomerProfile looks a customer up by id, else email, else phone.
func (h *Handler) GetCustomerProfile(ctx context.Context, ev Event) (map[string]any, error) {
	switch {
	case ev.CustomerID != "":
		item, err := h.getItem(ctx, h.CustomerTable, "customer_id", ev.CustomerID)
		if err != nil || item != nil {
			return item, err
		}
	case ev.Email != "":
		item, err := h.queryFirst(ctx, EmailIndex, "email", ev.Email)
		if err != nil || item != nil {
			return item, err
		}
	case ev.Phone != "":
		item, err := h.queryFirst(ctx, PhoneIndex, "phone", ev.Phone)
		if err != nil || item != nil {
			return item, err
		}
	default:
		return errorResult("Customer ID, email, or phone required"), nil
	}
	return errorResult("Customer not found"), nil
}

// CheckWarrantyStatus returns the warranty of a serial number, verifying
// the owner's email when one is given.
func (h *Handler) CheckWarrantyStatus(ctx context.Context, ev Event) (map[string]any, error) {
	if ev.SerialNumber == "" {
		return errorResult("Serial number required"), nil
	}
	warranty, err := h.getItem(ctx, h.WarrantyTable, "serial_number", ev.SerialNumber)
	if err != nil {
		return nil, err
	}
	if warranty == nil {
		return errorResult("Product not found"), nil
	}
	if ev.CustomerEmail != "" && warranty["customer_email"] != ev.CustomerEmail {
		return errorResult("Email does not match warranty record"), nil
	}
	return warranty, nil
}

func (h *Handler) getItem(ctx context.Context, table, key, value string) (map[string]any, error) {
	k, err := attributevalue.MarshalMap(map[string]string{key: value})
	if err != nil {
		return nil, err
	}
	out, err := h.DB.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(table), Key: k})
	if err != nil {
		return nil, fmt.Errorf("getting %s from %s: %w", value, table, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	return unmarshalItem(out.Item)
}

func (h *Handler) queryFirst(ctx context.Context, index, key, value string) (map[string]any, error) {
	cond := expression.Key(key).Equal(expression.Value(value))
	expr, err := expression.NewBuilder().WithKeyCondition(cond).Build()
	if err != nil {
		return nil, err
	}
	out, err := h.DB.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(h.CustomerTable),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", index, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	return unmarshalItem(out.Items[0])
}

func unmarshalItem(item map[string]types.AttributeValue) (map[string]any, error) {
	var out map[string]any
	if err := attributevalue.UnmarshalMap(item, &out); err != nil {
		return nil, fmt.Errorf("decoding item: %w", err)
	}
	return out, nil
}
