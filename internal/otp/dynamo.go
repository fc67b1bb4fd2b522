package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DynamoDBAPI is the subset of the DynamoDB client the store needs.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps OTP state in a DynamoDB table so multiple API instances
// share it. The table uses "email" as the partition key and a "ttl"
// attribute for expiry; verified-email markers live in the same table under
// a prefixed key.
type DynamoStore struct {
	client    DynamoDBAPI
	tableName string
}

const verifiedKeyPrefix = "verified#"

func NewDynamoStore(client DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (d *DynamoStore) Put(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	// DynamoDB's TTL sweeper wants an epoch-seconds number.
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpiresAt.Unix(), 10)}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (d *DynamoStore) Get(ctx context.Context, email string) (*Record, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &d.tableName,
		Key:            emailKey(email),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, false, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, true, nil
}

func (d *DynamoStore) Delete(ctx context.Context, email string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &d.tableName,
		Key:       emailKey(email),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (d *DynamoStore) MarkVerified(ctx context.Context, email string) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.tableName,
		Item: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: verifiedKeyPrefix + email},
		},
	})
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// ConsumeVerified deletes the marker only if it exists, so two concurrent
// registrations cannot both consume the same verification.
func (d *DynamoStore) ConsumeVerified(ctx context.Context, email string) (bool, error) {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &d.tableName,
		Key:                 emailKey(verifiedKeyPrefix + email),
		ConditionExpression: awsString("attribute_exists(email)"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("consume verified: %w", err)
	}
	return true, nil
}

// Sweep is a no-op: the table's TTL attribute handles expiry, and Verify
// still checks expiry lazily for records the TTL sweeper has not reached.
func (d *DynamoStore) Sweep(context.Context) error { return nil }

func emailKey(email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"email": &types.AttributeValueMemberS{Value: email},
	}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
