package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoInventoryStore keeps stock counts in a DynamoDB table keyed by
// product_id, with the count in the "available" attribute.
type DynamoInventoryStore struct {
	client dynamoAPI
	table  string
}

func NewDynamoInventoryStore(client *dynamodb.Client, table string) *DynamoInventoryStore {
	return &DynamoInventoryStore{client: client, table: table}
}

type ddbInventory struct {
	ProductID string `dynamodbav:"product_id"`
	Available int    `dynamodbav:"available"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

func (s *DynamoInventoryStore) key(productID string) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"product_id": productID})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return key, nil
}

// DecrementIfSufficient subtracts qty from available when at least qty units
// are left.
func (s *DynamoInventoryStore) DecrementIfSufficient(ctx context.Context, productID string, qty int) error {
	err := s.adjust(ctx, productID, qty,
		"SET #avail = #avail - :qty, updated_at = :now",
		"attribute_exists(product_id) AND #avail >= :qty",
	)
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return fmt.Errorf("reserve failed: %w", err)
	}
	if _, getErr := s.Available(ctx, productID); errors.Is(getErr, ErrNotFound) {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

func (s *DynamoInventoryStore) Increment(ctx context.Context, productID string, qty int) error {
	err := s.adjust(ctx, productID, qty,
		"SET #avail = #avail + :qty, updated_at = :now",
		"attribute_exists(product_id)",
	)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("release failed: %w", err)
	}
	return nil
}

func (s *DynamoInventoryStore) Available(ctx context.Context, productID string) (int, error) {
	key, err := s.key(productID)
	if err != nil {
		return 0, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return 0, ErrNotFound
	}
	var item ddbInventory
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return 0, fmt.Errorf("unmarshal item: %w", err)
	}
	return item.Available, nil
}

func (s *DynamoInventoryStore) adjust(ctx context.Context, productID string, qty int, expr, cond string) error {
	key, err := s.key(productID)
	if err != nil {
		return err
	}
	qtyAV, err := attributevalue.Marshal(qty)
	if err != nil {
		return fmt.Errorf("marshal quantity: %w", err)
	}
	nowAV, _ := attributevalue.Marshal(time.Now().UTC().Format(time.RFC3339))

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 key,
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#avail": "available",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":qty": qtyAV,
			":now": nowAV,
		},
	})
	return err
}
