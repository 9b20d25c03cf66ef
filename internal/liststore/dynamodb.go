package liststore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/rankstamp/rankstamp/internal/config"
	"github.com/rankstamp/rankstamp/stamp"
)

const dynamoTimeFormat = "2006-01-02T15:04:05.000Z"

// DynamoDBStore implements the Store interface on a single DynamoDB table
// with a string partition key "pk" and a binary sort key "sk".
//
//	pk "LIST#{listID}"  sk "#METADATA"            -> list record
//	pk "ITEM#{listID}"  sk "{itemID}"             -> item record
//	pk "ORD#{listID}"   sk "{stamp}\x00{itemID}"  -> item record
//
// DynamoDB compares binary sort keys by unsigned byte order, so a Query on
// the ORD# partition returns items in stamp order. The ITEM# copy gives
// point lookups by ID; item writes keep the two copies in step with
// TransactWriteItems.
type DynamoDBStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoDBStore creates a store backed by the configured DynamoDB table.
// The table must exist with the pk (S) / sk (B) key schema.
func NewDynamoDBStore(cfg *config.DynamoDBConfig) (*DynamoDBStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dynamodb config is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}

	return &DynamoDBStore{
		client:    dynamodb.NewFromConfig(awsCfg),
		tableName: cfg.Table,
	}, nil
}

func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}

func (s *DynamoDBStore) Close() error {
	return nil
}

// ---- keys ----

func pkList(listID string) string {
	return "LIST#" + listID
}

func pkItem(listID string) string {
	return "ITEM#" + listID
}

func pkOrder(listID string) string {
	return "ORD#" + listID
}

func skMetadata() []byte {
	return []byte("#METADATA")
}

func skItem(itemID string) []byte {
	return []byte(itemID)
}

// skOrder composes the binary sort key for the ORD# partition. Stamp bytes
// never contain 0x00, so the separator keeps composite keys in stamp order.
func skOrder(st stamp.Stamp, itemID string) []byte {
	k := make([]byte, 0, len(st)+1+len(itemID))
	k = append(k, st...)
	k = append(k, 0x00)
	k = append(k, itemID...)
	return k
}

// skOrderSeek returns the smallest ORD# sort key whose stamp part sorts
// strictly after the marker. Entries at the marker stamp continue with
// 0x00, so appending 0x01 steps past exactly those.
func skOrderSeek(after stamp.Stamp) []byte {
	k := make([]byte, 0, len(after)+1)
	k = append(k, after...)
	k = append(k, 0x01)
	return k
}

// ---- List operations ----

func (s *DynamoDBStore) CreateList(ctx context.Context, list *ListRecord) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"pk":         &types.AttributeValueMemberS{Value: pkList(list.ID)},
			"sk":         &types.AttributeValueMemberB{Value: skMetadata()},
			"type":       &types.AttributeValueMemberS{Value: "list"},
			"id":         &types.AttributeValueMemberS{Value: list.ID},
			"title":      &types.AttributeValueMemberS{Value: list.Title},
			"created_at": &types.AttributeValueMemberS{Value: list.CreatedAt.UTC().Format(dynamoTimeFormat)},
		},
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		if strings.Contains(err.Error(), "ConditionalCheckFailedException") {
			return fmt.Errorf("%w: %s", ErrListExists, list.ID)
		}
		return fmt.Errorf("creating list: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetList(ctx context.Context, listID string) (*ListRecord, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pkList(listID)},
			"sk": &types.AttributeValueMemberB{Value: skMetadata()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting list: %w", err)
	}
	if resp.Item == nil {
		return nil, nil
	}
	return itemToList(resp.Item), nil
}

func (s *DynamoDBStore) DeleteList(ctx context.Context, listID string) error {
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	// Drain the ORD# partition; each entry names its ITEM# twin.
	var deleteKeys []map[string]types.AttributeValue
	var exclusiveStartKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pkOrder(listID)},
			},
		}
		if exclusiveStartKey != nil {
			input.ExclusiveStartKey = exclusiveStartKey
		}

		resp, err := s.client.Query(ctx, input)
		if err != nil {
			return fmt.Errorf("listing items for delete: %w", err)
		}

		for _, item := range resp.Items {
			rec := itemToItem(item)
			deleteKeys = append(deleteKeys,
				map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: pkOrder(listID)},
					"sk": &types.AttributeValueMemberB{Value: skOrder(rec.Stamp, rec.ID)},
				},
				map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: pkItem(listID)},
					"sk": &types.AttributeValueMemberB{Value: skItem(rec.ID)},
				},
			)
		}

		if resp.LastEvaluatedKey == nil {
			break
		}
		exclusiveStartKey = resp.LastEvaluatedKey
	}

	deleteKeys = append(deleteKeys, map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pkList(listID)},
		"sk": &types.AttributeValueMemberB{Value: skMetadata()},
	})

	for i := 0; i < len(deleteKeys); i += 25 {
		end := i + 25
		if end > len(deleteKeys) {
			end = len(deleteKeys)
		}

		var writeRequests []types.WriteRequest
		for _, key := range deleteKeys[i:end] {
			writeRequests = append(writeRequests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				s.tableName: writeRequests,
			},
		})
		if err != nil {
			return fmt.Errorf("deleting list records: %w", err)
		}
	}

	return nil
}

func (s *DynamoDBStore) ListLists(ctx context.Context) ([]*ListRecord, error) {
	var lists []*ListRecord

	var exclusiveStartKey map[string]types.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String("begins_with(pk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: "LIST#"},
			},
		}
		if exclusiveStartKey != nil {
			input.ExclusiveStartKey = exclusiveStartKey
		}

		resp, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("listing lists: %w", err)
		}

		for _, item := range resp.Items {
			lists = append(lists, itemToList(item))
		}

		if resp.LastEvaluatedKey == nil {
			break
		}
		exclusiveStartKey = resp.LastEvaluatedKey
	}

	sort.Slice(lists, func(i, j int) bool {
		return lists[i].ID < lists[j].ID
	})

	return lists, nil
}

// ---- Item operations ----

func (s *DynamoDBStore) PutItem(ctx context.Context, item *ItemRecord) error {
	list, err := s.GetList(ctx, item.ListID)
	if err != nil {
		return err
	}
	if list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, item.ListID)
	}

	attrs := itemAttrs(item)

	primary := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pkItem(item.ListID)},
		"sk": &types.AttributeValueMemberB{Value: skItem(item.ID)},
	}
	order := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pkOrder(item.ListID)},
		"sk": &types.AttributeValueMemberB{Value: skOrder(item.Stamp, item.ID)},
	}
	for k, v := range attrs {
		primary[k] = v
		order[k] = v
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                primary,
					ConditionExpression: aws.String("attribute_not_exists(pk)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      order,
				},
			},
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "ConditionalCheckFailed") {
			return fmt.Errorf("%w: %s/%s", ErrItemExists, item.ListID, item.ID)
		}
		return fmt.Errorf("putting item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetItem(ctx context.Context, listID, itemID string) (*ItemRecord, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pkItem(listID)},
			"sk": &types.AttributeValueMemberB{Value: skItem(itemID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	if resp.Item == nil {
		return nil, nil
	}
	return itemToItem(resp.Item), nil
}

func (s *DynamoDBStore) DeleteItem(ctx context.Context, listID, itemID string) error {
	item, err := s.GetItem(ctx, listID, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return s.missingItemErr(ctx, listID, itemID)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName: aws.String(s.tableName),
					Key: map[string]types.AttributeValue{
						"pk": &types.AttributeValueMemberS{Value: pkItem(listID)},
						"sk": &types.AttributeValueMemberB{Value: skItem(itemID)},
					},
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(s.tableName),
					Key: map[string]types.AttributeValue{
						"pk": &types.AttributeValueMemberS{Value: pkOrder(listID)},
						"sk": &types.AttributeValueMemberB{Value: skOrder(item.Stamp, itemID)},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) UpdateItemStamp(ctx context.Context, listID, itemID string, st stamp.Stamp, updatedAt time.Time) error {
	item, err := s.GetItem(ctx, listID, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return s.missingItemErr(ctx, listID, itemID)
	}

	oldOrderSK := skOrder(item.Stamp, itemID)
	item.Stamp = st
	item.UpdatedAt = updatedAt
	attrs := itemAttrs(item)

	primary := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pkItem(listID)},
		"sk": &types.AttributeValueMemberB{Value: skItem(itemID)},
	}
	order := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pkOrder(listID)},
		"sk": &types.AttributeValueMemberB{Value: skOrder(st, itemID)},
	}
	for k, v := range attrs {
		primary[k] = v
		order[k] = v
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName: aws.String(s.tableName),
					Key: map[string]types.AttributeValue{
						"pk": &types.AttributeValueMemberS{Value: pkOrder(listID)},
						"sk": &types.AttributeValueMemberB{Value: oldOrderSK},
					},
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      order,
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      primary,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("updating item stamp: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) UpdateItemPayload(ctx context.Context, listID, itemID string, payload json.RawMessage, updatedAt time.Time) error {
	item, err := s.GetItem(ctx, listID, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return s.missingItemErr(ctx, listID, itemID)
	}

	if payload == nil {
		payload = json.RawMessage("{}")
	}
	item.Payload = payload
	item.UpdatedAt = updatedAt
	attrs := itemAttrs(item)

	primary := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pkItem(listID)},
		"sk": &types.AttributeValueMemberB{Value: skItem(itemID)},
	}
	order := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pkOrder(listID)},
		"sk": &types.AttributeValueMemberB{Value: skOrder(item.Stamp, itemID)},
	}
	for k, v := range attrs {
		primary[k] = v
		order[k] = v
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      primary,
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      order,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("updating item payload: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListItems(ctx context.Context, listID string, opts ListItemsOptions) (*ListItemsResult, error) {
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	items := []*ItemRecord{}
	result := &ListItemsResult{}

	var exclusiveStartKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND sk >= :seek"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":   &types.AttributeValueMemberS{Value: pkOrder(listID)},
				":seek": &types.AttributeValueMemberB{Value: skOrderSeek(opts.After)},
			},
		}
		if opts.Limit > 0 {
			input.Limit = aws.Int32(int32(opts.Limit + 1))
		}
		if exclusiveStartKey != nil {
			input.ExclusiveStartKey = exclusiveStartKey
		}

		resp, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("listing items: %w", err)
		}

		for _, item := range resp.Items {
			if opts.Limit > 0 && len(items) == opts.Limit {
				result.IsTruncated = true
				result.NextAfter = items[len(items)-1].Stamp
				break
			}
			items = append(items, itemToItem(item))
		}
		if result.IsTruncated {
			break
		}

		if resp.LastEvaluatedKey == nil {
			break
		}
		exclusiveStartKey = resp.LastEvaluatedKey
	}

	result.Items = items
	return result, nil
}

func (s *DynamoDBStore) NextItem(ctx context.Context, listID string, after stamp.Stamp) (*ItemRecord, error) {
	resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND sk >= :seek"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: pkOrder(listID)},
			":seek": &types.AttributeValueMemberB{Value: skOrderSeek(after)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("finding item after stamp: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return itemToItem(resp.Items[0]), nil
}

func (s *DynamoDBStore) PrevItem(ctx context.Context, listID string, before stamp.Stamp) (*ItemRecord, error) {
	// Order keys at the boundary stamp start with before||0x00; everything
	// below that has a strictly earlier stamp.
	seek := make([]byte, 0, len(before)+1)
	seek = append(seek, before...)
	seek = append(seek, 0x00)

	resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND sk < :seek"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: pkOrder(listID)},
			":seek": &types.AttributeValueMemberB{Value: seek},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("finding item before stamp: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return itemToItem(resp.Items[0]), nil
}

func (s *DynamoDBStore) CountItems(ctx context.Context, listID string) (int64, error) {
	var count int64

	var exclusiveStartKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pkItem(listID)},
			},
			Select: types.SelectCount,
		}
		if exclusiveStartKey != nil {
			input.ExclusiveStartKey = exclusiveStartKey
		}

		resp, err := s.client.Query(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("counting items: %w", err)
		}
		count += int64(resp.Count)

		if resp.LastEvaluatedKey == nil {
			break
		}
		exclusiveStartKey = resp.LastEvaluatedKey
	}

	return count, nil
}

// missingItemErr distinguishes a missing list from a missing item.
func (s *DynamoDBStore) missingItemErr(ctx context.Context, listID, itemID string) error {
	list, err := s.GetList(ctx, listID)
	if err == nil && list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	return fmt.Errorf("%w: %s/%s", ErrItemNotFound, listID, itemID)
}

// ---- Attribute helpers ----

func itemAttrs(item *ItemRecord) map[string]types.AttributeValue {
	payload := "{}"
	if item.Payload != nil {
		payload = string(item.Payload)
	}
	return map[string]types.AttributeValue{
		"type":       &types.AttributeValueMemberS{Value: "item"},
		"list_id":    &types.AttributeValueMemberS{Value: item.ListID},
		"id":         &types.AttributeValueMemberS{Value: item.ID},
		"stamp":      &types.AttributeValueMemberB{Value: []byte(item.Stamp)},
		"payload":    &types.AttributeValueMemberS{Value: payload},
		"created_at": &types.AttributeValueMemberS{Value: item.CreatedAt.UTC().Format(dynamoTimeFormat)},
		"updated_at": &types.AttributeValueMemberS{Value: item.UpdatedAt.UTC().Format(dynamoTimeFormat)},
	}
}

func getString(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key]; ok {
		if sv, ok := v.(*types.AttributeValueMemberS); ok {
			return sv.Value
		}
	}
	return ""
}

func getBytes(item map[string]types.AttributeValue, key string) []byte {
	if v, ok := item[key]; ok {
		if bv, ok := v.(*types.AttributeValueMemberB); ok {
			return bv.Value
		}
	}
	return nil
}

func itemToList(item map[string]types.AttributeValue) *ListRecord {
	createdAt, _ := time.Parse(dynamoTimeFormat, getString(item, "created_at"))
	return &ListRecord{
		ID:        getString(item, "id"),
		Title:     getString(item, "title"),
		CreatedAt: createdAt,
	}
}

func itemToItem(item map[string]types.AttributeValue) *ItemRecord {
	createdAt, _ := time.Parse(dynamoTimeFormat, getString(item, "created_at"))
	updatedAt, _ := time.Parse(dynamoTimeFormat, getString(item, "updated_at"))
	return &ItemRecord{
		ListID:    getString(item, "list_id"),
		ID:        getString(item, "id"),
		Stamp:     stamp.Stamp(getBytes(item, "stamp")),
		Payload:   json.RawMessage(getString(item, "payload")),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}
