package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/roach88/docstore/internal/ir"
	"github.com/roach88/docstore/internal/kv"
)

// batchLimit is the maximum number of requests in one BatchWriteItem call.
const batchLimit = 25

// tableWaitTimeout bounds how long Init waits for a created table.
const tableWaitTimeout = 2 * time.Minute

// API is the subset of the DynamoDB client the store uses.
// *dynamodb.Client satisfies it.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// item is the stored form of one entry.
type item struct {
	PK    string `dynamodbav:"pk"`
	SK    []byte `dynamodbav:"sk"`
	Value []byte `dynamodbav:"v"`
}

// Store is a DynamoDB-backed kv.Primitive.
type Store struct {
	client API
	config Config
}

var _ kv.Primitive = (*Store)(nil)

// New creates a Store over client.
func New(client API, cfg Config) *Store {
	cfg.validate()
	return &Store{client: client, config: cfg}
}

// NewFromEnv builds a client from the default AWS configuration chain
// (environment, shared config, instance role). A non-empty endpoint
// overrides the service endpoint, e.g. for DynamoDB Local.
func NewFromEnv(ctx context.Context, cfg Config, endpoint string) (*Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client, cfg), nil
}

// Init checks that the table exists, creating it when configured to.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.Table),
	})
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) || !s.config.CreateTable {
		return fmt.Errorf("describe table %s: %w", s.config.Table, err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.config.Table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeB},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.config.Table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.config.Table)}, tableWaitTimeout); err != nil {
		return fmt.Errorf("wait for table %s: %w", s.config.Table, err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}

func (s *Store) keyAttrs(key ir.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: s.config.Namespace},
		"sk": &types.AttributeValueMemberB{Value: ir.EncodeKey(key)},
	}
}

func (s *Store) marshalEntry(e ir.Entry) (map[string]types.AttributeValue, error) {
	if err := kv.ValidateEntry(e); err != nil {
		return nil, err
	}
	data, err := ir.EncodeValue(e.Value)
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", e.Key, err)
	}
	av, err := attributevalue.MarshalMap(item{
		PK:    s.config.Namespace,
		SK:    ir.EncodeKey(e.Key),
		Value: data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal item %s: %w", e.Key, err)
	}
	return av, nil
}

func unmarshalEntry(raw map[string]types.AttributeValue) (ir.Entry, error) {
	var it item
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return ir.Entry{}, fmt.Errorf("unmarshal item: %w", err)
	}
	key, err := ir.DecodeKey(it.SK)
	if err != nil {
		return ir.Entry{}, err
	}
	value, err := ir.DecodeValue(it.Value)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("entry %s: %w", key, err)
	}
	return ir.Entry{Key: key, Value: value}, nil
}

func (s *Store) Get(ctx context.Context, key ir.Key) (ir.IRValue, error) {
	if err := kv.ValidateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            s.keyAttrs(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	entry, err := unmarshalEntry(out.Item)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

func (s *Store) Set(ctx context.Context, key ir.Key, value ir.IRValue) error {
	av, err := s.marshalEntry(ir.Entry{Key: key, Value: value})
	if err != nil {
		return err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.Table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// BatchSet validates and encodes every entry before writing any of them.
// DynamoDB rejects a batch holding the same key twice, so only the last
// entry per key is sent.
func (s *Store) BatchSet(ctx context.Context, entries []ir.Entry) error {
	entries = lastPerKey(entries, func(e ir.Entry) ir.Key { return e.Key })
	requests := make([]types.WriteRequest, len(entries))
	for i, e := range entries {
		av, err := s.marshalEntry(e)
		if err != nil {
			return err
		}
		requests[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: av}}
	}
	return s.writeBatches(ctx, requests)
}

func (s *Store) Delete(ctx context.Context, key ir.Key) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.Table),
		Key:       s.keyAttrs(key),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) BatchDelete(ctx context.Context, keys []ir.Key) error {
	keys = lastPerKey(keys, func(k ir.Key) ir.Key { return k })
	requests := make([]types.WriteRequest, len(keys))
	for i, k := range keys {
		if err := kv.ValidateKey(k); err != nil {
			return err
		}
		requests[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: s.keyAttrs(k)}}
	}
	return s.writeBatches(ctx, requests)
}

// lastPerKey drops every item whose key appears again later in items.
func lastPerKey[T any](items []T, key func(T) ir.Key) []T {
	seen := make(map[string]bool, len(items))
	out := make([]T, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		enc := string(ir.EncodeKey(key(items[i])))
		if seen[enc] {
			continue
		}
		seen[enc] = true
		out = append(out, items[i])
	}
	slices.Reverse(out)
	return out
}

// writeBatches sends requests in chunks of batchLimit, retrying unprocessed
// items with exponential backoff.
func (s *Store) writeBatches(ctx context.Context, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += batchLimit {
		end := min(start+batchLimit, len(requests))
		pending := requests[start:end]

		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt >= s.config.MaxRetries {
				return fmt.Errorf("batch write: %d items unprocessed after %d attempts", len(pending), attempt)
			}
			if attempt > 0 {
				backoff := time.Duration(1<<(attempt-1)) * 50 * time.Millisecond
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}
			}

			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.config.Table: pending},
			})
			if err != nil {
				return fmt.Errorf("batch write: %w", err)
			}
			pending = out.UnprocessedItems[s.config.Table]
		}
	}
	return nil
}

// Query returns every entry under prefix in key order, following
// pagination to the end.
func (s *Store) Query(ctx context.Context, prefix ir.Key) ([]ir.Entry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.config.Table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: s.config.Namespace},
		},
		ConsistentRead:   aws.Bool(true),
		ScanIndexForward: aws.Bool(true),
	}
	if len(prefix) > 0 {
		input.KeyConditionExpression = aws.String("pk = :pk AND begins_with(sk, :prefix)")
		input.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberB{Value: ir.EncodeKey(prefix)}
	}

	entries := []ir.Entry{}
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", prefix, err)
		}
		for _, raw := range page.Items {
			entry, err := unmarshalEntry(raw)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
