package dynamo

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory stand-in for a single-table DynamoDB.
// It understands exactly the requests Store sends.
type fakeDynamo struct {
	mu       sync.Mutex
	table    string
	exists   bool
	items    map[string]map[string]types.AttributeValue
	pageSize int

	// unprocessedOnce leaves this many requests of the next batch
	// unprocessed.
	unprocessedOnce int

	batchCalls int
	queryCalls int
}

func newFakeDynamo(table string) *fakeDynamo {
	return &fakeDynamo{
		table:    table,
		exists:   true,
		items:    make(map[string]map[string]types.AttributeValue),
		pageSize: 2,
	}
}

func itemID(attrs map[string]types.AttributeValue) (string, []byte) {
	pk := attrs["pk"].(*types.AttributeValueMemberS).Value
	sk := attrs["sk"].(*types.AttributeValueMemberB).Value
	return pk + "\xff" + string(sk), sk
}

func (f *fakeDynamo) checkTable(name *string) error {
	if !f.exists || aws.ToString(name) != f.table {
		return &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	return nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkTable(in.TableName); err != nil {
		return nil, err
	}
	id, _ := itemID(in.Key)
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkTable(in.TableName); err != nil {
		return nil, err
	}
	id, _ := itemID(in.Item)
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkTable(in.TableName); err != nil {
		return nil, err
	}
	id, _ := itemID(in.Key)
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++

	requests := in.RequestItems[f.table]
	if len(requests) > batchLimit {
		return nil, fmt.Errorf("too many items in batch: %d", len(requests))
	}
	ids := make(map[string]bool, len(requests))
	for _, r := range requests {
		var attrs map[string]types.AttributeValue
		switch {
		case r.PutRequest != nil:
			attrs = r.PutRequest.Item
		case r.DeleteRequest != nil:
			attrs = r.DeleteRequest.Key
		}
		id, _ := itemID(attrs)
		if ids[id] {
			return nil, fmt.Errorf("ValidationException: provided list of item keys contains duplicates")
		}
		ids[id] = true
	}

	var unprocessed []types.WriteRequest
	if f.unprocessedOnce > 0 {
		n := min(f.unprocessedOnce, len(requests))
		unprocessed = requests[len(requests)-n:]
		requests = requests[:len(requests)-n]
		f.unprocessedOnce = 0
	}

	for _, r := range requests {
		switch {
		case r.PutRequest != nil:
			id, _ := itemID(r.PutRequest.Item)
			f.items[id] = r.PutRequest.Item
		case r.DeleteRequest != nil:
			id, _ := itemID(r.DeleteRequest.Key)
			delete(f.items, id)
		}
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	if len(unprocessed) > 0 {
		out.UnprocessedItems[f.table] = unprocessed
	}
	return out, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if err := f.checkTable(in.TableName); err != nil {
		return nil, err
	}

	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	var prefix []byte
	if p, ok := in.ExpressionAttributeValues[":prefix"]; ok {
		prefix = p.(*types.AttributeValueMemberB).Value
	}
	var start []byte
	if in.ExclusiveStartKey != nil {
		_, start = itemID(in.ExclusiveStartKey)
	}

	var matched []map[string]types.AttributeValue
	for _, it := range f.items {
		itemPK, sk := it["pk"].(*types.AttributeValueMemberS).Value, it["sk"].(*types.AttributeValueMemberB).Value
		if itemPK != pk || !bytes.HasPrefix(sk, prefix) {
			continue
		}
		if start != nil && bytes.Compare(sk, start) <= 0 {
			continue
		}
		matched = append(matched, it)
	}
	slices.SortFunc(matched, func(a, b map[string]types.AttributeValue) int {
		return bytes.Compare(a["sk"].(*types.AttributeValueMemberB).Value, b["sk"].(*types.AttributeValueMemberB).Value)
	})

	out := &dynamodb.QueryOutput{}
	if len(matched) > f.pageSize {
		matched = matched[:f.pageSize]
		last := matched[len(matched)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"pk": last["pk"], "sk": last["sk"]}
	}
	out.Items = matched
	out.Count = int32(len(matched))
	return out, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkTable(in.TableName); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   aws.String(f.table),
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeDynamo) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if aws.ToString(in.TableName) != f.table {
		return nil, fmt.Errorf("unexpected table %q", aws.ToString(in.TableName))
	}
	f.exists = true
	return &dynamodb.CreateTableOutput{}, nil
}
