package dynamo

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docstore/internal/ir"
	"github.com/roach88/docstore/internal/kv"
	"github.com/roach88/docstore/internal/testutil"
)

var _ API = (*fakeDynamo)(nil)

func TestConformance(t *testing.T) {
	testutil.RunPrimitiveSuite(t, func(t *testing.T) kv.Primitive {
		s := New(newFakeDynamo("docstore"), DefaultConfig())
		require.NoError(t, s.Init(context.Background()))
		return s
	})
}

func TestNamespacesArePartitions(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo("docstore")
	a := New(fake, Config{Namespace: "a"})
	b := New(fake, Config{Namespace: "b"})

	require.NoError(t, a.Set(ctx, ir.Key{"user", "peter"}, ir.IRString("A")))
	require.NoError(t, b.Set(ctx, ir.Key{"user", "peter"}, ir.IRString("B")))

	got, err := a.Get(ctx, ir.Key{"user", "peter"})
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("A"), got)

	entries, err := b.Query(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []ir.Entry{{Key: ir.Key{"user", "peter"}, Value: ir.IRString("B")}}, entries)
}

func TestQueryFollowsPagination(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo("docstore")
	s := New(fake, DefaultConfig())

	var entries []ir.Entry
	for i := 0; i < 7; i++ {
		entries = append(entries, ir.Entry{Key: ir.Key{"n", fmt.Sprintf("%02d", i)}, Value: ir.IRNumber(i)})
	}
	require.NoError(t, s.BatchSet(ctx, entries))

	got, err := s.Query(ctx, ir.Key{"n"})
	require.NoError(t, err)
	assert.Equal(t, entries, got)
	assert.Equal(t, 4, fake.queryCalls)
}

func TestBatchSetChunksAndRetries(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo("docstore")
	fake.unprocessedOnce = 3
	s := New(fake, DefaultConfig())

	var entries []ir.Entry
	for i := 0; i < 60; i++ {
		entries = append(entries, ir.Entry{Key: ir.Key{"k", fmt.Sprintf("%03d", i)}, Value: ir.IRNumber(i)})
	}
	require.NoError(t, s.BatchSet(ctx, entries))

	// 3 chunks plus one retry of the unprocessed tail.
	assert.Equal(t, 4, fake.batchCalls)

	got, err := s.Query(ctx, ir.Key{"k"})
	require.NoError(t, err)
	assert.Len(t, got, 60)

	require.NoError(t, s.BatchDelete(ctx, []ir.Key{{"k", "000"}, {"k", "059"}}))
	got, err = s.Query(ctx, ir.Key{"k"})
	require.NoError(t, err)
	assert.Len(t, got, 58)
}

func TestBatchKeepsLastWritePerKey(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo("docstore")
	s := New(fake, DefaultConfig())

	require.NoError(t, s.BatchSet(ctx, []ir.Entry{
		{Key: ir.Key{"user", "peter"}, Value: ir.IRString("first")},
		{Key: ir.Key{"user", "hank"}, Value: ir.IRString("hank")},
		{Key: ir.Key{"user", "peter"}, Value: ir.IRString("last")},
	}))
	assert.Equal(t, 1, fake.batchCalls)

	got, err := s.Query(ctx, ir.Key{"user"})
	require.NoError(t, err)
	assert.Equal(t, []ir.Entry{
		{Key: ir.Key{"user", "hank"}, Value: ir.IRString("hank")},
		{Key: ir.Key{"user", "peter"}, Value: ir.IRString("last")},
	}, got)

	require.NoError(t, s.BatchDelete(ctx, []ir.Key{{"user", "peter"}, {"user", "peter"}}))
	got, err = s.Query(ctx, ir.Key{"user"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBatchGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	fake := &stubbornDynamo{fakeDynamo: newFakeDynamo("docstore")}
	s := New(fake, Config{MaxRetries: 2})

	err := s.BatchSet(ctx, []ir.Entry{{Key: ir.Key{"a"}, Value: ir.IRNumber(1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unprocessed after 2 attempts")
}

// stubbornDynamo never processes batch writes.
type stubbornDynamo struct {
	*fakeDynamo
}

func (s *stubbornDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
}

func TestInitMissingTable(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo("docstore")
	fake.exists = false

	err := New(fake, DefaultConfig()).Init(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "describe table docstore")
}

func TestInitCreatesTable(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo("docstore")
	fake.exists = false

	cfg := DefaultConfig()
	cfg.CreateTable = true
	require.NoError(t, New(fake, cfg).Init(ctx))
	assert.True(t, fake.exists)
}

func TestConfigDefaults(t *testing.T) {
	s := New(newFakeDynamo("docstore"), Config{})
	assert.Equal(t, DefaultConfig(), s.config)
}
