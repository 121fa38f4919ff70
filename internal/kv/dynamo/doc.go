// Package dynamo implements kv.Primitive on an Amazon DynamoDB table.
//
// Item layout:
//
//	pk  S  namespace (Config.Namespace); one partition per logical store
//	sk  B  ir.EncodeKey(key)
//	v   B  ir.EncodeValue(value)
//
// DynamoDB sorts binary sort keys as unsigned bytes, so a Query on the
// partition with begins_with(sk, EncodeKey(prefix)) returns entries in key
// order. Batch writes are chunked to the BatchWriteItem limit of 25 and
// unprocessed items are retried with backoff.
//
// Atomicity: Set and Delete are single-item writes. BatchSet and
// BatchDelete are not atomic across chunks.
package dynamo
