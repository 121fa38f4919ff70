// Package kv defines the ordered key-value primitive the data store is built
// on, and the namespaced view that lets several logical stores share one
// physical backend.
//
// Backends live in sub-packages:
//   - memory: in-process B-tree, used by tests and the scenario harness
//   - sqlite: persistent single-file store (WAL mode)
//   - dynamo: Amazon DynamoDB table, one partition per namespace
//
// Every backend orders keys by ir.EncodeKey, which agrees with
// ir.Key.Compare, so Query returns entries in key order.
//
// Get reports a missing key with a nil value and a nil error. A nil value is
// never stored; Set rejects it with ErrAbsentValue.
package kv
