// Package sqlite implements kv.Primitive on a single SQLite file.
//
// # Storage Layout
//
// One WITHOUT ROWID table maps encoded keys (BLOB primary key) to encoded
// values. A prefix query is a primary-key range scan:
//
//	key >= EncodeKey(prefix) AND key < PrefixUpperBound(prefix)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - One open connection: SQLite allows a single writer
//
// Schema changes are tracked with PRAGMA user_version.
package sqlite
