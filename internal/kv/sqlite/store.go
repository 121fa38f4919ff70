package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/docstore/internal/ir"
	"github.com/roach88/docstore/internal/kv"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Empty database
// 1 - kv table
const currentSchemaVersion = 1

// Store is a SQLite-backed kv.Primitive.
type Store struct {
	db *sql.DB
}

var _ kv.Primitive = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// Use ":memory:" for a private in-memory database.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Init verifies the connection is usable.
func (s *Store) Init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key ir.Key) (ir.IRValue, error) {
	if err := kv.ValidateKey(key); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, ir.EncodeKey(key)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	v, err := ir.DecodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key ir.Key, value ir.IRValue) error {
	return s.BatchSet(ctx, []ir.Entry{{Key: key, Value: value}})
}

// BatchSet writes every entry in one transaction.
func (s *Store) BatchSet(ctx context.Context, entries []ir.Entry) error {
	type row struct {
		key, value []byte
	}
	rows := make([]row, len(entries))
	for i, e := range entries {
		if err := kv.ValidateEntry(e); err != nil {
			return err
		}
		data, err := ir.EncodeValue(e.Value)
		if err != nil {
			return fmt.Errorf("set %s: %w", e.Key, err)
		}
		rows[i] = row{key: ir.EncodeKey(e.Key), value: data}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.key, r.value); err != nil {
				return fmt.Errorf("set %s: %w", entries[i].Key, err)
			}
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, key ir.Key) error {
	return s.BatchDelete(ctx, []ir.Key{key})
}

// BatchDelete removes every key in one transaction.
func (s *Store) BatchDelete(ctx context.Context, keys []ir.Key) error {
	for _, k := range keys {
		if err := kv.ValidateKey(k); err != nil {
			return err
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM kv WHERE key = ?`)
		if err != nil {
			return fmt.Errorf("prepare delete: %w", err)
		}
		defer stmt.Close()

		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, ir.EncodeKey(k)); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}

// Query returns the entries under prefix ordered by encoded key.
func (s *Store) Query(ctx context.Context, prefix ir.Key) ([]ir.Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	lower := ir.EncodeKey(prefix)
	if upper := ir.PrefixUpperBound(prefix); upper != nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT key, value FROM kv
			WHERE key >= ? AND key < ?
			ORDER BY key ASC
		`, lower, upper)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", prefix, err)
	}
	defer rows.Close()

	entries := []ir.Entry{}
	for rows.Next() {
		var rawKey, rawValue []byte
		if err := rows.Scan(&rawKey, &rawValue); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		key, err := ir.DecodeKey(rawKey)
		if err != nil {
			return nil, err
		}
		value, err := ir.DecodeValue(rawValue)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", key, err)
		}
		entries = append(entries, ir.Entry{Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 creates the kv table.
func migrateToV1(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
