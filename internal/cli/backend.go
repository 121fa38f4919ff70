package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docstore/internal/datastore"
	"github.com/roach88/docstore/internal/eval"
	"github.com/roach88/docstore/internal/ir"
	"github.com/roach88/docstore/internal/kv"
	"github.com/roach88/docstore/internal/kv/dynamo"
	"github.com/roach88/docstore/internal/kv/memory"
	"github.com/roach88/docstore/internal/kv/sqlite"
)

// openPrimitive opens and initializes the configured backend, scoped to the
// configured namespace. The caller closes it.
func openPrimitive(ctx context.Context, opts *RootOptions) (kv.Primitive, error) {
	var p kv.Primitive
	switch opts.Backend {
	case "memory":
		p = memory.New()
	case "sqlite":
		st, err := sqlite.Open(opts.Database)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		p = st
	case "dynamodb":
		cfg := dynamo.DefaultConfig()
		cfg.Table = opts.DynamoTable
		cfg.CreateTable = opts.DynamoCreate
		st, err := dynamo.NewFromEnv(ctx, cfg, opts.DynamoEndpoint)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to configure dynamodb", err)
		}
		p = st
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q", opts.Backend))
	}

	if opts.Namespace != "" {
		ns, err := ir.ParseKey(opts.Namespace)
		if err != nil {
			_ = p.Close()
			return nil, WrapExitError(ExitCommandError, "invalid namespace", err)
		}
		p = kv.NewPrefixed(p, ns)
	}

	if err := p.Init(ctx); err != nil {
		_ = p.Close()
		return nil, WrapExitError(ExitCommandError, "failed to initialize store", err)
	}
	slog.Debug("store opened", "backend", opts.Backend, "namespace", opts.Namespace)
	return p, nil
}

// openDataStore opens the backend, wraps it in a DataStore with the builtin
// functions and writes the --seed file, if any. The returned func closes
// the backend.
func openDataStore(ctx context.Context, opts *RootOptions, dsOpts ...datastore.Option) (*datastore.DataStore, func(), error) {
	p, err := openPrimitive(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}

	dsOpts = append([]datastore.Option{
		datastore.WithLogger(slog.Default()),
		datastore.WithMaxSubQueries(opts.MaxSubQueries),
	}, dsOpts...)
	ds := datastore.New(p, eval.Builtins(), dsOpts...)

	if opts.Seed != "" {
		entries, err := readEntriesFile(opts.Seed)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		if err := ds.BatchSet(ctx, entries); err != nil {
			closeFn()
			return nil, nil, WrapExitError(ExitCommandError, "failed to write seed entries", err)
		}
		slog.Debug("seed written", "file", opts.Seed, "entries", len(entries))
	}
	return ds, closeFn, nil
}

// fileEntry is one {key, value} item of an entries file.
type fileEntry struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
}

// readEntriesFile parses a YAML (or JSON) list of {key, value} items.
func readEntriesFile(path string) ([]ir.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read entries file", err)
	}

	var items []fileEntry
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid entries file %s", path), err)
	}

	entries := make([]ir.Entry, len(items))
	for i, item := range items {
		key, err := ir.ParseKey(item.Key)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: entry %d", path, i), err)
		}
		value, err := ir.FromGo(item.Value)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: entry %d (%s)", path, i, key), err)
		}
		entries[i] = ir.Entry{Key: key, Value: value}
	}
	return entries, nil
}
