package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docstore/internal/ir"
)

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under a key",
		Long: `Print the value stored under a key. Key segments are separated by "/".

Exit codes:
  0 - Key found
  1 - Key not found
  2 - Command error

Example:
  docstore get people/ann --backend sqlite --db ./people.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			key, err := ir.ParseKey(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, CodeInvalidInput, err)
			}

			ds, closeFn, err := openDataStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			value, err := ds.Get(cmd.Context(), key)
			if err != nil {
				return WrapExitError(ExitCommandError, "get failed", err)
			}
			if ir.IsAbsent(value) {
				return f.Fail(ExitFailure, CodeNotFound, fmt.Errorf("key %s not found", key))
			}
			return f.Value(value)
		},
	}
}

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	AutoID bool
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <key> <json>",
		Short: "Store a JSON value under a key",
		Long: `Store a JSON value under a key, replacing any previous value.

With --auto-id the key is treated as a prefix and a time-ordered id segment
is appended; the resulting key is printed.

Examples:
  docstore set people/ann '{"name":"Ann","age":30}'
  docstore set people '{"name":"Bob"}' --auto-id`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			key, err := ir.ParseKey(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, CodeInvalidInput, err)
			}
			value, err := ir.UnmarshalJSONValue([]byte(args[1]))
			if err != nil {
				return f.Fail(ExitCommandError, CodeInvalidInput, err)
			}

			ds, closeFn, err := openDataStore(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer closeFn()

			if opts.AutoID {
				key, err = ds.Insert(cmd.Context(), key, value)
			} else {
				err = ds.Set(cmd.Context(), key, value)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "set failed", err)
			}

			if opts.Format == "json" {
				return f.Success(map[string]string{"key": key.String()})
			}
			return f.Success(key.String())
		},
	}

	cmd.Flags().BoolVar(&opts.AutoID, "auto-id", false, "append a generated id segment to the key")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>...",
		Short: "Delete one or more keys",
		Long: `Delete one or more keys. Deleting a missing key is not an error.

Example:
  docstore delete people/ann people/bob`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			keys := make([]ir.Key, len(args))
			for i, arg := range args {
				key, err := ir.ParseKey(arg)
				if err != nil {
					return f.Fail(ExitCommandError, CodeInvalidInput, err)
				}
				keys[i] = key
			}

			ds, closeFn, err := openDataStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := ds.BatchDelete(cmd.Context(), keys); err != nil {
				return WrapExitError(ExitCommandError, "delete failed", err)
			}

			if opts.Format == "json" {
				return f.Success(map[string]int{"deleted": len(keys)})
			}
			return f.Success(fmt.Sprintf("deleted %d key(s)", len(keys)))
		},
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Write a file of entries in one batch",
		Long: `Write a YAML (or JSON) list of {key, value} items in one batch.

Example file:
  - key: people/ann
    value: {name: Ann, age: 30}
  - key: people/bob
    value: {name: Bob, age: 25}

Example:
  docstore import people.yaml --backend sqlite --db ./people.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			entries, err := readEntriesFile(args[0])
			if err != nil {
				return err
			}

			ds, closeFn, err := openDataStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := ds.BatchSet(cmd.Context(), entries); err != nil {
				return WrapExitError(ExitCommandError, "import failed", err)
			}

			if opts.Format == "json" {
				return f.Success(map[string]int{"imported": len(entries)})
			}
			return f.Success(fmt.Sprintf("imported %d entries", len(entries)))
		},
	}
}
