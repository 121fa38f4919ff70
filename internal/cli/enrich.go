package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docstore/internal/datastore"
	"github.com/roach88/docstore/internal/ir"
)

// EnrichOptions holds flags for the enrich command.
type EnrichOptions struct {
	*RootOptions
	SpecFile string
	Object   string // JSON object to enrich
	Key      string // or the stored value under Key
	Clean    bool   // revert the pass and report whether the object round-trips
}

// EnrichResult is the JSON payload of the enrich command.
type EnrichResult struct {
	Enriched json.RawMessage `json:"enriched"`
	Paths    []string        `json:"paths"`
	Cleaned  json.RawMessage `json:"cleaned,omitempty"`
	Pristine *bool           `json:"pristine,omitempty"`
}

// NewEnrichCommand creates the enrich command.
func NewEnrichCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnrichOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Apply a spec's enrichers to an object",
		Long: `Apply the enrichers of a CUE spec file to an object, in file order, and
print the enriched object.

The object is given inline with --object or read from the store with --key.
With --clean the pass is reverted afterwards and the command reports whether
the object is back to its original form.

Exit codes:
  0 - Enrichment succeeded (and, with --clean, the object round-tripped)
  1 - An enricher failed or the round trip did not restore the object
  2 - Command error

Examples:
  docstore enrich --spec people.cue --object '{"name":"Ann","age":30}'
  docstore enrich --spec people.cue --key people/ann --clean --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SpecFile, "spec", "", "CUE spec file with enrichers (required)")
	cmd.Flags().StringVar(&opts.Object, "object", "", "JSON object to enrich")
	cmd.Flags().StringVar(&opts.Key, "key", "", "enrich the object stored under this key")
	cmd.Flags().BoolVar(&opts.Clean, "clean", false, "revert the pass and check the round trip")
	_ = cmd.MarkFlagRequired("spec")
	cmd.MarkFlagsMutuallyExclusive("object", "key")
	cmd.MarkFlagsOneRequired("object", "key")

	return cmd
}

func runEnrich(opts *EnrichOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	loaded, err := LoadSpecs(opts.SpecFile)
	if err != nil {
		return f.Fail(ExitCommandError, CodeInvalidSpec, err)
	}
	spec := loaded.Spec
	f.VerboseLog("loaded %d enricher(s) from %s", len(spec.Enrichers), opts.SpecFile)

	ds, closeFn, err := openDataStore(ctx, opts.RootOptions, datastore.WithEnrichers(spec.Enrichers...))
	if err != nil {
		return err
	}
	defer closeFn()

	obj, err := opts.loadObject(cmd, ds)
	if err != nil {
		return err
	}
	original := ir.Clone(obj)

	prov, err := ds.Enrich(obj)
	if err != nil {
		return f.Fail(ExitFailure, CodeEnrichFailed, err)
	}
	enriched, err := ir.EncodeValue(obj)
	if err != nil {
		return err
	}
	result := EnrichResult{Enriched: enriched, Paths: prov.Paths()}

	if opts.Clean {
		prov.Revert()
		cleaned, err := ir.EncodeValue(obj)
		if err != nil {
			return err
		}
		pristine := ir.Equal(obj, original)
		result.Cleaned = cleaned
		result.Pristine = &pristine
	}

	if opts.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(f.Writer, string(result.Enriched))
		for _, p := range result.Paths {
			f.VerboseLog("  wrote %s", p)
		}
		if opts.Clean {
			fmt.Fprintln(f.Writer, string(result.Cleaned))
		}
	}

	if result.Pristine != nil && !*result.Pristine {
		return NewExitError(ExitFailure, "cleaned object differs from the original")
	}
	return nil
}

// loadObject returns the object to enrich from --object or --key.
func (o *EnrichOptions) loadObject(cmd *cobra.Command, ds *datastore.DataStore) (ir.IRObject, error) {
	f := o.formatter(cmd)

	var value ir.IRValue
	if o.Key != "" {
		key, err := ir.ParseKey(o.Key)
		if err != nil {
			return nil, f.Fail(ExitCommandError, CodeInvalidInput, err)
		}
		value, err = ds.Get(cmd.Context(), key)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "get failed", err)
		}
		if ir.IsAbsent(value) {
			return nil, f.Fail(ExitFailure, CodeNotFound, fmt.Errorf("key %s not found", key))
		}
	} else {
		var err error
		value, err = ir.UnmarshalJSONValue([]byte(o.Object))
		if err != nil {
			return nil, f.Fail(ExitCommandError, CodeInvalidInput, err)
		}
	}

	obj, ok := value.(ir.IRObject)
	if !ok {
		return nil, f.Fail(ExitCommandError, CodeInvalidInput, fmt.Errorf("expected an object, got %s", ir.KindName(value)))
	}
	return obj, nil
}
