package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docstore/internal/compiler"
	"github.com/roach88/docstore/internal/datastore"
	"github.com/roach88/docstore/internal/ir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	SpecFile string // CUE spec file
	Name     string // query name within SpecFile
	Query    string // wire-form query JSON
	Prefix   string
	Filter   string // wire-form expression JSON
	Limit    int
	Enrich   bool // apply SpecFile's enrichers to object results
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query and print the matching entries",
		Long: `Run a query and print the matching entries in key order, or in the
query's orderBy order.

The query comes from one of:
  --spec file.cue --name q   a named query of a CUE spec file
  --query JSON               the wire form {prefix, filter, orderBy, limit, select}
  --prefix/--filter/--limit  a query assembled from flags

Expressions use the wire form, e.g. ["=", ["attr","name"], ["string","Ann"]].

Examples:
  docstore query --prefix people --filter '[">",["attr","age"],["number",26]]'
  docstore query --spec people.cue --name adults --enrich
  docstore query --query '{"prefix":["people"],"limit":["number",1]}' --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SpecFile, "spec", "", "CUE spec file or package directory")
	cmd.Flags().StringVar(&opts.Name, "name", "", "name of the query in --spec")
	cmd.Flags().StringVar(&opts.Query, "query", "", "query in wire-form JSON")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "key prefix, segments separated by /")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter expression in wire-form JSON")
	cmd.Flags().IntVar(&opts.Limit, "limit", -1, "maximum number of results (-1 for no limit)")
	cmd.Flags().BoolVar(&opts.Enrich, "enrich", false, "apply the enrichers of --spec to object results")
	cmd.MarkFlagsMutuallyExclusive("query", "name")
	cmd.MarkFlagsMutuallyExclusive("query", "prefix")
	cmd.MarkFlagsMutuallyExclusive("query", "filter")
	cmd.MarkFlagsMutuallyExclusive("name", "prefix")
	cmd.MarkFlagsMutuallyExclusive("name", "filter")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	var spec *compiler.Spec
	if opts.SpecFile != "" {
		loaded, err := LoadSpecs(opts.SpecFile)
		if err != nil {
			return f.Fail(ExitCommandError, CodeInvalidSpec, err)
		}
		spec = loaded.Spec
	}
	if opts.Enrich && spec == nil {
		return f.Fail(ExitCommandError, CodeInvalidInput, fmt.Errorf("--enrich requires --spec"))
	}

	q, err := opts.buildQuery(spec)
	if err != nil {
		return f.Fail(ExitCommandError, CodeInvalidInput, err)
	}

	var dsOpts []datastore.Option
	if spec != nil {
		dsOpts = append(dsOpts, datastore.WithEnrichers(spec.Enrichers...))
	}
	ds, closeFn, err := openDataStore(ctx, opts.RootOptions, dsOpts...)
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := ds.Query(ctx, q)
	if err != nil {
		return f.Fail(ExitFailure, CodeQueryFailed, err)
	}
	f.VerboseLog("%d result(s)", len(results))

	if opts.Enrich {
		for _, e := range results {
			obj, ok := e.Value.(ir.IRObject)
			if !ok {
				continue
			}
			if _, err := ds.Enrich(obj); err != nil {
				return f.Fail(ExitFailure, CodeEnrichFailed, fmt.Errorf("%s: %w", e.Key, err))
			}
		}
	}

	return f.Entries(results)
}

// buildQuery resolves the query from the command's flags.
func (o *QueryOptions) buildQuery(spec *compiler.Spec) (ir.QuerySpec, error) {
	if o.Name != "" {
		if spec == nil {
			return ir.QuerySpec{}, fmt.Errorf("--name requires --spec")
		}
		return spec.Query(o.Name)
	}

	if o.Query != "" {
		wire, err := ir.UnmarshalJSONValue([]byte(o.Query))
		if err != nil {
			return ir.QuerySpec{}, fmt.Errorf("--query: %w", err)
		}
		return ir.ParseQuerySpec(wire)
	}

	wire := ir.IRObject{"prefix": ir.IRArray{}}
	if o.Prefix != "" {
		prefix, err := ir.ParseKey(o.Prefix)
		if err != nil {
			return ir.QuerySpec{}, fmt.Errorf("--prefix: %w", err)
		}
		segs := make(ir.IRArray, len(prefix))
		for i, s := range prefix {
			segs[i] = ir.IRString(s)
		}
		wire["prefix"] = segs
	}
	if o.Filter != "" {
		filter, err := ir.UnmarshalJSONValue([]byte(o.Filter))
		if err != nil {
			return ir.QuerySpec{}, fmt.Errorf("--filter: %w", err)
		}
		wire["filter"] = filter
	}
	if o.Limit >= 0 {
		wire["limit"] = ir.IRArray{ir.IRString("number"), ir.IRNumber(o.Limit)}
	}
	return ir.ParseQuerySpec(wire)
}
