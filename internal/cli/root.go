package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Store selection, resolved from flags and DOCSTORE_* variables.
	Backend   string // "memory" | "sqlite" | "dynamodb"
	Database  string
	Namespace string
	Seed      string

	DynamoTable    string
	DynamoEndpoint string
	DynamoCreate   bool

	LogLevel      string
	MaxSubQueries int

	config *viper.Viper
}

// Version is the CLI version reported by the version command.
const Version = "0.1.0"

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidBackends defines the allowed storage backends.
var ValidBackends = []string{"memory", "sqlite", "dynamodb"}

// NewRootCommand creates the root command for the docstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{config: viper.New()}

	cmd := &cobra.Command{
		Use:   "docstore",
		Short: "document query and enrichment over an ordered key-value store",
		Long: `docstore stores JSON documents under hierarchical keys and answers
declarative queries over them: prefix scans, filters, ordering, limits and
projections. Object enrichers derive attributes onto documents and can be
reverted exactly.

Every flag can also be set through the environment as DOCSTORE_<FLAG>
(e.g. DOCSTORE_BACKEND=sqlite). .env and .env.local are read on start.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !slices.Contains(ValidBackends, opts.Backend) {
				return fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends)
			}
			return opts.setupLogging(cmd.ErrOrStderr())
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("format", "text", "output format (json|text)")
	flags.String("backend", "memory", "storage backend (memory|sqlite|dynamodb)")
	flags.String("db", "docstore.db", "path to the SQLite database (sqlite backend)")
	flags.String("namespace", "", "key prefix all entries are stored under, segments separated by /")
	flags.String("seed", "", "YAML file of {key, value} entries written before the command runs")
	flags.String("dynamodb-table", "docstore", "DynamoDB table name (dynamodb backend)")
	flags.String("dynamodb-endpoint", "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	flags.Bool("dynamodb-create-table", false, "create the DynamoDB table if it does not exist")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	flags.Int("max-subqueries", 0, "maximum sub-queries one query may run, 0 for no limit")

	// Add subcommands
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewEnrichCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewMetricsCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of docstore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docstore v%s\n", Version)
		},
	})

	return cmd
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
