package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// envPrefix is prepended to every flag name to form its environment
// variable, with dashes replaced by underscores.
const envPrefix = "docstore"

// load reads .env files, binds the command's flags to the environment and
// resolves the global options. Flags set on the command line win over the
// environment, which wins over flag defaults.
func (o *RootOptions) load(cmd *cobra.Command) error {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := o.config
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// bind the flags to viper
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	o.Verbose = v.GetBool("verbose")
	o.Format = v.GetString("format")
	o.Backend = v.GetString("backend")
	o.Database = v.GetString("db")
	o.Namespace = v.GetString("namespace")
	o.Seed = v.GetString("seed")
	o.DynamoTable = v.GetString("dynamodb-table")
	o.DynamoEndpoint = v.GetString("dynamodb-endpoint")
	o.DynamoCreate = v.GetBool("dynamodb-create-table")
	o.LogLevel = v.GetString("log-level")
	o.MaxSubQueries = v.GetInt("max-subqueries")
	return nil
}

// setupLogging installs the default slog handler. --verbose forces debug.
func (o *RootOptions) setupLogging(w io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", o.LogLevel, err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}
