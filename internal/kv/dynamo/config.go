package dynamo

// Config holds configuration for the Store.
type Config struct {
	// Table is the DynamoDB table name.
	// Default: "docstore"
	Table string

	// Namespace is the partition key value all entries are stored under.
	// Default: "default"
	Namespace string

	// CreateTable creates the table (on-demand billing) during Init when it
	// does not exist.
	CreateTable bool

	// MaxRetries bounds the attempts made to flush unprocessed batch items.
	// Default: 5
	MaxRetries int
}

// DefaultConfig returns defaults suitable for local development.
func DefaultConfig() Config {
	return Config{
		Table:      "docstore",
		Namespace:  "default",
		MaxRetries: 5,
	}
}

// validate fills unset fields with defaults.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "docstore"
	}
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 5
	}
}
