package options

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// PostgresOptions configures the relational store.
type PostgresOptions struct {
	// DatabaseURL is the connection string; the DATABASE_URL environment
	// variable takes precedence over config-file values.
	DatabaseURL    string        `json:"database-url"    mapstructure:"database-url"`
	MaxPoolSize    int           `json:"max-pool-size"   mapstructure:"max-pool-size"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	QueryTimeout   time.Duration `json:"query-timeout"   mapstructure:"query-timeout"`
}

// NewPostgresOptions creates Postgres options with defaults.
func NewPostgresOptions() *PostgresOptions {
	o := &PostgresOptions{
		MaxPoolSize:    16,
		ConnectTimeout: 5 * time.Second,
		QueryTimeout:   5 * time.Second,
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		o.DatabaseURL = url
	}
	return o
}

// Complete re-reads the environment so env always wins.
func (o *PostgresOptions) Complete() error {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		o.DatabaseURL = url
	}
	return nil
}

// Validate checks the Postgres options.
func (o *PostgresOptions) Validate() []error {
	var errs []error
	if o.MaxPoolSize <= 0 {
		errs = append(errs, fmt.Errorf("postgres max pool size must be positive"))
	}
	return errs
}

// AddFlags adds flags for the Postgres options.
func (o *PostgresOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.DatabaseURL, "postgres.database-url", o.DatabaseURL, "PostgreSQL connection string (env DATABASE_URL).")
	fs.IntVar(&o.MaxPoolSize, "postgres.max-pool-size", o.MaxPoolSize, "Maximum connections in the pool.")
	fs.DurationVar(&o.ConnectTimeout, "postgres.connect-timeout", o.ConnectTimeout, "Connection establishment timeout.")
	fs.DurationVar(&o.QueryTimeout, "postgres.query-timeout", o.QueryTimeout, "Per-query timeout.")
}
