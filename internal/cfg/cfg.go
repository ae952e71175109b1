package cfg

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
)

// Config holds the application-level settings for the field triage
// server, on top of the common log/metrics/tracing config blocks.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DataDir               string
	KeyFile               string
	KeyPassphrase         string
	StoreBackend          string
	SQLitePath            string
	DatabaseURL           string
	APIToken              string
	ClaudeAPIKey          string
	ClaudeModel           string
}

// Store backends selectable via -store.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 15, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 30, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DataDir, "data-dir", "data", "directory for the local database and keyfile")
	fs.StringVar(&c.KeyFile, "key-file", "", "path to the encryption keyfile (default <data-dir>/triage.key)")
	fs.StringVar(&c.KeyPassphrase, "key-passphrase", "", "optional passphrase wrapping the keyfile at rest")
	fs.StringVar(&c.StoreBackend, "store", StoreSQLite, "record store backend: sqlite, postgres, or memory")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "path to the SQLite database (default <data-dir>/triage.db)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (required for -store=postgres)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key enabling the field-assist endpoint (empty = assist disabled)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model for the field-assist endpoint")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	switch c.StoreBackend {
	case StoreSQLite, StoreMemory:
		if c.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE %q (must be sqlite, postgres, or memory)", c.StoreBackend))
	}

	// Assist is optional, but a key without a model is a misconfiguration.
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// KeyFilePath resolves the keyfile location, defaulting into DataDir.
func (c *Config) KeyFilePath() string {
	if c.KeyFile != "" {
		return c.KeyFile
	}
	return filepath.Join(c.DataDir, "triage.key")
}

// SQLiteDBPath resolves the SQLite database location, defaulting into
// DataDir.
func (c *Config) SQLiteDBPath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "triage.db")
}
