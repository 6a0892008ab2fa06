package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Data backends.
const (
	BackendMemory = "memory"
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
)

var validBackends = []string{BackendMemory, BackendSheets, BackendSQLite}

type Config struct {
	// HTTP Server
	Port           string        `koanf:"PORT"`
	RequestTimeout time.Duration `koanf:"REQUEST_TIMEOUT"`

	// Backend selection
	DataBackend   string `koanf:"DATA_BACKEND"`
	MemorySeedDir string `koanf:"MEMORY_SEED_DIR"`

	// Database
	SQLiteDBPath string `koanf:"SQLITE_DB_PATH"`

	// AMQP
	AMQPURL      string `koanf:"AMQP_URL"`
	AMQPExchange string `koanf:"AMQP_EXCHANGE"`
	AMQPQueue    string `koanf:"AMQP_QUEUE"`

	// Google Sheets
	GoogleSpreadsheetID      string `koanf:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName          string `koanf:"GOOGLE_SHEET_NAME"`
	GoogleServiceAccountJSON string `koanf:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile string `koanf:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleOAuthClientFile    string `koanf:"GOOGLE_OAUTH_CLIENT_FILE"`
	GoogleOAuthTokenFile     string `koanf:"GOOGLE_OAUTH_TOKEN_FILE"`
	GoogleOAuthClientJSON    string `koanf:"GOOGLE_OAUTH_CLIENT_JSON"`
	GoogleOAuthTokenJSON     string `koanf:"GOOGLE_OAUTH_TOKEN_JSON"`

	// Dashboard
	BudgetsFile      string        `koanf:"BUDGETS_FILE"`
	SnapshotCacheTTL time.Duration `koanf:"SNAPSHOT_CACHE_TTL"`
	RecommendTopN    int           `koanf:"RECOMMEND_TOP_N"`

	// Worker
	SyncBatchSize int           `koanf:"SYNC_BATCH_SIZE"`
	SyncInterval  time.Duration `koanf:"SYNC_INTERVAL"`

	// Logging
	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`
}

// Defaults returns the configuration used for unset variables.
func Defaults() Config {
	return Config{
		Port:             "8081",
		RequestTimeout:   15 * time.Second,
		DataBackend:      BackendMemory,
		MemorySeedDir:    "data",
		SQLiteDBPath:     "./data/spending.db",
		AMQPExchange:     "spending",
		AMQPQueue:        "sync_transactions",
		GoogleSheetName:  "My Spending Sheet",
		SnapshotCacheTTL: 10 * time.Minute,
		RecommendTopN:    5,
		SyncBatchSize:    10,
		SyncInterval:     30 * time.Second,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load reads .env (when present) and the process environment over the defaults.
// Empty variables count as unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	for _, key := range k.Keys() {
		if strings.TrimSpace(k.String(key)) == "" {
			k.Delete(key)
		}
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.DataBackend = strings.ToLower(strings.TrimSpace(cfg.DataBackend))
	return &cfg, nil
}

// HasSheetsCredentials reports whether any Google credential source is set.
func (c *Config) HasSheetsCredentials() bool {
	if c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != "" {
		return true
	}
	hasClient := c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != ""
	hasToken := c.GoogleOAuthTokenFile != "" || c.GoogleOAuthTokenJSON != ""
	return hasClient && hasToken
}

// Validate checks the web server configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		problems = c.validateSQLite(problems)
		problems = c.validateAMQP(problems)
	case BackendSheets:
		problems = c.validateSheets(problems)
	}

	if c.RequestTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid request timeout %v: must be positive", c.RequestTimeout))
	}
	if c.SnapshotCacheTTL < 0 {
		problems = append(problems, fmt.Sprintf("invalid snapshot cache TTL %v: must not be negative", c.SnapshotCacheTTL))
	}
	if c.RecommendTopN < 1 {
		problems = append(problems, fmt.Sprintf("invalid recommend top N %d: must be at least 1", c.RecommendTopN))
	}
	problems = c.validateCommon(problems)

	return joinProblems(problems)
}

// ValidateWorker checks what the sync worker needs: the SQLite mirror, the
// broker and the spreadsheet.
func (c *Config) ValidateWorker() error {
	var problems []string
	problems = c.validateSQLite(problems)
	problems = c.validateAMQP(problems)
	problems = c.validateSheets(problems)

	if c.SyncBatchSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		problems = append(problems, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	if c.SyncInterval < time.Second {
		problems = append(problems, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		problems = append(problems, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	problems = c.validateCommon(problems)

	return joinProblems(problems)
}

func (c *Config) validateSQLite(problems []string) []string {
	if strings.TrimSpace(c.SQLiteDBPath) == "" {
		problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
	}
	return problems
}

// AMQP is optional for the web server; an empty URL disables publishing.
func (c *Config) validateAMQP(problems []string) []string {
	if c.AMQPURL == "" {
		return problems
	}
	if parsed, err := url.Parse(c.AMQPURL); err != nil {
		problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
	}
	if c.AMQPExchange == "" {
		problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return problems
}

func (c *Config) validateSheets(problems []string) []string {
	if c.GoogleSpreadsheetID == "" {
		problems = append(problems, "Google Spreadsheet ID is required when using sheets backend")
	}
	if strings.TrimSpace(c.GoogleSheetName) == "" {
		problems = append(problems, "Google Sheet name is required when using sheets backend")
	}
	if !c.HasSheetsCredentials() {
		problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_JSON/GOOGLE_SERVICE_ACCOUNT_FILE or an OAuth client and token must be provided for sheets backend")
	}
	for name, path := range map[string]string{
		"Google service account file": c.GoogleServiceAccountFile,
		"Google OAuth client file":    c.GoogleOAuthClientFile,
		"Google OAuth token file":     c.GoogleOAuthTokenFile,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			problems = append(problems, fmt.Sprintf("%s does not exist: %s", name, path))
		}
	}
	return problems
}

func (c *Config) validateCommon(problems []string) []string {
	if c.BudgetsFile != "" {
		if _, err := os.Stat(c.BudgetsFile); errors.Is(err, fs.ErrNotExist) {
			problems = append(problems, fmt.Sprintf("budgets file does not exist: %s", c.BudgetsFile))
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}
	return problems
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
}
