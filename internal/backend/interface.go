package backend

import (
	"context"

	"spending/internal/services"
	"spending/internal/sheets"
	gsheet "spending/internal/sheets/google"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result is a ready ledger plus the optional pieces some backends bring.
type Result struct {
	Ledger sheets.Ledger
	// Publisher is set when the sqlite backend has a broker connection.
	Publisher services.Publisher
	// Ping reports store reachability for readiness checks.
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Close runs Cleanup when present.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets specific
	Sheets gsheet.Config

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
