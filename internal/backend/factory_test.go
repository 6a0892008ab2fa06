package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"spending/internal/config"
	"spending/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	app := config.Defaults()
	app.DataBackend = "bogus"
	if _, err := FromAppConfig(&app); err == nil {
		t.Fatal("expected error for invalid backend")
	}

	app = config.Defaults()
	app.DataBackend = "sheets"
	app.GoogleSpreadsheetID = "sheet-id"
	app.GoogleServiceAccountFile = "/secrets/sa.json"
	cfg, err := FromAppConfig(&app)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Type != SheetsBackend || cfg.Sheets.SpreadsheetID != "sheet-id" || cfg.Sheets.ServiceAccountFile != "/secrets/sa.json" {
		t.Fatalf("unexpected backend config: %+v", cfg)
	}
	if cfg.Sheets.SheetName != "My Spending Sheet" || cfg.DataDirectory != "data" {
		t.Fatalf("defaults not carried: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{Type: "nope"}, "invalid backend type"},
		{Config{Type: SQLiteBackend}, "SQLite database path is required"},
		{Config{Type: SheetsBackend}, "Google Spreadsheet ID is required"},
	}
	for _, c := range cases {
		err := c.cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("Validate(%+v) = %v, want %q", c.cfg, err, c.want)
		}
	}
	if err := (Config{Type: MemoryBackend}).Validate(); err != nil {
		t.Fatalf("memory backend should validate: %v", err)
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer res.Close()
	if res.Publisher != nil || res.Ping != nil {
		t.Fatal("memory backend has no publisher or ping")
	}
	if _, err := res.Ledger.Append(context.Background(), core.Transaction{Item: "x"}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestCreateSQLiteBackendWithoutBroker(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "db", "spending.db"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Publisher != nil {
		t.Fatal("no broker configured, publisher should be nil")
	}
	if err := res.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCreateSheetsBackendWithoutCredentials(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type: SheetsBackend,
	})
	if err == nil {
		t.Fatal("expected error without spreadsheet id")
	}
}
