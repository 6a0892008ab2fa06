package budget

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	table, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 13 {
		t.Fatalf("expected 13 default categories, got %d", len(table))
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "budgets.yaml")
	content := "categories:\n  - name: Food\n    ceiling: 40000\n  - name: Savings\n    ceiling: 1500.50\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	table, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(table) != 2 || table[0].Name != "Food" || table[1].Ceiling.String() != "1500.5" {
		t.Fatalf("unexpected table: %+v", table)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":      "categories: []\n",
		"no name":    "categories:\n  - ceiling: 1\n",
		"duplicate":  "categories:\n  - name: Food\n    ceiling: 1\n  - name: food\n    ceiling: 2\n",
		"negative":   "categories:\n  - name: Food\n    ceiling: -5\n",
		"not number": "categories:\n  - name: Food\n    ceiling: lots\n",
		"reserved":   "categories:\n  - name: Select Category\n    ceiling: 1\n",
		"bad yaml":   "categories: [\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(in)); err == nil {
				t.Fatalf("expected error for %s", strings.TrimSpace(in))
			}
		})
	}
}
