// Package budget loads the category budget table.
package budget

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"spending/internal/core"
)

// File is the YAML layout of a budgets file:
//
//	categories:
//	  - name: Food
//	    ceiling: 40000
type File struct {
	Categories []Entry `yaml:"categories"`
}

// Entry is one category line of the budgets file.
type Entry struct {
	Name    string `yaml:"name"`
	Ceiling string `yaml:"ceiling"`
}

// Load reads a budgets file. An empty path returns the built-in table.
func Load(path string) (core.BudgetTable, error) {
	if strings.TrimSpace(path) == "" {
		return core.DefaultBudgets(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read budgets file: %w", err)
	}
	return Parse(b)
}

// Parse decodes budgets YAML. Names must be unique case-insensitively and
// ceilings must be non-negative numbers.
func Parse(b []byte) (core.BudgetTable, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse budgets: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("budgets file has no categories")
	}
	table := make(core.BudgetTable, 0, len(f.Categories))
	for i, e := range f.Categories {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("category %d: empty name", i+1)
		}
		if name == core.CategoryPlaceholder {
			return nil, fmt.Errorf("category %d: %q is reserved", i+1, name)
		}
		if _, dup := table.Lookup(name); dup {
			return nil, fmt.Errorf("category %q listed twice", name)
		}
		ceiling, err := decimal.NewFromString(strings.TrimSpace(e.Ceiling))
		if err != nil || ceiling.IsNegative() {
			return nil, fmt.Errorf("category %q: invalid ceiling %q", name, e.Ceiling)
		}
		table = append(table, core.CategoryBudget{Name: name, Ceiling: ceiling})
	}
	return table, nil
}
