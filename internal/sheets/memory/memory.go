package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"spending/internal/core"
)

// Store is an in-process ledger used for local development and tests.
type Store struct {
	mu   sync.Mutex
	rows []core.Transaction
}

func New(rows ...core.Transaction) *Store {
	return &Store{rows: append([]core.Transaction(nil), rows...)}
}

// NewFromFiles seeds the store from <base>/seed_ledger.tsv when present.
// Each line holds the nine ledger columns separated by tabs; a header line
// and lines starting with # are skipped.
func NewFromFiles(base string) *Store {
	return New(readSeed(filepath.Join(base, "seed_ledger.tsv"))...)
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, t core.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, t)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// ReadAll returns a copy of every row in insertion order.
func (s *Store) ReadAll(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.rows...), nil
}

func readSeed(path string) []core.Transaction {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Transaction
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < len(core.Columns) || cols[0] == core.ColDate {
			continue
		}
		seq, _ := strconv.Atoi(strings.TrimSpace(cols[1]))
		qty, _ := strconv.Atoi(strings.TrimSpace(cols[5]))
		out = append(out, core.Transaction{
			Date:     strings.TrimSpace(cols[0]),
			Seq:      seq,
			Time:     strings.TrimSpace(cols[2]),
			Item:     strings.TrimSpace(cols[3]),
			Category: strings.TrimSpace(cols[4]),
			Quantity: qty,
			Amount:   core.ParseCell(cols[6]),
			WeekKey:  strings.TrimSpace(cols[7]),
			MonthKey: strings.TrimSpace(cols[8]),
		})
	}
	return out
}
