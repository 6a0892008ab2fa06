package sheets

import (
	"context"

	"spending/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerReader returns every row of the ledger in store order.
	LedgerReader interface {
		ReadAll(ctx context.Context) ([]core.Transaction, error)
	}

	// LedgerWriter appends one row to the ledger.
	LedgerWriter interface {
		Append(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}

	// Ledger is a store that can be both read and appended to.
	Ledger interface {
		LedgerReader
		LedgerWriter
	}
)
