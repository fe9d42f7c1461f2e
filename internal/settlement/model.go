package settlement

import (
	"github.com/fkhayef/splitledger/internal/ledger"
	"github.com/fkhayef/splitledger/internal/settlement/solver"
)

// Preview is a proposed settle-up for a single payer. Hash must be echoed back
// on confirmation.
type Preview struct {
	GroupID      int64
	PayerID      int64
	CurrencyCode string
	Entries      []solver.BalanceChange
	Hash         string
}

// GroupPreview is a proposed settlement of the whole group.
type GroupPreview struct {
	GroupID      int64
	CurrencyCode string
	Settlements  []solver.GroupedSettlement
	Hash         string
}

// Debts is the plain transaction view of a group's outstanding balances.
type Debts struct {
	GroupID      int64
	CurrencyCode string
	Transactions []solver.Transaction
}

// Confirmation is a persisted settle-up record with its entries.
type Confirmation struct {
	Record  *ledger.Record
	Entries []*ledger.Entry
}
