// Package solver computes debt settlements for a snapshot of group balances.
//
// Everything in this package is pure: inputs are never mutated and no I/O is
// performed. Positive balances are owed money, negative balances owe money.
package solver

import "github.com/fkhayef/splitledger/internal/currency"

// Member is one group member's balance snapshot.
type Member struct {
	ID        int64
	Balance   currency.Money
	HasAccess bool
	Deleted   bool
}

// PendingChange is an unconfirmed transfer from SourceID to TargetID.
// Applying it adds Amount to the source and subtracts it from the target.
type PendingChange struct {
	SourceID int64
	TargetID int64
	Amount   currency.Money
}

// Transaction moves Amount from a debtor to a creditor. Amount is always positive.
type Transaction struct {
	From   int64          `json:"from"`
	To     int64          `json:"to"`
	Amount currency.Money `json:"amount" swaggertype:"string"`
}

// Payment is one incoming transfer within a GroupedSettlement.
type Payment struct {
	From   int64          `json:"from"`
	Amount currency.Money `json:"amount" swaggertype:"string"`
}

// GroupedSettlement lists every payment a single recipient receives.
type GroupedSettlement struct {
	TargetID int64     `json:"target_id"`
	Payments []Payment `json:"payments"`
}

// BalanceChange is one settle-up entry. Change is the delta applied to the
// member's balance once the entry is no longer pending.
type BalanceChange struct {
	ID      int64          `json:"id"`
	Change  currency.Money `json:"change" swaggertype:"string"`
	Pending bool           `json:"pending"`
}

// PerfectMatches is the result of ExtractPerfectMatches.
type PerfectMatches struct {
	Transactions []Transaction
	Remaining    []Member
}
