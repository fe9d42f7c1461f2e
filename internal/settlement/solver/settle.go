package solver

import (
	"time"

	"github.com/fkhayef/splitledger/internal/currency"
)

// OptimalThreshold is the largest number of unmatched nonzero balances that
// is still routed to the exhaustive solver.
const OptimalThreshold = 10

// SolverKind names the algorithm used for the unmatched remainder.
type SolverKind string

const (
	SolverOptimal SolverKind = "optimal"
	SolverFast    SolverKind = "fast"
)

// Settler composes perfect-match extraction with solver selection.
// The zero value uses OptimalThreshold and observes nothing.
type Settler struct {
	// Threshold overrides OptimalThreshold when positive.
	Threshold int

	// Observe, if set, is called after the remainder has been solved.
	Observe func(kind SolverKind, members int, elapsed time.Duration)
}

func (s Settler) threshold() int {
	if s.Threshold > 0 {
		return s.Threshold
	}
	return OptimalThreshold
}

// Pick returns the solver used for n unmatched nonzero balances.
func (s Settler) Pick(n int) SolverKind {
	if n <= s.threshold() {
		return SolverOptimal
	}
	return SolverFast
}

// Settle returns transactions that bring every balance to zero.
func (s Settler) Settle(members []Member) []Transaction {
	matches := ExtractPerfectMatches(members)

	txs := make([]Transaction, 0, len(members))
	txs = append(txs, matches.Transactions...)

	rest := nonZero(matches.Remaining)
	if len(rest) == 0 {
		return txs
	}

	kind := s.Pick(len(rest))
	start := time.Now()

	var solved []Transaction
	switch kind {
	case SolverOptimal:
		solved = SettleOptimal(rest)
	default:
		solved = SettleFast(rest)
	}

	if s.Observe != nil {
		s.Observe(kind, len(rest), time.Since(start))
	}

	return append(txs, solved...)
}

// SettleGrouped is Settle re-keyed by recipient.
func (s Settler) SettleGrouped(members []Member) []GroupedSettlement {
	return GroupByRecipient(s.Settle(members))
}

// PrepareGroupSettleUp applies pending changes to a working copy of the
// balances, drops members that end up at zero and settles the rest.
func (s Settler) PrepareGroupSettleUp(members []Member, pending []PendingChange) []GroupedSettlement {
	working := nonZero(ApplyPendingChanges(members, pending))
	return s.SettleGrouped(working)
}

// SettleDebts settles members with the default Settler.
func SettleDebts(members []Member) []Transaction {
	return Settler{}.Settle(members)
}

// SettleDebtsGrouped settles members with the default Settler and groups the
// result by recipient.
func SettleDebtsGrouped(members []Member) []GroupedSettlement {
	return Settler{}.SettleGrouped(members)
}

// PrepareGroupSettleUp runs Settler.PrepareGroupSettleUp with the default Settler.
func PrepareGroupSettleUp(members []Member, pending []PendingChange) []GroupedSettlement {
	return Settler{}.PrepareGroupSettleUp(members, pending)
}

// GroupByRecipient re-keys transactions by their recipient, in order of each
// recipient's first appearance.
func GroupByRecipient(txs []Transaction) []GroupedSettlement {
	index := make(map[int64]int)
	groups := make([]GroupedSettlement, 0)

	for _, tx := range txs {
		i, ok := index[tx.To]
		if !ok {
			i = len(groups)
			index[tx.To] = i
			groups = append(groups, GroupedSettlement{TargetID: tx.To})
		}
		groups[i].Payments = append(groups[i].Payments, Payment{From: tx.From, Amount: tx.Amount})
	}

	return groups
}

// Flatten turns grouped settlements back into transactions.
func Flatten(groups []GroupedSettlement) []Transaction {
	var txs []Transaction
	for _, g := range groups {
		for _, p := range g.Payments {
			txs = append(txs, Transaction{From: p.From, To: g.TargetID, Amount: p.Amount})
		}
	}
	return txs
}

// ApplyPendingChanges returns a copy of members with every pending change
// applied. Changes that reference unknown members only touch the known side.
func ApplyPendingChanges(members []Member, pending []PendingChange) []Member {
	working := make([]Member, len(members))
	copy(working, members)

	index := make(map[int64]int, len(working))
	for i, m := range working {
		index[m.ID] = i
	}

	for _, p := range pending {
		if i, ok := index[p.SourceID]; ok {
			working[i].Balance = working[i].Balance.Add(p.Amount)
		}
		if i, ok := index[p.TargetID]; ok {
			working[i].Balance = working[i].Balance.Sub(p.Amount)
		}
	}

	return working
}

func nonZero(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if !m.Balance.IsZero() {
			out = append(out, m)
		}
	}
	return out
}

func centsToMoney(cents int64) currency.Money {
	return currency.FromCents(cents)
}
