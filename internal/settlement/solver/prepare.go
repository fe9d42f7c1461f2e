package solver

import (
	"fmt"
	"sort"

	"github.com/fkhayef/splitledger/internal/currency"
)

// SettleUpParams describes one member's request to settle.
type SettleUpParams struct {
	PayerID      int64
	PayerBalance currency.Money
	Members      []Member
	Pending      []PendingChange

	// WithMembers holds at most one counterparty.
	WithMembers []int64

	// Amounts is parallel to WithMembers. A zero amount means "derive it".
	Amounts []currency.Money
}

// PrepareSettleUp builds the settle-up entries for a single payer. The first
// entry is always the payer and all changes sum to zero.
//
// It panics if more than one counterparty is given or the payer balance is
// zero; both must be rejected by the caller.
func PrepareSettleUp(p SettleUpParams) []BalanceChange {
	if len(p.WithMembers) > 1 {
		panic(fmt.Sprintf("solver: settle-up supports one counterparty, got %d", len(p.WithMembers)))
	}
	if p.PayerBalance.IsZero() {
		panic("solver: settle-up requested for a zero balance")
	}

	members := p.Members
	balance := p.PayerBalance
	if len(p.Pending) > 0 {
		members = ApplyPendingChanges(p.Members, p.Pending)
		if touches(p.Pending, p.PayerID) {
			balance = balanceOf(members, p.PayerID)
		}
	}

	if len(p.WithMembers) == 1 {
		other := p.WithMembers[0]
		entries := []BalanceChange{{ID: p.PayerID}}

		switch {
		case len(p.Amounts) > 0 && !p.Amounts[0].IsZero():
			entries = append(entries, BalanceChange{ID: other, Change: p.Amounts[0], Pending: true})
		case !balance.IsZero():
			entries = append(entries, BalanceChange{ID: other, Change: balance, Pending: true})
		}

		return closePayer(entries)
	}

	if balance.IsZero() {
		return []BalanceChange{{ID: p.PayerID}}
	}
	return CalculateSettleUpEntries(p.PayerID, balance, members)
}

// CalculateSettleUpEntries consumes balance against every member of the
// opposite sign: non-deleted members first, then members with access, then
// larger balances. Ties keep member order.
func CalculateSettleUpEntries(payerID int64, balance currency.Money, members []Member) []BalanceChange {
	if balance.IsZero() {
		panic("solver: settle-up requested for a zero balance")
	}

	candidates := make([]Member, 0, len(members))
	for _, m := range members {
		if m.ID != payerID && m.Balance.Sign() == -balance.Sign() {
			candidates = append(candidates, m)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Deleted != b.Deleted {
			return !a.Deleted
		}
		if a.HasAccess != b.HasAccess {
			return a.HasAccess
		}
		return currency.Compare(a.Balance.Abs(), b.Balance.Abs()) > 0
	})

	entries := []BalanceChange{{ID: payerID}}
	remaining := balance
	for _, c := range candidates {
		if remaining.IsZero() {
			break
		}

		change := c.Balance.Neg()
		if currency.Compare(c.Balance.Abs(), remaining.Abs()) > 0 {
			change = remaining
		}
		remaining = remaining.Sub(change)

		entries = append(entries, BalanceChange{ID: c.ID, Change: change, Pending: true})
	}

	return closePayer(entries)
}

// closePayer sets the payer entry to the negated sum of the counterparty entries.
func closePayer(entries []BalanceChange) []BalanceChange {
	total := currency.Zero
	for _, e := range entries[1:] {
		total = total.Add(e.Change)
	}
	entries[0].Change = total.Neg()
	return entries
}

func touches(pending []PendingChange, id int64) bool {
	for _, p := range pending {
		if p.SourceID == id || p.TargetID == id {
			return true
		}
	}
	return false
}

func balanceOf(members []Member, id int64) currency.Money {
	for _, m := range members {
		if m.ID == id {
			return m.Balance
		}
	}
	return currency.Zero
}
