package solver

import "sort"

// SettleFast settles balances with a largest-debtor / largest-creditor sweep.
// The result is valid but not necessarily minimal; it never exceeds
// debtors+creditors-1 transactions.
func SettleFast(members []Member) []Transaction {
	type node struct {
		id     int64
		amount int64 // outstanding magnitude in cents
	}

	var debtors, creditors []node
	for _, m := range members {
		c := m.Balance.Cents()
		switch {
		case c < 0:
			debtors = append(debtors, node{id: m.ID, amount: -c})
		case c > 0:
			creditors = append(creditors, node{id: m.ID, amount: c})
		}
	}

	sort.SliceStable(debtors, func(i, j int) bool { return debtors[i].amount > debtors[j].amount })
	sort.SliceStable(creditors, func(i, j int) bool { return creditors[i].amount > creditors[j].amount })

	txs := make([]Transaction, 0, len(debtors)+len(creditors))
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d, c := &debtors[i], &creditors[j]

		amount := min(d.amount, c.amount)
		txs = append(txs, Transaction{From: d.id, To: c.id, Amount: centsToMoney(amount)})

		d.amount -= amount
		c.amount -= amount
		if d.amount == 0 {
			i++
		}
		if c.amount == 0 {
			j++
		}
	}

	return txs
}
