package solver

// ExtractPerfectMatches pairs every debtor with a creditor holding exactly the
// opposite balance. Matched pairs become single transactions; everyone else,
// including zero balances, is returned untouched in input order.
//
// When several creditors share a magnitude, which one is consumed is left to
// map iteration order and is not stable between calls.
func ExtractPerfectMatches(members []Member) PerfectMatches {
	// magnitude in cents -> creditor index -> creditor
	buckets := make(map[int64]map[int]Member)
	for i, m := range members {
		if !m.Balance.IsPositive() {
			continue
		}
		c := m.Balance.Cents()
		if buckets[c] == nil {
			buckets[c] = make(map[int]Member)
		}
		buckets[c][i] = m
	}

	settled := make(map[int]bool)
	var txs []Transaction

	for i, debtor := range members {
		if !debtor.Balance.IsNegative() {
			continue
		}
		bucket := buckets[-debtor.Balance.Cents()]
		for j, creditor := range bucket {
			delete(bucket, j)
			settled[i] = true
			settled[j] = true
			txs = append(txs, Transaction{
				From:   debtor.ID,
				To:     creditor.ID,
				Amount: debtor.Balance.Neg(),
			})
			break
		}
	}

	remaining := make([]Member, 0, len(members)-len(settled))
	for i, m := range members {
		if !settled[i] {
			remaining = append(remaining, m)
		}
	}

	return PerfectMatches{Transactions: txs, Remaining: remaining}
}
