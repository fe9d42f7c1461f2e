package solver

import (
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// SettleOptimal returns a minimum-cardinality list of transactions that
// zeroes every balance. The search is exponential in the number of distinct
// balances, so callers gate it behind OptimalThreshold.
//
// Balances are expected to sum to zero. If they don't, the search stops once
// no debtor/creditor pair is left and the remainder stays unsettled.
func SettleOptimal(members []Member) []Transaction {
	s := newOptimalSearch(members)

	txs := make([]Transaction, 0, len(s.bal))
	for {
		start := s.firstNonZero(0)
		if start == len(s.bal) {
			return txs
		}

		want := s.minTx(start)
		next := -1
		for i := start + 1; i < len(s.bal); i++ {
			if !opposite(s.bal[start], s.bal[i]) {
				continue
			}
			got := s.withTransfer(start, i, func() int { return 1 + s.minTx(start) })
			if got == want {
				next = i
				break
			}
		}
		if next < 0 {
			return txs
		}

		txs = append(txs, s.transfer(start, next))
	}
}

type optimalSearch struct {
	ids  []int64
	bal  []int64
	memo map[string]int
}

func newOptimalSearch(members []Member) *optimalSearch {
	nodes := make([]Member, 0, len(members))
	for _, m := range members {
		if !m.Balance.IsZero() {
			nodes = append(nodes, m)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Balance.Cents() < nodes[j].Balance.Cents()
	})

	s := &optimalSearch{
		ids:  make([]int64, len(nodes)),
		bal:  make([]int64, len(nodes)),
		memo: make(map[string]int),
	}
	for i, n := range nodes {
		s.ids[i] = n.ID
		s.bal[i] = n.Balance.Cents()
	}
	return s
}

func (s *optimalSearch) firstNonZero(from int) int {
	for from < len(s.bal) && s.bal[from] == 0 {
		from++
	}
	return from
}

// minTx returns the fewest transactions needed to zero every position at or
// after start.
func (s *optimalSearch) minTx(start int) int {
	start = s.firstNonZero(start)
	if start == len(s.bal) {
		return 0
	}

	key := s.key()
	if n, ok := s.memo[key]; ok {
		return n
	}

	best := math.MaxInt
	for i := start + 1; i < len(s.bal); i++ {
		if !opposite(s.bal[start], s.bal[i]) {
			continue
		}
		n := s.withTransfer(start, i, func() int { return 1 + s.minTx(start) })
		if n < best {
			best = n
		}
	}
	if best == math.MaxInt {
		best = 0
	}

	s.memo[key] = best
	return best
}

// withTransfer applies the transfer between a and b, runs fn and restores
// both balances however fn returns.
func (s *optimalSearch) withTransfer(a, b int, fn func() int) int {
	oldA, oldB := s.bal[a], s.bal[b]
	defer func() {
		s.bal[a], s.bal[b] = oldA, oldB
	}()

	s.transfer(a, b)
	return fn()
}

// transfer settles min(|a|, |b|) between two opposite-sign positions.
func (s *optimalSearch) transfer(a, b int) Transaction {
	amount := min(abs(s.bal[a]), abs(s.bal[b]))

	from, to := a, b
	if s.bal[a] > 0 {
		from, to = b, a
	}
	s.bal[from] += amount
	s.bal[to] -= amount

	return Transaction{From: s.ids[from], To: s.ids[to], Amount: centsToMoney(amount)}
}

// key is the sorted multiset of remaining nonzero balances, so the memo is
// independent of which member holds which balance.
func (s *optimalSearch) key() string {
	rest := make([]int64, 0, len(s.bal))
	for _, b := range s.bal {
		if b != 0 {
			rest = append(rest, b)
		}
	}
	slices.Sort(rest)

	var sb strings.Builder
	for i, b := range rest {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(b, 10))
	}
	return sb.String()
}

func opposite(a, b int64) bool {
	return (a < 0 && b > 0) || (a > 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
