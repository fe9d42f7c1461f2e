package solver

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/fkhayef/splitledger/internal/currency"
)

func m(id int64, balance string) Member {
	return Member{ID: id, Balance: currency.MustParse(balance), HasAccess: true}
}

// replay applies txs to members and returns the resulting balances by id.
func replay(members []Member, txs []Transaction) map[int64]currency.Money {
	out := make(map[int64]currency.Money, len(members))
	for _, mem := range members {
		out[mem.ID] = out[mem.ID].Add(mem.Balance)
	}
	for _, tx := range txs {
		out[tx.From] = out[tx.From].Add(tx.Amount)
		out[tx.To] = out[tx.To].Sub(tx.Amount)
	}
	return out
}

// checkSettlement asserts that txs move money from debtors to creditors and zero every balance.
func checkSettlement(t *testing.T, members []Member, txs []Transaction) {
	t.Helper()

	input := make(map[int64]currency.Money, len(members))
	var positive currency.Money
	for _, mem := range members {
		input[mem.ID] = mem.Balance
		if mem.Balance.IsPositive() {
			positive = positive.Add(mem.Balance)
		}
	}

	for id, bal := range replay(members, txs) {
		if !bal.IsZero() {
			t.Errorf("member %d ends at %s, want 0.00", id, bal)
		}
	}

	var moved currency.Money
	for _, tx := range txs {
		if !tx.Amount.IsPositive() {
			t.Errorf("transaction %+v has non-positive amount", tx)
		}
		if !input[tx.From].IsNegative() {
			t.Errorf("transaction %+v pays from member with balance %s", tx, input[tx.From])
		}
		if !input[tx.To].IsPositive() {
			t.Errorf("transaction %+v pays to member with balance %s", tx, input[tx.To])
		}
		moved = moved.Add(tx.Amount)
	}
	if moved != positive {
		t.Errorf("transferred %s, want total positive balance %s", moved, positive)
	}
}

// randomMembers returns n members whose balances sum to zero.
func randomMembers(r *rand.Rand, n int) []Member {
	members := make([]Member, n)
	var sum int64
	for i := 0; i < n-1; i++ {
		cents := r.Int64N(20000) - 10000
		sum += cents
		members[i] = Member{ID: int64(i + 1), Balance: currency.FromCents(cents), HasAccess: true}
	}
	members[n-1] = Member{ID: int64(n), Balance: currency.FromCents(-sum), HasAccess: true}
	return members
}

func TestExtractPerfectMatches(t *testing.T) {
	t.Run("exact pair", func(t *testing.T) {
		got := ExtractPerfectMatches([]Member{m(1, "-10"), m(2, "10")})

		if len(got.Transactions) != 1 {
			t.Fatalf("got %d transactions, want 1", len(got.Transactions))
		}
		tx := got.Transactions[0]
		if tx.From != 1 || tx.To != 2 || tx.Amount.String() != "10.00" {
			t.Errorf("transaction = %+v, want 1 -> 2 10.00", tx)
		}
		if len(got.Remaining) != 0 {
			t.Errorf("remaining = %+v, want none", got.Remaining)
		}
	})

	t.Run("shared magnitude consumes one creditor", func(t *testing.T) {
		input := []Member{m(1, "-10"), m(2, "10"), m(3, "10"), m(4, "-10.00"), m(5, "-10")}
		got := ExtractPerfectMatches(input)

		if len(got.Transactions) != 2 {
			t.Fatalf("got %d transactions, want 2", len(got.Transactions))
		}
		if len(got.Remaining) != 1 || got.Remaining[0].Balance.String() != "-10.00" {
			t.Errorf("remaining = %+v, want one debtor at -10.00", got.Remaining)
		}
	})

	t.Run("zero balances pass through", func(t *testing.T) {
		got := ExtractPerfectMatches([]Member{m(1, "0"), m(2, "-3"), m(3, "5"), m(4, "-2")})

		if len(got.Transactions) != 0 {
			t.Errorf("got transactions %+v, want none", got.Transactions)
		}
		if len(got.Remaining) != 4 || got.Remaining[0].ID != 1 {
			t.Errorf("remaining = %+v, want all four in input order", got.Remaining)
		}
	})

	t.Run("remaining members are untouched", func(t *testing.T) {
		r := rand.New(rand.NewPCG(7, 11))
		for iter := 0; iter < 50; iter++ {
			input := randomMembers(r, 12)
			// force a few exact pairs
			input[1].Balance = input[0].Balance.Neg()
			input[3].Balance = input[2].Balance.Neg()

			got := ExtractPerfectMatches(input)

			used := make(map[int64]bool)
			for _, tx := range got.Transactions {
				used[tx.From] = true
				used[tx.To] = true
			}
			original := make(map[int64]currency.Money)
			for _, mem := range input {
				original[mem.ID] = mem.Balance
			}
			for _, rem := range got.Remaining {
				if used[rem.ID] {
					t.Fatalf("member %d is both remaining and matched", rem.ID)
				}
				if rem.Balance != original[rem.ID] {
					t.Fatalf("member %d balance changed from %s to %s", rem.ID, original[rem.ID], rem.Balance)
				}
			}
			if len(got.Remaining)+len(used) != len(input) {
				t.Fatalf("remaining %d + matched %d != input %d", len(got.Remaining), len(used), len(input))
			}
		}
	})
}

func TestSettleOptimal(t *testing.T) {
	tests := []struct {
		name    string
		members []Member
		wantTxs int
	}{
		{name: "empty", members: nil, wantTxs: 0},
		{name: "one debtor two creditors", members: []Member{m(1, "-15"), m(2, "10"), m(3, "5")}, wantTxs: 2},
		{name: "independent subgroups", members: []Member{m(1, "-7"), m(2, "-3"), m(3, "5"), m(4, "3"), m(5, "2")}, wantTxs: 3},
		{name: "no zero-sum subgroup", members: []Member{m(1, "-6"), m(2, "-4"), m(3, "5"), m(4, "5")}, wantTxs: 3},
		{name: "ignores zeros", members: []Member{m(1, "0"), m(2, "-1.50"), m(3, "1.50")}, wantTxs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SettleOptimal(tt.members)
			if len(got) != tt.wantTxs {
				t.Errorf("got %d transactions %+v, want %d", len(got), got, tt.wantTxs)
			}
			checkSettlement(t, tt.members, got)
		})
	}
}

func TestSettleOptimal_DoesNotMutateInput(t *testing.T) {
	input := []Member{m(1, "-7"), m(2, "-3"), m(3, "5"), m(4, "3"), m(5, "2")}
	before := make([]Member, len(input))
	copy(before, input)

	SettleOptimal(input)

	for i := range input {
		if input[i] != before[i] {
			t.Fatalf("input[%d] changed from %+v to %+v", i, before[i], input[i])
		}
	}
}

func TestSettleFast(t *testing.T) {
	members := []Member{m(1, "-7"), m(2, "-3"), m(3, "5"), m(4, "3"), m(5, "2")}
	got := SettleFast(members)

	checkSettlement(t, members, got)
	if len(got) > 2+3-1 {
		t.Errorf("got %d transactions, want at most 4", len(got))
	}
	// 7 -> 5, 7 -> 3 (2), 3 -> 3 (1), 3 -> 2
	if len(got) != 4 {
		t.Errorf("got %d transactions, want 4", len(got))
	}
}

func TestSettleFast_ReplayIsIdempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for iter := 0; iter < 100; iter++ {
		members := randomMembers(r, 2+r.IntN(30))
		txs := SettleFast(members)

		settled := replay(members, txs)
		after := make([]Member, 0, len(settled))
		for id, bal := range settled {
			after = append(after, Member{ID: id, Balance: bal})
		}

		if again := SettleFast(after); len(again) != 0 {
			t.Fatalf("second pass produced %d transactions: %+v", len(again), again)
		}
	}
}

func TestSettleDebts_Properties(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 99))
	for iter := 0; iter < 200; iter++ {
		members := randomMembers(r, 2+r.IntN(25))
		checkSettlement(t, members, SettleDebts(members))
	}
}

func TestSettleDebts_OptimalNeverWorseThanFast(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	for iter := 0; iter < 60; iter++ {
		members := randomMembers(r, 2+r.IntN(7))

		optimal := SettleOptimal(members)
		fast := SettleFast(members)

		checkSettlement(t, members, optimal)
		if len(optimal) > len(fast) {
			t.Fatalf("optimal used %d transactions, fast used %d for %+v", len(optimal), len(fast), members)
		}
	}
}

func TestSettleDebts_AllZero(t *testing.T) {
	got := SettleDebts([]Member{m(1, "0"), m(2, "0")})
	if len(got) != 0 {
		t.Errorf("got %+v, want no transactions", got)
	}
	if got == nil {
		t.Error("got nil slice, want empty")
	}
}

// chain returns n-1 distinct debtors and one creditor so that no perfect
// match exists and the optimal search stays linear.
func chain(n int) []Member {
	members := make([]Member, 0, n)
	var total int64
	for i := 1; i < n; i++ {
		members = append(members, Member{ID: int64(i), Balance: currency.FromCents(int64(-i * 100))})
		total += int64(i * 100)
	}
	return append(members, Member{ID: int64(n), Balance: currency.FromCents(total)})
}

func TestSettler_ThresholdRouting(t *testing.T) {
	tests := []struct {
		name     string
		members  int
		wantKind SolverKind
	}{
		{name: "ten remaining uses optimal", members: 10, wantKind: SolverOptimal},
		{name: "eleven remaining uses fast", members: 11, wantKind: SolverFast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []SolverKind
			var sizes []int
			s := Settler{Observe: func(kind SolverKind, n int, _ time.Duration) {
				calls = append(calls, kind)
				sizes = append(sizes, n)
			}}

			members := chain(tt.members)
			txs := s.Settle(members)

			if len(calls) != 1 || calls[0] != tt.wantKind {
				t.Fatalf("solver calls = %v, want [%s]", calls, tt.wantKind)
			}
			if sizes[0] != tt.members {
				t.Errorf("observed %d members, want %d", sizes[0], tt.members)
			}
			checkSettlement(t, members, txs)
		})
	}
}

func TestSettler_CustomThreshold(t *testing.T) {
	s := Settler{Threshold: 3}
	if s.Pick(3) != SolverOptimal || s.Pick(4) != SolverFast {
		t.Errorf("Pick with threshold 3 routed 3 -> %s, 4 -> %s", s.Pick(3), s.Pick(4))
	}
	if (Settler{}).Pick(OptimalThreshold) != SolverOptimal {
		t.Error("default settler should route OptimalThreshold members to the optimal solver")
	}
}

func TestSettleDebtsGrouped(t *testing.T) {
	members := []Member{m(1, "-10"), m(2, "-5"), m(3, "15"), m(4, "-2"), m(5, "2")}
	groups := SettleDebtsGrouped(members)

	checkSettlement(t, members, Flatten(groups))

	seen := make(map[int64]bool)
	for _, g := range groups {
		if seen[g.TargetID] {
			t.Errorf("recipient %d appears in more than one group", g.TargetID)
		}
		seen[g.TargetID] = true
		for _, p := range g.Payments {
			if p.From == g.TargetID {
				t.Errorf("recipient %d pays itself", g.TargetID)
			}
		}
	}
	if !seen[3] || !seen[5] || len(groups) != 2 {
		t.Errorf("groups = %+v, want recipients 3 and 5", groups)
	}
}

func TestApplyPendingChanges(t *testing.T) {
	members := []Member{m(1, "-10"), m(2, "10"), m(3, "0")}
	pending := []PendingChange{
		{SourceID: 1, TargetID: 2, Amount: currency.MustParse("4")},
		{SourceID: 3, TargetID: 99, Amount: currency.MustParse("1")},
	}

	got := ApplyPendingChanges(members, pending)

	want := map[int64]string{1: "-6.00", 2: "6.00", 3: "1.00"}
	for _, mem := range got {
		if mem.Balance.String() != want[mem.ID] {
			t.Errorf("member %d = %s, want %s", mem.ID, mem.Balance, want[mem.ID])
		}
	}
	if members[0].Balance.String() != "-10.00" {
		t.Error("input slice was mutated")
	}
}

func TestPrepareGroupSettleUp(t *testing.T) {
	members := []Member{m(1, "-10"), m(2, "6"), m(3, "4")}
	pending := []PendingChange{{SourceID: 1, TargetID: 3, Amount: currency.MustParse("4")}}

	groups := PrepareGroupSettleUp(members, pending)

	if len(groups) != 1 || groups[0].TargetID != 2 {
		t.Fatalf("groups = %+v, want a single recipient 2", groups)
	}
	if len(groups[0].Payments) != 1 || groups[0].Payments[0].From != 1 || groups[0].Payments[0].Amount.String() != "6.00" {
		t.Errorf("payments = %+v, want 1 -> 2 6.00", groups[0].Payments)
	}
}
