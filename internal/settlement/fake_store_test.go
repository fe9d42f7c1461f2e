package settlement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fkhayef/splitledger/internal/currency"
	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/ledger"
	"github.com/fkhayef/splitledger/internal/settlement/solver"
)

// fakeStore keeps the ledger in memory with the same balance rules as
// ledger.Repository.
type fakeStore struct {
	mu sync.Mutex

	currency map[int64]string
	members  map[int64][]solver.Member
	records  map[int64]*ledger.Record
	entries  map[int64]*ledger.Entry
	nextID   int64
	locked   []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		currency: make(map[int64]string),
		members:  make(map[int64][]solver.Member),
		records:  make(map[int64]*ledger.Record),
		entries:  make(map[int64]*ledger.Entry),
	}
}

func (f *fakeStore) addGroup(groupID int64, members ...solver.Member) {
	f.currency[groupID] = "USD"
	f.members[groupID] = append([]solver.Member(nil), members...)
}

func (f *fakeStore) balance(groupID, userID int64) currency.Money {
	for _, m := range f.members[groupID] {
		if m.ID == userID {
			return m.Balance
		}
	}
	return currency.Zero
}

func (f *fakeStore) adjust(groupID, userID int64, delta currency.Money) error {
	for i, m := range f.members[groupID] {
		if m.ID == userID {
			f.members[groupID][i].Balance = m.Balance.Add(delta)
			return nil
		}
	}
	return ledger.ErrNotGroupMember
}

func (f *fakeStore) DB() database.Querier { return nil }

func (f *fakeStore) InTx(ctx context.Context, fn func(q database.Querier) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(nil)
}

func (f *fakeStore) LockGroup(ctx context.Context, q database.Querier, groupID int64) error {
	if _, ok := f.currency[groupID]; !ok {
		return ledger.ErrGroupNotFound
	}
	f.locked = append(f.locked, groupID)
	return nil
}

func (f *fakeStore) LoadSettleUpData(ctx context.Context, q database.Querier, groupID int64) (*ledger.SettleUpData, error) {
	code, ok := f.currency[groupID]
	if !ok {
		return nil, ledger.ErrGroupNotFound
	}

	data := &ledger.SettleUpData{
		GroupID:      groupID,
		CurrencyCode: code,
		Members:      append([]solver.Member(nil), f.members[groupID]...),
	}

	ids := make([]int64, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		e := f.entries[id]
		rec := f.records[e.RecordID]
		if rec.GroupID != groupID || rec.Kind != ledger.KindSettleUp || !e.Pending || e.UserID == rec.PayerID {
			continue
		}
		data.Pending = append(data.Pending, solver.PendingChange{
			SourceID: rec.PayerID,
			TargetID: e.UserID,
			Amount:   e.Change.Neg(),
		})
	}

	return data, nil
}

func (f *fakeStore) CreateRecord(ctx context.Context, q database.Querier, rec *ledger.Record, inputs []ledger.EntryInput) (*ledger.Record, []*ledger.Entry, error) {
	var total currency.Money
	for _, in := range inputs {
		total = total.Add(in.Change)
	}
	if !total.IsZero() {
		return nil, nil, ledger.ErrUnbalancedRecord
	}

	f.nextID++
	created := *rec
	created.ID = f.nextID
	created.CreatedAt = time.Now()
	f.records[created.ID] = &created

	out := make([]*ledger.Entry, 0, len(inputs))
	for _, in := range inputs {
		f.nextID++
		e := &ledger.Entry{ID: f.nextID, RecordID: created.ID, UserID: in.UserID, Change: in.Change, Pending: in.Pending}
		f.entries[e.ID] = e
		if !in.Pending {
			if err := f.adjust(created.GroupID, in.UserID, in.Change); err != nil {
				return nil, nil, err
			}
		}
		cp := *e
		out = append(out, &cp)
	}

	return &created, out, nil
}

func (f *fakeStore) GetRecord(ctx context.Context, q database.Querier, id int64) (*ledger.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, ledger.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) ListEntries(ctx context.Context, q database.Querier, recordID int64) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range f.entries {
		if e.RecordID == recordID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetEntry(ctx context.Context, q database.Querier, id int64) (*ledger.Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, ledger.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) ListPendingEntries(ctx context.Context, q database.Querier, userID int64) ([]*ledger.PendingEntry, error) {
	var out []*ledger.PendingEntry
	for _, e := range f.entries {
		rec := f.records[e.RecordID]
		if e.UserID != userID || !e.Pending || rec.Kind != ledger.KindSettleUp || rec.PayerID == userID {
			continue
		}
		out = append(out, &ledger.PendingEntry{Entry: *e, GroupID: rec.GroupID, PayerID: rec.PayerID, Description: rec.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ConfirmEntry(ctx context.Context, q database.Querier, entryID int64) (*ledger.Entry, error) {
	e, ok := f.entries[entryID]
	if !ok {
		return nil, ledger.ErrEntryNotFound
	}
	rec := f.records[e.RecordID]
	if !e.Pending || e.UserID == rec.PayerID {
		return nil, ledger.ErrEntryNotPending
	}

	if err := f.adjust(rec.GroupID, e.UserID, e.Change); err != nil {
		return nil, err
	}
	if err := f.adjust(rec.GroupID, rec.PayerID, e.Change.Neg()); err != nil {
		return nil, err
	}
	e.Pending = false
	f.settlePayer(rec)

	cp := *e
	return &cp, nil
}

func (f *fakeStore) DeleteEntry(ctx context.Context, q database.Querier, entryID int64) error {
	e, ok := f.entries[entryID]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	rec := f.records[e.RecordID]
	if !e.Pending || e.UserID == rec.PayerID {
		return ledger.ErrEntryNotPending
	}
	delete(f.entries, entryID)

	remaining := 0
	for id, other := range f.entries {
		if other.RecordID != rec.ID {
			continue
		}
		if other.UserID == rec.PayerID {
			f.entries[id].Change = other.Change.Add(e.Change)
		} else {
			remaining++
		}
	}

	if remaining == 0 {
		for id, other := range f.entries {
			if other.RecordID == rec.ID {
				delete(f.entries, id)
			}
		}
		delete(f.records, rec.ID)
		return nil
	}

	rec.Amount = rec.Amount.Sub(e.Change.Abs())
	f.settlePayer(rec)
	return nil
}

func (f *fakeStore) settlePayer(rec *ledger.Record) {
	var payerEntry *ledger.Entry
	for _, e := range f.entries {
		if e.RecordID != rec.ID {
			continue
		}
		if e.UserID == rec.PayerID {
			payerEntry = e
		} else if e.Pending {
			return
		}
	}
	if payerEntry != nil {
		payerEntry.Pending = false
	}
}

func (f *fakeStore) recordCount() int {
	return len(f.records)
}

type notice struct {
	kind      string
	recipient int64
	other     int64
	record    int64
}

type fakeNotifier struct {
	sent []notice
}

func (n *fakeNotifier) NotifySettleUpRequested(ctx context.Context, recipientID, payerID, recordID int64) error {
	n.sent = append(n.sent, notice{"requested", recipientID, payerID, recordID})
	return nil
}

func (n *fakeNotifier) NotifySettleUpConfirmed(ctx context.Context, payerID, counterpartyID, recordID int64) error {
	n.sent = append(n.sent, notice{"confirmed", payerID, counterpartyID, recordID})
	return nil
}

func (n *fakeNotifier) NotifySettleUpRejected(ctx context.Context, payerID, counterpartyID, recordID int64) error {
	n.sent = append(n.sent, notice{"rejected", payerID, counterpartyID, recordID})
	return nil
}

type fakeRecorder struct {
	solverRuns map[string]int
	confirmed  map[string]int
	conflicts  map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		solverRuns: make(map[string]int),
		confirmed:  make(map[string]int),
		conflicts:  make(map[string]int),
	}
}

func (r *fakeRecorder) ObserveSolver(solver string, members int, elapsed time.Duration) {
	r.solverRuns[solver]++
}

func (r *fakeRecorder) SettleUpConfirmed(kind string) { r.confirmed[kind]++ }
func (r *fakeRecorder) SettleUpConflict(kind string)  { r.conflicts[kind]++ }
