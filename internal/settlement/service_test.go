package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/fkhayef/splitledger/internal/currency"
	"github.com/fkhayef/splitledger/internal/ledger"
	"github.com/fkhayef/splitledger/internal/settlement/solver"
)

const testGroup = 1

func member(id int64, balance string, access bool) solver.Member {
	return solver.Member{ID: id, Balance: currency.MustParse(balance), HasAccess: access}
}

// newTestService returns a service over a group with balances
// 1:-15 2:20 3:10 4:10 5:-30 6:-95 7:100 (7 without access) and 8:0.
func newTestService(t *testing.T) (*Service, *fakeStore, *fakeNotifier, *fakeRecorder) {
	t.Helper()

	store := newFakeStore()
	store.addGroup(testGroup,
		member(1, "-15", true),
		member(2, "20", true),
		member(3, "10", true),
		member(4, "10", true),
		member(5, "-30", true),
		member(6, "-95", true),
		member(7, "100", false),
		member(8, "0", true),
	)

	notifier := &fakeNotifier{}
	recorder := newFakeRecorder()
	return NewService(store, notifier, recorder, 0), store, notifier, recorder
}

func TestPreviewSettleUp(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	preview, err := svc.PreviewSettleUp(context.Background(), testGroup, 1, &SettleUpRequest{})
	if err != nil {
		t.Fatalf("PreviewSettleUp: %v", err)
	}

	if preview.CurrencyCode != "USD" {
		t.Errorf("currency = %q, want USD", preview.CurrencyCode)
	}
	if len(preview.Entries) != 2 {
		t.Fatalf("entries = %+v, want payer and one creditor", preview.Entries)
	}
	if preview.Entries[0].ID != 1 || preview.Entries[0].Change.String() != "15.00" {
		t.Errorf("payer entry = %+v, want {1 15.00}", preview.Entries[0])
	}
	if preview.Entries[1].ID != 2 || preview.Entries[1].Change.String() != "-15.00" || !preview.Entries[1].Pending {
		t.Errorf("counterparty entry = %+v, want pending {2 -15.00}", preview.Entries[1])
	}
	if preview.Hash != solver.Hash(preview.Entries) {
		t.Error("preview hash does not match its entries")
	}
}

func TestPreviewSettleUp_Errors(t *testing.T) {
	tests := []struct {
		name    string
		group   int64
		payer   int64
		req     *SettleUpRequest
		wantErr error
	}{
		{name: "two counterparties", group: testGroup, payer: 1, req: &SettleUpRequest{WithMembers: []int64{2, 3}}, wantErr: ErrTooManyCounterparties},
		{name: "self", group: testGroup, payer: 1, req: &SettleUpRequest{WithMembers: []int64{1}}, wantErr: ErrCannotSettleSelf},
		{name: "amount without counterparty", group: testGroup, payer: 1, req: &SettleUpRequest{Amounts: []currency.Money{currency.MustParse("1")}}, wantErr: ErrInvalidAmounts},
		{name: "zero balance", group: testGroup, payer: 8, req: &SettleUpRequest{}, wantErr: ErrNothingToSettle},
		{name: "payer not in group", group: testGroup, payer: 42, req: &SettleUpRequest{}, wantErr: ErrNotGroupMember},
		{name: "counterparty not in group", group: testGroup, payer: 1, req: &SettleUpRequest{WithMembers: []int64{42}}, wantErr: ErrNotGroupMember},
		{name: "amount increases the debt", group: testGroup, payer: 1, req: &SettleUpRequest{WithMembers: []int64{4}, Amounts: []currency.Money{currency.MustParse("7.50")}}, wantErr: ErrAmountOutOfRange},
		{name: "amount beyond the balance", group: testGroup, payer: 1, req: &SettleUpRequest{WithMembers: []int64{2}, Amounts: []currency.Money{currency.MustParse("-15.01")}}, wantErr: ErrAmountOutOfRange},
		{name: "creditor pays a debtor more than owed", group: testGroup, payer: 3, req: &SettleUpRequest{WithMembers: []int64{5}, Amounts: []currency.Money{currency.MustParse("10.50")}}, wantErr: ErrAmountOutOfRange},
		{name: "debtor with debtor", group: testGroup, payer: 1, req: &SettleUpRequest{WithMembers: []int64{5}, Amounts: []currency.Money{currency.MustParse("-500")}}, wantErr: ErrSameSideCounterparty},
		{name: "creditor with creditor", group: testGroup, payer: 2, req: &SettleUpRequest{WithMembers: []int64{3}}, wantErr: ErrSameSideCounterparty},
		{name: "unknown group", group: 99, payer: 1, req: &SettleUpRequest{}, wantErr: ErrGroupNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, _ := newTestService(t)

			_, err := svc.PreviewSettleUp(context.Background(), tt.group, tt.payer, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPreviewSettleUp_ExplicitAmount(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	preview, err := svc.PreviewSettleUp(context.Background(), testGroup, 1, &SettleUpRequest{
		WithMembers: []int64{4},
		Amounts:     []currency.Money{currency.MustParse("-7.50")},
	})
	if err != nil {
		t.Fatalf("PreviewSettleUp: %v", err)
	}

	if len(preview.Entries) != 2 || preview.Entries[1].ID != 4 || preview.Entries[1].Change.String() != "-7.50" {
		t.Errorf("entries = %+v, want counterparty 4 at -7.50", preview.Entries)
	}
	if preview.Entries[0].ID != 1 || preview.Entries[0].Change.String() != "7.50" {
		t.Errorf("payer entry = %+v, want 1 at 7.50", preview.Entries[0])
	}
}

func TestConfirmSettleUp(t *testing.T) {
	svc, store, notifier, recorder := newTestService(t)
	ctx := context.Background()

	preview, err := svc.PreviewSettleUp(ctx, testGroup, 6, &SettleUpRequest{})
	if err != nil {
		t.Fatalf("PreviewSettleUp: %v", err)
	}

	result, err := svc.ConfirmSettleUp(ctx, testGroup, 6, &ConfirmSettleUpRequest{Hash: preview.Hash})
	if err != nil {
		t.Fatalf("ConfirmSettleUp: %v", err)
	}

	if result.Record.Kind != ledger.KindSettleUp || result.Record.PayerID != 6 {
		t.Errorf("record = %+v, want a settle-up paid by 6", result.Record)
	}
	if result.Record.Amount.String() != "95.00" {
		t.Errorf("record amount = %s, want 95.00", result.Record.Amount)
	}
	if len(result.Entries) != 5 {
		t.Fatalf("got %d entries, want payer + 4 counterparties", len(result.Entries))
	}
	for _, e := range result.Entries {
		if !e.Pending {
			t.Errorf("entry %+v should stay pending until confirmed", e)
		}
	}

	// nothing is applied until the counterparties confirm
	if got := store.balance(testGroup, 6).String(); got != "-95.00" {
		t.Errorf("payer balance = %s, want -95.00", got)
	}
	if len(store.locked) != 1 || store.locked[0] != testGroup {
		t.Errorf("locked groups = %v, want [%d]", store.locked, testGroup)
	}
	if len(notifier.sent) != 4 {
		t.Errorf("sent %d notifications, want 4", len(notifier.sent))
	}
	if recorder.confirmed[kindSingle] != 1 {
		t.Errorf("confirmed metric = %d, want 1", recorder.confirmed[kindSingle])
	}

	// the pending entries already count against the payer
	if _, err := svc.PreviewSettleUp(ctx, testGroup, 6, &SettleUpRequest{}); !errors.Is(err, ErrNothingToSettle) {
		t.Errorf("second preview error = %v, want ErrNothingToSettle", err)
	}
}

func TestConfirmSettleUp_Stale(t *testing.T) {
	svc, store, _, recorder := newTestService(t)
	ctx := context.Background()

	preview, err := svc.PreviewSettleUp(ctx, testGroup, 1, &SettleUpRequest{})
	if err != nil {
		t.Fatalf("PreviewSettleUp: %v", err)
	}

	// an expense lands between preview and confirm
	_, _, err = store.CreateRecord(ctx, nil, &ledger.Record{GroupID: testGroup, PayerID: 2, Kind: ledger.KindExpense}, []ledger.EntryInput{
		{UserID: 2, Change: currency.MustParse("5")},
		{UserID: 1, Change: currency.MustParse("-5")},
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	before := store.recordCount()

	_, err = svc.ConfirmSettleUp(ctx, testGroup, 1, &ConfirmSettleUpRequest{Hash: preview.Hash})
	if !errors.Is(err, ErrStaleSettleUp) {
		t.Fatalf("error = %v, want ErrStaleSettleUp", err)
	}
	if store.recordCount() != before {
		t.Error("stale confirmation persisted a record")
	}
	if recorder.conflicts[kindSingle] != 1 {
		t.Errorf("conflict metric = %d, want 1", recorder.conflicts[kindSingle])
	}
}

func TestConfirmEntry(t *testing.T) {
	svc, store, notifier, _ := newTestService(t)
	ctx := context.Background()

	preview, _ := svc.PreviewSettleUp(ctx, testGroup, 1, &SettleUpRequest{})
	result, err := svc.ConfirmSettleUp(ctx, testGroup, 1, &ConfirmSettleUpRequest{Hash: preview.Hash})
	if err != nil {
		t.Fatalf("ConfirmSettleUp: %v", err)
	}
	entryID := result.Entries[1].ID

	if _, err := svc.ConfirmEntry(ctx, entryID, 3); !errors.Is(err, ErrNotReceiver) {
		t.Errorf("confirm by stranger error = %v, want ErrNotReceiver", err)
	}
	if _, err := svc.ConfirmEntry(ctx, result.Entries[0].ID, 1); !errors.Is(err, ErrInvalidStatusChange) {
		t.Errorf("confirm of payer entry error = %v, want ErrInvalidStatusChange", err)
	}

	entry, err := svc.ConfirmEntry(ctx, entryID, 2)
	if err != nil {
		t.Fatalf("ConfirmEntry: %v", err)
	}
	if entry.Pending {
		t.Error("confirmed entry is still pending")
	}

	if got := store.balance(testGroup, 1).String(); got != "0.00" {
		t.Errorf("payer balance = %s, want 0.00", got)
	}
	if got := store.balance(testGroup, 2).String(); got != "5.00" {
		t.Errorf("counterparty balance = %s, want 5.00", got)
	}
	if payer, _ := store.GetEntry(ctx, nil, result.Entries[0].ID); payer.Pending {
		t.Error("payer entry still pending after the last confirmation")
	}

	last := notifier.sent[len(notifier.sent)-1]
	if last.kind != "confirmed" || last.recipient != 1 || last.other != 2 {
		t.Errorf("last notification = %+v, want confirmed to payer 1", last)
	}

	if _, err := svc.ConfirmEntry(ctx, entryID, 2); !errors.Is(err, ErrInvalidStatusChange) {
		t.Errorf("second confirm error = %v, want ErrInvalidStatusChange", err)
	}
	if _, err := svc.ConfirmEntry(ctx, 9999, 2); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("unknown entry error = %v, want ErrEntryNotFound", err)
	}
}

func TestRejectEntry(t *testing.T) {
	svc, store, notifier, _ := newTestService(t)
	ctx := context.Background()

	preview, _ := svc.PreviewSettleUp(ctx, testGroup, 1, &SettleUpRequest{})
	result, err := svc.ConfirmSettleUp(ctx, testGroup, 1, &ConfirmSettleUpRequest{Hash: preview.Hash})
	if err != nil {
		t.Fatalf("ConfirmSettleUp: %v", err)
	}

	if err := svc.RejectEntry(ctx, result.Entries[1].ID, 2); err != nil {
		t.Fatalf("RejectEntry: %v", err)
	}

	if store.recordCount() != 0 {
		t.Errorf("record count = %d, want the emptied record removed", store.recordCount())
	}
	if got := store.balance(testGroup, 1).String(); got != "-15.00" {
		t.Errorf("payer balance = %s, want -15.00", got)
	}
	last := notifier.sent[len(notifier.sent)-1]
	if last.kind != "rejected" || last.recipient != 1 {
		t.Errorf("last notification = %+v, want rejected to payer 1", last)
	}

	again, err := svc.PreviewSettleUp(ctx, testGroup, 1, &SettleUpRequest{})
	if err != nil {
		t.Fatalf("preview after reject: %v", err)
	}
	if again.Hash != preview.Hash {
		t.Error("preview after reject differs from the original")
	}
}

func TestListPendingEntries(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	preview, _ := svc.PreviewSettleUp(ctx, testGroup, 6, &SettleUpRequest{})
	if _, err := svc.ConfirmSettleUp(ctx, testGroup, 6, &ConfirmSettleUpRequest{Hash: preview.Hash}); err != nil {
		t.Fatalf("ConfirmSettleUp: %v", err)
	}

	pending, err := svc.ListPendingEntries(ctx, 7)
	if err != nil {
		t.Fatalf("ListPendingEntries: %v", err)
	}
	if len(pending) != 1 || pending[0].PayerID != 6 || pending[0].Change.String() != "-55.00" {
		t.Errorf("pending = %+v, want one entry of -55.00 from payer 6", pending)
	}

	if none, _ := svc.ListPendingEntries(ctx, 6); len(none) != 0 {
		t.Errorf("payer sees %d pending entries, want 0", len(none))
	}
}

func TestGroupSettleUp(t *testing.T) {
	svc, store, notifier, recorder := newTestService(t)
	ctx := context.Background()

	preview, err := svc.PreviewGroupSettleUp(ctx, testGroup)
	if err != nil {
		t.Fatalf("PreviewGroupSettleUp: %v", err)
	}
	if len(preview.Settlements) == 0 {
		t.Fatal("group preview proposed nothing")
	}
	if recorder.solverRuns["optimal"] == 0 {
		t.Errorf("solver runs = %v, want an optimal run", recorder.solverRuns)
	}

	if _, err := svc.ConfirmGroupSettleUp(ctx, testGroup, 42, preview.Hash); !errors.Is(err, ErrNotGroupMember) {
		t.Errorf("non-member confirm error = %v, want ErrNotGroupMember", err)
	}
	if _, err := svc.ConfirmGroupSettleUp(ctx, testGroup, 1, "bogus"); !errors.Is(err, ErrStaleSettleUp) {
		t.Errorf("bad hash error = %v, want ErrStaleSettleUp", err)
	}
	if recorder.conflicts[kindGroup] != 1 {
		t.Errorf("group conflicts = %d, want 1", recorder.conflicts[kindGroup])
	}

	results, err := svc.ConfirmGroupSettleUp(ctx, testGroup, 1, preview.Hash)
	if err != nil {
		t.Fatalf("ConfirmGroupSettleUp: %v", err)
	}
	if len(results) != len(solver.Flatten(preview.Settlements)) {
		t.Errorf("persisted %d records, want one per transaction (%d)", len(results), len(solver.Flatten(preview.Settlements)))
	}
	if len(notifier.sent) != len(results) {
		t.Errorf("sent %d notifications, want %d", len(notifier.sent), len(results))
	}

	debts, err := svc.Debts(ctx, testGroup)
	if err != nil {
		t.Fatalf("Debts: %v", err)
	}
	if len(debts.Transactions) != 0 {
		t.Errorf("debts after group settle-up = %+v, want none", debts.Transactions)
	}

	// confirming every entry brings every balance to zero
	for _, c := range results {
		for _, e := range c.Entries[1:] {
			if _, err := svc.ConfirmEntry(ctx, e.ID, e.UserID); err != nil {
				t.Fatalf("ConfirmEntry(%d): %v", e.ID, err)
			}
		}
	}
	for _, m := range store.members[testGroup] {
		if !m.Balance.IsZero() {
			t.Errorf("member %d ends at %s, want 0.00", m.ID, m.Balance)
		}
	}

	final, err := svc.PreviewGroupSettleUp(ctx, testGroup)
	if err != nil {
		t.Fatalf("final preview: %v", err)
	}
	if _, err := svc.ConfirmGroupSettleUp(ctx, testGroup, 1, final.Hash); !errors.Is(err, ErrNothingToSettle) {
		t.Errorf("settled group confirm error = %v, want ErrNothingToSettle", err)
	}
}

func TestDebts(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	debts, err := svc.Debts(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("Debts: %v", err)
	}

	settled := make(map[int64]currency.Money)
	for _, m := range store.members[testGroup] {
		settled[m.ID] = m.Balance
	}
	for _, tx := range debts.Transactions {
		settled[tx.From] = settled[tx.From].Add(tx.Amount)
		settled[tx.To] = settled[tx.To].Sub(tx.Amount)
	}
	for id, bal := range settled {
		if !bal.IsZero() {
			t.Errorf("member %d ends at %s after replay", id, bal)
		}
	}
}

func TestGetRecord(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	preview, err := svc.PreviewSettleUp(ctx, testGroup, 1, &SettleUpRequest{})
	if err != nil {
		t.Fatalf("PreviewSettleUp: %v", err)
	}
	result, err := svc.ConfirmSettleUp(ctx, testGroup, 1, &ConfirmSettleUpRequest{Hash: preview.Hash})
	if err != nil {
		t.Fatalf("ConfirmSettleUp: %v", err)
	}
	counterparty := result.Entries[1].UserID

	expense, _, err := store.CreateRecord(ctx, nil, &ledger.Record{GroupID: testGroup, PayerID: 2, Kind: ledger.KindExpense}, []ledger.EntryInput{
		{UserID: 2, Change: currency.MustParse("5")},
		{UserID: 3, Change: currency.MustParse("-5")},
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	tests := []struct {
		name    string
		record  int64
		user    int64
		wantErr error
	}{
		{name: "payer", record: result.Record.ID, user: 1},
		{name: "counterparty", record: result.Record.ID, user: counterparty},
		{name: "outsider", record: result.Record.ID, user: 8, wantErr: ErrNotParticipant},
		{name: "expense record", record: expense.ID, user: 2, wantErr: ErrRecordNotFound},
		{name: "unknown record", record: 999, user: 1, wantErr: ErrRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.GetRecord(ctx, tt.record, tt.user)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if got.Record.ID != tt.record || len(got.Entries) != len(result.Entries) {
				t.Errorf("record = %+v with %d entries", got.Record, len(got.Entries))
			}
			if got.Entries[0].UserID != 1 {
				t.Errorf("first entry = %+v, want the payer", got.Entries[0])
			}
		})
	}
}
