package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fkhayef/splitledger/internal/currency"
	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/ledger"
	"github.com/fkhayef/splitledger/internal/settlement/solver"
)

// Common errors
var (
	ErrNothingToSettle       = errors.New("nothing to settle - balance is already zero")
	ErrTooManyCounterparties = errors.New("settle up supports at most one counterparty")
	ErrInvalidAmounts        = errors.New("amounts must match the selected counterparties")
	ErrCannotSettleSelf      = errors.New("cannot settle up with yourself")
	ErrNotGroupMember        = errors.New("user is not a member of this group")
	ErrStaleSettleUp         = errors.New("balances changed since the preview - preview again")
	ErrNotReceiver           = errors.New("only the counterparty can confirm or reject")
	ErrInvalidStatusChange   = errors.New("entry is not awaiting confirmation")
	ErrAmountOutOfRange      = errors.New("amount must move the balance toward zero without passing it")
	ErrSameSideCounterparty  = errors.New("counterparty balance has the same sign as yours")
	ErrNotParticipant        = errors.New("not a participant of this settle up")

	ErrGroupNotFound  = ledger.ErrGroupNotFound
	ErrEntryNotFound  = ledger.ErrEntryNotFound
	ErrRecordNotFound = ledger.ErrRecordNotFound
)

const (
	kindSingle = "single"
	kindGroup  = "group"
)

// Service handles settle-up business logic
type Service struct {
	store    Store
	notifier Notifier
	metrics  Recorder
	settler  solver.Settler
}

// NewService creates a new settlement service. notifier and metrics may be nil.
// threshold overrides the optimal-solver threshold when positive.
func NewService(store Store, notifier Notifier, metrics Recorder, threshold int) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		settler:  solver.Settler{Threshold: threshold},
	}
	if metrics != nil {
		s.settler.Observe = func(kind solver.SolverKind, members int, elapsed time.Duration) {
			metrics.ObserveSolver(string(kind), members, elapsed)
		}
	}
	return s
}

// PreviewSettleUp proposes the entries that would settle payerID's balance.
func (s *Service) PreviewSettleUp(ctx context.Context, groupID, payerID int64, req *SettleUpRequest) (*Preview, error) {
	if err := validateRequest(payerID, req); err != nil {
		return nil, err
	}

	data, err := s.store.LoadSettleUpData(ctx, s.store.DB(), groupID)
	if err != nil {
		return nil, err
	}

	entries, err := prepare(data, payerID, req)
	if err != nil {
		return nil, err
	}

	return &Preview{
		GroupID:      groupID,
		PayerID:      payerID,
		CurrencyCode: data.CurrencyCode,
		Entries:      entries,
		Hash:         solver.Hash(entries),
	}, nil
}

// ConfirmSettleUp recomputes the settle-up under the group lock and persists it
// if it still matches the previewed hash.
func (s *Service) ConfirmSettleUp(ctx context.Context, groupID, payerID int64, req *ConfirmSettleUpRequest) (*Confirmation, error) {
	if err := validateRequest(payerID, &req.SettleUpRequest); err != nil {
		return nil, err
	}

	var result *Confirmation
	err := s.store.InTx(ctx, func(q database.Querier) error {
		if err := s.store.LockGroup(ctx, q, groupID); err != nil {
			return err
		}

		data, err := s.store.LoadSettleUpData(ctx, q, groupID)
		if err != nil {
			return err
		}

		entries, err := prepare(data, payerID, &req.SettleUpRequest)
		if err != nil {
			return err
		}
		if solver.Hash(entries) != req.Hash {
			return ErrStaleSettleUp
		}

		result, err = s.persist(ctx, q, groupID, payerID, "Settle up", entries)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrStaleSettleUp) {
			s.conflict(kindSingle)
			slog.Warn("stale settle-up confirmation", "group_id", groupID, "payer_id", payerID)
		}
		return nil, err
	}

	s.confirmed(kindSingle)
	slog.Info("settle-up confirmed",
		"group_id", groupID,
		"payer_id", payerID,
		"record_id", result.Record.ID,
		"counterparties", len(result.Entries)-1,
	)

	for _, e := range result.Entries[1:] {
		s.notifyRequested(ctx, e.UserID, payerID, result.Record.ID)
	}

	return result, nil
}

// PreviewGroupSettleUp proposes a settlement for every member of the group.
// The hash covers the balance snapshot, not the proposal: equal-magnitude
// ties may be broken differently on the next run.
func (s *Service) PreviewGroupSettleUp(ctx context.Context, groupID int64) (*GroupPreview, error) {
	data, err := s.store.LoadSettleUpData(ctx, s.store.DB(), groupID)
	if err != nil {
		return nil, err
	}

	return &GroupPreview{
		GroupID:      groupID,
		CurrencyCode: data.CurrencyCode,
		Settlements:  s.settler.PrepareGroupSettleUp(data.Members, data.Pending),
		Hash:         solver.SnapshotHash(data.Members, data.Pending),
	}, nil
}

// ConfirmGroupSettleUp persists one settle-up record per transaction of a
// fresh group settlement, provided the balances still match the preview.
func (s *Service) ConfirmGroupSettleUp(ctx context.Context, groupID, userID int64, hash string) ([]*Confirmation, error) {
	var results []*Confirmation
	err := s.store.InTx(ctx, func(q database.Querier) error {
		if err := s.store.LockGroup(ctx, q, groupID); err != nil {
			return err
		}

		data, err := s.store.LoadSettleUpData(ctx, q, groupID)
		if err != nil {
			return err
		}
		if _, ok := data.Member(userID); !ok {
			return ErrNotGroupMember
		}
		if solver.SnapshotHash(data.Members, data.Pending) != hash {
			return ErrStaleSettleUp
		}

		txs := solver.Flatten(s.settler.PrepareGroupSettleUp(data.Members, data.Pending))
		if len(txs) == 0 {
			return ErrNothingToSettle
		}

		for _, tx := range txs {
			entries := []solver.BalanceChange{
				{ID: tx.From, Change: tx.Amount},
				{ID: tx.To, Change: tx.Amount.Neg(), Pending: true},
			}
			c, err := s.persist(ctx, q, groupID, tx.From, "Group settle up", entries)
			if err != nil {
				return err
			}
			results = append(results, c)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStaleSettleUp) {
			s.conflict(kindGroup)
			slog.Warn("stale group settle-up confirmation", "group_id", groupID, "user_id", userID)
		}
		return nil, err
	}

	s.confirmed(kindGroup)
	slog.Info("group settle-up confirmed", "group_id", groupID, "user_id", userID, "records", len(results))

	for _, c := range results {
		for _, e := range c.Entries[1:] {
			s.notifyRequested(ctx, e.UserID, c.Record.PayerID, c.Record.ID)
		}
	}

	return results, nil
}

// Debts lists the transactions that would settle the group once every
// pending settle-up is confirmed.
func (s *Service) Debts(ctx context.Context, groupID int64) (*Debts, error) {
	data, err := s.store.LoadSettleUpData(ctx, s.store.DB(), groupID)
	if err != nil {
		return nil, err
	}

	members := solver.ApplyPendingChanges(data.Members, data.Pending)
	return &Debts{
		GroupID:      groupID,
		CurrencyCode: data.CurrencyCode,
		Transactions: s.settler.Settle(members),
	}, nil
}

// GetRecord returns a settle-up record with its entries. Only the payer and
// the counterparties may read it.
func (s *Service) GetRecord(ctx context.Context, recordID, userID int64) (*Confirmation, error) {
	rec, err := s.store.GetRecord(ctx, s.store.DB(), recordID)
	if err != nil {
		return nil, err
	}
	if rec.Kind != ledger.KindSettleUp {
		return nil, ErrRecordNotFound
	}

	entries, err := s.store.ListEntries(ctx, s.store.DB(), recordID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.UserID == userID {
			return &Confirmation{Record: rec, Entries: entries}, nil
		}
	}

	return nil, ErrNotParticipant
}

// ListPendingEntries returns the settle-up entries waiting on userID.
func (s *Service) ListPendingEntries(ctx context.Context, userID int64) ([]*ledger.PendingEntry, error) {
	return s.store.ListPendingEntries(ctx, s.store.DB(), userID)
}

// ConfirmEntry lets a counterparty accept a pending settle-up entry, which
// applies it to both balances.
func (s *Service) ConfirmEntry(ctx context.Context, entryID, userID int64) (*ledger.Entry, error) {
	var (
		confirmed *ledger.Entry
		rec       *ledger.Record
	)
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		rec, err = s.authorizeEntry(ctx, q, entryID, userID)
		if err != nil {
			return err
		}

		confirmed, err = s.store.ConfirmEntry(ctx, q, entryID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("settle-up entry confirmed", "entry_id", entryID, "record_id", rec.ID, "user_id", userID)
	if s.notifier != nil {
		if err := s.notifier.NotifySettleUpConfirmed(ctx, rec.PayerID, userID, rec.ID); err != nil {
			slog.Warn("failed to notify payer", "record_id", rec.ID, "error", err)
		}
	}

	return confirmed, nil
}

// RejectEntry lets a counterparty refuse a pending settle-up entry.
func (s *Service) RejectEntry(ctx context.Context, entryID, userID int64) error {
	var rec *ledger.Record
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		rec, err = s.authorizeEntry(ctx, q, entryID, userID)
		if err != nil {
			return err
		}

		return s.store.DeleteEntry(ctx, q, entryID)
	})
	if err != nil {
		return err
	}

	slog.Info("settle-up entry rejected", "entry_id", entryID, "record_id", rec.ID, "user_id", userID)
	if s.notifier != nil {
		if err := s.notifier.NotifySettleUpRejected(ctx, rec.PayerID, userID, rec.ID); err != nil {
			slog.Warn("failed to notify payer", "record_id", rec.ID, "error", err)
		}
	}

	return nil
}

// authorizeEntry checks that entryID is a pending settle-up entry addressed to
// userID and locks its group.
func (s *Service) authorizeEntry(ctx context.Context, q database.Querier, entryID, userID int64) (*ledger.Record, error) {
	entry, err := s.store.GetEntry(ctx, q, entryID)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetRecord(ctx, q, entry.RecordID)
	if err != nil {
		return nil, err
	}

	if rec.Kind != ledger.KindSettleUp || entry.UserID == rec.PayerID {
		return nil, ErrInvalidStatusChange
	}
	if entry.UserID != userID {
		return nil, ErrNotReceiver
	}
	if !entry.Pending {
		return nil, ErrInvalidStatusChange
	}

	if err := s.store.LockGroup(ctx, q, rec.GroupID); err != nil {
		return nil, err
	}
	return rec, nil
}

// persist writes entries as a SETTLE_UP record. The payer side stays pending
// until every counterparty has confirmed.
func (s *Service) persist(ctx context.Context, q database.Querier, groupID, payerID int64, description string, entries []solver.BalanceChange) (*Confirmation, error) {
	var amount currency.Money
	inputs := make([]ledger.EntryInput, len(entries))
	for i, e := range entries {
		inputs[i] = ledger.EntryInput{UserID: e.ID, Change: e.Change, Pending: e.Pending}
		if i > 0 {
			amount = amount.Add(e.Change.Abs())
		}
	}
	inputs[0].Pending = len(entries) > 1

	rec, created, err := s.store.CreateRecord(ctx, q, &ledger.Record{
		GroupID:     groupID,
		PayerID:     payerID,
		Description: description,
		Amount:      amount,
		Kind:        ledger.KindSettleUp,
	}, inputs)
	if err != nil {
		return nil, err
	}

	return &Confirmation{Record: rec, Entries: created}, nil
}

func (s *Service) notifyRequested(ctx context.Context, recipientID, payerID, recordID int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifySettleUpRequested(ctx, recipientID, payerID, recordID); err != nil {
		slog.Warn("failed to notify counterparty", "record_id", recordID, "recipient_id", recipientID, "error", err)
	}
}

func (s *Service) confirmed(kind string) {
	if s.metrics != nil {
		s.metrics.SettleUpConfirmed(kind)
	}
}

func (s *Service) conflict(kind string) {
	if s.metrics != nil {
		s.metrics.SettleUpConflict(kind)
	}
}

func validateRequest(payerID int64, req *SettleUpRequest) error {
	if len(req.WithMembers) > 1 {
		return ErrTooManyCounterparties
	}
	if len(req.Amounts) > len(req.WithMembers) {
		return ErrInvalidAmounts
	}
	for _, id := range req.WithMembers {
		if id == payerID {
			return ErrCannotSettleSelf
		}
	}
	return nil
}

// prepare runs the single-payer settle-up against a loaded snapshot.
func prepare(data *ledger.SettleUpData, payerID int64, req *SettleUpRequest) ([]solver.BalanceChange, error) {
	payer, ok := data.Member(payerID)
	if !ok {
		return nil, ErrNotGroupMember
	}
	for _, id := range req.WithMembers {
		if _, ok := data.Member(id); !ok {
			return nil, ErrNotGroupMember
		}
	}
	if payer.Balance.IsZero() {
		return nil, ErrNothingToSettle
	}
	if err := checkCounterparty(data, payerID, req); err != nil {
		return nil, err
	}

	entries := solver.PrepareSettleUp(solver.SettleUpParams{
		PayerID:      payerID,
		PayerBalance: payer.Balance,
		Members:      data.Members,
		Pending:      data.Pending,
		WithMembers:  req.WithMembers,
		Amounts:      req.Amounts,
	})
	if len(entries) < 2 {
		return nil, ErrNothingToSettle
	}

	return entries, nil
}

// checkCounterparty validates an explicit counterparty and amount against the
// balances with pending changes applied. The counterparty change always carries
// the sign of the payer's effective balance and never exceeds it.
func checkCounterparty(data *ledger.SettleUpData, payerID int64, req *SettleUpRequest) error {
	if len(req.WithMembers) == 0 {
		return nil
	}

	effective := solver.ApplyPendingChanges(data.Members, data.Pending)
	var balance, other currency.Money
	for _, m := range effective {
		switch m.ID {
		case payerID:
			balance = m.Balance
		case req.WithMembers[0]:
			other = m.Balance
		}
	}
	if balance.IsZero() {
		return ErrNothingToSettle
	}
	if other.Sign() == balance.Sign() {
		return ErrSameSideCounterparty
	}

	if len(req.Amounts) == 0 || req.Amounts[0].IsZero() {
		return nil
	}
	amount := req.Amounts[0]
	if amount.Sign() != balance.Sign() || currency.Compare(amount.Abs(), balance.Abs()) > 0 {
		return ErrAmountOutOfRange
	}
	return nil
}
