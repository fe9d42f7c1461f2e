package expense

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/expense/split"
	"github.com/fkhayef/splitledger/internal/ledger"
)

// Common errors
var (
	ErrExpenseNotFound     = errors.New("expense not found")
	ErrNotPayer            = errors.New("only the payer can delete an expense")
	ErrNothingOwed         = errors.New("expense has no debtors")
	ErrCannotDeleteSettled = errors.New("settle-up records cannot be deleted")

	ErrGroupNotFound  = ledger.ErrGroupNotFound
	ErrNotGroupMember = ledger.ErrNotGroupMember
)

// Service handles expense business logic
type Service struct {
	store        Store
	notifier     Notifier
	splitFactory *split.Factory // Factory pattern for creating split strategies
}

// NewService creates a new expense service with dependencies injected.
// notifier may be nil.
func NewService(store Store, notifier Notifier, splitFactory *split.Factory) *Service {
	return &Service{
		store:        store,
		notifier:     notifier,
		splitFactory: splitFactory,
	}
}

// CreateExpense splits the amount with the requested strategy and records it
// as one zero-sum ledger record: the payer gains what the debtors owe, each
// debtor loses their share.
func (s *Service) CreateExpense(ctx context.Context, payerID int64, req *CreateExpenseRequest) (*ExpenseWithShares, error) {
	strategy, err := s.splitFactory.CreateFromString(req.SplitType)
	if err != nil {
		return nil, err
	}

	inputs := make([]split.SplitInput, len(req.Participants))
	for i, p := range req.Participants {
		inputs[i] = p.ToSplitInput()
	}

	outputs, err := strategy.Calculate(req.Amount, payerID, inputs)
	if err != nil {
		return nil, err
	}

	entries := buildEntries(payerID, outputs)
	if len(entries) < 2 {
		return nil, ErrNothingOwed
	}

	splitType := string(strategy.Type())
	var (
		rec     *ledger.Record
		created []*ledger.Entry
	)
	err = s.store.InTx(ctx, func(q database.Querier) error {
		if err := s.store.LockGroup(ctx, q, req.GroupID); err != nil {
			return err
		}

		var err error
		rec, created, err = s.store.CreateRecord(ctx, q, &ledger.Record{
			GroupID:     req.GroupID,
			PayerID:     payerID,
			Description: req.Description,
			Amount:      req.Amount,
			Kind:        ledger.KindExpense,
			SplitType:   &splitType,
		}, entries)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("expense created",
		"group_id", req.GroupID,
		"expense_id", rec.ID,
		"payer_id", payerID,
		"amount", req.Amount.String(),
		"split_type", splitType,
	)

	if s.notifier != nil {
		for _, o := range outputs {
			if o.AmountOwed.IsZero() {
				continue
			}
			if err := s.notifier.NotifyExpenseAdded(ctx, o.UserID, payerID, o.AmountOwed, rec.ID); err != nil {
				slog.Warn("failed to notify debtor", "expense_id", rec.ID, "recipient_id", o.UserID, "error", err)
			}
		}
	}

	return withShares(rec, created), nil
}

// buildEntries turns split outputs into ledger entries, payer first.
// Debtors owing nothing get no entry.
func buildEntries(payerID int64, outputs []split.SplitOutput) []ledger.EntryInput {
	entries := []ledger.EntryInput{{UserID: payerID}}
	for _, o := range outputs {
		if o.AmountOwed.IsZero() {
			continue
		}
		entries[0].Change = entries[0].Change.Add(o.AmountOwed)
		entries = append(entries, ledger.EntryInput{UserID: o.UserID, Change: o.AmountOwed.Neg()})
	}
	return entries
}

// GetExpenseByID retrieves an expense with its shares
func (s *Service) GetExpenseByID(ctx context.Context, id int64) (*ExpenseWithShares, error) {
	rec, err := s.getExpenseRecord(ctx, s.store.DB(), id)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.ListEntries(ctx, s.store.DB(), id)
	if err != nil {
		return nil, err
	}

	return withShares(rec, entries), nil
}

// ListExpensesByGroupID retrieves expenses for a group
func (s *Service) ListExpensesByGroupID(ctx context.Context, groupID int64, page, perPage int) ([]*Expense, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	records, total, err := s.store.ListRecordsByGroup(ctx, s.store.DB(), groupID, ledger.KindExpense, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	expenses := make([]*Expense, len(records))
	for i, rec := range records {
		expenses[i] = expenseFromRecord(rec)
	}
	return expenses, total, nil
}

// DeleteExpense removes an expense and reverses its effect on balances.
// Only the payer can delete.
func (s *Service) DeleteExpense(ctx context.Context, id, userID int64) error {
	err := s.store.InTx(ctx, func(q database.Querier) error {
		rec, err := s.store.GetRecord(ctx, q, id)
		if err != nil {
			if errors.Is(err, ledger.ErrRecordNotFound) {
				return ErrExpenseNotFound
			}
			return err
		}
		if rec.Kind == ledger.KindSettleUp {
			return ErrCannotDeleteSettled
		}
		if rec.PayerID != userID {
			return ErrNotPayer
		}
		if err := s.store.LockGroup(ctx, q, rec.GroupID); err != nil {
			return err
		}
		return s.store.DeleteRecord(ctx, q, id)
	})
	if err != nil {
		return err
	}

	slog.Info("expense deleted", "expense_id", id, "user_id", userID)
	return nil
}

func (s *Service) getExpenseRecord(ctx context.Context, q database.Querier, id int64) (*ledger.Record, error) {
	rec, err := s.store.GetRecord(ctx, q, id)
	if err != nil {
		if errors.Is(err, ledger.ErrRecordNotFound) {
			return nil, ErrExpenseNotFound
		}
		return nil, err
	}
	if rec.Kind != ledger.KindExpense {
		return nil, ErrExpenseNotFound
	}
	return rec, nil
}

func withShares(rec *ledger.Record, entries []*ledger.Entry) *ExpenseWithShares {
	shares := make([]*Share, len(entries))
	for i, e := range entries {
		shares[i] = shareFromEntry(e)
	}
	return &ExpenseWithShares{Expense: expenseFromRecord(rec), Shares: shares}
}

