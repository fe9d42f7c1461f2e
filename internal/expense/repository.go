package expense

import (
	"context"

	"github.com/fkhayef/splitledger/internal/currency"
	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/ledger"
)

// Store is the ledger persistence the expense service needs.
// *ledger.Repository implements it.
type Store interface {
	DB() database.Querier
	InTx(ctx context.Context, fn func(q database.Querier) error) error
	LockGroup(ctx context.Context, q database.Querier, groupID int64) error
	CreateRecord(ctx context.Context, q database.Querier, rec *ledger.Record, entries []ledger.EntryInput) (*ledger.Record, []*ledger.Entry, error)
	GetRecord(ctx context.Context, q database.Querier, id int64) (*ledger.Record, error)
	ListEntries(ctx context.Context, q database.Querier, recordID int64) ([]*ledger.Entry, error)
	ListRecordsByGroup(ctx context.Context, q database.Querier, groupID int64, kind ledger.RecordKind, limit, offset int) ([]*ledger.Record, int, error)
	DeleteRecord(ctx context.Context, q database.Querier, id int64) error
}

var _ Store = (*ledger.Repository)(nil)

// Notifier tells debtors about a new expense
type Notifier interface {
	NotifyExpenseAdded(ctx context.Context, recipientID, payerID int64, owed currency.Money, expenseID int64) error
}
