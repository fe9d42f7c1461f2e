package settlement

import (
	"context"
	"time"

	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/ledger"
)

// Store is the persistence the settlement service needs. *ledger.Repository
// implements it; tests use an in-memory fake.
type Store interface {
	DB() database.Querier
	InTx(ctx context.Context, fn func(q database.Querier) error) error

	LockGroup(ctx context.Context, q database.Querier, groupID int64) error
	LoadSettleUpData(ctx context.Context, q database.Querier, groupID int64) (*ledger.SettleUpData, error)
	CreateRecord(ctx context.Context, q database.Querier, rec *ledger.Record, entries []ledger.EntryInput) (*ledger.Record, []*ledger.Entry, error)

	GetRecord(ctx context.Context, q database.Querier, id int64) (*ledger.Record, error)
	ListEntries(ctx context.Context, q database.Querier, recordID int64) ([]*ledger.Entry, error)
	GetEntry(ctx context.Context, q database.Querier, id int64) (*ledger.Entry, error)
	ListPendingEntries(ctx context.Context, q database.Querier, userID int64) ([]*ledger.PendingEntry, error)
	ConfirmEntry(ctx context.Context, q database.Querier, entryID int64) (*ledger.Entry, error)
	DeleteEntry(ctx context.Context, q database.Querier, entryID int64) error
}

var _ Store = (*ledger.Repository)(nil)

// Notifier delivers in-app notifications about settle-up activity.
type Notifier interface {
	NotifySettleUpRequested(ctx context.Context, recipientID, payerID int64, recordID int64) error
	NotifySettleUpConfirmed(ctx context.Context, payerID, counterpartyID int64, recordID int64) error
	NotifySettleUpRejected(ctx context.Context, payerID, counterpartyID int64, recordID int64) error
}

// Recorder receives settlement metrics. *metrics.Metrics implements it.
type Recorder interface {
	ObserveSolver(solver string, members int, elapsed time.Duration)
	SettleUpConfirmed(kind string)
	SettleUpConflict(kind string)
}
