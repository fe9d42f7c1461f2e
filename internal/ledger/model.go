// Package ledger persists split records and member balances.
//
// A record is one immutable ledger event (an expense or a settle-up). Its
// entries carry the balance delta for each member. Non-pending entries have
// already been applied to group_members.balance; pending entries have not.
package ledger

import (
	"errors"
	"time"

	"github.com/fkhayef/splitledger/internal/currency"
	"github.com/fkhayef/splitledger/internal/settlement/solver"
)

// RecordKind distinguishes expenses from settle-ups
type RecordKind string

const (
	KindExpense  RecordKind = "EXPENSE"
	KindSettleUp RecordKind = "SETTLE_UP"
)

// Common errors
var (
	ErrGroupNotFound    = errors.New("group not found")
	ErrRecordNotFound   = errors.New("record not found")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrEntryNotPending  = errors.New("entry is not pending")
	ErrNotGroupMember   = errors.New("user is not a member of this group")
	ErrUnbalancedRecord = errors.New("record entries must sum to zero")
	ErrSettleUpRecord   = errors.New("settle-up records cannot be deleted")
)

// Record is one split record
type Record struct {
	ID          int64          `json:"id"`
	GroupID     int64          `json:"group_id"`
	PayerID     int64          `json:"payer_id"`
	Description string         `json:"description"`
	Amount      currency.Money `json:"amount"`
	Kind        RecordKind     `json:"kind"`
	SplitType   *string        `json:"split_type,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`

	// Populated via JOIN
	PayerUsername string `json:"payer_username,omitempty"`
}

// Entry is one member's balance change within a record
type Entry struct {
	ID        int64          `json:"id"`
	RecordID  int64          `json:"record_id"`
	UserID    int64          `json:"user_id"`
	Change    currency.Money `json:"change"`
	Pending   bool           `json:"pending"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Populated via JOIN
	Username string `json:"username,omitempty"`
}

// EntryInput is an entry to be written by CreateRecord
type EntryInput struct {
	UserID  int64
	Change  currency.Money
	Pending bool
}

// PendingEntry is a pending counterparty entry together with its record context
type PendingEntry struct {
	Entry
	GroupID     int64  `json:"group_id"`
	PayerID     int64  `json:"payer_id"`
	Description string `json:"description"`
}

// SettleUpData is everything the settlement solver needs for one group
type SettleUpData struct {
	GroupID      int64
	CurrencyCode string
	Members      []solver.Member
	Pending      []solver.PendingChange
}

// Member returns the snapshot for userID.
func (d *SettleUpData) Member(userID int64) (solver.Member, bool) {
	for _, m := range d.Members {
		if m.ID == userID {
			return m, true
		}
	}
	return solver.Member{}, false
}
