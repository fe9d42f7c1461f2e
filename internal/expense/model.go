package expense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fkhayef/splitledger/internal/currency"
	"github.com/fkhayef/splitledger/internal/expense/split"
	"github.com/fkhayef/splitledger/internal/ledger"
)

// Expense is an EXPENSE record of the group ledger
type Expense struct {
	ID          int64          `json:"id"`
	GroupID     int64          `json:"group_id"`
	PayerID     int64          `json:"payer_id"`
	Description string         `json:"description"`
	Amount      currency.Money `json:"amount" swaggertype:"string"`
	SplitType   string         `json:"split_type"` // EVEN, PERCENTAGE, EXACT
	CreatedAt   time.Time      `json:"created_at"`

	// Populated via JOIN
	PayerUsername string `json:"payer_username,omitempty"`
}

// Share is one member's balance change caused by an expense
type Share struct {
	ID        int64          `json:"id"`
	ExpenseID int64          `json:"expense_id"`
	UserID    int64          `json:"user_id"`
	Change    currency.Money `json:"change" swaggertype:"string"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Populated via JOIN
	Username string `json:"username,omitempty"`
}

// ExpenseWithShares combines an expense with its ledger entries
type ExpenseWithShares struct {
	Expense *Expense
	Shares  []*Share
}

// SplitParticipant is used when creating an expense with splits
type SplitParticipant struct {
	UserID     int64            `json:"user_id"`
	Percentage *decimal.Decimal `json:"percentage,omitempty" swaggertype:"string"` // For PERCENTAGE split
	Amount     *currency.Money  `json:"amount,omitempty" swaggertype:"string"`     // For EXACT split
}

// ToSplitInput converts to the split package's input type
func (p *SplitParticipant) ToSplitInput() split.SplitInput {
	return split.SplitInput{
		UserID:     p.UserID,
		Percentage: p.Percentage,
		Amount:     p.Amount,
	}
}

func expenseFromRecord(rec *ledger.Record) *Expense {
	e := &Expense{
		ID:            rec.ID,
		GroupID:       rec.GroupID,
		PayerID:       rec.PayerID,
		Description:   rec.Description,
		Amount:        rec.Amount,
		CreatedAt:     rec.CreatedAt,
		PayerUsername: rec.PayerUsername,
	}
	if rec.SplitType != nil {
		e.SplitType = *rec.SplitType
	}
	return e
}

func shareFromEntry(e *ledger.Entry) *Share {
	return &Share{
		ID:        e.ID,
		ExpenseID: e.RecordID,
		UserID:    e.UserID,
		Change:    e.Change,
		UpdatedAt: e.UpdatedAt,
		Username:  e.Username,
	}
}
