package settlement

import (
	"github.com/fkhayef/splitledger/internal/currency"
	"github.com/fkhayef/splitledger/internal/ledger"
	"github.com/fkhayef/splitledger/internal/settlement/solver"
)

// SettleUpRequest selects who the caller settles with.
// Leave WithMembers empty to settle against the whole group.
type SettleUpRequest struct {
	WithMembers []int64          `json:"with_members,omitempty"`
	Amounts     []currency.Money `json:"amounts,omitempty" swaggertype:"array,string"` // parallel to WithMembers
}

// ConfirmSettleUpRequest repeats the preview request together with its hash
type ConfirmSettleUpRequest struct {
	SettleUpRequest
	Hash string `json:"hash" validate:"required"`
}

// ConfirmGroupSettleUpRequest carries the hash returned by the group preview
type ConfirmGroupSettleUpRequest struct {
	Hash string `json:"hash" validate:"required"`
}

// PreviewResponse represents a proposed settle-up
type PreviewResponse struct {
	GroupID      int64                  `json:"group_id"`
	PayerID      int64                  `json:"payer_id"`
	CurrencyCode string                 `json:"currency_code"`
	Entries      []solver.BalanceChange `json:"entries"`
	Hash         string                 `json:"hash"`
}

// GroupPreviewResponse represents a proposed group settlement
type GroupPreviewResponse struct {
	GroupID      int64                      `json:"group_id"`
	CurrencyCode string                     `json:"currency_code"`
	Settlements  []solver.GroupedSettlement `json:"settlements"`
	Hash         string                     `json:"hash"`
}

// DebtsResponse represents the outstanding transactions of a group
type DebtsResponse struct {
	GroupID      int64                `json:"group_id"`
	CurrencyCode string               `json:"currency_code"`
	Transactions []solver.Transaction `json:"transactions"`
}

// RecordResponse represents a persisted settle-up record
type RecordResponse struct {
	ID          int64            `json:"id"`
	GroupID     int64            `json:"group_id"`
	PayerID     int64            `json:"payer_id"`
	Description string           `json:"description"`
	Amount      currency.Money   `json:"amount" swaggertype:"string"`
	CreatedAt   string           `json:"created_at"`
	Entries     []*EntryResponse `json:"entries"`
}

// EntryResponse represents a single settle-up entry
type EntryResponse struct {
	ID        int64          `json:"id"`
	RecordID  int64          `json:"record_id"`
	UserID    int64          `json:"user_id"`
	Change    currency.Money `json:"change" swaggertype:"string"`
	Pending   bool           `json:"pending"`
	UpdatedAt string         `json:"updated_at"`
}

// PendingEntryResponse represents an entry awaiting the caller's confirmation
type PendingEntryResponse struct {
	EntryResponse
	GroupID     int64  `json:"group_id"`
	PayerID     int64  `json:"payer_id"`
	Description string `json:"description"`
}

// ToResponse converts a Preview to a PreviewResponse DTO
func (p *Preview) ToResponse() *PreviewResponse {
	return &PreviewResponse{
		GroupID:      p.GroupID,
		PayerID:      p.PayerID,
		CurrencyCode: p.CurrencyCode,
		Entries:      p.Entries,
		Hash:         p.Hash,
	}
}

// ToResponse converts a GroupPreview to a GroupPreviewResponse DTO
func (p *GroupPreview) ToResponse() *GroupPreviewResponse {
	return &GroupPreviewResponse{
		GroupID:      p.GroupID,
		CurrencyCode: p.CurrencyCode,
		Settlements:  p.Settlements,
		Hash:         p.Hash,
	}
}

// ToResponse converts Debts to a DebtsResponse DTO
func (d *Debts) ToResponse() *DebtsResponse {
	return &DebtsResponse{
		GroupID:      d.GroupID,
		CurrencyCode: d.CurrencyCode,
		Transactions: d.Transactions,
	}
}

// ToResponse converts a Confirmation to a RecordResponse DTO
func (c *Confirmation) ToResponse() *RecordResponse {
	resp := &RecordResponse{
		ID:          c.Record.ID,
		GroupID:     c.Record.GroupID,
		PayerID:     c.Record.PayerID,
		Description: c.Record.Description,
		Amount:      c.Record.Amount,
		CreatedAt:   c.Record.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Entries:     make([]*EntryResponse, len(c.Entries)),
	}
	for i, e := range c.Entries {
		resp.Entries[i] = entryToResponse(e)
	}
	return resp
}

func entryToResponse(e *ledger.Entry) *EntryResponse {
	return &EntryResponse{
		ID:        e.ID,
		RecordID:  e.RecordID,
		UserID:    e.UserID,
		Change:    e.Change,
		Pending:   e.Pending,
		UpdatedAt: e.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func pendingToResponse(p *ledger.PendingEntry) *PendingEntryResponse {
	return &PendingEntryResponse{
		EntryResponse: *entryToResponse(&p.Entry),
		GroupID:       p.GroupID,
		PayerID:       p.PayerID,
		Description:   p.Description,
	}
}
