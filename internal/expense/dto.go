package expense

import "github.com/fkhayef/splitledger/internal/currency"

// CreateExpenseRequest represents the request to create an expense
type CreateExpenseRequest struct {
	GroupID      int64               `json:"group_id" validate:"required"`
	Description  string              `json:"description" validate:"required,min=1,max=255"`
	Amount       currency.Money      `json:"amount" validate:"required,gt=0" swaggertype:"string"`
	SplitType    string              `json:"split_type" validate:"required,oneof=EVEN PERCENTAGE EXACT"`
	Participants []*SplitParticipant `json:"participants" validate:"required,min=1"`
}

// ExpenseResponse represents the response for an expense
type ExpenseResponse struct {
	ID            int64            `json:"id"`
	GroupID       int64            `json:"group_id"`
	PayerID       int64            `json:"payer_id"`
	PayerUsername string           `json:"payer_username,omitempty"`
	Description   string           `json:"description"`
	Amount        currency.Money   `json:"amount" swaggertype:"string"`
	SplitType     string           `json:"split_type"`
	CreatedAt     string           `json:"created_at"`
	Shares        []*ShareResponse `json:"shares,omitempty"`
}

// ShareResponse represents one member's balance change
type ShareResponse struct {
	ID        int64          `json:"id"`
	ExpenseID int64          `json:"expense_id"`
	UserID    int64          `json:"user_id"`
	Username  string         `json:"username,omitempty"`
	Change    currency.Money `json:"change" swaggertype:"string"`
	UpdatedAt string         `json:"updated_at"`
}

// ToResponse converts an Expense model to an ExpenseResponse DTO
func (e *Expense) ToResponse() *ExpenseResponse {
	return &ExpenseResponse{
		ID:            e.ID,
		GroupID:       e.GroupID,
		PayerID:       e.PayerID,
		PayerUsername: e.PayerUsername,
		Description:   e.Description,
		Amount:        e.Amount,
		SplitType:     e.SplitType,
		CreatedAt:     e.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// ToResponse converts a Share model to a ShareResponse DTO
func (s *Share) ToResponse() *ShareResponse {
	return &ShareResponse{
		ID:        s.ID,
		ExpenseID: s.ExpenseID,
		UserID:    s.UserID,
		Username:  s.Username,
		Change:    s.Change,
		UpdatedAt: s.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// ToResponse converts an expense and its shares to a single DTO
func (e *ExpenseWithShares) ToResponse() *ExpenseResponse {
	resp := e.Expense.ToResponse()
	resp.Shares = make([]*ShareResponse, len(e.Shares))
	for i, s := range e.Shares {
		resp.Shares[i] = s.ToResponse()
	}
	return resp
}
