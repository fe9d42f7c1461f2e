package group

import "github.com/fkhayef/splitledger/internal/currency"

// CreateGroupRequest represents the request to create a new group
type CreateGroupRequest struct {
	Name         string  `json:"name" validate:"required,min=1,max=100"`
	Description  *string `json:"description,omitempty"`
	IsTemporary  bool    `json:"is_temporary"`
	CurrencyCode string  `json:"currency_code,omitempty" validate:"omitempty,len=3"`
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty"`
}

// AddMemberRequest represents the request to add a member to a group
type AddMemberRequest struct {
	UserID int64      `json:"user_id" validate:"required"`
	Role   MemberRole `json:"role"`
}

// UpdateMemberRequest represents the request to update a member's status or role
type UpdateMemberRequest struct {
	Status *MemberStatus `json:"status,omitempty"`
	Role   *MemberRole   `json:"role,omitempty"`
}

// GroupResponse represents the response for a group
type GroupResponse struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Description  *string           `json:"description,omitempty"`
	IsTemporary  bool              `json:"is_temporary"`
	CurrencyCode string            `json:"currency_code"`
	CreatedAt    string            `json:"created_at"`
	Members      []*MemberResponse `json:"members,omitempty"`
}

// MemberResponse represents a member in a group response
type MemberResponse struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	Status    MemberStatus   `json:"status"`
	Role      MemberRole     `json:"role"`
	Balance   currency.Money `json:"balance" swaggertype:"string"`
	HasAccess bool           `json:"has_access"`
	Deleted   bool           `json:"deleted"`
	JoinedAt  string         `json:"joined_at"`
}

// BalanceResponse represents one member's balance
type BalanceResponse struct {
	UserID    int64          `json:"user_id"`
	Username  string         `json:"username"`
	Balance   currency.Money `json:"balance" swaggertype:"string"`
	HasAccess bool           `json:"has_access"`
	Deleted   bool           `json:"deleted"`
}

// BalancesResponse lists the balances of a group
type BalancesResponse struct {
	GroupID      int64              `json:"group_id"`
	CurrencyCode string             `json:"currency_code"`
	Balances     []*BalanceResponse `json:"balances"`
}

// ToResponse converts a Group model to a GroupResponse DTO
func (g *Group) ToResponse() *GroupResponse {
	return &GroupResponse{
		ID:           g.ID,
		Name:         g.Name,
		Description:  g.Description,
		IsTemporary:  g.IsTemporary,
		CurrencyCode: g.CurrencyCode,
		CreatedAt:    g.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// ToResponse converts a GroupMember model to a MemberResponse DTO
func (m *GroupMember) ToResponse() *MemberResponse {
	return &MemberResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		Username:  m.Username,
		Email:     m.Email,
		Status:    m.Status,
		Role:      m.Role,
		Balance:   m.Balance,
		HasAccess: m.HasAccess,
		Deleted:   m.Deleted,
		JoinedAt:  m.JoinedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func balancesToResponse(g *Group, members []*GroupMember) *BalancesResponse {
	resp := &BalancesResponse{
		GroupID:      g.ID,
		CurrencyCode: g.CurrencyCode,
		Balances:     make([]*BalanceResponse, len(members)),
	}
	for i, m := range members {
		resp.Balances[i] = &BalanceResponse{
			UserID:    m.UserID,
			Username:  m.Username,
			Balance:   m.Balance,
			HasAccess: m.HasAccess,
			Deleted:   m.Deleted,
		}
	}
	return resp
}
