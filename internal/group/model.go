package group

import (
	"time"

	"github.com/fkhayef/splitledger/internal/currency"
)

// MemberStatus represents the status of a group member
type MemberStatus string

const (
	MemberStatusInvited MemberStatus = "INVITED"
	MemberStatusJoined  MemberStatus = "JOINED"
)

// MemberRole represents the role of a group member
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "ADMIN"
	MemberRoleMember MemberRole = "MEMBER"
)

// DefaultCurrency is used when a group is created without a currency code
const DefaultCurrency = "USD"

// Group represents a group in the system
type Group struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	IsTemporary  bool      `json:"is_temporary"`
	CurrencyCode string    `json:"currency_code"`
	CreatedAt    time.Time `json:"created_at"`
}

// GroupMember represents a user's membership in a group.
// Removed members stay in the group with Deleted set so their balance
// still takes part in settlements.
type GroupMember struct {
	ID        int64          `json:"id"`
	GroupID   int64          `json:"group_id"`
	UserID    int64          `json:"user_id"`
	Status    MemberStatus   `json:"status"`
	Role      MemberRole     `json:"role"`
	Balance   currency.Money `json:"balance"`
	HasAccess bool           `json:"has_access"`
	Deleted   bool           `json:"deleted"`
	JoinedAt  time.Time      `json:"joined_at"`

	// Populated from JOIN
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}
