package user

import (
	"time"

	"github.com/fkhayef/splitledger/internal/currency"
)

// User represents a user in the system
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupBalance is a user's balance in one group
type GroupBalance struct {
	GroupID      int64          `json:"group_id"`
	GroupName    string         `json:"group_name"`
	CurrencyCode string         `json:"currency_code"`
	Balance      currency.Money `json:"balance"`
}
