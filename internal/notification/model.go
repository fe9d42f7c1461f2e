package notification

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// EntityType names what a notification refers to
type EntityType string

const (
	EntityGroup    EntityType = "GROUP"
	EntityExpense  EntityType = "EXPENSE"
	EntitySettleUp EntityType = "SETTLE_UP"
)

var ErrUnknownEntityType = errors.New("unknown notification type")

// ParseEntityType accepts the type names case-insensitively
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(strings.ToUpper(strings.TrimSpace(s))); t {
	case EntityGroup, EntityExpense, EntitySettleUp:
		return t, nil
	}
	return "", ErrUnknownEntityType
}

// Notification represents a notification in the system
type Notification struct {
	ID                int64       `json:"id"`
	RecipientID       int64       `json:"recipient_id"`
	Message           string      `json:"message"`
	IsRead            bool        `json:"is_read"`
	RelatedEntityType *EntityType `json:"related_entity_type,omitempty"`
	RelatedEntityID   *int64      `json:"related_entity_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Link is the API path of the related entity, or "" when there is none.
// Settle-up notifications point at the record, whose entries carry the IDs
// to confirm or reject.
func (n *Notification) Link() string {
	if n.RelatedEntityType == nil || n.RelatedEntityID == nil {
		return ""
	}

	id := strconv.FormatInt(*n.RelatedEntityID, 10)
	switch *n.RelatedEntityType {
	case EntityGroup:
		return "/api/v1/groups/" + id
	case EntityExpense:
		return "/api/v1/expenses/" + id
	case EntitySettleUp:
		return "/api/v1/settlements/records/" + id
	}
	return ""
}

// ListFilter narrows a recipient's notifications
type ListFilter struct {
	UnreadOnly bool
	Type       *EntityType
}
