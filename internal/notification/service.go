package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/fkhayef/splitledger/internal/currency"
)

// Common errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotRecipient         = errors.New("not the recipient of this notification")
)

// Store is the persistence the notification service needs. *Repository implements it.
type Store interface {
	Create(ctx context.Context, recipientID int64, message string, entityType *EntityType, entityID *int64) (*Notification, error)
	GetByID(ctx context.Context, id int64) (*Notification, error)
	ListByRecipientID(ctx context.Context, recipientID int64, f ListFilter, limit, offset int) ([]*Notification, int, error)
	MarkAsRead(ctx context.Context, id int64) error
	MarkAllAsRead(ctx context.Context, recipientID int64) error
	GetUnreadCount(ctx context.Context, recipientID int64) (int, error)
	Username(ctx context.Context, userID int64) (string, error)
}

var _ Store = (*Repository)(nil)

// Service handles notification business logic
type Service struct {
	repo Store
}

// NewService creates a new notification service
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Create creates a new notification
func (s *Service) Create(ctx context.Context, recipientID int64, message string, entityType *EntityType, entityID *int64) (*Notification, error) {
	return s.repo.Create(ctx, recipientID, message, entityType, entityID)
}

// GetByID retrieves a notification by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Notification, error) {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notification == nil {
		return nil, ErrNotificationNotFound
	}
	return notification, nil
}

// ListByRecipientID retrieves a page of a user's notifications
func (s *Service) ListByRecipientID(ctx context.Context, recipientID int64, f ListFilter, page, perPage int) ([]*Notification, int, error) {
	offset := (page - 1) * perPage
	return s.repo.ListByRecipientID(ctx, recipientID, f, perPage, offset)
}

// MarkAsRead marks a notification as read
func (s *Service) MarkAsRead(ctx context.Context, id, userID int64) error {
	notification, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if notification.RecipientID != userID {
		return ErrNotRecipient
	}

	return s.repo.MarkAsRead(ctx, id)
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// Helper methods for creating specific notification types

// NotifyGroupInvite tells a user they were invited to a group
func (s *Service) NotifyGroupInvite(ctx context.Context, recipientID int64, groupName string, groupID int64) error {
	return s.notify(ctx, recipientID, "You have been invited to join group: "+groupName, EntityGroup, groupID)
}

// NotifyExpenseAdded tells a debtor what they owe for a new expense
func (s *Service) NotifyExpenseAdded(ctx context.Context, recipientID, payerID int64, owed currency.Money, expenseID int64) error {
	message := fmt.Sprintf("%s added an expense and you owe %s", s.name(ctx, payerID), owed)
	return s.notify(ctx, recipientID, message, EntityExpense, expenseID)
}

// NotifySettleUpRequested asks a counterparty to confirm a settle-up
func (s *Service) NotifySettleUpRequested(ctx context.Context, recipientID, payerID, recordID int64) error {
	message := s.name(ctx, payerID) + " settled up with you. Please confirm."
	return s.notify(ctx, recipientID, message, EntitySettleUp, recordID)
}

// NotifySettleUpConfirmed tells the payer a counterparty confirmed
func (s *Service) NotifySettleUpConfirmed(ctx context.Context, payerID, counterpartyID, recordID int64) error {
	message := s.name(ctx, counterpartyID) + " confirmed your settle up"
	return s.notify(ctx, payerID, message, EntitySettleUp, recordID)
}

// NotifySettleUpRejected tells the payer a counterparty rejected
func (s *Service) NotifySettleUpRejected(ctx context.Context, payerID, counterpartyID, recordID int64) error {
	message := s.name(ctx, counterpartyID) + " rejected your settle up"
	return s.notify(ctx, payerID, message, EntitySettleUp, recordID)
}

func (s *Service) notify(ctx context.Context, recipientID int64, message string, entityType EntityType, entityID int64) error {
	_, err := s.repo.Create(ctx, recipientID, message, &entityType, &entityID)
	return err
}

// name falls back to the user ID when the username cannot be read.
func (s *Service) name(ctx context.Context, userID int64) string {
	name, err := s.repo.Username(ctx, userID)
	if err != nil || name == "" {
		return fmt.Sprintf("User #%d", userID)
	}
	return name
}
