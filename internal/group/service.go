package group

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fkhayef/splitledger/internal/database"
)

// Common errors
var (
	ErrGroupNotFound       = errors.New("group not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberAlreadyExists = errors.New("user is already a member of this group")
	ErrNotAuthorized       = errors.New("not authorized to perform this action")
	ErrGroupHasBalances    = errors.New("group still has unsettled balances")
	ErrInvalidCurrency     = errors.New("currency code must be three letters")
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Store is the persistence the group service needs. *Repository implements it.
type Store interface {
	DB() database.Querier
	InTx(ctx context.Context, fn func(q database.Querier) error) error
	Create(ctx context.Context, q database.Querier, req *CreateGroupRequest) (*Group, error)
	GetByID(ctx context.Context, q database.Querier, id int64) (*Group, error)
	Lock(ctx context.Context, q database.Querier, id int64) (*Group, error)
	ListByUserID(ctx context.Context, q database.Querier, userID int64, limit, offset int) ([]*Group, int, error)
	Update(ctx context.Context, q database.Querier, id int64, req *UpdateGroupRequest) (*Group, error)
	Delete(ctx context.Context, q database.Querier, id int64) error
	HasOutstanding(ctx context.Context, q database.Querier, groupID int64) (bool, error)
	AddMember(ctx context.Context, q database.Querier, groupID int64, req *AddMemberRequest, status MemberStatus, hasAccess bool) (*GroupMember, error)
	RestoreMember(ctx context.Context, q database.Querier, groupID int64, req *AddMemberRequest) (*GroupMember, error)
	GetMembers(ctx context.Context, q database.Querier, groupID int64) ([]*GroupMember, error)
	GetMember(ctx context.Context, q database.Querier, groupID, userID int64) (*GroupMember, error)
	UpdateMember(ctx context.Context, q database.Querier, groupID, userID int64, req *UpdateMemberRequest) (*GroupMember, error)
	RemoveMember(ctx context.Context, q database.Querier, groupID, userID int64) error
}

var _ Store = (*Repository)(nil)

// Notifier tells users they were invited to a group
type Notifier interface {
	NotifyGroupInvite(ctx context.Context, recipientID int64, groupName string, groupID int64) error
}

// Service handles group business logic
type Service struct {
	repo     Store
	notifier Notifier
}

// NewService creates a new group service. notifier may be nil.
func NewService(repo Store, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// Create creates a new group with the creator as a joined admin
func (s *Service) Create(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, error) {
	req.CurrencyCode = strings.ToUpper(strings.TrimSpace(req.CurrencyCode))
	if req.CurrencyCode == "" {
		req.CurrencyCode = DefaultCurrency
	}
	if !currencyCode.MatchString(req.CurrencyCode) {
		return nil, ErrInvalidCurrency
	}

	var group *Group
	err := s.repo.InTx(ctx, func(q database.Querier) error {
		var err error
		group, err = s.repo.Create(ctx, q, req)
		if err != nil {
			return err
		}

		_, err = s.repo.AddMember(ctx, q, group.ID, &AddMemberRequest{
			UserID: creatorID,
			Role:   MemberRoleAdmin,
		}, MemberStatusJoined, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("group created", "group_id", group.ID, "creator_id", creatorID, "currency", group.CurrencyCode)
	return group, nil
}

// GetByID retrieves a group by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Group, error) {
	group, err := s.repo.GetByID(ctx, s.repo.DB(), id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

// GetByIDWithMembers retrieves a group with all its members
func (s *Service) GetByIDWithMembers(ctx context.Context, id int64) (*Group, []*GroupMember, error) {
	group, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.repo.GetMembers(ctx, s.repo.DB(), id)
	if err != nil {
		return nil, nil, err
	}

	return group, members, nil
}

// ListByUserID retrieves all groups for a user
func (s *Service) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Group, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByUserID(ctx, s.repo.DB(), userID, perPage, offset)
}

// Update modifies an existing group
func (s *Service) Update(ctx context.Context, id int64, req *UpdateGroupRequest) (*Group, error) {
	group, err := s.repo.Update(ctx, s.repo.DB(), id, req)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

// Delete removes a group. Only admins can delete, and groups with unsettled
// balances or settle-ups awaiting confirmation cannot be deleted.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	err := s.repo.InTx(ctx, func(q database.Querier) error {
		group, err := s.repo.Lock(ctx, q, id)
		if err != nil {
			return err
		}
		if group == nil {
			return ErrGroupNotFound
		}
		if err := s.requireAdmin(ctx, q, id, actorID); err != nil {
			return err
		}

		outstanding, err := s.repo.HasOutstanding(ctx, q, id)
		if err != nil {
			return err
		}
		if outstanding {
			return ErrGroupHasBalances
		}

		return s.repo.Delete(ctx, q, id)
	})
	if err != nil {
		return err
	}

	slog.Info("group deleted", "group_id", id, "user_id", actorID)
	return nil
}

// AddMember invites a user to a group. A previously removed member is
// re-invited with their old balance.
func (s *Service) AddMember(ctx context.Context, groupID int64, req *AddMemberRequest) (*GroupMember, error) {
	group, err := s.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetMember(ctx, s.repo.DB(), groupID, req.UserID)
	if err != nil {
		return nil, err
	}

	var member *GroupMember
	switch {
	case existing == nil:
		member, err = s.repo.AddMember(ctx, s.repo.DB(), groupID, req, MemberStatusInvited, false)
	case existing.Deleted:
		member, err = s.repo.RestoreMember(ctx, s.repo.DB(), groupID, req)
	default:
		return nil, ErrMemberAlreadyExists
	}
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyGroupInvite(ctx, req.UserID, group.Name, groupID); err != nil {
			slog.Warn("failed to notify invitee", "group_id", groupID, "user_id", req.UserID, "error", err)
		}
	}

	return member, nil
}

// GetMembers retrieves all members of a group
func (s *Service) GetMembers(ctx context.Context, groupID int64) ([]*GroupMember, error) {
	if _, err := s.GetByID(ctx, groupID); err != nil {
		return nil, err
	}

	return s.repo.GetMembers(ctx, s.repo.DB(), groupID)
}

// Balances returns the group together with every member's balance
func (s *Service) Balances(ctx context.Context, groupID int64) (*Group, []*GroupMember, error) {
	return s.GetByIDWithMembers(ctx, groupID)
}

// UpdateMember updates a member's status or role
func (s *Service) UpdateMember(ctx context.Context, groupID, userID int64, req *UpdateMemberRequest) (*GroupMember, error) {
	member, err := s.repo.UpdateMember(ctx, s.repo.DB(), groupID, userID, req)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

// RemoveMember soft-deletes a member. Their balance keeps taking part in
// settlements of the group. Members may leave on their own; removing someone
// else takes an admin.
func (s *Service) RemoveMember(ctx context.Context, groupID, actorID, userID int64) error {
	if actorID != userID {
		if err := s.requireAdmin(ctx, s.repo.DB(), groupID, actorID); err != nil {
			return err
		}
	}

	if err := s.repo.RemoveMember(ctx, s.repo.DB(), groupID, userID); err != nil {
		return err
	}

	slog.Info("member removed", "group_id", groupID, "user_id", userID, "removed_by", actorID)
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, q database.Querier, groupID, userID int64) error {
	member, err := s.repo.GetMember(ctx, q, groupID, userID)
	if err != nil {
		return err
	}
	if member == nil || member.Deleted || member.Role != MemberRoleAdmin {
		return ErrNotAuthorized
	}
	return nil
}

// AcceptInvitation allows a user to accept their group invitation
func (s *Service) AcceptInvitation(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	member, err := s.repo.GetMember(ctx, s.repo.DB(), groupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || member.Deleted {
		return nil, ErrMemberNotFound
	}
	if member.Status != MemberStatusInvited {
		return member, nil // Already joined
	}

	return s.UpdateMember(ctx, groupID, userID, &UpdateMemberRequest{
		Status: statusPtr(MemberStatusJoined),
	})
}

// Helper function to get a pointer to a MemberStatus
func statusPtr(s MemberStatus) *MemberStatus {
	return &s
}
