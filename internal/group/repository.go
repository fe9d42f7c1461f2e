package group

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fkhayef/splitledger/internal/database"
)

const groupColumns = `id, name, description, is_temporary, currency_code, created_at`

const memberColumns = `gm.id, gm.group_id, gm.user_id, gm.status, gm.role, gm.balance, gm.has_access, gm.deleted, gm.joined_at`

// Repository handles group and membership persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new group repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the pool for reads outside a transaction.
func (r *Repository) DB() database.Querier {
	return r.db
}

// InTx runs fn inside a single transaction.
func (r *Repository) InTx(ctx context.Context, fn func(q database.Querier) error) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(tx)
	})
}

func scanGroup(row interface{ Scan(...any) error }) (*Group, error) {
	group := &Group{}
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&group.IsTemporary,
		&group.CurrencyCode,
		&group.CreatedAt,
	)
	return group, err
}

func scanMember(row interface{ Scan(...any) error }, withUser bool) (*GroupMember, error) {
	member := &GroupMember{}
	dest := []any{
		&member.ID,
		&member.GroupID,
		&member.UserID,
		&member.Status,
		&member.Role,
		&member.Balance,
		&member.HasAccess,
		&member.Deleted,
		&member.JoinedAt,
	}
	if withUser {
		dest = append(dest, &member.Username, &member.Email)
	}
	err := row.Scan(dest...)
	return member, err
}

// Create inserts a new group into the database
func (r *Repository) Create(ctx context.Context, q database.Querier, req *CreateGroupRequest) (*Group, error) {
	query := `
		INSERT INTO groups (name, description, is_temporary, currency_code)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + groupColumns

	group, err := scanGroup(q.QueryRowContext(ctx, query, req.Name, req.Description, req.IsTemporary, req.CurrencyCode))
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	return group, nil
}

// GetByID retrieves a group by its ID. It returns nil when the group does not exist.
func (r *Repository) GetByID(ctx context.Context, q database.Querier, id int64) (*Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`

	group, err := scanGroup(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

// Lock takes a row lock on the group for the rest of the transaction.
func (r *Repository) Lock(ctx context.Context, q database.Querier, id int64) (*Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1 FOR UPDATE`

	group, err := scanGroup(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock group: %w", err)
	}

	return group, nil
}

// ListByUserID retrieves the groups a user has not been removed from
func (r *Repository) ListByUserID(ctx context.Context, q database.Querier, userID int64, limit, offset int) ([]*Group, int, error) {
	var total int
	countQuery := `
		SELECT COUNT(DISTINCT g.id)
		FROM groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1 AND NOT gm.deleted
	`
	if err := q.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	query := `
		SELECT g.id, g.name, g.description, g.is_temporary, g.currency_code, g.created_at
		FROM groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1 AND NOT gm.deleted
		ORDER BY g.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := q.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, total, nil
}

// Update modifies an existing group. It returns nil when the group does not exist.
func (r *Repository) Update(ctx context.Context, q database.Querier, id int64, req *UpdateGroupRequest) (*Group, error) {
	query := `
		UPDATE groups
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description)
		WHERE id = $1
		RETURNING ` + groupColumns

	group, err := scanGroup(q.QueryRowContext(ctx, query, id, req.Name, req.Description))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	return group, nil
}

// Delete removes a group; members and records cascade
func (r *Repository) Delete(ctx context.Context, q database.Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrGroupNotFound
	}

	return nil
}

// HasOutstanding reports whether any member balance is nonzero or any
// settle-up entry is still awaiting confirmation.
func (r *Repository) HasOutstanding(ctx context.Context, q database.Querier, groupID int64) (bool, error) {
	query := `
		SELECT EXISTS (
		    SELECT 1 FROM group_members WHERE group_id = $1 AND balance <> 0
		) OR EXISTS (
		    SELECT 1 FROM record_entries e
		    JOIN records rec ON e.record_id = rec.id
		    WHERE rec.group_id = $1 AND e.pending
		)
	`

	var outstanding bool
	if err := q.QueryRowContext(ctx, query, groupID).Scan(&outstanding); err != nil {
		return false, fmt.Errorf("failed to check balances: %w", err)
	}
	return outstanding, nil
}

// AddMember adds a user to a group. hasAccess is granted immediately only for
// members who join on creation.
func (r *Repository) AddMember(ctx context.Context, q database.Querier, groupID int64, req *AddMemberRequest, status MemberStatus, hasAccess bool) (*GroupMember, error) {
	role := req.Role
	if role == "" {
		role = MemberRoleMember
	}

	query := `
		INSERT INTO group_members AS gm (group_id, user_id, status, role, has_access)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + memberColumns

	member, err := scanMember(q.QueryRowContext(ctx, query, groupID, req.UserID, status, role, hasAccess), false)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrMemberAlreadyExists
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	return member, nil
}

// RestoreMember re-invites a previously removed member, keeping their balance.
func (r *Repository) RestoreMember(ctx context.Context, q database.Querier, groupID int64, req *AddMemberRequest) (*GroupMember, error) {
	role := req.Role
	if role == "" {
		role = MemberRoleMember
	}

	query := `
		UPDATE group_members AS gm
		SET deleted = FALSE, has_access = FALSE, status = $3, role = $4
		WHERE gm.group_id = $1 AND gm.user_id = $2 AND gm.deleted
		RETURNING ` + memberColumns

	member, err := scanMember(q.QueryRowContext(ctx, query, groupID, req.UserID, MemberStatusInvited, role), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to restore member: %w", err)
	}

	return member, nil
}

// GetMembers retrieves all members of a group, removed ones included
func (r *Repository) GetMembers(ctx context.Context, q database.Querier, groupID int64) ([]*GroupMember, error) {
	query := `
		SELECT ` + memberColumns + `, u.username, u.email
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at, gm.id
	`

	rows, err := q.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []*GroupMember
	for rows.Next() {
		member, err := scanMember(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// GetMember retrieves a specific member from a group. It returns nil when
// the user never joined the group.
func (r *Repository) GetMember(ctx context.Context, q database.Querier, groupID, userID int64) (*GroupMember, error) {
	query := `
		SELECT ` + memberColumns + `, u.username, u.email
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1 AND gm.user_id = $2
	`

	member, err := scanMember(q.QueryRowContext(ctx, query, groupID, userID), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// UpdateMember updates a member's status or role. Joining grants access.
// It returns nil when no active member matches.
func (r *Repository) UpdateMember(ctx context.Context, q database.Querier, groupID, userID int64, req *UpdateMemberRequest) (*GroupMember, error) {
	query := `
		UPDATE group_members AS gm
		SET status = COALESCE($3, status),
		    role = COALESCE($4, role),
		    has_access = has_access OR COALESCE($3, status) = 'JOINED'
		WHERE gm.group_id = $1 AND gm.user_id = $2 AND NOT gm.deleted
		RETURNING ` + memberColumns

	member, err := scanMember(q.QueryRowContext(ctx, query, groupID, userID, req.Status, req.Role), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update member: %w", err)
	}

	return member, nil
}

// RemoveMember marks a member deleted and revokes access. The row and its
// balance stay in place.
func (r *Repository) RemoveMember(ctx context.Context, q database.Querier, groupID, userID int64) error {
	query := `
		UPDATE group_members
		SET deleted = TRUE, has_access = FALSE
		WHERE group_id = $1 AND user_id = $2 AND NOT deleted
	`

	result, err := q.ExecContext(ctx, query, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}
