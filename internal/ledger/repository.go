package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fkhayef/splitledger/internal/currency"
	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/settlement/solver"
)

// Repository handles record, entry and balance persistence. Every method takes
// the Querier to run on, so callers decide the transaction boundary.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new ledger repository
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

// LockGroup takes a row lock on the group until the surrounding transaction
// ends. Concurrent settle-ups and expenses for the same group serialize on it.
func (r *Repository) LockGroup(ctx context.Context, q database.Querier, groupID int64) error {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("failed to lock group: %w", err)
	}
	return nil
}

// LoadSettleUpData reads the balance snapshot of a group: all members ordered
// by join time (deleted and no-access members included), and the unconfirmed
// transfers of pending settle-up entries.
func (r *Repository) LoadSettleUpData(ctx context.Context, q database.Querier, groupID int64) (*SettleUpData, error) {
	data := &SettleUpData{GroupID: groupID}

	err := q.QueryRowContext(ctx, `SELECT currency_code FROM groups WHERE id = $1`, groupID).Scan(&data.CurrencyCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group currency: %w", err)
	}

	members, err := r.loadMembers(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	data.Members = members

	pending, err := r.loadPendingChanges(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	data.Pending = pending

	return data, nil
}

func (r *Repository) loadMembers(ctx context.Context, q database.Querier, groupID int64) ([]solver.Member, error) {
	query := `
		SELECT user_id, balance, has_access, deleted
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at, id
	`

	rows, err := q.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member balances: %w", err)
	}
	defer rows.Close()

	var members []solver.Member
	for rows.Next() {
		var m solver.Member
		if err := rows.Scan(&m.ID, &m.Balance, &m.HasAccess, &m.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan member balance: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member balances: %w", err)
	}

	return members, nil
}

// loadPendingChanges turns every pending counterparty entry into the transfer
// it stands for: the record payer pays -change to the entry's member.
func (r *Repository) loadPendingChanges(ctx context.Context, q database.Querier, groupID int64) ([]solver.PendingChange, error) {
	query := `
		SELECT rec.payer_id, e.user_id, e.change
		FROM record_entries e
		JOIN records rec ON rec.id = e.record_id
		WHERE rec.group_id = $1
		  AND rec.kind = $2
		  AND e.pending
		  AND e.user_id <> rec.payer_id
		ORDER BY e.id
	`

	rows, err := q.QueryContext(ctx, query, groupID, KindSettleUp)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending entries: %w", err)
	}
	defer rows.Close()

	var pending []solver.PendingChange
	for rows.Next() {
		var (
			p      solver.PendingChange
			change currency.Money
		)
		if err := rows.Scan(&p.SourceID, &p.TargetID, &change); err != nil {
			return nil, fmt.Errorf("failed to scan pending entry: %w", err)
		}
		p.Amount = change.Neg()
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending entries: %w", err)
	}

	return pending, nil
}

// CreateRecord inserts a record with its entries. Entries must sum to zero.
// Non-pending entries are applied to member balances immediately.
func (r *Repository) CreateRecord(ctx context.Context, q database.Querier, rec *Record, entries []EntryInput) (*Record, []*Entry, error) {
	var total currency.Money
	for _, e := range entries {
		total = total.Add(e.Change)
	}
	if !total.IsZero() {
		return nil, nil, ErrUnbalancedRecord
	}

	query := `
		INSERT INTO records (group_id, payer_id, description, amount, kind, split_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, group_id, payer_id, description, amount, kind, split_type, created_at
	`

	created := &Record{}
	err := q.QueryRowContext(ctx, query,
		rec.GroupID,
		rec.PayerID,
		rec.Description,
		rec.Amount,
		rec.Kind,
		rec.SplitType,
	).Scan(
		&created.ID,
		&created.GroupID,
		&created.PayerID,
		&created.Description,
		&created.Amount,
		&created.Kind,
		&created.SplitType,
		&created.CreatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create record: %w", err)
	}

	out := make([]*Entry, 0, len(entries))
	for _, in := range entries {
		entry, err := r.insertEntry(ctx, q, created.ID, in)
		if err != nil {
			return nil, nil, err
		}
		if !in.Pending {
			if err := r.adjustBalance(ctx, q, created.GroupID, in.UserID, in.Change); err != nil {
				return nil, nil, err
			}
		}
		out = append(out, entry)
	}

	return created, out, nil
}

func (r *Repository) insertEntry(ctx context.Context, q database.Querier, recordID int64, in EntryInput) (*Entry, error) {
	query := `
		INSERT INTO record_entries (record_id, user_id, change, pending)
		VALUES ($1, $2, $3, $4)
		RETURNING id, record_id, user_id, change, pending, updated_at
	`

	entry := &Entry{}
	err := q.QueryRowContext(ctx, query, recordID, in.UserID, in.Change, in.Pending).Scan(
		&entry.ID,
		&entry.RecordID,
		&entry.UserID,
		&entry.Change,
		&entry.Pending,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	return entry, nil
}

// adjustBalance adds delta to a member's balance.
func (r *Repository) adjustBalance(ctx context.Context, q database.Querier, groupID, userID int64, delta currency.Money) error {
	if delta.IsZero() {
		return nil
	}

	query := `UPDATE group_members SET balance = balance + $3 WHERE group_id = $1 AND user_id = $2`

	result, err := q.ExecContext(ctx, query, groupID, userID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotGroupMember
	}

	return nil
}

// GetRecord retrieves a record by its ID
func (r *Repository) GetRecord(ctx context.Context, q database.Querier, id int64) (*Record, error) {
	query := `
		SELECT rec.id, rec.group_id, rec.payer_id, rec.description, rec.amount, rec.kind, rec.split_type, rec.created_at, u.username
		FROM records rec
		JOIN users u ON rec.payer_id = u.id
		WHERE rec.id = $1
	`

	rec := &Record{}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.GroupID,
		&rec.PayerID,
		&rec.Description,
		&rec.Amount,
		&rec.Kind,
		&rec.SplitType,
		&rec.CreatedAt,
		&rec.PayerUsername,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return rec, nil
}

// ListRecordsByGroup retrieves a page of records for a group, newest first.
func (r *Repository) ListRecordsByGroup(ctx context.Context, q database.Querier, groupID int64, kind RecordKind, limit, offset int) ([]*Record, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM records WHERE group_id = $1 AND kind = $2`
	if err := q.QueryRowContext(ctx, countQuery, groupID, kind).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	query := `
		SELECT rec.id, rec.group_id, rec.payer_id, rec.description, rec.amount, rec.kind, rec.split_type, rec.created_at, u.username
		FROM records rec
		JOIN users u ON rec.payer_id = u.id
		WHERE rec.group_id = $1 AND rec.kind = $2
		ORDER BY rec.created_at DESC, rec.id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := q.QueryContext(ctx, query, groupID, kind, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(
			&rec.ID,
			&rec.GroupID,
			&rec.PayerID,
			&rec.Description,
			&rec.Amount,
			&rec.Kind,
			&rec.SplitType,
			&rec.CreatedAt,
			&rec.PayerUsername,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, total, nil
}

// ListEntries retrieves all entries of a record in insertion order.
func (r *Repository) ListEntries(ctx context.Context, q database.Querier, recordID int64) ([]*Entry, error) {
	query := `
		SELECT e.id, e.record_id, e.user_id, e.change, e.pending, e.updated_at, u.username
		FROM record_entries e
		JOIN users u ON e.user_id = u.id
		WHERE e.record_id = $1
		ORDER BY e.id
	`

	rows, err := q.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.RecordID,
			&entry.UserID,
			&entry.Change,
			&entry.Pending,
			&entry.UpdatedAt,
			&entry.Username,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, nil
}

// GetEntry retrieves an entry by its ID
func (r *Repository) GetEntry(ctx context.Context, q database.Querier, id int64) (*Entry, error) {
	query := `
		SELECT id, record_id, user_id, change, pending, updated_at
		FROM record_entries
		WHERE id = $1
	`

	entry := &Entry{}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&entry.ID,
		&entry.RecordID,
		&entry.UserID,
		&entry.Change,
		&entry.Pending,
		&entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	return entry, nil
}

// ListPendingEntries retrieves the pending settle-up entries addressed to userID.
func (r *Repository) ListPendingEntries(ctx context.Context, q database.Querier, userID int64) ([]*PendingEntry, error) {
	query := `
		SELECT e.id, e.record_id, e.user_id, e.change, e.pending, e.updated_at,
		       rec.group_id, rec.payer_id, rec.description
		FROM record_entries e
		JOIN records rec ON rec.id = e.record_id
		WHERE e.user_id = $1
		  AND e.pending
		  AND rec.kind = $2
		  AND rec.payer_id <> e.user_id
		ORDER BY e.id
	`

	rows, err := q.QueryContext(ctx, query, userID, KindSettleUp)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}
	defer rows.Close()

	var entries []*PendingEntry
	for rows.Next() {
		pe := &PendingEntry{}
		if err := rows.Scan(
			&pe.ID,
			&pe.RecordID,
			&pe.UserID,
			&pe.Change,
			&pe.Pending,
			&pe.UpdatedAt,
			&pe.GroupID,
			&pe.PayerID,
			&pe.Description,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending entry: %w", err)
		}
		entries = append(entries, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending entries: %w", err)
	}

	return entries, nil
}

// ConfirmEntry applies a pending counterparty entry: the member moves by
// change and the record payer by -change. Once no counterparty entry of the
// record is pending, the payer entry is marked applied too.
func (r *Repository) ConfirmEntry(ctx context.Context, q database.Querier, entryID int64) (*Entry, error) {
	entry, rec, err := r.pendingCounterpartyEntry(ctx, q, entryID)
	if err != nil {
		return nil, err
	}

	if err := r.adjustBalance(ctx, q, rec.GroupID, entry.UserID, entry.Change); err != nil {
		return nil, err
	}
	if err := r.adjustBalance(ctx, q, rec.GroupID, rec.PayerID, entry.Change.Neg()); err != nil {
		return nil, err
	}

	query := `
		UPDATE record_entries
		SET pending = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING id, record_id, user_id, change, pending, updated_at
	`

	confirmed := &Entry{}
	err = q.QueryRowContext(ctx, query, entryID).Scan(
		&confirmed.ID,
		&confirmed.RecordID,
		&confirmed.UserID,
		&confirmed.Change,
		&confirmed.Pending,
		&confirmed.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm entry: %w", err)
	}

	if err := r.settlePayerEntry(ctx, q, rec); err != nil {
		return nil, err
	}

	return confirmed, nil
}

// DeleteEntry removes a pending counterparty entry. The payer entry and the
// record amount shrink accordingly; a record left without counterparties is
// removed entirely.
func (r *Repository) DeleteEntry(ctx context.Context, q database.Querier, entryID int64) error {
	entry, rec, err := r.pendingCounterpartyEntry(ctx, q, entryID)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM record_entries WHERE id = $1`, entryID); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	query := `
		UPDATE record_entries
		SET change = change + $3, updated_at = NOW()
		WHERE record_id = $1 AND user_id = $2
	`
	if _, err := q.ExecContext(ctx, query, rec.ID, rec.PayerID, entry.Change); err != nil {
		return fmt.Errorf("failed to update payer entry: %w", err)
	}

	var remaining int
	countQuery := `SELECT COUNT(*) FROM record_entries WHERE record_id = $1 AND user_id <> $2`
	if err := q.QueryRowContext(ctx, countQuery, rec.ID, rec.PayerID).Scan(&remaining); err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}

	if remaining == 0 {
		if _, err := q.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, rec.ID); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		return nil
	}

	amountQuery := `UPDATE records SET amount = amount - $2 WHERE id = $1`
	if _, err := q.ExecContext(ctx, amountQuery, rec.ID, entry.Change.Abs()); err != nil {
		return fmt.Errorf("failed to update record amount: %w", err)
	}

	return r.settlePayerEntry(ctx, q, rec)
}

// DeleteRecord removes an expense record and reverses its applied entries.
func (r *Repository) DeleteRecord(ctx context.Context, q database.Querier, id int64) error {
	rec, err := r.GetRecord(ctx, q, id)
	if err != nil {
		return err
	}
	if rec.Kind == KindSettleUp {
		return ErrSettleUpRecord
	}

	entries, err := r.ListEntries(ctx, q, id)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Pending {
			continue
		}
		if err := r.adjustBalance(ctx, q, rec.GroupID, e.UserID, e.Change.Neg()); err != nil {
			return err
		}
	}

	// record_entries cascade
	result, err := q.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

func (r *Repository) pendingCounterpartyEntry(ctx context.Context, q database.Querier, entryID int64) (*Entry, *Record, error) {
	entry, err := r.GetEntry(ctx, q, entryID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := r.GetRecord(ctx, q, entry.RecordID)
	if err != nil {
		return nil, nil, err
	}
	if !entry.Pending || entry.UserID == rec.PayerID {
		return nil, nil, ErrEntryNotPending
	}
	return entry, rec, nil
}

// settlePayerEntry marks the payer entry applied once no counterparty entry
// of the record is still pending.
func (r *Repository) settlePayerEntry(ctx context.Context, q database.Querier, rec *Record) error {
	query := `
		UPDATE record_entries
		SET pending = FALSE, updated_at = NOW()
		WHERE record_id = $1
		  AND user_id = $2
		  AND pending
		  AND NOT EXISTS (
		      SELECT 1 FROM record_entries
		      WHERE record_id = $1 AND user_id <> $2 AND pending
		  )
	`
	if _, err := q.ExecContext(ctx, query, rec.ID, rec.PayerID); err != nil {
		return fmt.Errorf("failed to settle payer entry: %w", err)
	}
	return nil
}
