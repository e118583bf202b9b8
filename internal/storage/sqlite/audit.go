package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

const auditColumns = `sequence, actor, action, target_kind, target_id, target_display_name,
	from_state, to_state, description, metadata, occurred_at, session_id,
	previous_checksum, checksum`

// appendAuditEntry seals an entry against the current chain head and inserts
// it. Callers run this inside a write transaction so the head read and the
// insert are atomic.
func appendAuditEntry(ctx context.Context, q queryer, e *types.AuditEntry) error {
	head, err := getAuditHead(ctx, q)
	if err != nil {
		return err
	}
	audit.Seal(e, head)

	metaJSON := audit.CanonicalMetadata(e.Metadata)
	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_entries (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Sequence, e.Actor, string(e.Action), e.TargetKind, e.TargetID, e.TargetDisplayName,
		nullString(string(e.FromState)), nullString(string(e.ToState)),
		e.Description, metaJSON, e.OccurredAt, nullString(e.SessionID),
		e.PreviousChecksum, e.Checksum)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func scanAuditEntry(row interface{ Scan(...any) error }) (*types.AuditEntry, error) {
	var e types.AuditEntry
	var action string
	var fromState, toState, sessionID sql.NullString
	var metaJSON string

	err := row.Scan(&e.Sequence, &e.Actor, &action, &e.TargetKind, &e.TargetID,
		&e.TargetDisplayName, &fromState, &toState, &e.Description, &metaJSON,
		&e.OccurredAt, &sessionID, &e.PreviousChecksum, &e.Checksum)
	if err != nil {
		return nil, err
	}
	e.Action = types.AuditAction(action)
	e.FromState = types.Status(fromState.String)
	e.ToState = types.Status(toState.String)
	e.SessionID = sessionID.String
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode audit metadata at sequence %d: %w", e.Sequence, err)
		}
	}
	return &e, nil
}

// getAuditHead returns the highest-sequence entry, or nil for an empty chain.
func getAuditHead(ctx context.Context, q queryer) (*types.AuditEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_entries ORDER BY sequence DESC LIMIT 1`)
	e, err := scanAuditEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit head: %w", err)
	}
	return e, nil
}

func queryAuditEntries(ctx context.Context, q queryer, where string, args ...any) ([]*types.AuditEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_entries `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Storage-level audit methods.

func (s *SQLiteStorage) AppendAuditEntry(ctx context.Context, e *types.AuditEntry) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AppendAuditEntry(ctx, e)
	})
}

func (s *SQLiteStorage) GetAuditHead(ctx context.Context) (*types.AuditEntry, error) {
	return getAuditHead(ctx, s.db)
}

// GetAuditEntries returns entries with sequence > afterSequence, in order.
// Pass 0 and limit 0 for the whole chain.
func (s *SQLiteStorage) GetAuditEntries(ctx context.Context, afterSequence int64, limit int) ([]*types.AuditEntry, error) {
	where := `WHERE sequence > ? ORDER BY sequence`
	args := []any{afterSequence}
	if limit > 0 {
		where += ` LIMIT ?`
		args = append(args, limit)
	}
	return queryAuditEntries(ctx, s.db, where, args...)
}

func (s *SQLiteStorage) GetAuditEntriesForTarget(ctx context.Context, targetKind, targetID string) ([]*types.AuditEntry, error) {
	return queryAuditEntries(ctx, s.db,
		`WHERE target_kind = ? AND target_id = ? ORDER BY sequence`, targetKind, targetID)
}
