package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doctrack/doctrack/internal/types"
)

const workflowColumns = `id, document_id, workflow_type, current_state, initiated_by,
	current_assignee, initiated_at, due_at, is_terminated`

func insertWorkflow(ctx context.Context, q queryer, wf *types.WorkflowInstance) error {
	if !wf.Type.IsValid() {
		return fmt.Errorf("invalid workflow type: %s", wf.Type)
	}
	terminated := 0
	if wf.IsTerminated {
		terminated = 1
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, wf.ID, wf.DocumentID, string(wf.Type), string(wf.CurrentState), wf.InitiatedBy,
		nullString(wf.CurrentAssignee), wf.InitiatedAt, wf.DueAt, terminated)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

func scanWorkflow(row interface{ Scan(...any) error }) (*types.WorkflowInstance, error) {
	var wf types.WorkflowInstance
	var wfType, state string
	var assignee sql.NullString
	var dueAt sql.NullTime
	var terminated int

	err := row.Scan(&wf.ID, &wf.DocumentID, &wfType, &state, &wf.InitiatedBy,
		&assignee, &wf.InitiatedAt, &dueAt, &terminated)
	if err != nil {
		return nil, err
	}
	wf.Type = types.WorkflowType(wfType)
	wf.CurrentState = types.Status(state)
	wf.CurrentAssignee = assignee.String
	wf.DueAt = timePtr(dueAt)
	wf.IsTerminated = terminated != 0
	return &wf, nil
}

// getActiveWorkflow returns the single non-terminated workflow for a
// document, or nil when none is open.
func getActiveWorkflow(ctx context.Context, q queryer, docID string) (*types.WorkflowInstance, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+workflowColumns+` FROM workflows
		WHERE document_id = ? AND is_terminated = 0
		ORDER BY initiated_at DESC LIMIT 1
	`, docID)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active workflow: %w", err)
	}
	return wf, nil
}

var workflowUpdateColumns = map[string]bool{
	"current_state":    true,
	"current_assignee": true,
	"due_at":           true,
	"is_terminated":    true,
}

func updateWorkflow(ctx context.Context, q queryer, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	for col, val := range updates {
		if !workflowUpdateColumns[col] {
			return fmt.Errorf("column %q is not updatable", col)
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	args = append(args, id)

	res, err := q.ExecContext(ctx,
		`UPDATE workflows SET `+strings.Join(setClauses, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check workflow update: %w", err)
	}
	if n == 0 {
		return types.NotFound("workflow", id)
	}
	return nil
}

func insertWorkflowTransition(ctx context.Context, q queryer, tr *types.WorkflowTransition) error {
	if tr.OccurredAt.IsZero() {
		tr.OccurredAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO workflow_transitions (workflow_id, from_state, to_state, actor, comment, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tr.WorkflowID, string(tr.FromState), string(tr.ToState), tr.Actor, tr.Comment, tr.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert workflow transition: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		tr.ID = id
	}
	return nil
}

// terminateOpenWorkflows marks every open workflow for a document as
// terminated and returns the affected instances so the caller can notify
// their assignees.
func terminateOpenWorkflows(ctx context.Context, q queryer, docID string) ([]*types.WorkflowInstance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+workflowColumns+` FROM workflows
		WHERE document_id = ? AND is_terminated = 0
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open workflows: %w", err)
	}
	var open []*types.WorkflowInstance
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		open = append(open, wf)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(open) == 0 {
		return nil, nil
	}
	_, err = q.ExecContext(ctx,
		`UPDATE workflows SET is_terminated = 1 WHERE document_id = ? AND is_terminated = 0`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to terminate workflows: %w", err)
	}
	for _, wf := range open {
		wf.IsTerminated = true
	}
	return open, nil
}

// Storage-level workflow methods.

func (s *SQLiteStorage) GetActiveWorkflow(ctx context.Context, docID string) (*types.WorkflowInstance, error) {
	return getActiveWorkflow(ctx, s.db, docID)
}

func (s *SQLiteStorage) GetWorkflow(ctx context.Context, id string) (*types.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("workflow", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

func (s *SQLiteStorage) GetWorkflowTransitions(ctx context.Context, workflowID string) ([]*types.WorkflowTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, from_state, to_state, actor, comment, occurred_at
		FROM workflow_transitions WHERE workflow_id = ? ORDER BY id
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trs []*types.WorkflowTransition
	for rows.Next() {
		var tr types.WorkflowTransition
		var from, to string
		if err := rows.Scan(&tr.ID, &tr.WorkflowID, &from, &to, &tr.Actor, &tr.Comment, &tr.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow transition: %w", err)
		}
		tr.FromState = types.Status(from)
		tr.ToState = types.Status(to)
		trs = append(trs, &tr)
	}
	return trs, rows.Err()
}

// GetOverdueWorkflows returns active workflows whose due_at has passed.
func (s *SQLiteStorage) GetOverdueWorkflows(ctx context.Context, asOf time.Time) ([]*types.WorkflowInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workflowColumns+` FROM workflows
		WHERE is_terminated = 0 AND due_at IS NOT NULL AND due_at < ?
		ORDER BY due_at
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var wfs []*types.WorkflowInstance
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		wfs = append(wfs, wf)
	}
	return wfs, rows.Err()
}

// MarkOverdueNoticeSent records that an overdue notice went out for a
// workflow on the given day. Returns false if one was already recorded,
// keeping timeout notifications idempotent per day.
func (s *SQLiteStorage) MarkOverdueNoticeSent(ctx context.Context, workflowID string, day time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO overdue_notices (workflow_id, notice_date) VALUES (?, ?)
	`, workflowID, day.UTC().Format("2006-01-02"))
	if err != nil {
		return false, fmt.Errorf("failed to record overdue notice: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check overdue notice: %w", err)
	}
	return n > 0, nil
}
