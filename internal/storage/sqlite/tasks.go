package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doctrack/doctrack/internal/types"
)

// RecordTaskRun persists one task execution: the per-task counters are
// upserted and a row is added to the result log for health reporting.
func (s *SQLiteStorage) RecordTaskRun(ctx context.Context, name string, scheduledTime time.Time, completed bool, resultStatus string) error {
	now := time.Now().UTC()
	completedFlag := 0
	if completed {
		completedFlag = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (name, last_run_at, total_run_count)
		VALUES (?, ?, 1)
		ON CONFLICT(name) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			total_run_count = total_run_count + 1
	`, name, now)
	if err != nil {
		return fmt.Errorf("failed to upsert scheduled task: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_results (name, scheduled_time, completed, result_status, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, name, scheduledTime, completedFlag, resultStatus, now)
	if err != nil {
		return fmt.Errorf("failed to record task result: %w", err)
	}
	return nil
}

// GetScheduledTask returns the aggregate record for a task plus its most
// recent result, or NotFound if the task never ran.
func (s *SQLiteStorage) GetScheduledTask(ctx context.Context, name string) (*types.ScheduledTask, error) {
	var task types.ScheduledTask
	var lastRun sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT name, last_run_at, total_run_count FROM scheduled_tasks WHERE name = ?
	`, name).Scan(&task.Name, &lastRun, &task.TotalRunCount)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("scheduled task", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled task: %w", err)
	}
	task.LastRunAt = timePtr(lastRun)

	var completed int
	err = s.db.QueryRowContext(ctx, `
		SELECT scheduled_time, completed, result_status FROM task_results
		WHERE name = ? ORDER BY id DESC LIMIT 1
	`, name).Scan(&task.ScheduledTime, &completed, &task.ResultStatus)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get latest task result: %w", err)
	}
	task.Completed = completed != 0
	return &task, nil
}

func (s *SQLiteStorage) ListScheduledTasks(ctx context.Context) ([]*types.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.name, st.last_run_at, st.total_run_count,
			COALESCE(tr.scheduled_time, st.last_run_at),
			COALESCE(tr.completed, 0),
			COALESCE(tr.result_status, '')
		FROM scheduled_tasks st
		LEFT JOIN task_results tr ON tr.id = (
			SELECT id FROM task_results WHERE name = st.name ORDER BY id DESC LIMIT 1
		)
		ORDER BY st.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*types.ScheduledTask
	for rows.Next() {
		var task types.ScheduledTask
		var lastRun, scheduled sql.NullTime
		var completed int
		if err := rows.Scan(&task.Name, &lastRun, &task.TotalRunCount,
			&scheduled, &completed, &task.ResultStatus); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled task: %w", err)
		}
		task.LastRunAt = timePtr(lastRun)
		if scheduled.Valid {
			task.ScheduledTime = scheduled.Time
		}
		task.Completed = completed != 0
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

// PruneTaskResults deletes result rows recorded before the cutoff. This is
// the only physical delete in the store; everything else deactivates.
func (s *SQLiteStorage) PruneTaskResults(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_results WHERE recorded_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune task results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned task results: %w", err)
	}
	return n, nil
}
