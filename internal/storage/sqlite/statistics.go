package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/doctrack/doctrack/internal/types"
)

// GetStatistics computes aggregate metrics for health reports.
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'draft' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ('pending_review', 'under_review', 'review_completed',
				'pending_approval', 'under_approval') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'effective' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'obsolete' THEN 1 ELSE 0 END), 0)
		FROM documents WHERE is_active = 1
	`).Scan(&stats.TotalDocuments, &stats.DraftDocuments, &stats.InReviewDocuments,
		&stats.EffectiveDocuments, &stats.ObsoleteDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to compute document statistics: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflows WHERE is_terminated = 0`).Scan(&stats.ActiveWorkflows)
	if err != nil {
		return nil, fmt.Errorf("failed to count active workflows: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workflows
		WHERE is_terminated = 0 AND due_at IS NOT NULL AND due_at < ?
	`, time.Now().UTC()).Scan(&stats.OverdueWorkflows)
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue workflows: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_entries`).Scan(&stats.AuditEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}

	return stats, nil
}
