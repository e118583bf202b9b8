package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doctrack/doctrack/internal/types"
)

func insertPeriodicReview(ctx context.Context, q queryer, pr *types.PeriodicReview) error {
	if !pr.Outcome.IsValid() {
		return fmt.Errorf("invalid periodic review outcome: %s", pr.Outcome)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO periodic_reviews (id, document_id, reviewer, outcome, comments,
			next_review_months, linked_new_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, pr.ID, pr.DocumentID, pr.Reviewer, string(pr.Outcome), pr.Comments,
		pr.NextReviewMonths, nullString(pr.LinkedNewVersion), pr.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert periodic review: %w", err)
	}
	return nil
}

// GetPeriodicReviews returns a document's periodic review history, oldest
// first.
func (s *SQLiteStorage) GetPeriodicReviews(ctx context.Context, documentID string) ([]*types.PeriodicReview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, reviewer, outcome, comments, next_review_months,
			linked_new_version, created_at
		FROM periodic_reviews WHERE document_id = ? ORDER BY created_at
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query periodic reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*types.PeriodicReview
	for rows.Next() {
		var pr types.PeriodicReview
		var outcome string
		var linked sql.NullString
		if err := rows.Scan(&pr.ID, &pr.DocumentID, &pr.Reviewer, &outcome, &pr.Comments,
			&pr.NextReviewMonths, &linked, &pr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan periodic review: %w", err)
		}
		pr.Outcome = types.PeriodicReviewOutcome(outcome)
		pr.LinkedNewVersion = linked.String
		reviews = append(reviews, &pr)
	}
	return reviews, rows.Err()
}
