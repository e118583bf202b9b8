package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doctrack/doctrack/internal/types"
)

func getDocumentType(ctx context.Context, q queryer, code string) (*types.DocumentType, error) {
	var dt types.DocumentType
	var requiresReview int
	err := q.QueryRowContext(ctx, `
		SELECT code, name, requires_periodic_review, review_interval_months
		FROM document_types WHERE code = ?
	`, code).Scan(&dt.Code, &dt.Name, &requiresReview, &dt.ReviewIntervalMonths)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("document type", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document type: %w", err)
	}
	dt.RequiresPeriodicReview = requiresReview != 0
	return &dt, nil
}

func getDocumentSource(ctx context.Context, q queryer, code string) (*types.DocumentSource, error) {
	var ds types.DocumentSource
	var requiresVerification int
	err := q.QueryRowContext(ctx, `
		SELECT code, name, requires_verification
		FROM document_sources WHERE code = ?
	`, code).Scan(&ds.Code, &ds.Name, &requiresVerification)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("document source", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document source: %w", err)
	}
	ds.RequiresVerification = requiresVerification != 0
	return &ds, nil
}

// Storage-level reference data methods.

func (s *SQLiteStorage) GetDocumentType(ctx context.Context, code string) (*types.DocumentType, error) {
	return getDocumentType(ctx, s.db, code)
}

func (s *SQLiteStorage) CreateDocumentType(ctx context.Context, dt *types.DocumentType) error {
	requiresReview := 0
	if dt.RequiresPeriodicReview {
		requiresReview = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_types (code, name, requires_periodic_review, review_interval_months)
		VALUES (?, ?, ?, ?)
	`, dt.Code, dt.Name, requiresReview, dt.ReviewIntervalMonths)
	if err != nil {
		if isUniqueConstraintError(err) {
			return types.NewDomainError(types.CodeConflict,
				fmt.Sprintf("document type %q already exists", dt.Code))
		}
		return fmt.Errorf("failed to create document type: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListDocumentTypes(ctx context.Context) ([]*types.DocumentType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, requires_periodic_review, review_interval_months
		FROM document_types ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list document types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []*types.DocumentType
	for rows.Next() {
		var dt types.DocumentType
		var requiresReview int
		if err := rows.Scan(&dt.Code, &dt.Name, &requiresReview, &dt.ReviewIntervalMonths); err != nil {
			return nil, fmt.Errorf("failed to scan document type: %w", err)
		}
		dt.RequiresPeriodicReview = requiresReview != 0
		list = append(list, &dt)
	}
	return list, rows.Err()
}

func (s *SQLiteStorage) GetDocumentSource(ctx context.Context, code string) (*types.DocumentSource, error) {
	return getDocumentSource(ctx, s.db, code)
}

func (s *SQLiteStorage) CreateDocumentSource(ctx context.Context, ds *types.DocumentSource) error {
	requiresVerification := 0
	if ds.RequiresVerification {
		requiresVerification = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_sources (code, name, requires_verification)
		VALUES (?, ?, ?)
	`, ds.Code, ds.Name, requiresVerification)
	if err != nil {
		if isUniqueConstraintError(err) {
			return types.NewDomainError(types.CodeConflict,
				fmt.Sprintf("document source %q already exists", ds.Code))
		}
		return fmt.Errorf("failed to create document source: %w", err)
	}
	return nil
}
