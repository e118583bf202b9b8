package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// isUniqueConstraintError checks if error is a UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

const documentColumns = `id, number, title, description, type_code, source_code,
	version_major, version_minor, family_key, status,
	effective_date, obsolescence_date, next_periodic_review_date,
	author, reviewer, approver, file_reference, signed_reference,
	reason_for_change, is_active,
	created_at, updated_at, approved_at, obsoleted_at, terminated_at`

// insertDocument inserts a single document, failing on duplicates.
func insertDocument(ctx context.Context, q queryer, doc *types.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	active := 0
	if doc.IsActive {
		active = 1
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		doc.ID, doc.Number, doc.Title, doc.Description, doc.TypeCode, doc.SourceCode,
		doc.VersionMajor, doc.VersionMinor, doc.FamilyKey, string(doc.Status),
		doc.EffectiveDate, doc.ObsolescenceDate, doc.NextPeriodicReviewDate,
		doc.Author, nullString(doc.Reviewer), nullString(doc.Approver),
		nullString(doc.FileReference), nullString(doc.SignedReference),
		doc.ReasonForChange, active,
		doc.CreatedAt, doc.UpdatedAt, doc.ApprovedAt, doc.ObsoletedAt, doc.TerminatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return types.NewDomainError(types.CodeConflict,
				fmt.Sprintf("document %s %s already exists", doc.Number, doc.FullVersion()))
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func scanDocument(row interface{ Scan(...any) error }) (*types.Document, error) {
	var doc types.Document
	var status string
	var reviewer, approver, fileRef, signedRef sql.NullString
	var effective, obsolescence, reviewDue, approved, obsoleted, terminated sql.NullTime
	var active int

	err := row.Scan(
		&doc.ID, &doc.Number, &doc.Title, &doc.Description, &doc.TypeCode, &doc.SourceCode,
		&doc.VersionMajor, &doc.VersionMinor, &doc.FamilyKey, &status,
		&effective, &obsolescence, &reviewDue,
		&doc.Author, &reviewer, &approver, &fileRef, &signedRef,
		&doc.ReasonForChange, &active,
		&doc.CreatedAt, &doc.UpdatedAt, &approved, &obsoleted, &terminated,
	)
	if err != nil {
		return nil, err
	}

	doc.Status = types.Status(status)
	doc.Reviewer = reviewer.String
	doc.Approver = approver.String
	doc.FileReference = fileRef.String
	doc.SignedReference = signedRef.String
	doc.IsActive = active != 0
	doc.EffectiveDate = timePtr(effective)
	doc.ObsolescenceDate = timePtr(obsolescence)
	doc.NextPeriodicReviewDate = timePtr(reviewDue)
	doc.ApprovedAt = timePtr(approved)
	doc.ObsoletedAt = timePtr(obsoleted)
	doc.TerminatedAt = timePtr(terminated)
	return &doc, nil
}

func getDocument(ctx context.Context, q queryer, id string) (*types.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// getDocumentByNumber returns the latest version carrying the number.
func getDocumentByNumber(ctx context.Context, q queryer, typeCode, number string) (*types.Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE type_code = ? AND number = ?
		ORDER BY version_major DESC, version_minor DESC
		LIMIT 1
	`, typeCode, number)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("document", number)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document by number: %w", err)
	}
	return doc, nil
}

// documentUpdateColumns whitelists the columns updateDocument may touch.
// Identity, versioning and creation fields are immutable by construction.
var documentUpdateColumns = map[string]bool{
	"title":                     true,
	"description":               true,
	"status":                    true,
	"effective_date":            true,
	"obsolescence_date":         true,
	"next_periodic_review_date": true,
	"reviewer":                  true,
	"approver":                  true,
	"file_reference":            true,
	"signed_reference":          true,
	"reason_for_change":         true,
	"is_active":                 true,
	"approved_at":               true,
	"obsoleted_at":              true,
	"terminated_at":             true,
}

// updateDocument applies a partial update. updated_at is always refreshed.
func updateDocument(ctx context.Context, q queryer, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	for col, val := range updates {
		if !documentUpdateColumns[col] {
			return fmt.Errorf("column %q is not updatable", col)
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := q.ExecContext(ctx,
		`UPDATE documents SET `+strings.Join(setClauses, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return types.NotFound("document", id)
	}
	return nil
}

// nextDocumentNumber allocates the next number for a type/year pair,
// e.g. SOP-2026-0007. The counters row is bumped inside the caller's
// transaction so concurrent allocations cannot collide.
func nextDocumentNumber(ctx context.Context, q queryer, typeCode string, year int) (string, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO number_counters (type_code, year, last_number) VALUES (?, ?, 1)
		ON CONFLICT(type_code, year) DO UPDATE SET last_number = last_number + 1
	`, typeCode, year)
	if err != nil {
		return "", fmt.Errorf("failed to bump number counter: %w", err)
	}

	var n int
	err = q.QueryRowContext(ctx,
		`SELECT last_number FROM number_counters WHERE type_code = ? AND year = ?`,
		typeCode, year).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("failed to read number counter: %w", err)
	}
	return fmt.Sprintf("%s-%d-%04d", typeCode, year, n), nil
}

func familyMembers(ctx context.Context, q queryer, familyKey string) ([]*types.Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE family_key = ?
		ORDER BY version_major, version_minor
	`, familyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query family: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan family member: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// latestEffective returns the single EFFECTIVE member of a family, or nil.
// The family invariant guarantees at most one.
func latestEffective(ctx context.Context, q queryer, familyKey string) (*types.Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE family_key = ? AND status = ?
		ORDER BY version_major DESC, version_minor DESC
		LIMIT 1
	`, familyKey, string(types.StatusEffective))
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest effective: %w", err)
	}
	return doc, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// Storage-level document methods.

func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *types.Document) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateDocument(ctx, doc)
	})
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return getDocument(ctx, s.db, id)
}

func (s *SQLiteStorage) GetDocumentByNumber(ctx context.Context, typeCode, number string) (*types.Document, error) {
	return getDocumentByNumber(ctx, s.db, typeCode, number)
}

func (s *SQLiteStorage) UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateDocument(ctx, id, updates)
	})
}

func (s *SQLiteStorage) FamilyMembers(ctx context.Context, familyKey string) ([]*types.Document, error) {
	return familyMembers(ctx, s.db, familyKey)
}

func (s *SQLiteStorage) LatestEffective(ctx context.Context, familyKey string) (*types.Document, error) {
	return latestEffective(ctx, s.db, familyKey)
}

// SearchDocuments returns documents matching the filter, newest first.
func (s *SQLiteStorage) SearchDocuments(ctx context.Context, filter types.DocumentFilter) ([]*types.Document, error) {
	var conds []string
	var args []any

	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.TypeCode != "" {
		conds = append(conds, "type_code = ?")
		args = append(args, filter.TypeCode)
	}
	if filter.FamilyKey != "" {
		conds = append(conds, "family_key = ?")
		args = append(args, filter.FamilyKey)
	}
	if filter.Author != "" {
		conds = append(conds, "author = ?")
		args = append(args, filter.Author)
	}
	if filter.EffectiveOnOrBefore != nil {
		conds = append(conds, "effective_date IS NOT NULL AND effective_date <= ?")
		args = append(args, *filter.EffectiveOnOrBefore)
	}
	if filter.ObsolescenceOnOrBefore != nil {
		conds = append(conds, "obsolescence_date IS NOT NULL AND obsolescence_date <= ?")
		args = append(args, *filter.ObsolescenceOnOrBefore)
	}
	if filter.ReviewDueOnOrBefore != nil {
		conds = append(conds, "next_periodic_review_date IS NOT NULL AND next_periodic_review_date <= ?")
		args = append(args, *filter.ReviewDueOnOrBefore)
	}
	if !filter.IncludeInactive {
		conds = append(conds, "is_active = 1")
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
