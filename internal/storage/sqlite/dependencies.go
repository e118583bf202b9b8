package sqlite

import (
	"context"
	"fmt"

	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// insertDependency inserts a single edge. Self-edges are rejected by the DB
// check constraint; family-level cycle checks run in the graph package before
// this point.
func insertDependency(ctx context.Context, q queryer, dep *types.Dependency) error {
	if !dep.Type.IsValid() {
		return fmt.Errorf("invalid dependency type: %s", dep.Type)
	}
	critical := 0
	if dep.IsCritical {
		critical = 1
	}
	active := 0
	if dep.IsActive {
		active = 1
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO dependencies (id, from_id, to_id, type, is_critical, is_active, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, dep.ID, dep.FromID, dep.ToID, string(dep.Type), critical, active, dep.CreatedAt, dep.CreatedBy)
	if err != nil {
		if isUniqueConstraintError(err) {
			return types.NewDomainError(types.CodeConflict,
				fmt.Sprintf("dependency %s -> %s (%s) already exists", dep.FromID, dep.ToID, dep.Type))
		}
		return fmt.Errorf("failed to insert dependency: %w", err)
	}
	return nil
}

// deactivateDependency soft-deactivates all edges between two documents.
// Edges are never physically deleted.
func deactivateDependency(ctx context.Context, q queryer, fromID, toID string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE dependencies SET is_active = 0 WHERE from_id = ? AND to_id = ? AND is_active = 1`,
		fromID, toID)
	if err != nil {
		return fmt.Errorf("failed to deactivate dependency: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivation result: %w", err)
	}
	if n == 0 {
		return types.NotFound("dependency", fromID+" -> "+toID)
	}
	return nil
}

// getDependencies fetches edges anchored on the given column ("from_id" for
// outbound, "to_id" for inbound).
func getDependencies(ctx context.Context, q queryer, anchorCol, docID string, activeOnly bool) ([]*types.Dependency, error) {
	query := `
		SELECT id, from_id, to_id, type, is_critical, is_active, created_at, created_by
		FROM dependencies WHERE ` + anchorCol + ` = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at`

	rows, err := q.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []*types.Dependency
	for rows.Next() {
		var d types.Dependency
		var depType string
		var critical, active int
		if err := rows.Scan(&d.ID, &d.FromID, &d.ToID, &depType, &critical, &active, &d.CreatedAt, &d.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		d.Type = types.DependencyType(depType)
		d.IsCritical = critical != 0
		d.IsActive = active != 0
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

// Storage-level dependency methods.

func (s *SQLiteStorage) AddDependency(ctx context.Context, dep *types.Dependency) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AddDependency(ctx, dep)
	})
}

func (s *SQLiteStorage) DeactivateDependency(ctx context.Context, fromID, toID string) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.DeactivateDependency(ctx, fromID, toID)
	})
}

func (s *SQLiteStorage) GetOutboundDependencies(ctx context.Context, docID string, activeOnly bool) ([]*types.Dependency, error) {
	return getDependencies(ctx, s.db, "from_id", docID, activeOnly)
}

func (s *SQLiteStorage) GetInboundDependencies(ctx context.Context, docID string, activeOnly bool) ([]*types.Dependency, error) {
	return getDependencies(ctx, s.db, "to_id", docID, activeOnly)
}

// GetAllActiveDependencies returns every active edge, for the periodic
// whole-graph cycle audit.
func (s *SQLiteStorage) GetAllActiveDependencies(ctx context.Context) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_id, to_id, type, is_critical, is_active, created_at, created_by
		FROM dependencies WHERE is_active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []*types.Dependency
	for rows.Next() {
		var d types.Dependency
		var depType string
		var critical, active int
		if err := rows.Scan(&d.ID, &d.FromID, &d.ToID, &depType, &critical, &active, &d.CreatedAt, &d.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		d.Type = types.DependencyType(depType)
		d.IsCritical = critical != 0
		d.IsActive = active != 0
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}
