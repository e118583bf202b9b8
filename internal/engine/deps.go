package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/doctrack/doctrack/internal/authz"
	"github.com/doctrack/doctrack/internal/graph"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// AddDependency creates a typed edge between two documents after cycle
// validation. SUPERSEDES edges are system-generated and cannot be added here.
func (e *Engine) AddDependency(ctx context.Context, actor, fromID, toID string,
	depType types.DependencyType, critical bool) (*Result, error) {

	if !depType.IsValid() {
		return nil, types.NewDomainError(types.CodeMissingRequiredField,
			fmt.Sprintf("invalid dependency type %q", depType))
	}
	if !depType.UserEditable() {
		return nil, types.PermissionDenied(fmt.Sprintf("%s edges are system-managed", depType))
	}
	if err := authz.Require(ctx, e.store, actor, authz.CapWrite); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditDependencyAdded, "dependency", fromID)
	}

	res := &Result{}
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		from, err := tx.GetDocument(ctx, fromID)
		if err != nil {
			return err
		}
		to, err := tx.GetDocument(ctx, toID)
		if err != nil {
			return err
		}
		if from.Immutable() {
			return types.NewDomainError(types.CodeInvalidTransition,
				fmt.Sprintf("document %s is immutable in state %s", from.Number, from.Status))
		}

		if err := graph.ValidateNewEdge(ctx, tx, from, to); err != nil {
			return err
		}

		dep := &types.Dependency{
			ID:         uuid.NewString(),
			FromID:     from.ID,
			ToID:       to.ID,
			Type:       depType,
			IsCritical: critical,
			IsActive:   true,
			CreatedAt:  e.now(),
			CreatedBy:  actor,
		}
		if err := tx.AddDependency(ctx, dep); err != nil {
			return err
		}

		if err := tx.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor:             actor,
			Action:            types.AuditDependencyAdded,
			TargetKind:        "dependency",
			TargetID:          dep.ID,
			TargetDisplayName: fmt.Sprintf("%s -> %s", from.Number, to.Number),
			Description:       fmt.Sprintf("%s dependency added (critical=%t)", depType, critical),
		}); err != nil {
			return err
		}

		*res = Result{Success: true, DocumentID: from.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RemoveDependency soft-deactivates the edges between two documents. Edges
// are never physically deleted; the audit trail records who removed what.
// Pairs linked by a SUPERSEDES edge cannot be edited.
func (e *Engine) RemoveDependency(ctx context.Context, actor, fromID, toID string) (*Result, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapWrite); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditDependencyRemoved, "dependency", fromID)
	}

	res := &Result{}
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		from, err := tx.GetDocument(ctx, fromID)
		if err != nil {
			return err
		}
		to, err := tx.GetDocument(ctx, toID)
		if err != nil {
			return err
		}

		edges, err := tx.GetOutboundDependencies(ctx, from.ID, true)
		if err != nil {
			return err
		}
		for _, edge := range edges {
			if edge.ToID == to.ID && !edge.Type.UserEditable() {
				return types.PermissionDenied(
					fmt.Sprintf("%s edges are system-managed", edge.Type))
			}
		}

		if err := tx.DeactivateDependency(ctx, from.ID, to.ID); err != nil {
			return err
		}

		if err := tx.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor:             actor,
			Action:            types.AuditDependencyRemoved,
			TargetKind:        "dependency",
			TargetID:          from.ID + " -> " + to.ID,
			TargetDisplayName: fmt.Sprintf("%s -> %s", from.Number, to.Number),
			Description:       "dependency removed",
		}); err != nil {
			return err
		}

		*res = Result{Success: true, DocumentID: from.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
