package engine

import (
	"context"
	"fmt"

	"github.com/doctrack/doctrack/internal/authz"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// GrantSuperuser grants superuser to a user. Only an existing superuser may
// grant it.
func (e *Engine) GrantSuperuser(ctx context.Context, actor, userID string) error {
	if err := authz.RequireSuperuser(ctx, e.store, actor); err != nil {
		return e.denyAndAudit(ctx, err, actor, types.AuditSuperuserGranted, "user", userID)
	}
	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.SetSuperuser(ctx, userID, true); err != nil {
			return err
		}
		return tx.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor:             actor,
			Action:            types.AuditSuperuserGranted,
			TargetKind:        "user",
			TargetID:          userID,
			TargetDisplayName: user.Username,
			Description:       fmt.Sprintf("superuser granted to %s", user.Username),
		})
	})
}

// RevokeSuperuser revokes superuser from a user. The final active superuser
// can never be revoked, so the system cannot lock itself out.
func (e *Engine) RevokeSuperuser(ctx context.Context, actor, userID string) error {
	if err := authz.RequireSuperuser(ctx, e.store, actor); err != nil {
		return e.denyAndAudit(ctx, err, actor, types.AuditSuperuserRevoked, "user", userID)
	}
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsSuperuser && user.IsActive {
			count, err := tx.CountActiveSuperusers(ctx)
			if err != nil {
				return err
			}
			if count <= 1 {
				return types.NewDomainError(types.CodeLastSuperuserProtected,
					fmt.Sprintf("%s is the last active superuser", user.Username))
			}
		}
		if err := tx.SetSuperuser(ctx, userID, false); err != nil {
			return err
		}
		return tx.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor:             actor,
			Action:            types.AuditSuperuserRevoked,
			TargetKind:        "user",
			TargetID:          userID,
			TargetDisplayName: user.Username,
			Description:       fmt.Sprintf("superuser revoked from %s", user.Username),
		})
	})
	if err != nil {
		return e.denyAndAudit(ctx, err, actor, types.AuditSuperuserRevoked, "user", userID)
	}
	return nil
}

// GrantRole adds a role to a user and records it in the audit trail.
func (e *Engine) GrantRole(ctx context.Context, actor, userID, role string) error {
	if err := authz.Require(ctx, e.store, actor, authz.CapAdmin); err != nil {
		return e.denyAndAudit(ctx, err, actor, types.AuditRoleGranted, "user", userID)
	}
	if err := e.store.GrantRole(ctx, userID, role); err != nil {
		return err
	}
	return e.store.AppendAuditEntry(ctx, &types.AuditEntry{
		Actor:       actor,
		Action:      types.AuditRoleGranted,
		TargetKind:  "user",
		TargetID:    userID,
		Description: fmt.Sprintf("role %s granted", role),
		OccurredAt:  e.now(),
	})
}

// RevokeRole removes a role from a user and records it in the audit trail.
func (e *Engine) RevokeRole(ctx context.Context, actor, userID, role string) error {
	if err := authz.Require(ctx, e.store, actor, authz.CapAdmin); err != nil {
		return e.denyAndAudit(ctx, err, actor, types.AuditRoleRevoked, "user", userID)
	}
	if err := e.store.RevokeRole(ctx, userID, role); err != nil {
		return err
	}
	return e.store.AppendAuditEntry(ctx, &types.AuditEntry{
		Actor:       actor,
		Action:      types.AuditRoleRevoked,
		TargetKind:  "user",
		TargetID:    userID,
		Description: fmt.Sprintf("role %s revoked", role),
		OccurredAt:  e.now(),
	})
}
