// Package authz resolves actors to capabilities and enforces permission
// checks for the lifecycle engine.
package authz

import (
	"context"

	"github.com/doctrack/doctrack/internal/types"
)

// Capability names. Roles map to capability sets in the role_capabilities
// table; superuser implies all of them.
const (
	CapRead    = "read"
	CapWrite   = "write"
	CapReview  = "review"
	CapApprove = "approve"
	CapAdmin   = "admin"
)

// Provider is the subset of storage the permission checks need. Both the
// Storage interface and an open Transaction satisfy it.
type Provider interface {
	GetUser(ctx context.Context, id string) (*types.User, error)
	UserCapabilities(ctx context.Context, userID string) ([]string, error)
}

// Has reports whether the user holds the capability. Inactive users hold
// nothing; the system actor holds everything.
func Has(ctx context.Context, p Provider, userID, capability string) (bool, error) {
	if userID == types.SystemActor {
		return true, nil
	}
	caps, err := p.UserCapabilities(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range caps {
		if c == capability {
			return true, nil
		}
	}
	return false, nil
}

// Require fails with PERMISSION_DENIED unless the user holds the capability.
func Require(ctx context.Context, p Provider, userID, capability string) error {
	ok, err := Has(ctx, p, userID, capability)
	if err != nil {
		return err
	}
	if !ok {
		return types.PermissionDenied(capability + " capability")
	}
	return nil
}

// IsSuperuser reports whether the user is an active superuser. The system
// actor counts as one so scheduler-driven transitions never hit permission
// walls.
func IsSuperuser(ctx context.Context, p Provider, userID string) (bool, error) {
	if userID == types.SystemActor {
		return true, nil
	}
	u, err := p.GetUser(ctx, userID)
	if err != nil {
		if types.IsCode(err, types.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.IsActive && u.IsSuperuser, nil
}

// RequireSuperuser fails with PERMISSION_DENIED unless the user is an active
// superuser.
func RequireSuperuser(ctx context.Context, p Provider, userID string) error {
	ok, err := IsSuperuser(ctx, p, userID)
	if err != nil {
		return err
	}
	if !ok {
		return types.PermissionDenied("superuser")
	}
	return nil
}
