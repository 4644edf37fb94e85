// Package rbac computes a user's effective role/permission set and evaluates
// access decisions against required role and permission sets.
package rbac

import (
	"context"

	"auth-session-control/internal/rbac/domain"
)

// Reader is the minimal repository surface the resolver needs.
type Reader interface {
	RoleNamesByUser(ctx context.Context, userID string) ([]string, error)
	PermissionKeysByUser(ctx context.Context, userID string) ([]string, error)
}

// Resolver evaluates access decisions from externally-managed role/permission
// data. It holds no state beyond the repository and is safe for concurrent use.
type Resolver struct {
	repo Reader
}

// NewResolver returns a Resolver reading role/permission data from repo.
func NewResolver(repo Reader) *Resolver {
	return &Resolver{repo: repo}
}

// RoleNames returns the set of role names assigned to the user.
func (r *Resolver) RoleNames(ctx context.Context, userID string) (map[string]struct{}, error) {
	names, err := r.repo.RoleNamesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toSet(names), nil
}

// EffectivePermissions returns the union of permission keys granted by all of
// the user's roles. A key granted through two roles appears once; a user with
// zero roles gets the empty set.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string) (map[string]struct{}, error) {
	keys, err := r.repo.PermissionKeysByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toSet(keys), nil
}

// Authorize evaluates whether the user may pass a gate requiring any of
// requiredRoles and all of requiredPermissions.
//
// The checks run in a fixed order: empty requirements always allow; a missing
// subject denies Unauthenticated; a subject with zero roles denies
// NoRolesAssigned regardless of what was required; the role check is any-of,
// the permission check is all-of. A store failure is returned as an error,
// never converted into a decision.
func (r *Resolver) Authorize(ctx context.Context, userID string, requiredRoles, requiredPermissions []string) (domain.Decision, error) {
	if len(requiredRoles) == 0 && len(requiredPermissions) == 0 {
		return domain.Allow(), nil
	}
	if userID == "" {
		return domain.Deny(domain.DenyUnauthenticated), nil
	}

	roles, err := r.RoleNames(ctx, userID)
	if err != nil {
		return domain.Decision{}, err
	}
	if len(roles) == 0 {
		return domain.Deny(domain.DenyNoRolesAssigned), nil
	}

	if len(requiredRoles) > 0 {
		anyRole := false
		for _, name := range requiredRoles {
			if _, ok := roles[name]; ok {
				anyRole = true
				break
			}
		}
		if !anyRole {
			return domain.Deny(domain.DenyMissingRole), nil
		}
	}

	if len(requiredPermissions) > 0 {
		perms, err := r.EffectivePermissions(ctx, userID)
		if err != nil {
			return domain.Decision{}, err
		}
		for _, key := range requiredPermissions {
			if _, ok := perms[key]; !ok {
				return domain.Deny(domain.DenyMissingPermission), nil
			}
		}
	}

	return domain.Allow(), nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
