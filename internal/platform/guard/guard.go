// Package guard gates protected operations on the caller's identity and the
// role/permission requirements of the operation.
package guard

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"auth-session-control/internal/rbac"
	"auth-session-control/internal/rbac/domain"
	"auth-session-control/internal/server/interceptors"
)

// AccessGuard evaluates role/permission requirements for the identity the
// auth interceptor placed in context, and maps deny decisions to gRPC errors.
type AccessGuard struct {
	resolver *rbac.Resolver
}

// New returns an AccessGuard backed by the given resolver.
func New(resolver *rbac.Resolver) *AccessGuard {
	return &AccessGuard{resolver: resolver}
}

// Require ensures the caller satisfies the gate: any of requiredRoles and all
// of requiredPermissions. Empty requirements always pass. Returns the caller's
// user id on success; returns a gRPC error (Unauthenticated, PermissionDenied,
// or Internal for a store failure) otherwise.
func (g *AccessGuard) Require(ctx context.Context, requiredRoles, requiredPermissions []string) (string, error) {
	userID, _ := interceptors.GetUserID(ctx)
	decision, err := g.resolver.Authorize(ctx, userID, requiredRoles, requiredPermissions)
	if err != nil {
		return "", status.Error(codes.Internal, "failed to resolve access")
	}
	if decision.Allowed {
		return userID, nil
	}
	switch decision.Reason {
	case domain.DenyUnauthenticated:
		return "", status.Error(codes.Unauthenticated, "authentication required")
	case domain.DenyNoRolesAssigned:
		return "", status.Error(codes.PermissionDenied, "no roles assigned")
	case domain.DenyMissingRole:
		return "", status.Error(codes.PermissionDenied, "required role missing")
	case domain.DenyMissingPermission:
		return "", status.Error(codes.PermissionDenied, "required permission missing")
	default:
		return "", status.Error(codes.PermissionDenied, "access denied")
	}
}

// RequireRole is shorthand for a gate with a single any-of role requirement.
func (g *AccessGuard) RequireRole(ctx context.Context, roles ...string) (string, error) {
	return g.Require(ctx, roles, nil)
}

// RequirePermissions is shorthand for a gate with an all-of permission requirement.
func (g *AccessGuard) RequirePermissions(ctx context.Context, permissions ...string) (string, error) {
	return g.Require(ctx, nil, permissions)
}
