package repository

import (
	"context"

	"auth-session-control/internal/rbac/domain"
)

// Repository defines persistence for roles, permissions, and their joins.
// Role/permission data is administratively managed and read-mostly; the hot
// paths are the two per-user lookups.
type Repository interface {
	// RoleNamesByUser returns the names of all roles assigned to the user.
	RoleNamesByUser(ctx context.Context, userID string) ([]string, error)
	// PermissionKeysByUser returns the deduplicated union of permission keys
	// across all of the user's roles.
	PermissionKeysByUser(ctx context.Context, userID string) ([]string, error)

	GetRoleByName(ctx context.Context, name string) (*domain.Role, error)
	GetPermissionByKey(ctx context.Context, key string) (*domain.Permission, error)
	CreateRole(ctx context.Context, r *domain.Role) error
	CreatePermission(ctx context.Context, p *domain.Permission) error
	// GrantPermissionToRole links a permission to a role; idempotent on the unique pair.
	GrantPermissionToRole(ctx context.Context, roleID, permissionID string) error
	// AssignRoleToUser links a role to a user; idempotent on the unique pair.
	AssignRoleToUser(ctx context.Context, userID, roleID string) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID string) error
}
