package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auth-session-control/internal/rbac/domain"
)

// storeTimeout bounds every store call so no operation blocks indefinitely.
const storeTimeout = 5 * time.Second

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an RBAC repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// RoleNamesByUser returns the names of all roles assigned to the user.
func (r *PostgresRepository) RoleNamesByUser(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.name
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("role names: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// PermissionKeysByUser returns the union of permission keys across all of the
// user's roles. DISTINCT collapses keys granted through multiple roles.
func (r *PostgresRepository) PermissionKeysByUser(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT p.key
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 JOIN user_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("permission keys: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// GetRoleByName returns the role with the given unique name, or nil if not found.
func (r *PostgresRepository) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	var role domain.Role
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// GetPermissionByKey returns the permission with the given unique key, or nil if not found.
func (r *PostgresRepository) GetPermissionByKey(ctx context.Context, key string) (*domain.Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	var p domain.Permission
	err := r.db.QueryRowContext(ctx,
		`SELECT id, key, description, created_at FROM permissions WHERE key = $1`, key).
		Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// CreateRole persists the role. The role must have ID set.
func (r *PostgresRepository) CreateRole(ctx context.Context, role *domain.Role) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		role.ID, role.Name, role.Description, role.CreatedAt)
	if err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// CreatePermission persists the permission. The permission must have ID set.
func (r *PostgresRepository) CreatePermission(ctx context.Context, p *domain.Permission) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (id, key, description, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Key, p.Description, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// GrantPermissionToRole links a permission to a role. Idempotent on the unique
// (role_id, permission_id) pair.
func (r *PostgresRepository) GrantPermissionToRole(ctx context.Context, roleID, permissionID string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id, created_at)
		 VALUES ($1, $2, $3) ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	return nil
}

// AssignRoleToUser links a role to a user. Idempotent on the unique
// (user_id, role_id) pair.
func (r *PostgresRepository) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, created_at)
		 VALUES ($1, $2, $3) ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, roleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// RemoveRoleFromUser unlinks a role from a user. No-op if not assigned.
func (r *PostgresRepository) RemoveRoleFromUser(ctx context.Context, userID, roleID string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID)
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	return nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
