// Package service implements role and permission administration: creating
// roles and permissions, granting permissions to roles, and assigning or
// removing roles for users.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"auth-session-control/internal/audit"
	"auth-session-control/internal/rbac/domain"
	"auth-session-control/internal/rbac/repository"
)

var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrRoleNameTaken      = errors.New("role name already exists")
	ErrPermissionKeyTaken = errors.New("permission key already exists")
)

// AdminService manages the role/permission data the resolver reads. All
// operations are keyed by role name and permission key, the identifiers
// administrators actually know.
type AdminService struct {
	repo     repository.Repository
	auditLog audit.AuditLogger
}

// NewAdminService returns an AdminService. auditLog may be nil.
func NewAdminService(repo repository.Repository, auditLog audit.AuditLogger) *AdminService {
	return &AdminService{repo: repo, auditLog: auditLog}
}

// CreateRole creates a role with a unique name.
func (s *AdminService) CreateRole(ctx context.Context, name, description string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("role name is required")
	}
	existing, err := s.repo.GetRoleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrRoleNameTaken
	}
	role := &domain.Role{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	s.logAccess(ctx, "create", "role", fmt.Sprintf(`{"role":%q}`, name))
	return role, nil
}

// CreatePermission creates a permission with a unique key.
func (s *AdminService) CreatePermission(ctx context.Context, key, description string) (*domain.Permission, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("permission key is required")
	}
	existing, err := s.repo.GetPermissionByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPermissionKeyTaken
	}
	perm := &domain.Permission{
		ID:          uuid.New().String(),
		Key:         key,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreatePermission(ctx, perm); err != nil {
		return nil, err
	}
	s.logAccess(ctx, "create", "permission", fmt.Sprintf(`{"permission":%q}`, key))
	return perm, nil
}

// GrantPermission links a permission to a role. Idempotent on the pair.
func (s *AdminService) GrantPermission(ctx context.Context, roleName, permissionKey string) error {
	role, err := s.roleByName(ctx, roleName)
	if err != nil {
		return err
	}
	perm, err := s.repo.GetPermissionByKey(ctx, permissionKey)
	if err != nil {
		return err
	}
	if perm == nil {
		return ErrPermissionNotFound
	}
	if err := s.repo.GrantPermissionToRole(ctx, role.ID, perm.ID); err != nil {
		return err
	}
	s.logAccess(ctx, "grant", "role", fmt.Sprintf(`{"role":%q,"permission":%q}`, role.Name, perm.Key))
	return nil
}

// AssignRole gives the user a role. Idempotent on the pair; takes effect on
// the user's next authorization check, no token reissue needed.
func (s *AdminService) AssignRole(ctx context.Context, userID, roleName string) error {
	role, err := s.roleByName(ctx, roleName)
	if err != nil {
		return err
	}
	if err := s.repo.AssignRoleToUser(ctx, userID, role.ID); err != nil {
		return err
	}
	s.logAccess(ctx, "assign", "role", fmt.Sprintf(`{"role":%q,"user":%q}`, role.Name, userID))
	return nil
}

// RemoveRole takes a role away from the user; the permissions it granted
// drop out of the user's effective set on the next check.
func (s *AdminService) RemoveRole(ctx context.Context, userID, roleName string) error {
	role, err := s.roleByName(ctx, roleName)
	if err != nil {
		return err
	}
	if err := s.repo.RemoveRoleFromUser(ctx, userID, role.ID); err != nil {
		return err
	}
	s.logAccess(ctx, "remove", "role", fmt.Sprintf(`{"role":%q,"user":%q}`, role.Name, userID))
	return nil
}

func (s *AdminService) roleByName(ctx context.Context, name string) (*domain.Role, error) {
	role, err := s.repo.GetRoleByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

func (s *AdminService) logAccess(ctx context.Context, action, resource, metadata string) {
	if s.auditLog == nil {
		return
	}
	s.auditLog.LogEvent(ctx, "", "", action, resource, metadata)
}
