// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"auth-session-control/internal/config"
	"auth-session-control/internal/db"
	rbacdomain "auth-session-control/internal/rbac/domain"
	rbacrepo "auth-session-control/internal/rbac/repository"
	"auth-session-control/internal/security"
	userdomain "auth-session-control/internal/user/domain"
	userrepo "auth-session-control/internal/user/repository"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password123"

	adminRoleName = "ADMIN"
	userRoleName  = "USER"
)

// Permission keys granted to the seeded roles. ADMIN gets all of them; USER
// gets the self-service subset.
var (
	allPermissions = map[string]string{
		"users.read":    "Read user accounts",
		"users.write":   "Create and modify user accounts",
		"sessions.read": "List sessions of any user",
		"roles.manage":  "Manage roles and permissions",
		"self.read":     "Read own account",
	}
	adminPermissions = []string{"users.read", "users.write", "sessions.read", "roles.manage", "self.read"}
	userPermissions  = []string{"self.read"}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)
	rbac := rbacrepo.NewPostgresRepository(conn)

	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	now := time.Now().UTC()

	permIDs := make(map[string]string, len(allPermissions))
	for key, description := range allPermissions {
		p, err := rbac.GetPermissionByKey(ctx, key)
		if err != nil {
			log.Fatalf("get permission %s: %v", key, err)
		}
		if p == nil {
			p = &rbacdomain.Permission{
				ID:          uuid.New().String(),
				Key:         key,
				Description: description,
				CreatedAt:   now,
			}
			if err := rbac.CreatePermission(ctx, p); err != nil {
				log.Fatalf("create permission %s: %v", key, err)
			}
		}
		permIDs[key] = p.ID
	}

	adminRoleID := ensureRole(ctx, rbac, adminRoleName, "Full administrative access", now)
	userRoleID := ensureRole(ctx, rbac, userRoleName, "Default role for registered users", now)

	for _, key := range adminPermissions {
		if err := rbac.GrantPermissionToRole(ctx, adminRoleID, permIDs[key]); err != nil {
			log.Fatalf("grant %s to ADMIN: %v", key, err)
		}
	}
	for _, key := range userPermissions {
		if err := rbac.GrantPermissionToRole(ctx, userRoleID, permIDs[key]); err != nil {
			log.Fatalf("grant %s to USER: %v", key, err)
		}
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	devUser := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        devUserEmail,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, devUser); err != nil {
		log.Fatalf("create dev user: %v", err)
	}
	if err := rbac.AssignRoleToUser(ctx, devUser.ID, adminRoleID); err != nil {
		log.Fatalf("assign ADMIN to dev user: %v", err)
	}

	log.Printf("Seed applied: roles %s/%s, %d permissions, dev user %s", adminRoleName, userRoleName, len(allPermissions), devUserEmail)
}

func ensureRole(ctx context.Context, rbac rbacrepo.Repository, name, description string, now time.Time) string {
	r, err := rbac.GetRoleByName(ctx, name)
	if err != nil {
		log.Fatalf("get role %s: %v", name, err)
	}
	if r != nil {
		return r.ID
	}
	role := &rbacdomain.Role{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
	}
	if err := rbac.CreateRole(ctx, role); err != nil {
		log.Fatalf("create role %s: %v", name, err)
	}
	return role.ID
}
