package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	resetdomain "auth-session-control/internal/passwordreset/domain"
	"auth-session-control/internal/rbac"
	rbacdomain "auth-session-control/internal/rbac/domain"
	"auth-session-control/internal/security"
	sessiondomain "auth-session-control/internal/session/domain"
	userdomain "auth-session-control/internal/user/domain"
)

// memUserRepo implements UserRepo in memory for tests.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*userdomain.User)}
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserRepo) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return errors.New("user not found")
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// memSessionRepo implements SessionRepo in memory for tests. RevokeIfActive is
// guarded by the mutex so concurrent rotations see exactly one winner, the
// same contract the SQL conditional update provides.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*sessiondomain.Session)}
}

func (m *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) ListByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	s.RevokedAt = &now
	return nil
}

func (m *memSessionRepo) RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &at
	s.LastUsedAt = &at
	return true, nil
}

func (m *memSessionRepo) RevokeAllByUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			at := now
			s.RevokedAt = &at
		}
	}
	return nil
}

func (m *memSessionRepo) SetReplacedBy(ctx context.Context, id, replacedByID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return errors.New("session not found")
	}
	s.ReplacedByID = replacedByID
	return nil
}

func (m *memSessionRepo) activeCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active(now) {
			n++
		}
	}
	return n
}

func (m *memSessionRepo) setExpiresAt(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ExpiresAt = at
	}
}

// memResetRepo implements ResetRepo in memory for tests.
type memResetRepo struct {
	mu     sync.Mutex
	tokens map[string]*resetdomain.ResetToken
}

func newMemResetRepo() *memResetRepo {
	return &memResetRepo{tokens: make(map[string]*resetdomain.ResetToken)}
}

func (m *memResetRepo) Create(ctx context.Context, t *resetdomain.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memResetRepo) GetByToken(ctx context.Context, token string) (*resetdomain.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memResetRepo) MarkUsedIfUnused(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.UsedAt != nil {
		return false, nil
	}
	t.UsedAt = &at
	return true, nil
}

func (m *memResetRepo) setExpiresAt(token string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == token {
			t.ExpiresAt = at
		}
	}
}

// memRBACRepo implements RoleRepo and the resolver's Reader in memory.
type memRBACRepo struct {
	mu        sync.Mutex
	roles     map[string]*rbacdomain.Role // by name
	userRoles map[string][]string         // userID -> role names
	rolePerms map[string][]string         // role name -> permission keys
}

func newMemRBACRepo() *memRBACRepo {
	return &memRBACRepo{
		roles:     make(map[string]*rbacdomain.Role),
		userRoles: make(map[string][]string),
		rolePerms: make(map[string][]string),
	}
}

func (m *memRBACRepo) addRole(name string, perms ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[name] = &rbacdomain.Role{ID: "role-" + name, Name: name}
	m.rolePerms[name] = perms
}

func (m *memRBACRepo) GetRoleByName(ctx context.Context, name string) (*rbacdomain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[name]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRBACRepo) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, r := range m.roles {
		if r.ID == roleID {
			m.userRoles[userID] = append(m.userRoles[userID], name)
			return nil
		}
	}
	return errors.New("role not found")
}

func (m *memRBACRepo) RoleNamesByUser(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.userRoles[userID]...), nil
}

func (m *memRBACRepo) PermissionKeysByUser(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, roleName := range m.userRoles[userID] {
		for _, key := range m.rolePerms[roleName] {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out, nil
}

// recordingAudit captures audit actions for assertions.
type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) LogEvent(ctx context.Context, userID, sessionID, action, resource, metadata string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func (r *recordingAudit) has(action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actions {
		if a == action {
			return true
		}
	}
	return false
}

type testEnv struct {
	svc      *AuthService
	users    *memUserRepo
	sessions *memSessionRepo
	resets   *memResetRepo
	rbacRepo *memRBACRepo
	audit    *recordingAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	resets := newMemResetRepo()
	rbacRepo := newMemRBACRepo()
	rbacRepo.addRole(DefaultRoleName, "self.read")
	auditLog := &recordingAudit{}
	hasher := security.NewHasher(4)
	tokens := security.NewTestTokenProvider(15*time.Minute, 7*24*time.Hour)
	svc := NewAuthService(
		users, sessions, resets, rbacRepo,
		rbac.NewResolver(rbacRepo),
		hasher, tokens, nil, auditLog,
		7*24*time.Hour, 30*time.Minute,
	)
	return &testEnv{svc: svc, users: users, sessions: sessions, resets: resets, rbacRepo: rbacRepo, audit: auditLog}
}

func (e *testEnv) register(t *testing.T, email, password string) string {
	t.Helper()
	res, err := e.svc.Register(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Register(%q): %v", email, err)
	}
	return res.UserID
}

func (e *testEnv) login(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := e.svc.Login(context.Background(), email, password, "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Login(%q): %v", email, err)
	}
	return res
}

func TestRegister_AssignsDefaultRole(t *testing.T) {
	env := newTestEnv(t)
	userID := env.register(t, "alice@example.com", "password123")

	roles, err := env.rbacRepo.RoleNamesByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("RoleNamesByUser: %v", err)
	}
	if len(roles) != 1 || roles[0] != DefaultRoleName {
		t.Errorf("roles = %v, want [%s]", roles, DefaultRoleName)
	}
	if !env.audit.has("register") {
		t.Error("register action should be audited")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")

	_, err := env.svc.Register(context.Background(), "alice@example.com", "password456")
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Errorf("err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestRegister_NormalizesEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "  Alice@Example.COM ", "password123")

	_, err := env.svc.Register(context.Background(), "alice@example.com", "password456")
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Errorf("err = %v, want ErrEmailAlreadyRegistered for normalized duplicate", err)
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(context.Background(), "alice@example.com", "short")
	if !errors.Is(err, ErrWeakPassword) {
		t.Errorf("err = %v, want ErrWeakPassword", err)
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(context.Background(), "not-an-email", "password123")
	if err == nil {
		t.Fatal("expected error for invalid email")
	}
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	userID := env.register(t, "alice@example.com", "password123")
	res := env.login(t, "alice@example.com", "password123")

	if res.UserID != userID {
		t.Errorf("UserID = %q, want %q", res.UserID, userID)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Error("tokens should be issued")
	}
	if res.AccessToken == res.RefreshToken {
		t.Error("access and refresh tokens must differ")
	}
	sess, err := env.sessions.GetByID(context.Background(), res.SessionID)
	if err != nil || sess == nil {
		t.Fatalf("session not created: %v", err)
	}
	if !sess.Active(time.Now().UTC()) {
		t.Error("new session should be active")
	}
	if sess.IP != "127.0.0.1" || sess.UserAgent != "test-agent" {
		t.Errorf("session metadata = %q/%q, want 127.0.0.1/test-agent", sess.IP, sess.UserAgent)
	}
	if sess.HashedRefreshToken != security.HashRefreshToken(res.RefreshToken) {
		t.Error("session must store the hash of the issued refresh token")
	}
	if !env.audit.has("login") {
		t.Error("login action should be audited")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")

	_, err := env.svc.Login(context.Background(), "alice@example.com", "wrongpass1", "", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
	if !env.audit.has("login_failure") {
		t.Error("login failure should be audited")
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Login(context.Background(), "ghost@example.com", "password123", "", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefresh_RotatesSession(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	first := env.login(t, "alice@example.com", "password123")

	rotated, err := env.svc.Refresh(context.Background(), first.RefreshToken, "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.SessionID == first.SessionID {
		t.Error("rotation must create a new session")
	}
	if rotated.RefreshToken == first.RefreshToken {
		t.Error("rotation must issue a new refresh token")
	}

	old, _ := env.sessions.GetByID(context.Background(), first.SessionID)
	if old.RevokedAt == nil {
		t.Error("rotated-out session must be revoked")
	}
	if old.ReplacedByID != rotated.SessionID {
		t.Errorf("ReplacedByID = %q, want %q", old.ReplacedByID, rotated.SessionID)
	}
	if old.LastUsedAt == nil {
		t.Error("rotation must stamp LastUsedAt on the old session")
	}

	fresh, _ := env.sessions.GetByID(context.Background(), rotated.SessionID)
	if fresh == nil || !fresh.Active(time.Now().UTC()) {
		t.Error("successor session should be active")
	}
}

func TestRefresh_OldTokenInvalidAfterRotation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	first := env.login(t, "alice@example.com", "password123")

	rotated, err := env.svc.Refresh(context.Background(), first.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replaying the rotated-out token is reuse: the whole user gets revoked.
	_, err = env.svc.Refresh(context.Background(), first.RefreshToken, "", "")
	if !errors.Is(err, ErrRefreshTokenReuse) {
		t.Fatalf("err = %v, want ErrRefreshTokenReuse", err)
	}
	if env.sessions.activeCount(first.UserID) != 0 {
		t.Error("reuse detection must revoke every session of the user")
	}

	// The successor dies with the family, but presenting its token is not
	// itself replay: the session is revoked without having been rotated out.
	_, err = env.svc.Refresh(context.Background(), rotated.RefreshToken, "", "")
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("err = %v, want ErrInvalidRefreshToken for revoked successor", err)
	}
	if !env.audit.has("reuse_detected") {
		t.Error("reuse should be audited")
	}
}

func TestRefresh_ReuseRevokesOtherDevices(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	laptop := env.login(t, "alice@example.com", "password123")
	phone := env.login(t, "alice@example.com", "password123")

	if _, err := env.svc.Refresh(context.Background(), laptop.RefreshToken, "", ""); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := env.svc.Refresh(context.Background(), laptop.RefreshToken, "", ""); !errors.Is(err, ErrRefreshTokenReuse) {
		t.Fatalf("err = %v, want ErrRefreshTokenReuse", err)
	}

	// The phone session was never replayed, but it is revoked too; its token
	// now fails the ordinary way, not as a second reuse incident.
	_, err := env.svc.Refresh(context.Background(), phone.RefreshToken, "", "")
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("err = %v, want ErrInvalidRefreshToken for sibling session", err)
	}
	if env.sessions.activeCount(laptop.UserID) != 0 {
		t.Error("all sessions of the user must be revoked")
	}
}

func TestRefresh_AfterLogoutFailsWithoutSweep(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	laptop := env.login(t, "alice@example.com", "password123")
	phone := env.login(t, "alice@example.com", "password123")

	if err := env.svc.Logout(context.Background(), laptop.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// A client retrying refresh after its own logout holds a token for a
	// session that was never rotated out; that is not replay.
	_, err := env.svc.Refresh(context.Background(), laptop.RefreshToken, "", "")
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("err = %v, want ErrInvalidRefreshToken", err)
	}
	if env.sessions.activeCount(laptop.UserID) != 1 {
		t.Errorf("activeCount = %d, want 1; the phone session must survive", env.sessions.activeCount(laptop.UserID))
	}
	if _, err := env.svc.Refresh(context.Background(), phone.RefreshToken, "", ""); err != nil {
		t.Errorf("phone refresh after laptop logout: %v", err)
	}
	if env.audit.has("reuse_detected") {
		t.Error("a dead but unrotated token must not be audited as reuse")
	}
}

func TestRefresh_GarbageToken(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Refresh(context.Background(), "not-a-jwt", "", "")
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefresh_ExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	res := env.login(t, "alice@example.com", "password123")
	env.sessions.setExpiresAt(res.SessionID, time.Now().UTC().Add(-time.Minute))

	_, err := env.svc.Refresh(context.Background(), res.RefreshToken, "", "")
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("err = %v, want ErrInvalidRefreshToken for expired session", err)
	}
	if env.sessions.activeCount(res.UserID) != 0 {
		// Only the expired session existed; nothing else should be created.
		t.Error("expired refresh must not create a session")
	}
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	res := env.login(t, "alice@example.com", "password123")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Refresh(context.Background(), res.RefreshToken, "", "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrRefreshTokenReuse) && !errors.Is(err, ErrInvalidRefreshToken) {
			// Losers that observe the revoke before the successor link is
			// written see a plainly dead session rather than proven replay.
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins > 1 {
		t.Errorf("wins = %d, want at most 1", wins)
	}
}

func TestLogout_RevokesSession(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	res := env.login(t, "alice@example.com", "password123")

	if err := env.svc.Logout(context.Background(), res.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	sess, _ := env.sessions.GetByID(context.Background(), res.SessionID)
	if sess.RevokedAt == nil {
		t.Error("logout must revoke the session")
	}
	if _, err := env.svc.Refresh(context.Background(), res.RefreshToken, "", ""); err == nil {
		t.Error("refresh must fail after logout")
	}
}

func TestLogout_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	res := env.login(t, "alice@example.com", "password123")

	if err := env.svc.Logout(context.Background(), res.RefreshToken); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	if err := env.svc.Logout(context.Background(), res.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := env.svc.Logout(context.Background(), "garbage"); err != nil {
		t.Fatalf("Logout with garbage token: %v", err)
	}
	if err := env.svc.Logout(context.Background(), ""); err != nil {
		t.Fatalf("Logout with empty token: %v", err)
	}
}

func TestLogoutAll_RevokesEverySession(t *testing.T) {
	env := newTestEnv(t)
	userID := env.register(t, "alice@example.com", "password123")
	env.login(t, "alice@example.com", "password123")
	env.login(t, "alice@example.com", "password123")

	if err := env.svc.LogoutAll(context.Background(), userID); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if env.sessions.activeCount(userID) != 0 {
		t.Error("all sessions should be revoked")
	}
	if !env.audit.has("logout_all") {
		t.Error("logout_all should be audited")
	}
}

func TestChangePassword_RevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	userID := env.register(t, "alice@example.com", "password123")
	res := env.login(t, "alice@example.com", "password123")

	err := env.svc.ChangePassword(context.Background(), userID, "password123", "newpassword1")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if env.sessions.activeCount(userID) != 0 {
		t.Error("password change must revoke all sessions")
	}
	if _, err := env.svc.Refresh(context.Background(), res.RefreshToken, "", ""); err == nil {
		t.Error("old refresh token must not survive a password change")
	}
	if _, err := env.svc.Login(context.Background(), "alice@example.com", "password123", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Error("old password must stop working")
	}
	env.login(t, "alice@example.com", "newpassword1")
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	userID := env.register(t, "alice@example.com", "password123")

	err := env.svc.ChangePassword(context.Background(), userID, "wrongpass1", "newpassword1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestForgotPassword_UnknownEmailIsNeutral(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.svc.ForgotPassword(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if token != "" {
		t.Error("no token should be issued for an unknown email")
	}
}

func TestResetPassword_Flow(t *testing.T) {
	env := newTestEnv(t)
	userID := env.register(t, "alice@example.com", "password123")
	res := env.login(t, "alice@example.com", "password123")

	token, err := env.svc.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token")
	}

	if err := env.svc.ResetPassword(context.Background(), token, "resetpass123"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if env.sessions.activeCount(userID) != 0 {
		t.Error("reset must revoke all sessions")
	}
	if _, err := env.svc.Refresh(context.Background(), res.RefreshToken, "", ""); err == nil {
		t.Error("old refresh token must not survive a reset")
	}
	env.login(t, "alice@example.com", "resetpass123")

	// The token is single-use.
	if err := env.svc.ResetPassword(context.Background(), token, "anotherpass1"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("err = %v, want ErrInvalidResetToken on second use", err)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	token, err := env.svc.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	env.resets.setExpiresAt(token, time.Now().UTC().Add(-time.Minute))

	if err := env.svc.ResetPassword(context.Background(), token, "resetpass123"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("err = %v, want ErrInvalidResetToken", err)
	}
}

func TestResetPassword_UnknownToken(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.ResetPassword(context.Background(), "no-such-token", "resetpass123"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("err = %v, want ErrInvalidResetToken", err)
	}
}

func TestIntrospect_ActiveToken(t *testing.T) {
	env := newTestEnv(t)
	userID := env.register(t, "alice@example.com", "password123")
	res := env.login(t, "alice@example.com", "password123")

	info, err := env.svc.Introspect(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if !info.Active {
		t.Fatal("token should be active")
	}
	if info.UserID != userID || info.SessionID != res.SessionID {
		t.Errorf("identity = %s/%s, want %s/%s", info.UserID, info.SessionID, userID, res.SessionID)
	}
	if len(info.Roles) != 1 || info.Roles[0] != DefaultRoleName {
		t.Errorf("roles = %v, want [%s]", info.Roles, DefaultRoleName)
	}
	if len(info.Permissions) != 1 || info.Permissions[0] != "self.read" {
		t.Errorf("permissions = %v, want [self.read]", info.Permissions)
	}
}

func TestIntrospect_InactiveAfterLogout(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	res := env.login(t, "alice@example.com", "password123")

	if err := env.svc.Logout(context.Background(), res.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	info, err := env.svc.Introspect(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if info.Active {
		t.Error("token bound to a revoked session must be inactive")
	}
}

func TestIntrospect_GarbageToken(t *testing.T) {
	env := newTestEnv(t)
	info, err := env.svc.Introspect(context.Background(), "garbage")
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if info.Active {
		t.Error("garbage token must be inactive")
	}
}
