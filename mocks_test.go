package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	auth "github.com/goliatone/go-userflow"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// memUsers is an in-memory auth.Users used across handler tests.
type memUsers struct {
	mu      sync.Mutex
	byID    map[string]*auth.User
	byEmail map[string]string
}

func newMemUsers(seed ...*auth.User) *memUsers {
	s := &memUsers{
		byID:    map[string]*auth.User{},
		byEmail: map[string]string{},
	}
	for _, u := range seed {
		s.put(u)
	}
	return s
}

func (s *memUsers) put(u *auth.User) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	s.byID[u.ID.String()] = &cp
	s.byEmail[auth.NormalizeEmail(u.Email)] = u.ID.String()
}

func (s *memUsers) get(id string) (*auth.User, bool) {
	u, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func notFound() error {
	return repository.NewRecordNotFound()
}

func (s *memUsers) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, notFound()
	}
	u, _ := s.get(id)
	return u, nil
}

func (s *memUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*auth.User, error) {
	return s.GetByEmail(ctx, email)
}

func (s *memUsers) GetByID(ctx context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(id)
	if !ok {
		return nil, notFound()
	}
	return u, nil
}

func (s *memUsers) GetByIDTx(ctx context.Context, tx bun.IDB, id string) (*auth.User, error) {
	return s.GetByID(ctx, id)
}

func (s *memUsers) Create(ctx context.Context, record *auth.User) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[auth.NormalizeEmail(record.Email)]; taken {
		return nil, auth.ErrEmailConflict
	}
	s.put(record)
	u, _ := s.get(record.ID.String())
	return u, nil
}

func (s *memUsers) CreateTx(ctx context.Context, tx bun.IDB, record *auth.User) (*auth.User, error) {
	return s.Create(ctx, record)
}

func (s *memUsers) MarkVerified(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id.String()]
	if !ok {
		return nil, notFound()
	}
	u.Verified = true
	cp := *u
	return &cp, nil
}

func (s *memUsers) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*auth.User, error) {
	return s.MarkVerified(ctx, id)
}

func (s *memUsers) SavePendingReset(ctx context.Context, id uuid.UUID, secretHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id.String()]
	if !ok {
		return notFound()
	}
	u.ResetSecretHash = &secretHash
	u.ResetExpiresAt = &expiresAt
	return nil
}

func (s *memUsers) SavePendingResetTx(ctx context.Context, tx bun.IDB, id uuid.UUID, secretHash string, expiresAt time.Time) error {
	return s.SavePendingReset(ctx, id, secretHash, expiresAt)
}

func (s *memUsers) ClearPendingReset(ctx context.Context, id uuid.UUID, secretHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id.String()]
	if !ok {
		return notFound()
	}
	// only the matching marker is cleared; a replaced one stays
	if u.ResetSecretHash == nil || *u.ResetSecretHash != secretHash {
		return nil
	}
	u.ResetSecretHash = nil
	u.ResetExpiresAt = nil
	return nil
}

func (s *memUsers) ClearPendingResetTx(ctx context.Context, tx bun.IDB, id uuid.UUID, secretHash string) error {
	return s.ClearPendingReset(ctx, id, secretHash)
}

func (s *memUsers) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id.String()]
	if !ok {
		return notFound()
	}
	u.PasswordHash = passwordHash
	u.ResetSecretHash = nil
	u.ResetExpiresAt = nil
	return nil
}

func (s *memUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return s.ResetPassword(ctx, id, passwordHash)
}

func (s *memUsers) UpdateRole(ctx context.Context, id uuid.UUID, role auth.UserRole) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id.String()]
	if !ok {
		return nil, notFound()
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

func (s *memUsers) UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role auth.UserRole) (*auth.User, error) {
	return s.UpdateRole(ctx, id, role)
}

func (s *memUsers) List(ctx context.Context) ([]*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.User, 0, len(s.byID))
	for id := range s.byID {
		u, _ := s.get(id)
		out = append(out, u)
	}
	return out, nil
}

func (s *memUsers) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id.String()]
	if !ok {
		return notFound()
	}
	delete(s.byEmail, auth.NormalizeEmail(u.Email))
	delete(s.byID, id.String())
	return nil
}

var _ auth.Users = (*memUsers)(nil)

// memRepoManager runs transaction bodies directly against memUsers.
type memRepoManager struct {
	users *memUsers
}

func newMemRepoManager(seed ...*auth.User) *memRepoManager {
	return &memRepoManager{users: newMemUsers(seed...)}
}

func (m *memRepoManager) Validate() error { return nil }
func (m *memRepoManager) MustValidate()  {}

func (m *memRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return f(ctx, bun.Tx{})
	}
}

func (m *memRepoManager) Users() auth.Users { return m.users }

var _ auth.RepositoryManager = (*memRepoManager)(nil)

// recordingNotifier captures delivered mail and can be told to fail.
type recordingNotifier struct {
	mu         sync.Mutex
	failNext   bool
	verifySent chan string
	resetSent  chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		verifySent: make(chan string, 4),
		resetSent:  make(chan string, 4),
	}
}

func (n *recordingNotifier) FailNext() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failNext = true
}

func (n *recordingNotifier) shouldFail() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	fail := n.failNext
	n.failNext = false
	return fail
}

func (n *recordingNotifier) SendVerificationEmail(ctx context.Context, email, link string) error {
	if n.shouldFail() {
		return auth.ErrDeliveryFailed
	}
	n.verifySent <- link
	return nil
}

func (n *recordingNotifier) SendPasswordResetEmail(ctx context.Context, email, link string) error {
	if n.shouldFail() {
		return auth.ErrDeliveryFailed
	}
	n.resetSent <- link
	return nil
}

var _ auth.Notifier = (*recordingNotifier)(nil)

// testConfig implements auth.Config with test friendly defaults.
type testConfig struct {
	signingKey   string
	sessionHours int
	verifyHours  int
	resetHours   int
	issuer       string
	audience     []string
	tokenLookup  string
	contextKey   string
	baseURL      string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:   "test-signing-key",
		sessionHours: 1,
		verifyHours:  24,
		resetHours:   1,
		issuer:       "userflow-test",
		tokenLookup:  "cookie:token,header:Authorization",
		contextKey:   "token",
		baseURL:      "http://localhost:3000",
	}
}

func (c *testConfig) GetSigningKey() string         { return c.signingKey }
func (c *testConfig) GetContextKey() string         { return c.contextKey }
func (c *testConfig) GetTokenExpiration() int       { return c.sessionHours }
func (c *testConfig) GetExtendedTokenDuration() int { return c.sessionHours * 2 }
func (c *testConfig) GetVerifyTokenExpiration() int { return c.verifyHours }
func (c *testConfig) GetResetTokenExpiration() int  { return c.resetHours }
func (c *testConfig) GetTokenLookup() string        { return c.tokenLookup }
func (c *testConfig) GetAuthScheme() string         { return "Bearer" }
func (c *testConfig) GetIssuer() string             { return c.issuer }
func (c *testConfig) GetAudience() []string         { return c.audience }
func (c *testConfig) GetBaseURL() string            { return c.baseURL }

var _ auth.Config = (*testConfig)(nil)

// seedUser builds a stored user with a hashed password.
func seedUser(t interface{ Fatalf(string, ...any) }, name, email, password string, verified bool, role auth.UserRole) *auth.User {
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &auth.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        auth.NormalizeEmail(email),
		PasswordHash: hash,
		Role:         role,
		Verified:     verified,
	}
}
