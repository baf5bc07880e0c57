package authsvc_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/streamhub/internal/domain"
	"github.com/mkrupp/streamhub/internal/infra/logging"
	"github.com/mkrupp/streamhub/internal/repo/user"
	"github.com/mkrupp/streamhub/internal/svc/authsvc"
)

// mockUserRepository wraps the memory repository and can inject failures.
type mockUserRepository struct {
	*user.MemoryUserRepository

	err error
	m   sync.Mutex
}

func (m *mockUserRepository) failure() error {
	m.m.Lock()
	defer m.m.Unlock()

	return m.err
}

func (m *mockUserRepository) setErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()

	m.err = err
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	if err := m.failure(); err != nil {
		return nil, false, err
	}

	return m.MemoryUserRepository.FindByEmail(ctx, email)
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, bool, error) {
	if err := m.failure(); err != nil {
		return nil, false, err
	}

	return m.MemoryUserRepository.FindByID(ctx, id)
}

func newMockUserRepo() *mockUserRepository {
	return &mockUserRepository{MemoryUserRepository: user.NewMemoryUserRepository()}
}

var ErrRepoError = errors.New("repository error")

//nolint:gochecknoglobals
var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() authsvc.AuthConfig {
	return authsvc.AuthConfig{
		AccessTokenSecret:  "test-access-secret",
		RefreshTokenSecret: "test-refresh-secret",
		AccessTokenTTL:     900,
		RefreshTokenTTL:    604800,
		BcryptRounds:       bcrypt.MinCost,
	}
}

type clock struct {
	m   sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.m.Lock()
	defer c.m.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()

	c.now = c.now.Add(d)
}

func setupTestService(t *testing.T) (*authsvc.AuthService, *mockUserRepository, *clock) {
	t.Helper()

	mockRepo := newMockUserRepo()
	clk := &clock{now: testNow}
	cfg := testConfig()

	svc := &authsvc.AuthService{
		Config:   cfg,
		UserRepo: mockRepo,
		Hasher:   authsvc.NewBcryptPasswordHasher(cfg.BcryptRounds),
		Tokens:   authsvc.NewJWTTokenIssuer(cfg, authsvc.WithClock(clk.Now)),
		Log:      logging.NewNopLogger(),
		Now:      clk.Now,
	}

	return svc, mockRepo, clk
}

func register(t *testing.T, svc *authsvc.AuthService, name, email, password string) *domain.AuthResult {
	t.Helper()

	result, err := svc.RegisterUser(context.Background(), authsvc.RegisterInput{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}

	return result
}

func TestAuthService_RegisterUser(t *testing.T) {
	t.Parallel()

	svc, mockRepo, _ := setupTestService(t)
	register(t, svc, "Existing", "existing@example.com", "password123")

	tests := []struct {
		name     string
		input    authsvc.RegisterInput
		repoErr  error
		wantErr  error
		wantKind domain.ErrorKind
	}{
		{
			name:  "successful registration",
			input: authsvc.RegisterInput{Name: " Ann ", Email: " Ann@X.com ", Password: "secret1"},
		},
		{
			name:     "missing name",
			input:    authsvc.RegisterInput{Email: "a@example.com", Password: "secret1"},
			wantErr:  domain.ErrValidation,
			wantKind: domain.KindValidation,
		},
		{
			name:     "name too short",
			input:    authsvc.RegisterInput{Name: " A ", Email: "a@example.com", Password: "secret1"},
			wantErr:  domain.ErrValidation,
			wantKind: domain.KindValidation,
		},
		{
			name:     "name too long",
			input:    authsvc.RegisterInput{Name: strings.Repeat("n", 101), Email: "a@example.com", Password: "secret1"},
			wantErr:  domain.ErrValidation,
			wantKind: domain.KindValidation,
		},
		{
			name:     "malformed email",
			input:    authsvc.RegisterInput{Name: "Al", Email: "not-an-email", Password: "secret1"},
			wantErr:  domain.ErrValidation,
			wantKind: domain.KindValidation,
		},
		{
			name:     "short password",
			input:    authsvc.RegisterInput{Name: "Al", Email: "a@example.com", Password: "12345"},
			wantErr:  domain.ErrValidation,
			wantKind: domain.KindValidation,
		},
		{
			name: "confirmation mismatch",
			input: authsvc.RegisterInput{
				Name: "Al", Email: "a@example.com", Password: "secret1", ConfirmPassword: "secret2",
			},
			wantErr:  domain.ErrValidation,
			wantKind: domain.KindValidation,
		},
		{
			name:     "duplicate email in another case",
			input:    authsvc.RegisterInput{Name: "Dup", Email: "EXISTING@example.com", Password: "password123"},
			wantErr:  domain.ErrDuplicateEmail,
			wantKind: domain.KindConflict,
		},
		{
			name:     "repository error",
			input:    authsvc.RegisterInput{Name: "Err", Email: "error@example.com", Password: "password123"},
			repoErr:  ErrRepoError,
			wantErr:  ErrRepoError,
			wantKind: domain.KindInternal,
		},
	}

	//nolint:paralleltest
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo.setErr(tt.repoErr)
			defer mockRepo.setErr(nil)

			result, err := svc.RegisterUser(context.Background(), tt.input)

			if (err != nil) != (tt.wantErr != nil) {
				t.Fatalf("RegisterUser() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("RegisterUser() error = %v, wantErr %v", err, tt.wantErr)
				}

				if kind := domain.KindOf(err); kind != tt.wantKind {
					t.Errorf("KindOf() = %v, want %v", kind, tt.wantKind)
				}

				return
			}

			if result.User.Email != "ann@x.com" || result.User.Name != "Ann" {
				t.Errorf("unexpected user: %+v", result.User)
			}

			if result.User.IsAdmin || result.User.IsVerified || !result.User.IsActive {
				t.Errorf("unexpected flags: %+v", result.User)
			}

			if result.User.Avatar != domain.DefaultAvatar {
				t.Errorf("Avatar = %q, want default", result.User.Avatar)
			}

			if result.Tokens.ExpiresIn != 900 {
				t.Errorf("ExpiresIn = %d, want 900", result.Tokens.ExpiresIn)
			}

			claims, err := svc.Tokens.Verify(result.Tokens.AccessToken, domain.TokenKindAccess)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}

			if claims.Subject != result.User.ID {
				t.Errorf("Subject = %q, want %q", claims.Subject, result.User.ID)
			}
		})
	}
}

func TestAuthService_RegisterUserConcurrently(t *testing.T) {
	t.Parallel()

	sqliteRepo, err := user.NewSQLiteUserRepository(user.SQLiteUserRepositoryConfig{
		DatabasePath: filepath.Join(t.TempDir(), "users.db"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteUserRepository() error = %v", err)
	}

	t.Cleanup(func() { _ = sqliteRepo.Close() })

	stores := map[string]user.Repository{
		"memory": user.NewMemoryUserRepository(),
		"sqlite": sqliteRepo,
	}

	const (
		workers = 8
		rounds  = 5
	)

	//nolint:paralleltest
	for name, repo := range stores {
		t.Run(name, func(t *testing.T) {
			svc, _, _ := setupTestService(t)
			svc.UserRepo = repo

			for round := range rounds {
				email := fmt.Sprintf("race%d@example.com", round)

				var (
					wg        sync.WaitGroup
					m         sync.Mutex
					successes int
					conflicts int
					failures  []error
				)

				for range workers {
					wg.Add(1)

					go func() {
						defer wg.Done()

						_, err := svc.RegisterUser(context.Background(), authsvc.RegisterInput{
							Name: "Racer", Email: email, Password: "password123",
						})

						m.Lock()
						defer m.Unlock()

						switch {
						case err == nil:
							successes++
						case errors.Is(err, domain.ErrConflict):
							conflicts++
						default:
							failures = append(failures, err)
						}
					}()
				}

				wg.Wait()

				if len(failures) > 0 {
					t.Fatalf("round %d: unexpected errors: %v", round, failures)
				}

				if successes != 1 || conflicts != workers-1 {
					t.Errorf("round %d: successes = %d, conflicts = %d", round, successes, conflicts)
				}
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	svc, mockRepo, _ := setupTestService(t)
	registered := register(t, svc, "Test", "test@example.com", "testpass123")

	disabled := register(t, svc, "Disabled", "disabled@example.com", "testpass123")
	disabled.User.IsActive = false

	if _, err := mockRepo.Save(context.Background(), disabled.User); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		repoErr  error
		wantErr  error
	}{
		{
			name:     "successful login",
			email:    "TEST@example.com",
			password: "testpass123",
		},
		{
			name:     "wrong password",
			email:    "test@example.com",
			password: "wrongpass",
			wantErr:  domain.ErrInvalidCredentials,
		},
		{
			name:     "user not found",
			email:    "nonexistent@example.com",
			password: "anypass",
			wantErr:  domain.ErrInvalidCredentials,
		},
		{
			name:     "missing password",
			email:    "test@example.com",
			wantErr:  domain.ErrValidation,
		},
		{
			name:     "disabled account",
			email:    "disabled@example.com",
			password: "testpass123",
			wantErr:  domain.ErrAccountDisabled,
		},
		{
			name:     "repository error",
			email:    "test@example.com",
			password: "testpass123",
			repoErr:  ErrRepoError,
			wantErr:  ErrRepoError,
		},
	}

	//nolint:paralleltest
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo.setErr(tt.repoErr)
			defer mockRepo.setErr(nil)

			result, err := svc.Login(context.Background(), tt.email, tt.password)

			if (err != nil) != (tt.wantErr != nil) {
				t.Fatalf("Login() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Login() error = %v, wantErr %v", err, tt.wantErr)
				}

				return
			}

			if result.User.ID != registered.User.ID {
				t.Errorf("User.ID = %q, want %q", result.User.ID, registered.User.ID)
			}

			if result.User.LastLogin == nil || !result.User.LastLogin.Equal(testNow) {
				t.Errorf("LastLogin = %v, want %v", result.User.LastLogin, testNow)
			}

			if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
				t.Error("Login() returned empty tokens")
			}
		})
	}
}

func TestAuthService_LoginSameMessage(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)
	register(t, svc, "Test", "test@example.com", "testpass123")

	_, wrongPassword := svc.Login(context.Background(), "test@example.com", "wrongpass")
	_, unknownEmail := svc.Login(context.Background(), "unknown@example.com", "wrongpass")

	if wrongPassword == nil || unknownEmail == nil {
		t.Fatal("Login() expected errors")
	}

	if domain.MessageOf(wrongPassword) != domain.MessageOf(unknownEmail) {
		t.Errorf("messages differ: %q vs %q", domain.MessageOf(wrongPassword), domain.MessageOf(unknownEmail))
	}
}

// countingHasher counts Verify calls of the wrapped hasher.
type countingHasher struct {
	authsvc.PasswordHasher

	m        sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(plaintext, hash string) (bool, error) {
	h.m.Lock()
	h.verifies++
	h.m.Unlock()

	return h.PasswordHasher.Verify(plaintext, hash)
}

func (h *countingHasher) count() int {
	h.m.Lock()
	defer h.m.Unlock()

	return h.verifies
}

func TestAuthService_LoginUnknownEmailHashes(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)
	register(t, svc, "Test", "test@example.com", "testpass123")

	hasher := &countingHasher{PasswordHasher: svc.Hasher}
	svc.Hasher = hasher

	for i := range 2 {
		_, err := svc.Login(context.Background(), "nobody@example.com", "testpass123")
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("Login() error = %v, want %v", err, domain.ErrInvalidCredentials)
		}

		if got := hasher.count(); got != i+1 {
			t.Errorf("after %d unknown-email logins Verify calls = %d, want %d", i+1, got, i+1)
		}
	}

	_, err := svc.Login(context.Background(), "test@example.com", "wrongpass1")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want %v", err, domain.ErrInvalidCredentials)
	}

	if got := hasher.count(); got != 3 {
		t.Errorf("Verify calls = %d, want 3", got)
	}
}

func TestAuthService_Refresh(t *testing.T) {
	t.Parallel()

	svc, mockRepo, clk := setupTestService(t)
	registered := register(t, svc, "Test", "test@example.com", "testpass123")
	gone := register(t, svc, "Gone", "gone@example.com", "testpass123")

	if _, err := mockRepo.Delete(context.Background(), gone.User.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid refresh token", token: registered.Tokens.RefreshToken},
		{name: "missing token", token: "", wantErr: domain.ErrValidation},
		{name: "access token is not a refresh token", token: registered.Tokens.AccessToken, wantErr: domain.ErrInvalidAuthToken},
		{name: "garbage", token: "not.a.token", wantErr: domain.ErrInvalidAuthToken},
		{name: "deleted user", token: gone.Tokens.RefreshToken, wantErr: domain.ErrSubjectNotFound},
	}

	//nolint:paralleltest
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Refresh(context.Background(), tt.token)

			if (err != nil) != (tt.wantErr != nil) {
				t.Fatalf("Refresh() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Refresh() error = %v, wantErr %v", err, tt.wantErr)
				}

				return
			}

			if result.ExpiresIn != 900 {
				t.Errorf("ExpiresIn = %d, want 900", result.ExpiresIn)
			}

			claims, err := svc.Tokens.Verify(result.AccessToken, domain.TokenKindAccess)
			if err != nil || claims.Subject != registered.User.ID {
				t.Errorf("Verify() = %+v, %v", claims, err)
			}
		})
	}

	t.Run("expired refresh token", func(t *testing.T) {
		clk.Advance(7*24*time.Hour + time.Second)

		_, err := svc.Refresh(context.Background(), registered.Tokens.RefreshToken)
		if !errors.Is(err, domain.ErrTokenExpired) {
			t.Errorf("Refresh() error = %v, want %v", err, domain.ErrTokenExpired)
		}
	})
}

func TestAuthService_Verify(t *testing.T) {
	t.Parallel()

	svc, mockRepo, clk := setupTestService(t)
	registered := register(t, svc, "Test", "test@example.com", "testpass123")
	gone := register(t, svc, "Gone", "gone@example.com", "testpass123")

	if _, err := mockRepo.Delete(context.Background(), gone.User.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	result, err := svc.Verify(context.Background(), registered.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if !result.Valid || result.UserID != registered.User.ID || result.Email != "test@example.com" {
		t.Errorf("unexpected result: %+v", result)
	}

	if _, err := svc.Verify(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Verify(\"\") error = %v, want validation error", err)
	}

	tests := []struct {
		name       string
		token      string
		wantReason string
	}{
		{name: "invalid token", token: "garbage", wantReason: domain.CodeTokenInvalid},
		{name: "refresh token", token: registered.Tokens.RefreshToken, wantReason: domain.CodeTokenInvalid},
		{name: "deleted user", token: gone.Tokens.AccessToken, wantReason: domain.CodeUserNotFound},
	}

	//nolint:paralleltest
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Verify(context.Background(), tt.token)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}

			if result.Valid || result.Reason != tt.wantReason {
				t.Errorf("Verify() = %+v, want reason %s", result, tt.wantReason)
			}
		})
	}

	t.Run("expired token", func(t *testing.T) {
		clk.Advance(15 * time.Minute)

		result, err := svc.Verify(context.Background(), registered.Tokens.AccessToken)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}

		if result.Valid || result.Reason != domain.CodeTokenExpired {
			t.Errorf("Verify() = %+v, want reason %s", result, domain.CodeTokenExpired)
		}
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	t.Parallel()

	svc, mockRepo, clk := setupTestService(t)
	registered := register(t, svc, "Test", "test@example.com", "oldpass1")

	tests := []struct {
		name    string
		userID  string
		input   authsvc.ChangePasswordInput
		wantErr error
	}{
		{
			name:    "missing fields",
			userID:  registered.User.ID,
			input:   authsvc.ChangePasswordInput{CurrentPassword: "oldpass1"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "same password",
			userID:  registered.User.ID,
			input:   authsvc.ChangePasswordInput{CurrentPassword: "oldpass1", NewPassword: "oldpass1"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "short password",
			userID:  registered.User.ID,
			input:   authsvc.ChangePasswordInput{CurrentPassword: "oldpass1", NewPassword: "12345"},
			wantErr: domain.ErrValidation,
		},
		{
			name:   "confirmation mismatch",
			userID: registered.User.ID,
			input: authsvc.ChangePasswordInput{
				CurrentPassword: "oldpass1", NewPassword: "newpass1", ConfirmPassword: "newpass2",
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown user",
			userID:  "missing",
			input:   authsvc.ChangePasswordInput{CurrentPassword: "oldpass1", NewPassword: "newpass1"},
			wantErr: domain.ErrSubjectNotFound,
		},
		{
			name:    "wrong current password",
			userID:  registered.User.ID,
			input:   authsvc.ChangePasswordInput{CurrentPassword: "wrongpass", NewPassword: "newpass1"},
			wantErr: domain.ErrWrongPassword,
		},
		{
			name:   "successful change",
			userID: registered.User.ID,
			input: authsvc.ChangePasswordInput{
				CurrentPassword: "oldpass1", NewPassword: "newpass1", ConfirmPassword: "newpass1",
			},
		},
	}

	//nolint:paralleltest
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ChangePassword(context.Background(), tt.userID, tt.input)
			if (err != nil) != (tt.wantErr != nil) || (err != nil && !errors.Is(err, tt.wantErr)) {
				t.Fatalf("ChangePassword() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	clk.Advance(time.Minute)

	stored, _, err := mockRepo.FindByID(context.Background(), registered.User.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}

	if stored.PasswordChangedAt == nil || !stored.PasswordChangedAt.Equal(testNow) {
		t.Errorf("PasswordChangedAt = %v, want %v", stored.PasswordChangedAt, testNow)
	}

	if _, err := svc.Login(context.Background(), "test@example.com", "oldpass1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Login() with old password error = %v", err)
	}

	if _, err := svc.Login(context.Background(), "test@example.com", "newpass1"); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}
}

func TestNewAuthService(t *testing.T) {
	t.Parallel()

	svc, err := authsvc.NewAuthService(user.NewMemoryUserRepository(), testConfig(), nil)
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}

	svc.Logout(context.Background())

	cfg := testConfig()
	cfg.AccessTokenTTL = 0

	if _, err := authsvc.NewAuthService(user.NewMemoryUserRepository(), cfg, nil); !errors.Is(err, authsvc.ErrInvalidAuthConfig) {
		t.Errorf("NewAuthService() error = %v, want %v", err, authsvc.ErrInvalidAuthConfig)
	}
}
