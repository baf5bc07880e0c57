package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mkrupp/streamhub/internal/domain"
	"github.com/mkrupp/streamhub/internal/infra/logging"
	"github.com/mkrupp/streamhub/internal/infra/metrics"
	"github.com/mkrupp/streamhub/internal/repo/user"
)

// AuthService provides registration, login and the token lifecycle.
// It does not own the user repository; the caller closes it.
type AuthService struct {
	Config   AuthConfig
	UserRepo user.Repository
	Hasher   PasswordHasher
	Tokens   TokenIssuer
	Metrics  *metrics.Metrics
	Log      logging.Logger
	Now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService with a bcrypt hasher and a JWT
// issuer built from the configuration.
// Returns an error if the configuration is invalid.
func NewAuthService(userRepo user.Repository, cfg AuthConfig, m *metrics.Metrics) (*AuthService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &AuthService{
		Config:   cfg,
		UserRepo: userRepo,
		Hasher:   NewBcryptPasswordHasher(cfg.BcryptRounds),
		Tokens:   NewJWTTokenIssuer(cfg),
		Metrics:  m,
		Log:      logging.GetLogger("svc.authsvc.auth_service"),
		Now:      time.Now,
	}, nil
}

// RegisterInput holds the fields of a self registration.
type RegisterInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// RegisterUser creates a new account and signs the user in.
// Returns a validation error before touching storage if the input is
// incomplete, and a conflict error if the email is taken.
func (s *AuthService) RegisterUser(ctx context.Context, in RegisterInput) (_ *domain.AuthResult, err error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	log := s.Log.With(logging.Group("user", "email", email))

	defer func() {
		s.Metrics.ObserveAuthOperation("register", err)

		if err != nil {
			log.ErrorContext(ctx, "register user failed", "error", err)
		} else {
			log.DebugContext(ctx, "user registered")
		}
	}()

	if err := ValidateRegistration(name, email, in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}

	_, exists, err := s.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	} else if exists {
		return nil, domain.ErrDuplicateEmail
	}

	passwordHash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.UserRepo.Create(ctx, domain.UserDraft{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Avatar:       domain.DefaultAvatar,
		IsActive:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	log = log.With(logging.Group("user", "id", created.ID))

	return s.signIn(created)
}

// Login authenticates a user by email and password and issues a token pair.
// An unknown email and a wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (_ *domain.AuthResult, err error) {
	email = NormalizeEmail(email)
	log := s.Log.With(logging.Group("user", "email", email))

	defer func() {
		s.Metrics.ObserveAuthOperation("login", err)

		if err != nil {
			log.ErrorContext(ctx, "login failed", "error", err)
		} else {
			log.DebugContext(ctx, "login successful")
		}
	}()

	if email == "" || password == "" {
		return nil, validationError("please provide email and password")
	}

	account, ok, err := s.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	} else if !ok {
		s.verifyDummy(password)

		return nil, domain.ErrInvalidCredentials
	}

	matches, err := s.Hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	} else if !matches {
		return nil, domain.ErrInvalidCredentials
	}

	if !account.IsActive {
		return nil, domain.ErrAccountDisabled
	}

	now := s.Now().UTC()
	account.LastLogin = &now

	saved, err := s.UserRepo.Save(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("save last login: %w", err)
	}

	return s.signIn(saved)
}

// verifyDummy checks password against a fixed hash. Logins with an unknown
// email run it in place of the real check.
func (s *AuthService) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("streamhub-unknown-user")
	})

	if s.dummyHash != "" {
		_, _ = s.Hasher.Verify(password, s.dummyHash)
	}
}

func (s *AuthService) signIn(account *domain.User) (*domain.AuthResult, error) {
	access, err := s.Tokens.IssueAccessToken(account.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.Metrics.ObserveTokenIssued(domain.TokenKindAccess)

	refresh, err := s.Tokens.IssueRefreshToken(account.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	s.Metrics.ObserveTokenIssued(domain.TokenKindRefresh)

	return &domain.AuthResult{
		User: account,
		Tokens: domain.AuthTokens{
			AccessToken:  access.Token,
			RefreshToken: refresh.Token,
			ExpiresIn:    s.expiresIn(),
		},
	}, nil
}

func (s *AuthService) expiresIn() int64 {
	return int64(s.Tokens.AccessTokenTTL() / time.Second)
}

// VerifyToken checks a token of the given kind and reports the claims.
// Takes part in the metrics the same way the middleware does.
func (s *AuthService) VerifyToken(ctx context.Context, token string, kind domain.TokenKind) (domain.TokenClaims, error) {
	claims, err := s.Tokens.Verify(token, kind)
	s.Metrics.ObserveTokenVerification(kind, err)

	if err != nil {
		s.Log.DebugContext(ctx, "token rejected", "kind", kind, "error", err)

		return domain.TokenClaims{}, fmt.Errorf("verify token: %w", err)
	}

	return claims, nil
}

// FindUser looks a user up by ID. It lets the middleware resolve token subjects.
func (s *AuthService) FindUser(ctx context.Context, id string) (*domain.User, bool, error) {
	account, ok, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("find user: %w", err)
	}

	return account, ok, nil
}

// Refresh exchanges a refresh token for a new access token.
// The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (_ *domain.RefreshResult, err error) {
	log := s.Log

	defer func() {
		s.Metrics.ObserveAuthOperation("refresh", err)

		if err != nil {
			log.ErrorContext(ctx, "refresh failed", "error", err)
		} else {
			log.DebugContext(ctx, "token refreshed")
		}
	}()

	if refreshToken == "" {
		return nil, domain.NewError(domain.KindValidation, domain.ErrNoRefreshToken.Message)
	}

	claims, err := s.VerifyToken(ctx, refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	log = log.With(logging.Group("user", "id", claims.Subject))

	_, ok, err := s.FindUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.ErrSubjectNotFound
	}

	access, err := s.Tokens.IssueAccessToken(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.Metrics.ObserveTokenIssued(domain.TokenKindAccess)

	return &domain.RefreshResult{AccessToken: access.Token, ExpiresIn: s.expiresIn()}, nil
}

// Verify is an advisory check of an access token. Token problems are
// reported in the result; only storage failures are errors.
func (s *AuthService) Verify(ctx context.Context, token string) (_ *domain.VerifyResult, err error) {
	defer func() {
		s.Metrics.ObserveAuthOperation("verify", err)
	}()

	if token == "" {
		return nil, validationError("token is required")
	}

	claims, err := s.VerifyToken(ctx, token, domain.TokenKindAccess)
	if err != nil {
		reason := domain.CodeTokenInvalid
		if errors.Is(err, domain.ErrTokenExpired) {
			reason = domain.CodeTokenExpired
		}

		return &domain.VerifyResult{Valid: false, Reason: reason}, nil
	}

	account, ok, err := s.FindUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	} else if !ok {
		return &domain.VerifyResult{Valid: false, Reason: domain.CodeUserNotFound}, nil
	}

	return &domain.VerifyResult{
		Valid:  true,
		UserID: account.ID,
		Email:  account.Email,
		Name:   account.Name,
	}, nil
}

// ChangePasswordInput holds the fields of a password change.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) (err error) {
	log := s.Log.With(logging.Group("user", "id", userID))

	defer func() {
		s.Metrics.ObserveAuthOperation("change_password", err)

		if err != nil {
			log.ErrorContext(ctx, "change password failed", "error", err)
		} else {
			log.InfoContext(ctx, "password changed")
		}
	}()

	switch {
	case in.CurrentPassword == "" || in.NewPassword == "":
		return validationError("please provide current password and new password")
	case in.NewPassword == in.CurrentPassword:
		return validationError("new password must be different from the current password")
	}

	if err := ValidatePassword(in.NewPassword, in.ConfirmPassword); err != nil {
		return err
	}

	account, ok, err := s.FindUser(ctx, userID)
	if err != nil {
		return err
	} else if !ok {
		return domain.ErrSubjectNotFound
	}

	matches, err := s.Hasher.Verify(in.CurrentPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	} else if !matches {
		return domain.ErrWrongPassword
	}

	passwordHash, err := s.Hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.Now().UTC()
	account.PasswordHash = passwordHash
	account.PasswordChangedAt = &now

	if _, err := s.UserRepo.Save(ctx, account); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	return nil
}

// Logout is a no-op: tokens are self-contained and clients discard them.
func (s *AuthService) Logout(ctx context.Context) {
	s.Metrics.ObserveAuthOperation("logout", nil)
	s.Log.DebugContext(ctx, "logout")
}
