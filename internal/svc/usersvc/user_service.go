package usersvc

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/mkrupp/streamhub/internal/domain"
	"github.com/mkrupp/streamhub/internal/infra/logging"
	"github.com/mkrupp/streamhub/internal/repo/user"
	"github.com/mkrupp/streamhub/internal/svc/authsvc"
)

// Pagination defaults for the admin user list.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxOffset bounds the number of skipped rows.
	MaxOffset = math.MaxInt32
)

// MaxBioLength is the maximum number of characters of a bio.
const MaxBioLength = 500

// UserService manages profiles and the admin view of accounts.
// It does not own the user repository; the caller closes it.
type UserService struct {
	UserRepo user.Repository
	Hasher   authsvc.PasswordHasher
	Log      logging.Logger
}

// NewUserService creates a new UserService.
func NewUserService(userRepo user.Repository, hasher authsvc.PasswordHasher) *UserService {
	return &UserService{
		UserRepo: userRepo,
		Hasher:   hasher,
		Log:      logging.GetLogger("svc.usersvc.user_service"),
	}
}

// ProfileUpdate holds the fields a user may change on their own profile.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Name   *string `json:"name"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`
}

// AdminUpdate holds the fields an administrator may change on any account.
// Nil fields are left untouched.
type AdminUpdate struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
	IsAdmin  *bool   `json:"isAdmin"`
	IsActive *bool   `json:"isActive"`
}

// CreateUserInput holds the fields of an account created by an administrator.
type CreateUserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

// ListInput selects a page of the admin user list. Zero values select the
// defaults.
type ListInput struct {
	Page   int
	Limit  int
	Search string
}

// Pagination describes the position of a page in the full result.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// UserPage is one page of the admin user list.
type UserPage struct {
	Users      []*domain.User `json:"users"`
	Pagination Pagination     `json:"pagination"`
}

// Stats summarizes the user base.
type Stats struct {
	TotalUsers  int `json:"totalUsers"`
	TotalAdmins int `json:"totalAdmins"`
}

func validationError(message string) error {
	return domain.NewError(domain.KindValidation, message)
}

func validateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return validationError("bio must be at most 500 characters")
	}

	return nil
}

// applyProfile validates and copies the profile fields onto account.
func applyProfile(account *domain.User, name, bio, avatar *string) error {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if err := authsvc.ValidateName(trimmed); err != nil {
			return err
		}

		account.Name = trimmed
	}

	if bio != nil {
		if err := validateBio(*bio); err != nil {
			return err
		}

		account.Bio = *bio
	}

	if avatar != nil {
		account.Avatar = strings.TrimSpace(*avatar)
		if account.Avatar == "" {
			account.Avatar = domain.DefaultAvatar
		}
	}

	return nil
}

// Get returns the account with the given ID.
// Returns domain.ErrUserNotFound if there is none.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	account, ok, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	} else if !ok {
		return nil, domain.ErrUserNotFound
	}

	return account, nil
}

// GetProfile returns the public profile of a user.
func (s *UserService) GetProfile(ctx context.Context, id string) (domain.PublicProfile, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return domain.PublicProfile{}, err
	}

	return account.Public(), nil
}

// UpdateProfile changes the name, bio or avatar of a user.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (_ *domain.User, err error) {
	log := s.Log.With(logging.Group("user", "id", id))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "update profile failed", "error", err)
		} else {
			log.DebugContext(ctx, "profile updated")
		}
	}()

	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := applyProfile(account, in.Name, in.Bio, in.Avatar); err != nil {
		return nil, err
	}

	saved, err := s.UserRepo.Save(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	return saved, nil
}

// List returns one page of users, newest first. Search matches name or email.
func (s *UserService) List(ctx context.Context, in ListInput) (*UserPage, error) {
	page := in.Page
	if page < 1 {
		page = DefaultPage
	}

	limit := in.Limit
	if limit < 1 {
		limit = DefaultLimit
	} else if limit > MaxLimit {
		limit = MaxLimit
	}

	// Huge page numbers are capped at MaxOffset instead of overflowing.
	offset := MaxOffset
	if page-1 <= MaxOffset/limit {
		offset = (page - 1) * limit
	}

	users, total, err := s.UserRepo.List(ctx, domain.ListQuery{
		Search: strings.TrimSpace(in.Search),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return &UserPage{
		Users: users,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

// Create adds an account on behalf of an administrator. The account is
// active and verified.
// Returns a conflict error if the email is taken.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (_ *domain.User, err error) {
	email := authsvc.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	log := s.Log.With(logging.Group("user", "email", email))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "create user failed", "error", err)
		} else {
			log.InfoContext(ctx, "user created", "admin", in.IsAdmin)
		}
	}()

	if err := authsvc.ValidateRegistration(name, email, in.Password, ""); err != nil {
		return nil, err
	}

	return s.create(ctx, name, email, in.Password, in.IsAdmin)
}

func (s *UserService) create(ctx context.Context, name, email, password string, isAdmin bool) (*domain.User, error) {
	passwordHash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.UserRepo.Create(ctx, domain.UserDraft{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Avatar:       domain.DefaultAvatar,
		IsAdmin:      isAdmin,
		IsActive:     true,
		IsVerified:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return created, nil
}

// Update changes any account field except the password.
// Returns a conflict error if the new email is taken.
func (s *UserService) Update(ctx context.Context, id string, in AdminUpdate) (_ *domain.User, err error) {
	log := s.Log.With(logging.Group("user", "id", id))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "update user failed", "error", err)
		} else {
			log.InfoContext(ctx, "user updated")
		}
	}()

	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := applyProfile(account, in.Name, in.Bio, in.Avatar); err != nil {
		return nil, err
	}

	if in.Email != nil {
		email := authsvc.NormalizeEmail(*in.Email)
		if err := authsvc.ValidateEmail(email); err != nil {
			return nil, err
		}

		account.Email = email
	}

	if in.IsAdmin != nil {
		account.IsAdmin = *in.IsAdmin
	}

	if in.IsActive != nil {
		account.IsActive = *in.IsActive
	}

	saved, err := s.UserRepo.Save(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	return saved, nil
}

// Delete removes an account.
// Returns domain.ErrUserNotFound if there is none.
func (s *UserService) Delete(ctx context.Context, id string) (err error) {
	log := s.Log.With(logging.Group("user", "id", id))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "delete user failed", "error", err)
		} else {
			log.InfoContext(ctx, "user deleted")
		}
	}()

	deleted, err := s.UserRepo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	} else if !deleted {
		return domain.ErrUserNotFound
	}

	return nil
}

// Stats counts all users and the administrators among them.
func (s *UserService) Stats(ctx context.Context) (*Stats, error) {
	_, total, err := s.UserRepo.List(ctx, domain.ListQuery{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	admins, err := s.UserRepo.CountAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("count admins: %w", err)
	}

	return &Stats{TotalUsers: total, TotalAdmins: admins}, nil
}

// EnsureAdmin creates an administrator with the given credentials, or
// promotes and reactivates the existing user with that email. The password
// of an existing user is left unchanged.
// Reports whether a new account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, name, email, password string) (_ *domain.User, created bool, err error) {
	email = authsvc.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	log := s.Log.With(logging.Group("user", "email", email))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "ensure admin failed", "error", err)
		} else {
			log.InfoContext(ctx, "admin ensured", "created", created)
		}
	}()

	existing, ok, err := s.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("find user: %w", err)
	}

	if ok {
		existing.IsAdmin = true
		existing.IsActive = true

		saved, err := s.UserRepo.Save(ctx, existing)
		if err != nil {
			return nil, false, fmt.Errorf("promote user: %w", err)
		}

		return saved, false, nil
	}

	if err := authsvc.ValidateRegistration(name, email, password, ""); err != nil {
		return nil, false, err
	}

	account, err := s.create(ctx, name, email, password, true)
	if err != nil {
		return nil, false, err
	}

	return account, true, nil
}
