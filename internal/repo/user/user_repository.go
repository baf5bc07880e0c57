package user

import (
	"context"
	"fmt"

	"github.com/mkrupp/streamhub/internal/domain"
)

// Repository defines the interface for user data persistence.
//
// Lookups return (nil, false, nil) when no user matches; errors are reserved
// for storage failures. Emails are compared case-insensitively.
type Repository interface {
	// FindByEmail retrieves a user, including its password hash, by email.
	FindByEmail(ctx context.Context, email string) (*domain.User, bool, error)

	// FindByID retrieves a user by ID.
	FindByID(ctx context.Context, id string) (*domain.User, bool, error)

	// Create inserts a new user and assigns its ID and timestamps.
	// Returns domain.ErrDuplicateEmail if the email is already taken, also
	// when two creates race.
	Create(ctx context.Context, draft domain.UserDraft) (*domain.User, error)

	// Save persists the mutable fields of an existing user and bumps UpdatedAt.
	// Returns domain.ErrUserNotFound if the user no longer exists and
	// domain.ErrDuplicateEmail if the new email collides.
	Save(ctx context.Context, user *domain.User) (*domain.User, error)

	// Delete removes a user. Returns false if there was nothing to delete.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns one page of users, newest first, and the total number of
	// users matching the query.
	List(ctx context.Context, query domain.ListQuery) ([]*domain.User, int, error)

	// CountAdmins returns the number of users with the admin flag.
	CountAdmins(ctx context.Context) (int, error)

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func() (Repository, error)

// Drivers accepted by RepositoryConfig.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// RepositoryConfig selects and configures the user store.
type RepositoryConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory"
	Driver string `env:"DRIVER" default:"sqlite"`

	SQLite   SQLiteUserRepositoryConfig
	Postgres PostgresUserRepositoryConfig
}

// Validate implements config.Validator.
func (c RepositoryConfig) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
}

// NewRepositoryFactory returns a factory for the configured driver.
func NewRepositoryFactory(cfg RepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		switch cfg.Driver {
		case DriverSQLite:
			return NewSQLiteUserRepository(cfg.SQLite)
		case DriverPostgres:
			return NewPostgresUserRepository(cfg.Postgres)
		case DriverMemory:
			return NewMemoryUserRepository(), nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
		}
	}
}
