package domain

import (
	"time"
)

// DefaultAvatar is assigned to users that did not pick one.
const DefaultAvatar = "👤"

var (
	// ErrDuplicateEmail is returned by the store when the email is already taken.
	ErrDuplicateEmail = NewError(KindConflict, "email is already registered")
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = NewError(KindNotFound, "user not found")
	// ErrInvalidCredentials is returned for an unknown email and for a wrong password alike.
	ErrInvalidCredentials = NewError(KindAuth, "invalid email or password")
	// ErrAccountDisabled is returned when an inactive user tries to log in.
	ErrAccountDisabled = NewError(KindForbidden, "account has been disabled")
)

// User is a persisted account including its credential state.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`

	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Bio    string `json:"bio"`

	IsAdmin    bool `json:"isAdmin"`
	IsActive   bool `json:"isActive"`
	IsVerified bool `json:"isVerified"`

	LastLogin         *time.Time `json:"lastLogin"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// UserDraft holds the fields needed to create a user. PasswordHash must
// already be hashed.
type UserDraft struct {
	Email        string
	PasswordHash string
	Name         string
	Avatar       string
	Bio          string
	IsAdmin      bool
	IsActive     bool
	IsVerified   bool
}

// PublicProfile is the view of a user shown to anyone but its owner or an admin.
type PublicProfile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	Bio      string    `json:"bio"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Public returns the public view of u.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:       u.ID,
		Name:     u.Name,
		Avatar:   u.Avatar,
		Bio:      u.Bio,
		JoinedAt: u.CreatedAt,
	}
}

// ListQuery selects a page of users. Search matches name or email.
type ListQuery struct {
	Search string
	Offset int
	Limit  int
}
