package domain

import (
	"time"
)

// TokenKind tells access tokens from refresh tokens. It is part of the signed payload.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

var (
	// ErrNoAuthToken is returned when a token is required but not provided.
	ErrNoAuthToken = NewError(KindMissingToken, "no auth token provided, use: Authorization: Bearer <token>")
	// ErrNoRefreshToken is returned when the refresh token is missing from the request body.
	ErrNoRefreshToken = NewError(KindMissingToken, "refresh token is required")
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = NewError(KindExpired, "token has expired")
	// ErrInvalidAuthToken is returned when a token's signature, shape or kind is wrong.
	ErrInvalidAuthToken = NewError(KindInvalidToken, "token is invalid")
	// ErrAdminRequired is returned when a non-admin calls an admin endpoint.
	ErrAdminRequired = NewError(KindForbidden, "access denied, admin only")
	// ErrSubjectNotFound is returned when a valid token names a user that no longer exists.
	ErrSubjectNotFound = NewError(KindAuth, "user not found")
	// ErrWrongPassword is returned when the current password does not verify on password change.
	ErrWrongPassword = NewError(KindAuth, "current password is incorrect")
	// ErrNotOwner is returned when a user touches a resource that belongs to someone else.
	ErrNotOwner = NewError(KindForbidden, "access denied, you can only modify your own resources")
)

// Machine-readable codes that let clients decide whether to refresh.
const (
	CodeTokenMissing        = "TOKEN_MISSING"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
	CodeRefreshTokenInvalid = "REFRESH_TOKEN_INVALID"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
)

// TokenClaims is the verified payload of a token.
type TokenClaims struct {
	ID        string    `json:"jti"`
	Subject   string    `json:"sub"`
	Kind      TokenKind `json:"kind"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// IssuedToken is a freshly signed token together with its claims.
type IssuedToken struct {
	Token string
	TokenClaims
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID string
	Claims TokenClaims
	// Token is the raw token the identity was derived from.
	Token string
}

// AuthTokens is the token pair handed out on login and registration.
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// AuthResult is returned by login and registration.
type AuthResult struct {
	User   *User      `json:"user"`
	Tokens AuthTokens `json:"tokens"`
}

// RefreshResult is returned by refresh.
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// VerifyResult is returned by the advisory verify operation.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}
