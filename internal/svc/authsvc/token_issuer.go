package authsvc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkrupp/streamhub/internal/domain"
)

var (
	errMissingSubject = errors.New("token has no subject")
	errUnknownKind    = errors.New("token has unknown kind")
	errKindMismatch   = errors.New("token kind mismatch")
)

// TokenIssuer signs and verifies access and refresh tokens.
type TokenIssuer interface {
	// IssueAccessToken signs a short-lived access token for the user.
	IssueAccessToken(userID string) (domain.IssuedToken, error)

	// IssueRefreshToken signs a long-lived refresh token for the user.
	IssueRefreshToken(userID string) (domain.IssuedToken, error)

	// Verify checks the token's signature, expiry and kind.
	// Returns domain.ErrTokenExpired or domain.ErrInvalidAuthToken on failure.
	Verify(token string, kind domain.TokenKind) (domain.TokenClaims, error)

	// AccessTokenTTL is the lifetime of access tokens.
	AccessTokenTTL() time.Duration
}

// tokenClaims is the JWT payload: registered claims plus the token kind.
type tokenClaims struct {
	jwt.RegisteredClaims

	Kind domain.TokenKind `json:"kind"`
}

// Validate implements jwt.ClaimsValidator and runs after the standard checks.
func (c tokenClaims) Validate() error {
	switch {
	case c.Subject == "":
		return errMissingSubject
	case !c.Kind.Valid():
		return errUnknownKind
	case c.IssuedAt == nil:
		return jwt.ErrTokenRequiredClaimMissing
	}

	return nil
}

// JWTTokenIssuer implements TokenIssuer with HS256 JWTs and a secret per kind.
type JWTTokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	leeway        time.Duration
	now           func() time.Time
}

var _ TokenIssuer = (*JWTTokenIssuer)(nil)

// TokenIssuerOption customizes a JWTTokenIssuer.
type TokenIssuerOption func(*JWTTokenIssuer)

// WithClock replaces the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(i *JWTTokenIssuer) {
		i.now = now
	}
}

// NewJWTTokenIssuer creates a token issuer from the auth configuration.
func NewJWTTokenIssuer(cfg AuthConfig, opts ...TokenIssuerOption) *JWTTokenIssuer {
	issuer := &JWTTokenIssuer{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.accessTTL(),
		refreshTTL:    cfg.refreshTTL(),
		leeway:        cfg.leeway(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(issuer)
	}

	return issuer
}

func (i *JWTTokenIssuer) secret(kind domain.TokenKind) []byte {
	if kind == domain.TokenKindRefresh {
		return i.refreshSecret
	}

	return i.accessSecret
}

// AccessTokenTTL implements TokenIssuer.AccessTokenTTL.
func (i *JWTTokenIssuer) AccessTokenTTL() time.Duration {
	return i.accessTTL
}

// IssueAccessToken implements TokenIssuer.IssueAccessToken.
func (i *JWTTokenIssuer) IssueAccessToken(userID string) (domain.IssuedToken, error) {
	return i.issue(userID, domain.TokenKindAccess, i.accessTTL)
}

// IssueRefreshToken implements TokenIssuer.IssueRefreshToken.
func (i *JWTTokenIssuer) IssueRefreshToken(userID string) (domain.IssuedToken, error) {
	return i.issue(userID, domain.TokenKindRefresh, i.refreshTTL)
}

func (i *JWTTokenIssuer) issue(userID string, kind domain.TokenKind, ttl time.Duration) (domain.IssuedToken, error) {
	if userID == "" {
		return domain.IssuedToken{}, errors.Join(domain.ErrInternal, errMissingSubject)
	}

	jti, err := uuid.NewV7()
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("new token id: %w", err)
	}

	// NumericDate has second precision
	now := i.now().UTC().Truncate(time.Second)
	expiry := now.Add(ttl)

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		Kind: kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret(kind))
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}

	return domain.IssuedToken{
		Token: signed,
		TokenClaims: domain.TokenClaims{
			ID:        claims.ID,
			Subject:   userID,
			Kind:      kind,
			IssuedAt:  now,
			ExpiresAt: expiry,
		},
	}, nil
}

// malformedClaims reports whether err carries a claim problem besides expiry.
// jwt joins all validation errors, and such a token is invalid even when it
// has also expired.
func malformedClaims(err error) bool {
	return errors.Is(err, errMissingSubject) ||
		errors.Is(err, errUnknownKind) ||
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing)
}

// Verify implements TokenIssuer.Verify.
func (i *JWTTokenIssuer) Verify(token string, kind domain.TokenKind) (domain.TokenClaims, error) {
	var claims tokenClaims

	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.secret(kind), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(i.leeway),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !malformedClaims(err) {
			return domain.TokenClaims{}, errors.Join(domain.ErrTokenExpired, err)
		}

		return domain.TokenClaims{}, errors.Join(domain.ErrInvalidAuthToken, err)
	}

	if claims.Kind != kind {
		return domain.TokenClaims{}, errors.Join(domain.ErrInvalidAuthToken, errKindMismatch)
	}

	return domain.TokenClaims{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Kind:      claims.Kind,
		IssuedAt:  claims.IssuedAt.UTC(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	}, nil
}
