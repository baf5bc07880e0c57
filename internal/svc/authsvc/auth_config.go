package authsvc

import (
	"errors"
	"fmt"
	"time"
)

// Development secrets used when none are configured. They are refused in production.
const (
	DevAccessTokenSecret  = "streamhub-dev-access-secret-change-me"
	DevRefreshTokenSecret = "streamhub-dev-refresh-secret-change-me"
)

var (
	// ErrInvalidAuthConfig is returned when the auth configuration is out of range.
	ErrInvalidAuthConfig = errors.New("invalid auth config")
	// ErrInsecureSecrets is returned when production runs with unsafe token secrets.
	ErrInsecureSecrets = errors.New("insecure token secrets")
)

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// AccessTokenSecret signs access tokens (HS256)
	AccessTokenSecret string `env:"ACCESS_TOKEN_SECRET" default:"streamhub-dev-access-secret-change-me"`

	// RefreshTokenSecret signs refresh tokens (HS256)
	RefreshTokenSecret string `env:"REFRESH_TOKEN_SECRET" default:"streamhub-dev-refresh-secret-change-me"`

	// AccessTokenTTL is the validity of access tokens in seconds
	AccessTokenTTL int64 `env:"ACCESS_TOKEN_TTL" default:"900"` // 15m

	// RefreshTokenTTL is the validity of refresh tokens in seconds
	RefreshTokenTTL int64 `env:"REFRESH_TOKEN_TTL" default:"604800"` // 7d

	// TokenLeeway is the tolerated clock skew in seconds when checking expiry
	TokenLeeway int64 `env:"TOKEN_LEEWAY" default:"0"`

	// BcryptRounds is the bcrypt cost factor
	BcryptRounds int `env:"BCRYPT_ROUNDS" default:"10"`
}

// Validate implements config.Validator.
func (c AuthConfig) Validate() error {
	switch {
	case c.AccessTokenSecret == "" || c.RefreshTokenSecret == "":
		return fmt.Errorf("%w: token secrets must not be empty", ErrInvalidAuthConfig)
	case c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0:
		return fmt.Errorf("%w: token ttl must be positive", ErrInvalidAuthConfig)
	case c.TokenLeeway < 0:
		return fmt.Errorf("%w: token leeway must not be negative", ErrInvalidAuthConfig)
	}

	return nil
}

// CheckSecrets reports problems with the configured secrets. In production
// every problem is an error; otherwise they are returned for the caller to log.
func (c AuthConfig) CheckSecrets(production bool) ([]string, error) {
	var problems []string

	if c.AccessTokenSecret == DevAccessTokenSecret {
		problems = append(problems, "access token secret is the development default")
	}

	if c.RefreshTokenSecret == DevRefreshTokenSecret {
		problems = append(problems, "refresh token secret is the development default")
	}

	if c.AccessTokenSecret == c.RefreshTokenSecret {
		problems = append(problems, "access and refresh token secrets are identical")
	}

	if production && len(problems) > 0 {
		return problems, fmt.Errorf("%w: %v", ErrInsecureSecrets, problems)
	}

	return problems, nil
}

func (c AuthConfig) accessTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

func (c AuthConfig) refreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Second
}

func (c AuthConfig) leeway() time.Duration {
	return time.Duration(c.TokenLeeway) * time.Second
}
