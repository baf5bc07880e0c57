package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mkrupp/streamhub/internal/domain"
	context_ "github.com/mkrupp/streamhub/internal/infra/context"
	"github.com/mkrupp/streamhub/internal/infra/logging"
)

// TokenVerifier checks tokens of a given kind.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string, kind domain.TokenKind) (domain.TokenClaims, error)
}

// UserFinder resolves token subjects to users.
type UserFinder interface {
	FindUser(ctx context.Context, id string) (*domain.User, bool, error)
}

// Authorizer builds the middleware that guards protected routes.
type Authorizer struct {
	tokens TokenVerifier
	users  UserFinder
	log    logging.Logger
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(tokens TokenVerifier, users UserFinder) *Authorizer {
	return &Authorizer{
		tokens: tokens,
		users:  users,
		log:    logging.GetLogger("infra.transport.http.authorizer"),
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || scheme != "Bearer" {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}

func identityFromClaims(claims domain.TokenClaims, token string) domain.Identity {
	return domain.Identity{UserID: claims.Subject, Claims: claims, Token: token}
}

// RequireAccessToken rejects requests without a valid access token in the
// Authorization header. The caller's identity is attached to the context.
func (a *Authorizer) RequireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			WriteErrorMessage(w, http.StatusUnauthorized, domain.ErrNoAuthToken.Message, domain.CodeTokenMissing)

			return
		}

		claims, err := a.tokens.VerifyToken(r.Context(), token, domain.TokenKindAccess)
		if err != nil {
			a.log.DebugContext(r.Context(), "access token rejected", "error", err)

			if errors.Is(err, domain.ErrTokenExpired) {
				WriteErrorMessage(w, http.StatusUnauthorized, "token has expired", domain.CodeTokenExpired)
			} else {
				WriteErrorMessage(w, http.StatusUnauthorized, "token is invalid", domain.CodeTokenInvalid)
			}

			return
		}

		ctx := context_.WithIdentity(r.Context(), identityFromClaims(claims, token))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type refreshTokenBody struct {
	RefreshToken string `json:"refreshToken"`
}

// RequireRefreshToken rejects requests without a valid refresh token in the
// JSON body. The body stays readable for the next handler.
func (a *Authorizer) RequireRefreshToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, ErrMalformedBody.Message, "")

			return
		}

		r.Body = io.NopCloser(bytes.NewReader(raw))

		var body refreshTokenBody
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				WriteErrorMessage(w, http.StatusBadRequest, ErrMalformedBody.Message, "")

				return
			}
		}

		if body.RefreshToken == "" {
			WriteErrorMessage(w, http.StatusBadRequest, domain.ErrNoRefreshToken.Message, domain.CodeTokenMissing)

			return
		}

		claims, err := a.tokens.VerifyToken(r.Context(), body.RefreshToken, domain.TokenKindRefresh)
		if err != nil {
			a.log.DebugContext(r.Context(), "refresh token rejected", "error", err)

			if errors.Is(err, domain.ErrTokenExpired) {
				WriteErrorMessage(w, http.StatusUnauthorized,
					"refresh token has expired, please log in again", domain.CodeRefreshTokenExpired)
			} else {
				WriteErrorMessage(w, http.StatusUnauthorized, "refresh token is invalid", domain.CodeRefreshTokenInvalid)
			}

			return
		}

		ctx := context_.WithIdentity(r.Context(), identityFromClaims(claims, body.RefreshToken))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// caller resolves the authenticated user and writes the failure response
// if there is none.
func (a *Authorizer) caller(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	userID, ok := context_.UserIDFromContext(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, domain.ErrNoAuthToken.Message, domain.CodeTokenMissing)

		return nil, false
	}

	account, found, err := a.users.FindUser(r.Context(), userID)
	if err != nil {
		WriteError(w, r, a.log, err)

		return nil, false
	} else if !found {
		WriteErrorMessage(w, http.StatusUnauthorized, domain.ErrSubjectNotFound.Message, domain.CodeUserNotFound)

		return nil, false
	}

	return account, true
}

// RequireAdmin only lets administrators through. It must run after
// RequireAccessToken.
func (a *Authorizer) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := a.caller(w, r)
		if !ok {
			return
		}

		if !account.IsAdmin {
			WriteErrorMessage(w, http.StatusForbidden, domain.ErrAdminRequired.Message, domain.CodeForbidden)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdminOrOwner lets administrators through, and users whose ID equals
// the route variable param. It must run after RequireAccessToken.
func (a *Authorizer) RequireAdminOrOwner(param string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := a.caller(w, r)
			if !ok {
				return
			}

			if !account.IsAdmin && account.ID != mux.Vars(r)[param] {
				WriteErrorMessage(w, http.StatusForbidden, domain.ErrNotOwner.Message, domain.CodeForbidden)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth attaches the caller's identity when a valid access token is
// present and never rejects the request.
func (a *Authorizer) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if claims, err := a.tokens.VerifyToken(r.Context(), token, domain.TokenKindAccess); err == nil {
				r = r.WithContext(context_.WithIdentity(r.Context(), identityFromClaims(claims, token)))
			}
		}

		next.ServeHTTP(w, r)
	})
}
