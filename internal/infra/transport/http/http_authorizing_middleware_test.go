package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/streamhub/internal/domain"
	context_ "github.com/mkrupp/streamhub/internal/infra/context"
	http_ "github.com/mkrupp/streamhub/internal/infra/transport/http"
)

var errStoreDown = errors.New("store down")

// fakeAuth maps token strings to verification results.
type fakeAuth struct {
	tokens map[string]domain.TokenClaims
	errs   map[string]error
	users  map[string]*domain.User
	err    error
}

func (f *fakeAuth) VerifyToken(_ context.Context, token string, kind domain.TokenKind) (domain.TokenClaims, error) {
	if err, ok := f.errs[token]; ok {
		return domain.TokenClaims{}, err
	}

	claims, ok := f.tokens[token]
	if !ok || claims.Kind != kind {
		return domain.TokenClaims{}, errors.Join(domain.ErrInvalidAuthToken, errors.New("unknown token"))
	}

	return claims, nil
}

func (f *fakeAuth) FindUser(_ context.Context, id string) (*domain.User, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}

	u, ok := f.users[id]

	return u, ok, nil
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		tokens: map[string]domain.TokenClaims{
			"user-access":  {Subject: "u-user", Kind: domain.TokenKindAccess},
			"admin-access": {Subject: "u-admin", Kind: domain.TokenKindAccess},
			"gone-access":  {Subject: "u-gone", Kind: domain.TokenKindAccess},
			"user-refresh": {Subject: "u-user", Kind: domain.TokenKindRefresh},
		},
		errs: map[string]error{
			"expired-access":  errors.Join(domain.ErrTokenExpired, errors.New("exp")),
			"expired-refresh": errors.Join(domain.ErrTokenExpired, errors.New("exp")),
		},
		users: map[string]*domain.User{
			"u-user":  {ID: "u-user"},
			"u-admin": {ID: "u-admin", IsAdmin: true},
		},
	}
}

// echoIdentity writes the caller's user ID, or "anonymous".
func echoIdentity(w http.ResponseWriter, r *http.Request) {
	if identity, ok := context_.IdentityFromContext(r.Context()); ok {
		_, _ = io.WriteString(w, identity.UserID+":"+identity.Token)

		return
	}

	_, _ = io.WriteString(w, "anonymous")
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) http_.ErrorResponse {
	t.Helper()

	var body http_.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)

	return body
}

func TestRequireAccessToken(t *testing.T) {
	t.Parallel()

	handler := http_.NewAuthorizer(newFakeAuth(), newFakeAuth()).RequireAccessToken(http.HandlerFunc(echoIdentity))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
		wantBody   string
	}{
		{name: "valid", header: "Bearer user-access", wantStatus: http.StatusOK, wantBody: "u-user:user-access"},
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantCode: domain.CodeTokenMissing},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: domain.CodeTokenMissing},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantCode: domain.CodeTokenMissing},
		{name: "expired", header: "Bearer expired-access", wantStatus: http.StatusUnauthorized, wantCode: domain.CodeTokenExpired},
		{name: "invalid", header: "Bearer garbage", wantStatus: http.StatusUnauthorized, wantCode: domain.CodeTokenInvalid},
		{name: "refresh token", header: "Bearer user-refresh", wantStatus: http.StatusUnauthorized, wantCode: domain.CodeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			} else {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireRefreshToken(t *testing.T) {
	t.Parallel()

	var bodySeen string

	handler := http_.NewAuthorizer(newFakeAuth(), newFakeAuth()).RequireRefreshToken(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			bodySeen = string(raw)
			echoIdentity(w, r)
		}),
	)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "valid", body: `{"refreshToken":"user-refresh"}`, wantStatus: http.StatusOK},
		{name: "empty body", body: ``, wantStatus: http.StatusBadRequest, wantCode: domain.CodeTokenMissing},
		{name: "missing field", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: domain.CodeTokenMissing},
		{name: "malformed", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "expired", body: `{"refreshToken":"expired-refresh"}`, wantStatus: http.StatusUnauthorized, wantCode: domain.CodeRefreshTokenExpired},
		{name: "access token", body: `{"refreshToken":"user-access"}`, wantStatus: http.StatusUnauthorized, wantCode: domain.CodeRefreshTokenInvalid},
	}

	//nolint:paralleltest
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))

			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "u-user:user-refresh", rec.Body.String())
				assert.Equal(t, tt.body, bodySeen)

				return
			}

			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	auth := newFakeAuth()
	authorizer := http_.NewAuthorizer(auth, auth)
	handler := authorizer.RequireAccessToken(authorizer.RequireAdmin(http.HandlerFunc(echoIdentity)))

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantCode   string
	}{
		{name: "admin", token: "admin-access", wantStatus: http.StatusOK},
		{name: "non-admin is forbidden, not unauthorized", token: "user-access", wantStatus: http.StatusForbidden, wantCode: domain.CodeForbidden},
		{name: "deleted user", token: "gone-access", wantStatus: http.StatusUnauthorized, wantCode: domain.CodeUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			}
		})
	}
}

func TestRequireAdminWithoutIdentity(t *testing.T) {
	t.Parallel()

	handler := http_.NewAuthorizer(newFakeAuth(), newFakeAuth()).RequireAdmin(http.HandlerFunc(echoIdentity))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeTokenMissing, decodeError(t, rec).Code)
}

func TestRequireAdminStoreFailure(t *testing.T) {
	t.Parallel()

	auth := newFakeAuth()
	auth.err = errStoreDown
	authorizer := http_.NewAuthorizer(auth, auth)
	handler := authorizer.RequireAccessToken(authorizer.RequireAdmin(http.HandlerFunc(echoIdentity)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer admin-access")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec).Message)
}

func TestRequireAdminOrOwner(t *testing.T) {
	t.Parallel()

	auth := newFakeAuth()
	authorizer := http_.NewAuthorizer(auth, auth)

	router := mux.NewRouter()
	router.Handle("/users/{userId}", authorizer.RequireAccessToken(
		authorizer.RequireAdminOrOwner("userId")(http.HandlerFunc(echoIdentity)),
	))

	tests := []struct {
		name       string
		token      string
		path       string
		wantStatus int
	}{
		{name: "owner", token: "user-access", path: "/users/u-user", wantStatus: http.StatusOK},
		{name: "admin on someone else", token: "admin-access", path: "/users/u-user", wantStatus: http.StatusOK},
		{name: "someone else", token: "user-access", path: "/users/u-admin", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPut, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	t.Parallel()

	handler := http_.NewAuthorizer(newFakeAuth(), newFakeAuth()).OptionalAuth(http.HandlerFunc(echoIdentity))

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "anonymous", want: "anonymous"},
		{name: "valid", header: "Bearer user-access", want: "u-user:user-access"},
		{name: "expired", header: "Bearer expired-access", want: "anonymous"},
		{name: "invalid", header: "Bearer garbage", want: "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}
