package authsvc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkrupp/streamhub/internal/domain"
	context_ "github.com/mkrupp/streamhub/internal/infra/context"
	"github.com/mkrupp/streamhub/internal/infra/logging"
	http_ "github.com/mkrupp/streamhub/internal/infra/transport/http"
)

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig
}

// HTTPTransport handles HTTP requests for the authentication service.
// It provides endpoints for registration, login and the token lifecycle.
type HTTPTransport struct {
	authSvc    *AuthService
	authorizer *http_.Authorizer
	log        logging.Logger
	router     *mux.Router
}

// NewHTTPTransport creates a new HTTPTransport instance.
// It requires an AuthService for handling authentication operations and the
// Authorizer guarding the protected endpoints.
func NewHTTPTransport(authSvc *AuthService, authorizer *http_.Authorizer) *HTTPTransport {
	ht := &HTTPTransport{
		authSvc:    authSvc,
		authorizer: authorizer,
		log:        logging.GetLogger("svc.authsvc.http_transport"),
		router:     mux.NewRouter(),
	}

	ht.Register(ht.router)

	return ht
}

// Register mounts the auth endpoints on router:
// - POST /api/auth/register: Register a new user
// - POST /api/auth/login: Login and get a token pair
// - POST /api/auth/refresh: Exchange a refresh token for an access token
// - POST /api/auth/logout: Stateless logout
// - POST /api/auth/verify: Advisory token check
// - POST /api/auth/change-password: Change the caller's password.
func (ht *HTTPTransport) Register(router *mux.Router) {
	auth := router.PathPrefix("/api/auth").Subrouter()

	auth.HandleFunc("/register", ht.HandleRegister).Methods(http.MethodPost)
	auth.HandleFunc("/login", ht.HandleLogin).Methods(http.MethodPost)
	auth.Handle("/refresh", ht.authorizer.RequireRefreshToken(http.HandlerFunc(ht.HandleRefresh))).
		Methods(http.MethodPost)
	auth.HandleFunc("/logout", ht.HandleLogout).Methods(http.MethodPost)
	auth.HandleFunc("/verify", ht.HandleVerify).Methods(http.MethodPost)
	auth.Handle("/change-password", ht.authorizer.RequireAccessToken(http.HandlerFunc(ht.HandleChangePassword))).
		Methods(http.MethodPost)
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

func (ht *HTTPTransport) requestLog(r *http.Request) logging.Logger {
	return ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.Path))
}

// fail renders err and returns it, so handlers can `return ht.fail(...)`.
func (ht *HTTPTransport) fail(w http.ResponseWriter, r *http.Request, err error) error {
	http_.WriteError(w, r, ht.log, err)

	return err
}

// HandleRegister processes user registration requests.
// Expects a JSON body: name, email, password, confirmPassword (optional).
func (ht *HTTPTransport) HandleRegister(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleRegister(w, r)
}

func (ht *HTTPTransport) handleRegister(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "user register failed", "error", err)
		} else {
			log.DebugContext(ctx, "user registered")
		}
	}(r.Context())

	var in RegisterInput
	if err := http_.DecodeJSON(w, r, &in); err != nil {
		return ht.fail(w, r, err)
	}

	result, err := ht.authSvc.RegisterUser(r.Context(), in)
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("register user: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusCreated, "registration successful", result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin processes user login requests.
// Expects a JSON body: email, password.
// Returns the user and a token pair on successful login.
func (ht *HTTPTransport) HandleLogin(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleLogin(w, r)
}

func (ht *HTTPTransport) handleLogin(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "user login failed", "error", err)
		} else {
			log.DebugContext(ctx, "user logged in")
		}
	}(r.Context())

	var in loginRequest
	if err := http_.DecodeJSON(w, r, &in); err != nil {
		return ht.fail(w, r, err)
	}

	result, err := ht.authSvc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("login user: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusOK, "login successful", result)
}

// HandleRefresh issues a new access token. It runs behind RequireRefreshToken,
// which puts the verified refresh token in the context.
func (ht *HTTPTransport) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleRefresh(w, r)
}

func (ht *HTTPTransport) handleRefresh(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "token refresh failed", "error", err)
		} else {
			log.DebugContext(ctx, "token refreshed")
		}
	}(r.Context())

	identity, ok := context_.IdentityFromContext(r.Context())
	if !ok {
		return ht.fail(w, r, domain.ErrNoRefreshToken)
	}

	result, err := ht.authSvc.Refresh(r.Context(), identity.Token)
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("refresh: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusOK, "token refreshed", result)
}

// HandleLogout acknowledges a logout. Tokens are stateless, so the client
// is expected to discard them.
func (ht *HTTPTransport) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ht.authSvc.Logout(r.Context())

	_ = http_.WriteSuccess(w, http.StatusOK, "logout successful, please discard your tokens", nil)
}

type verifyRequest struct {
	Token string `json:"token"`
}

// HandleVerify processes token verification requests.
// Expects a JSON body: token. Always answers 200 with valid and, for
// rejected tokens, a reason code.
func (ht *HTTPTransport) HandleVerify(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleVerify(w, r)
}

func (ht *HTTPTransport) handleVerify(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "token verification failed", "error", err)
		} else {
			log.DebugContext(ctx, "token verified")
		}
	}(r.Context())

	var in verifyRequest
	if err := http_.DecodeJSON(w, r, &in); err != nil {
		return ht.fail(w, r, err)
	}

	result, err := ht.authSvc.Verify(r.Context(), in.Token)
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("verify: %w", err))
	}

	message := "token is valid"
	if !result.Valid {
		message = "token is not valid"
	}

	return http_.WriteSuccess(w, http.StatusOK, message, result)
}

// HandleChangePassword changes the caller's password. It runs behind
// RequireAccessToken.
// Expects a JSON body: currentPassword, newPassword, confirmPassword (optional).
func (ht *HTTPTransport) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleChangePassword(w, r)
}

func (ht *HTTPTransport) handleChangePassword(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "change password failed", "error", err)
		} else {
			log.DebugContext(ctx, "password changed")
		}
	}(r.Context())

	userID, ok := context_.UserIDFromContext(r.Context())
	if !ok {
		return ht.fail(w, r, domain.ErrNoAuthToken)
	}

	var in ChangePasswordInput
	if err := http_.DecodeJSON(w, r, &in); err != nil {
		return ht.fail(w, r, err)
	}

	if err := ht.authSvc.ChangePassword(r.Context(), userID, in); err != nil {
		return ht.fail(w, r, fmt.Errorf("change password: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusOK, "password changed", nil)
}
