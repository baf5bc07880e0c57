package usersvc

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mkrupp/streamhub/internal/domain"
	context_ "github.com/mkrupp/streamhub/internal/infra/context"
	"github.com/mkrupp/streamhub/internal/infra/logging"
	http_ "github.com/mkrupp/streamhub/internal/infra/transport/http"
)

const userIDParam = "userId"

// HTTPTransport serves profiles and the admin user management endpoints.
type HTTPTransport struct {
	userSvc    *UserService
	authorizer *http_.Authorizer
	log        logging.Logger
	router     *mux.Router
}

// NewHTTPTransport creates a new HTTPTransport instance.
func NewHTTPTransport(userSvc *UserService, authorizer *http_.Authorizer) *HTTPTransport {
	ht := &HTTPTransport{
		userSvc:    userSvc,
		authorizer: authorizer,
		log:        logging.GetLogger("svc.usersvc.http_transport"),
		router:     mux.NewRouter(),
	}

	ht.Register(ht.router)

	return ht
}

// Register mounts the user endpoints on router:
// - GET /api/users/{userId}: Profile, with private fields for the owner or an admin
// - PUT /api/users/{userId}: Update a profile (owner or admin)
// - GET /api/admin/stats: User counts
// - GET /api/admin/users: Paginated user list (?page, ?limit, ?search)
// - POST /api/admin/users: Create a user
// - GET, PUT, DELETE /api/admin/users/{userId}: Manage a single user.
func (ht *HTTPTransport) Register(router *mux.Router) {
	a := ht.authorizer
	users := router.PathPrefix("/api/users").Subrouter()

	users.Handle("/{userId}", a.OptionalAuth(http.HandlerFunc(ht.HandleGetProfile))).
		Methods(http.MethodGet)
	users.Handle("/{userId}", a.RequireAccessToken(a.RequireAdminOrOwner(userIDParam)(http.HandlerFunc(ht.HandleUpdateProfile)))).
		Methods(http.MethodPut)

	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.Use(a.RequireAccessToken, a.RequireAdmin)

	admin.HandleFunc("/stats", ht.HandleStats).Methods(http.MethodGet)
	admin.HandleFunc("/users", ht.HandleListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users", ht.HandleCreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{userId}", ht.HandleGetUser).Methods(http.MethodGet)
	admin.HandleFunc("/users/{userId}", ht.HandleUpdateUser).Methods(http.MethodPut)
	admin.HandleFunc("/users/{userId}", ht.HandleDeleteUser).Methods(http.MethodDelete)
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

func (ht *HTTPTransport) requestLog(r *http.Request) logging.Logger {
	return ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.Path))
}

func (ht *HTTPTransport) fail(w http.ResponseWriter, r *http.Request, err error) error {
	http_.WriteError(w, r, ht.log, err)

	return err
}

// logResult is deferred by the handlers below.
func logResult(ctx context.Context, log logging.Logger, op string, err error) {
	if err != nil {
		log.DebugContext(ctx, op+" failed", "error", err)
	} else {
		log.DebugContext(ctx, op+" done")
	}
}

// HandleGetProfile returns a user's profile. Anonymous callers and other
// users see the public profile only.
func (ht *HTTPTransport) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleGetProfile(w, r)
}

func (ht *HTTPTransport) handleGetProfile(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)
	defer func(ctx context.Context) { logResult(ctx, log, "get profile", err) }(r.Context())

	account, err := ht.userSvc.Get(r.Context(), mux.Vars(r)[userIDParam])
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("get user: %w", err))
	}

	private, err := ht.canSeePrivate(r.Context(), account)
	if err != nil {
		return ht.fail(w, r, err)
	}

	if private {
		return http_.WriteSuccess(w, http.StatusOK, "", account)
	}

	return http_.WriteSuccess(w, http.StatusOK, "", account.Public())
}

func (ht *HTTPTransport) canSeePrivate(ctx context.Context, account *domain.User) (bool, error) {
	callerID, ok := context_.UserIDFromContext(ctx)
	if !ok {
		return false, nil
	} else if callerID == account.ID {
		return true, nil
	}

	caller, found, err := ht.userSvc.UserRepo.FindByID(ctx, callerID)
	if err != nil {
		return false, fmt.Errorf("find caller: %w", err)
	}

	return found && caller.IsAdmin, nil
}

// HandleUpdateProfile changes name, bio or avatar of a profile.
// Expects a JSON body: name, bio, avatar (all optional).
func (ht *HTTPTransport) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleUpdateProfile(w, r)
}

func (ht *HTTPTransport) handleUpdateProfile(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)
	defer func(ctx context.Context) { logResult(ctx, log, "update profile", err) }(r.Context())

	var in ProfileUpdate
	if err := http_.DecodeJSON(w, r, &in); err != nil {
		return ht.fail(w, r, err)
	}

	account, err := ht.userSvc.UpdateProfile(r.Context(), mux.Vars(r)[userIDParam], in)
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("update profile: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusOK, "profile updated", account)
}

// HandleStats returns the user counts.
func (ht *HTTPTransport) HandleStats(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleStats(w, r)
}

func (ht *HTTPTransport) handleStats(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)
	defer func(ctx context.Context) { logResult(ctx, log, "stats", err) }(r.Context())

	stats, err := ht.userSvc.Stats(r.Context())
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("stats: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusOK, "", stats)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validationError(key + " must be a number")
	}

	return n, nil
}

// HandleListUsers returns a page of users.
// Query parameters: page (default 1), limit (default 10, max 100), search.
func (ht *HTTPTransport) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleListUsers(w, r)
}

func (ht *HTTPTransport) handleListUsers(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)
	defer func(ctx context.Context) { logResult(ctx, log, "list users", err) }(r.Context())

	page, err := queryInt(r, "page")
	if err != nil {
		return ht.fail(w, r, err)
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		return ht.fail(w, r, err)
	}

	result, err := ht.userSvc.List(r.Context(), ListInput{
		Page:   page,
		Limit:  limit,
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("list users: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusOK, "", result)
}

// HandleCreateUser creates an active, verified account.
// Expects a JSON body: name, email, password, isAdmin (optional).
func (ht *HTTPTransport) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleCreateUser(w, r)
}

func (ht *HTTPTransport) handleCreateUser(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)
	defer func(ctx context.Context) { logResult(ctx, log, "create user", err) }(r.Context())

	var in CreateUserInput
	if err := http_.DecodeJSON(w, r, &in); err != nil {
		return ht.fail(w, r, err)
	}

	account, err := ht.userSvc.Create(r.Context(), in)
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("create user: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusCreated, "user created", account)
}

// HandleGetUser returns the full account of any user.
func (ht *HTTPTransport) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleGetUser(w, r)
}

func (ht *HTTPTransport) handleGetUser(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)
	defer func(ctx context.Context) { logResult(ctx, log, "get user", err) }(r.Context())

	account, err := ht.userSvc.Get(r.Context(), mux.Vars(r)[userIDParam])
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("get user: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusOK, "", account)
}

// HandleUpdateUser changes any account field except the password.
// Expects a JSON body: name, email, bio, avatar, isAdmin, isActive (all optional).
func (ht *HTTPTransport) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleUpdateUser(w, r)
}

func (ht *HTTPTransport) handleUpdateUser(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)
	defer func(ctx context.Context) { logResult(ctx, log, "update user", err) }(r.Context())

	var in AdminUpdate
	if err := http_.DecodeJSON(w, r, &in); err != nil {
		return ht.fail(w, r, err)
	}

	account, err := ht.userSvc.Update(r.Context(), mux.Vars(r)[userIDParam], in)
	if err != nil {
		return ht.fail(w, r, fmt.Errorf("update user: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusOK, "user updated", account)
}

// HandleDeleteUser removes an account.
func (ht *HTTPTransport) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleDeleteUser(w, r)
}

func (ht *HTTPTransport) handleDeleteUser(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.requestLog(r)
	defer func(ctx context.Context) { logResult(ctx, log, "delete user", err) }(r.Context())

	if err := ht.userSvc.Delete(r.Context(), mux.Vars(r)[userIDParam]); err != nil {
		return ht.fail(w, r, fmt.Errorf("delete user: %w", err))
	}

	return http_.WriteSuccess(w, http.StatusOK, "user deleted", nil)
}
