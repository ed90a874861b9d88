package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/audit"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/observability"
	"github.com/medora/medora/pkg/rbac"
	"github.com/medora/medora/pkg/tenancy"
)

// errBadCredentials is the single login failure message. It does not
// reveal whether the email exists.
var errBadCredentials = fmt.Errorf("%w: invalid email or password", apierr.ErrUnauthenticated)

// Roles resolves the roles an account may be given
type Roles interface {
	SystemRoleID(ctx context.Context, key string) (uuid.UUID, error)
	RoleAssignable(ctx context.Context, providerID, roleID uuid.UUID) error
}

// Handlers provides HTTP handlers for authentication and member accounts
type Handlers struct {
	store       *Store
	roles       Roles
	tokens      *auth.TokenManager
	auditLogger audit.Logger
}

// NewHandlers creates new account handlers
func NewHandlers(store *Store, roles Roles, tokens *auth.TokenManager, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handlers{
		store:       store,
		roles:       roles,
		tokens:      tokens,
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers authentication and account routes
func (h *Handlers) RegisterRoutes(router *mux.Router, guard httputil.Guard) {
	router.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	router.Handle("/auth/me", guard.Authenticated(h.Me)).Methods(http.MethodGet)

	router.Handle("/accounts", guard.Require(auth.PermAccountRead, h.ListAccounts)).Methods(http.MethodGet)
	router.Handle("/accounts", guard.Require(auth.PermAccountCreate, h.CreateAccount)).Methods(http.MethodPost)
	router.Handle("/accounts/{id}", guard.Require(auth.PermAccountRead, h.GetAccount)).Methods(http.MethodGet)
	router.Handle("/accounts/{id}", guard.Require(auth.PermAccountDelete, h.DeleteAccount)).Methods(http.MethodDelete)
}

// Register handles POST /auth/register. The new account is the root of a
// new tenant and holds the system owner role.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	ownerRole, err := h.roles.SystemRoleID(ctx, rbac.RoleOwner)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	acct, err := h.store.CreateProvider(ctx, NewAccount{
		Email:            req.Email,
		Phone:            req.Phone,
		Name:             req.Name,
		PasswordHash:     hash,
		Kind:             req.Kind,
		ProviderVerified: true,
		RoleID:           &ownerRole,
	}, req.DisplayName)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	ev := audit.NewEvent(ctx, audit.ActionAccountCreate, audit.ResourceAccount, acct.ID.String(), audit.OutcomeSuccess)
	ev.ActorID = &acct.ID
	ev.ProviderID = &acct.ID
	audit.Record(ctx, h.auditLogger, ev)

	httputil.WriteCreated(w, "Account registered", acct)
}

// Login handles POST /auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	acct, hash, err := h.store.Credentials(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			h.loginFailed(ctx, nil, "unknown email")
			httputil.WriteErr(w, r, errBadCredentials)
			return
		}
		httputil.WriteErr(w, r, err)
		return
	}

	if hash == "" {
		h.loginFailed(ctx, acct, "no password")
		httputil.WriteErr(w, r, errBadCredentials)
		return
	}
	ok, err := VerifyPassword(hash, req.Password)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	if !ok {
		h.loginFailed(ctx, acct, "wrong password")
		httputil.WriteErr(w, r, errBadCredentials)
		return
	}

	token, expiresAt, err := h.tokens.Issue(acct.Identity())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	httputil.WriteOK(w, "Logged in", LoginResponse{Token: token, ExpiresAt: expiresAt, Account: acct})
}

func (h *Handlers) loginFailed(ctx context.Context, acct *Account, reason string) {
	observability.FromContext(ctx).WithField("reason", reason).Info("Login rejected")

	var accountID string
	if acct != nil {
		accountID = acct.ID.String()
	}
	ev := audit.NewEvent(ctx, audit.ActionLogin, audit.ResourceAccount, accountID, audit.OutcomeFailure)
	ev.StatusCode = http.StatusUnauthorized
	if acct != nil {
		provider := acct.ProviderID()
		ev.ActorID = &acct.ID
		ev.ProviderID = &provider
	}
	audit.Record(ctx, h.auditLogger, ev)
}

// Me handles GET /auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := auth.FromContext(r.Context())
	httputil.WriteOK(w, "Current account", authCtx)
}

// ListAccounts handles GET /accounts
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.FromContext(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	page, limit, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	accounts, total, err := h.store.ListByProvider(r.Context(), scope.ProviderID, limit, (page-1)*limit)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WritePaginated(w, "Accounts", accounts, httputil.NewPagination(page, limit, total))
}

// CreateAccount handles POST /accounts. The member joins the caller's
// provider and shares its kind and profile.
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authCtx, ok := auth.FromContext(ctx)
	if !ok {
		httputil.WriteErr(w, r, apierr.ErrUnauthenticated)
		return
	}

	var req CreateMemberRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	if err := h.roles.RoleAssignable(ctx, authCtx.ProviderID, req.RoleID); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	provider := authCtx.ProviderID
	acct, err := h.store.CreateMember(ctx, NewAccount{
		Email:            req.Email,
		Phone:            req.Phone,
		Name:             req.Name,
		PasswordHash:     hash,
		Kind:             authCtx.Kind,
		ProviderVerified: true,
		ProviderID:       &provider,
		RoleID:           &req.RoleID,
		ProfileID:        authCtx.ProfileID,
	})
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	ev := audit.NewEvent(ctx, audit.ActionAccountCreate, audit.ResourceAccount, acct.ID.String(), audit.OutcomeSuccess)
	ev.Metadata = map[string]interface{}{"role_id": req.RoleID.String()}
	audit.Record(ctx, h.auditLogger, ev)

	httputil.WriteCreated(w, "Account created", acct)
}

// GetAccount handles GET /accounts/{id}
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.FromContext(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	id, err := httputil.ParseUUIDParam(r, "id")
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	acct, err := h.store.GetScoped(r.Context(), scope.ProviderID, id)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Account", acct)
}

// DeleteAccount handles DELETE /accounts/{id}
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	id, err := httputil.ParseUUIDParam(r, "id")
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	if err := h.store.DeleteScoped(ctx, scope.ProviderID, id); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, audit.NewEvent(ctx, audit.ActionAccountDelete, audit.ResourceAccount, id.String(), audit.OutcomeSuccess))
	httputil.WriteOK(w, "Account deleted", nil)
}
