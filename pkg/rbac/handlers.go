package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medora/medora/pkg/audit"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/tenancy"
)

// Handlers provides HTTP handlers for the permission catalog and roles
type Handlers struct {
	store       *Store
	auditLogger audit.Logger
}

// NewHandlers creates new RBAC handlers
func NewHandlers(store *Store, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handlers{store: store, auditLogger: auditLogger}
}

// RegisterRoutes registers catalog and role routes behind their permissions
func (h *Handlers) RegisterRoutes(router *mux.Router, guard httputil.Guard) {
	// Permission catalog
	router.Handle("/permissions", guard.Require(auth.PermPermissionRead, h.ListPermissions)).Methods(http.MethodGet)
	router.Handle("/permissions/tree", guard.Require(auth.PermPermissionRead, h.PermissionTree)).Methods(http.MethodGet)
	router.Handle("/permissions", guard.Require(auth.PermPermissionManage, h.CreatePermission)).Methods(http.MethodPost)
	router.Handle("/permissions/{key}", guard.Require(auth.PermPermissionManage, h.DeletePermission)).Methods(http.MethodDelete)

	// Roles
	router.Handle("/roles", guard.Require(auth.PermRoleCreate, h.CreateRole)).Methods(http.MethodPost)
	router.Handle("/roles", guard.Require(auth.PermRoleRead, h.ListRoles)).Methods(http.MethodGet)
	router.Handle("/roles/{id}", guard.Require(auth.PermRoleRead, h.GetRole)).Methods(http.MethodGet)
	router.Handle("/roles/{id}", guard.Require(auth.PermRoleUpdate, h.UpdateRole)).Methods(http.MethodPut)
	router.Handle("/roles/{id}", guard.Require(auth.PermRoleDelete, h.DeleteRole)).Methods(http.MethodDelete)
}

// ListPermissions handles GET /permissions
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Permissions", perms)
}

// PermissionTree handles GET /permissions/tree
func (h *Handlers) PermissionTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.store.PermissionTree(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Permission tree", tree)
}

// CreatePermission handles POST /permissions
func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePermissionRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	perm, err := h.store.CreatePermission(ctx, req)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, audit.NewEvent(ctx, audit.ActionPermissionCreate, audit.ResourcePermission, perm.Key, audit.OutcomeSuccess))
	httputil.WriteCreated(w, "Permission created", perm)
}

// DeletePermission handles DELETE /permissions/{key}
func (h *Handlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := httputil.ParsePathString(r, "key")
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	if err := h.store.DeletePermission(ctx, key); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, audit.NewEvent(ctx, audit.ActionPermissionDelete, audit.ResourcePermission, key, audit.OutcomeSuccess))
	httputil.WriteOK(w, "Permission deleted", nil)
}

// CreateRole handles POST /roles. The role is owned by the caller's
// provider whatever the body says.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	var req CreateRoleRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	role, err := h.store.CreateRole(ctx, scope.ProviderID, req)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	ev := audit.NewEvent(ctx, audit.ActionRoleCreate, audit.ResourceRole, role.ID.String(), audit.OutcomeSuccess)
	ev.Metadata = map[string]interface{}{"permission_keys": req.PermissionKeys}
	audit.Record(ctx, h.auditLogger, ev)

	httputil.WriteCreated(w, "Role created", role)
}

// ListRoles handles GET /roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.FromContext(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	roles, err := h.store.ListRoles(r.Context(), scope.ProviderID)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Roles", roles)
}

// GetRole handles GET /roles/{id}
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.FromContext(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	roleID, err := httputil.ParseUUIDParam(r, "id")
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	role, err := h.store.GetRole(r.Context(), scope.ProviderID, roleID)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Role", role)
}

// UpdateRole handles PUT /roles/{id}
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	roleID, err := httputil.ParseUUIDParam(r, "id")
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	var req UpdateRoleRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	role, err := h.store.UpdateRole(ctx, scope.ProviderID, roleID, req)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	ev := audit.NewEvent(ctx, audit.ActionRoleUpdate, audit.ResourceRole, roleID.String(), audit.OutcomeSuccess)
	if req.PermissionKeys != nil {
		ev.Metadata = map[string]interface{}{"permission_keys": req.PermissionKeys}
	}
	audit.Record(ctx, h.auditLogger, ev)

	httputil.WriteOK(w, "Role updated", role)
}

// DeleteRole handles DELETE /roles/{id}
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	roleID, err := httputil.ParseUUIDParam(r, "id")
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	if err := h.store.DeleteRole(ctx, scope.ProviderID, roleID); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	audit.Record(ctx, h.auditLogger, audit.NewEvent(ctx, audit.ActionRoleDelete, audit.ResourceRole, roleID.String(), audit.OutcomeSuccess))
	httputil.WriteOK(w, "Role deleted", nil)
}
