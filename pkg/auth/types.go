package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/medora/medora/pkg/contextkeys"
)

// Kind is the business type of an account
type Kind int

const (
	KindCompany  Kind = 1
	KindPharmacy Kind = 2
	KindDoctor   Kind = 3
)

// Valid reports whether k is a known account kind
func (k Kind) Valid() bool {
	return k == KindCompany || k == KindPharmacy || k == KindDoctor
}

func (k Kind) String() string {
	switch k {
	case KindCompany:
		return "company"
	case KindPharmacy:
		return "pharmacy"
	case KindDoctor:
		return "doctor"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ProfileTable returns the table holding the kind-specific profile row
func (k Kind) ProfileTable() (string, error) {
	switch k {
	case KindCompany:
		return "companies", nil
	case KindPharmacy:
		return "pharmacies", nil
	case KindDoctor:
		return "doctors", nil
	default:
		return "", fmt.Errorf("unknown account kind %d", int(k))
	}
}

// Identity is the caller identity carried in a token
type Identity struct {
	AccountID  uuid.UUID
	RoleID     *uuid.UUID
	ProviderID uuid.UUID
	Kind       Kind
	Verified   bool
	ProfileID  *uuid.UUID
}

// Context is the authorization context of one request. It is derived from
// the caller identity and the permission keys of the caller's role, and is
// never persisted or shared between requests.
type Context struct {
	Identity
	permissions map[string]struct{}
}

// NewContext builds a context holding exactly the given permission keys
func NewContext(id Identity, permissionKeys []string) *Context {
	perms := make(map[string]struct{}, len(permissionKeys))
	for _, key := range permissionKeys {
		perms[key] = struct{}{}
	}
	return &Context{Identity: id, permissions: perms}
}

// HasPermission is an exact set-membership test. Holding a parent key does
// not grant its children.
func (c *Context) HasPermission(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.permissions[key]
	return ok
}

// PermissionKeys returns the held keys in sorted order
func (c *Context) PermissionKeys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.permissions))
	for k := range c.permissions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON renders the context for the /auth/me endpoint
func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          uuid.UUID  `json:"id"`
		RoleID      *uuid.UUID `json:"role_id"`
		ProviderID  uuid.UUID  `json:"provider_id"`
		Kind        Kind       `json:"kind"`
		Verified    bool       `json:"is_verified"`
		ProfileID   *uuid.UUID `json:"profile_id"`
		Permissions []string   `json:"permissions"`
	}{
		ID:          c.AccountID,
		RoleID:      c.RoleID,
		ProviderID:  c.ProviderID,
		Kind:        c.Kind,
		Verified:    c.Verified,
		ProfileID:   c.ProfileID,
		Permissions: c.PermissionKeys(),
	})
}

// WithContext stores the authorization context in ctx
func WithContext(ctx context.Context, authCtx *Context) context.Context {
	return contextkeys.WithAuth(ctx, authCtx)
}

// FromContext returns the caller's authorization context. The second result
// is false for anonymous callers.
func FromContext(ctx context.Context) (*Context, bool) {
	authCtx, ok := ctx.Value(contextkeys.AuthKey).(*Context)
	if !ok || authCtx == nil {
		return nil, false
	}
	return authCtx, true
}
