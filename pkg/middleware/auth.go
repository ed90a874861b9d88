package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/observability"
)

// DevIdentityHeader carries a raw account id when the development seam is
// enabled
const DevIdentityHeader = "id"

// Resolution sources and results used as metric labels
const (
	sourceBearer    = "bearer"
	sourceDevHeader = "dev_header"
	sourceNone      = "none"

	resultResolved  = "resolved"
	resultAnonymous = "anonymous"
	resultInvalid   = "invalid"
	resultError     = "error"
)

// PermissionLoader returns the permission keys granted to a role
type PermissionLoader interface {
	PermissionKeysForRole(ctx context.Context, roleID uuid.UUID) ([]string, error)
}

// IdentityLoader returns the identity of an account. It reports
// apierr.ErrNotFound for unknown accounts.
type IdentityLoader interface {
	IdentityByID(ctx context.Context, accountID uuid.UUID) (auth.Identity, error)
}

// ResolverConfig configures a Resolver
type ResolverConfig struct {
	Tokens      *auth.TokenManager
	Permissions PermissionLoader

	// Identities and DevHeader enable the "id" header. It must stay off in
	// production.
	Identities IdentityLoader
	DevHeader  bool

	Metrics *observability.Metrics
}

// Resolver turns request credentials into an authorization context. A
// missing or invalid credential leaves the request anonymous; a storage
// failure while loading permissions fails the request.
type Resolver struct {
	cfg ResolverConfig
}

// NewResolver creates a resolver
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Middleware attaches the caller's authorization context to the request
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := res.Resolve(r.Context(), r.Header)
		if err != nil {
			httputil.WriteErr(w, r, err)
			return
		}
		if authCtx != nil {
			r = r.WithContext(auth.WithContext(r.Context(), authCtx))
		}
		next.ServeHTTP(w, r)
	})
}

// Resolve builds the authorization context for the credentials in header.
// It returns nil without an error when the caller stays anonymous.
func (res *Resolver) Resolve(ctx context.Context, header http.Header) (*auth.Context, error) {
	if token := auth.BearerToken(header.Get("Authorization")); token != "" {
		return res.resolveToken(ctx, token)
	}

	if res.cfg.DevHeader && res.cfg.Identities != nil {
		if raw := strings.TrimSpace(header.Get(DevIdentityHeader)); raw != "" {
			return res.resolveDevHeader(ctx, raw)
		}
	}

	res.record(sourceNone, resultAnonymous)
	return nil, nil
}

func (res *Resolver) resolveToken(ctx context.Context, token string) (*auth.Context, error) {
	if res.cfg.Tokens == nil {
		res.record(sourceBearer, resultInvalid)
		return nil, nil
	}

	id, err := res.cfg.Tokens.Parse(token)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Debug("Ignoring invalid bearer token")
		res.record(sourceBearer, resultInvalid)
		return nil, nil
	}

	return res.build(ctx, sourceBearer, id)
}

func (res *Resolver) resolveDevHeader(ctx context.Context, raw string) (*auth.Context, error) {
	accountID, err := uuid.Parse(raw)
	if err != nil {
		res.record(sourceDevHeader, resultInvalid)
		return nil, nil
	}

	id, err := res.cfg.Identities.IdentityByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			res.record(sourceDevHeader, resultInvalid)
			return nil, nil
		}
		res.record(sourceDevHeader, resultError)
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	return res.build(ctx, sourceDevHeader, id)
}

// build loads the role's permission keys. An account without a role gets
// an empty permission set.
func (res *Resolver) build(ctx context.Context, source string, id auth.Identity) (*auth.Context, error) {
	var keys []string
	if id.RoleID != nil {
		var err error
		keys, err = res.cfg.Permissions.PermissionKeysForRole(ctx, *id.RoleID)
		if err != nil {
			res.record(source, resultError)
			return nil, fmt.Errorf("failed to resolve permissions: %w", err)
		}
	}

	res.record(source, resultResolved)
	return auth.NewContext(id, keys), nil
}

func (res *Resolver) record(source, result string) {
	if res.cfg.Metrics != nil {
		res.cfg.Metrics.AuthResolutionsTotal.WithLabelValues(source, result).Inc()
	}
}
