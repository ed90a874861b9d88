package middleware

import (
	"net/http"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/audit"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/observability"
)

// Gate outcomes used as metric labels
const (
	outcomeAllowed         = "allowed"
	outcomeDenied          = "denied"
	outcomeUnauthenticated = "unauthenticated"
)

// Gate enforces the single permission a route declares. The check is exact
// membership in the caller's permission set.
type Gate struct {
	metrics     *observability.Metrics
	auditLogger audit.Logger
}

// NewGate creates a gate. Both arguments may be nil.
func NewGate(metrics *observability.Metrics, auditLogger audit.Logger) *Gate {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Gate{metrics: metrics, auditLogger: auditLogger}
}

// Require runs next only when the caller holds permission. Anonymous
// callers get 401 and callers without the key get 403.
func (g *Gate) Require(permission string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := auth.FromContext(r.Context())
		if !ok {
			g.record(permission, outcomeUnauthenticated)
			httputil.WriteErr(w, r, apierr.ErrUnauthenticated)
			return
		}

		if !authCtx.HasPermission(permission) {
			g.record(permission, outcomeDenied)
			g.auditDenial(r, permission)
			httputil.WriteErr(w, r, apierr.ErrForbidden)
			return
		}

		g.record(permission, outcomeAllowed)
		next(w, r)
	})
}

// Authenticated runs next for any resolved caller
func (g *Gate) Authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			httputil.WriteErr(w, r, apierr.ErrUnauthenticated)
			return
		}
		next(w, r)
	})
}

func (g *Gate) record(permission, outcome string) {
	if g.metrics != nil {
		g.metrics.AuthzDecisionsTotal.WithLabelValues(permission, outcome).Inc()
	}
}

func (g *Gate) auditDenial(r *http.Request, permission string) {
	ctx := r.Context()
	ev := audit.NewEvent(ctx, audit.ActionAccessDenied, audit.ResourceRoute, r.Method+" "+r.URL.Path, audit.OutcomeDenied)
	ev.StatusCode = http.StatusForbidden
	ev.Metadata = map[string]interface{}{"permission": permission}
	audit.Record(ctx, g.auditLogger, ev)
}
