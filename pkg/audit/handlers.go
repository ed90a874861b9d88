package audit

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/tenancy"
)

// Lister reads a provider's audit trail
type Lister interface {
	List(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Event, int, error)
}

// Handlers serves the audit trail of the caller's provider
type Handlers struct {
	store Lister
}

// NewHandlers creates audit handlers
func NewHandlers(store Lister) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers audit routes
func (h *Handlers) RegisterRoutes(router *mux.Router, guard httputil.Guard) {
	router.Handle("/audit/events", guard.Require(auth.PermAuditRead, h.listEvents)).Methods(http.MethodGet)
}

// listEvents handles GET /audit/events. format=csv returns the page as CSV.
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
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

	events, total, err := h.store.List(r.Context(), scope.ProviderID, limit, (page-1)*limit)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	if httputil.ParseQueryString(r, "format", "json") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-events.csv"`)
		if err := writeCSV(w, events); err != nil {
			httputil.WriteErr(w, r, err)
		}
		return
	}

	httputil.WritePaginated(w, "Audit events", events, httputil.NewPagination(page, limit, total))
}
