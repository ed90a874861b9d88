package catalog

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/tenancy"
)

// Handlers provides HTTP handlers for products and medicine categories
type Handlers struct {
	store *Store
}

// NewHandlers creates new catalog handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers product and medicine category routes
func (h *Handlers) RegisterRoutes(router *mux.Router, guard httputil.Guard) {
	router.Handle("/products", guard.Require(auth.PermProductRead, h.ListProducts)).Methods(http.MethodGet)
	router.Handle("/products", guard.Require(auth.PermProductCreate, h.CreateProduct)).Methods(http.MethodPost)
	router.Handle("/products/{id}", guard.Require(auth.PermProductRead, h.GetProduct)).Methods(http.MethodGet)
	router.Handle("/products/{id}", guard.Require(auth.PermProductUpdate, h.UpdateProduct)).Methods(http.MethodPut)
	router.Handle("/products/{id}", guard.Require(auth.PermProductDelete, h.DeleteProduct)).Methods(http.MethodDelete)

	// Categories are shared reference data and readable without a token
	router.HandleFunc("/medicine-categories", h.ListCategories).Methods(http.MethodGet)
	router.HandleFunc("/medicine-categories/tree", h.CategoryTree).Methods(http.MethodGet)
	router.Handle("/medicine-categories", guard.Require(auth.PermMedicineCategoryManage, h.CreateCategory)).Methods(http.MethodPost)
}

// ListProducts handles GET /products
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
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

	q := ProductQuery{Limit: limit, Offset: (page - 1) * limit}
	if raw := httputil.ParseQueryString(r, "category_id", ""); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httputil.WriteErr(w, r, fmt.Errorf("%w: category_id must be a valid UUID", apierr.ErrValidation))
			return
		}
		q.CategoryID = &id
	}

	products, total, err := h.store.ListProducts(r.Context(), scope.ProviderID, q)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WritePaginated(w, "Products", products, httputil.NewPagination(page, limit, total))
}

// CreateProduct handles POST /products
func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.FromContext(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	var req CreateProductRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	product, err := h.store.CreateProduct(r.Context(), scope.ProviderID, req)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteCreated(w, "Product created", product)
}

// GetProduct handles GET /products/{id}
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
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

	product, err := h.store.GetProduct(r.Context(), scope.ProviderID, id)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Product", product)
}

// UpdateProduct handles PUT /products/{id}
func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateProductRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	product, err := h.store.UpdateProduct(r.Context(), scope.ProviderID, id, req)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Product updated", product)
}

// DeleteProduct handles DELETE /products/{id}
func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
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

	if err := h.store.DeleteProduct(r.Context(), scope.ProviderID, id); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Product deleted", nil)
}

// ListCategories handles GET /medicine-categories
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Medicine categories", categories)
}

// CategoryTree handles GET /medicine-categories/tree
func (h *Handlers) CategoryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.store.CategoryTree(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Medicine category tree", tree)
}

// CreateCategory handles POST /medicine-categories
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	category, err := h.store.CreateCategory(r.Context(), req)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteCreated(w, "Medicine category created", category)
}
