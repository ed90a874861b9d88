package articles

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/observability"
	"github.com/medora/medora/pkg/tenancy"
)

// Broadcaster delivers an event to every connection in a room
type Broadcaster interface {
	Broadcast(ctx context.Context, room, event string, payload interface{}) error
}

// Handlers provides HTTP handlers for articles, comments and likes
type Handlers struct {
	store       *Store
	broadcaster Broadcaster
}

// NewHandlers creates new article handlers. broadcaster may be nil.
func NewHandlers(store *Store, broadcaster Broadcaster) *Handlers {
	return &Handlers{store: store, broadcaster: broadcaster}
}

// RegisterRoutes registers article routes
func (h *Handlers) RegisterRoutes(router *mux.Router, guard httputil.Guard) {
	router.Handle("/articles", guard.Require(auth.PermArticleRead, h.ListArticles)).Methods(http.MethodGet)
	router.Handle("/articles", guard.Require(auth.PermArticleCreate, h.CreateArticle)).Methods(http.MethodPost)
	router.Handle("/articles/{id}", guard.Require(auth.PermArticleRead, h.GetArticle)).Methods(http.MethodGet)
	router.Handle("/articles/{id}", guard.Require(auth.PermArticleUpdate, h.UpdateArticle)).Methods(http.MethodPut)
	router.Handle("/articles/{id}", guard.Require(auth.PermArticleDelete, h.DeleteArticle)).Methods(http.MethodDelete)

	router.Handle("/articles/{id}/comments", guard.Require(auth.PermArticleRead, h.ListComments)).Methods(http.MethodGet)
	router.Handle("/articles/{id}/comments", guard.Require(auth.PermArticleComment, h.AddComment)).Methods(http.MethodPost)
	router.Handle("/articles/{id}/like", guard.Require(auth.PermArticleLike, h.ToggleLike)).Methods(http.MethodPost)
}

// scopeAndID reads the caller scope and the {id} path parameter
func scopeAndID(r *http.Request) (tenancy.Scope, uuid.UUID, error) {
	scope, err := tenancy.FromContext(r.Context())
	if err != nil {
		return tenancy.Scope{}, uuid.Nil, err
	}
	id, err := httputil.ParseUUIDParam(r, "id")
	if err != nil {
		return tenancy.Scope{}, uuid.Nil, err
	}
	return scope, id, nil
}

// ListArticles handles GET /articles
func (h *Handlers) ListArticles(w http.ResponseWriter, r *http.Request) {
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

	articles, total, err := h.store.ListArticles(r.Context(), scope.ProviderID, limit, (page-1)*limit)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WritePaginated(w, "Articles", articles, httputil.NewPagination(page, limit, total))
}

// CreateArticle handles POST /articles
func (h *Handlers) CreateArticle(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.FromContext(r.Context())
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	var req CreateArticleRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	article, err := h.store.CreateArticle(r.Context(), scope, req)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteCreated(w, "Article created", article)
}

// GetArticle handles GET /articles/{id}
func (h *Handlers) GetArticle(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	article, err := h.store.GetArticle(r.Context(), scope.ProviderID, id)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Article", article)
}

// UpdateArticle handles PUT /articles/{id}
func (h *Handlers) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	var req UpdateArticleRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	article, err := h.store.UpdateArticle(r.Context(), scope.ProviderID, id, req)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Article updated", article)
}

// DeleteArticle handles DELETE /articles/{id}
func (h *Handlers) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	if err := h.store.DeleteArticle(r.Context(), scope.ProviderID, id); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Article deleted", nil)
}

// ListComments handles GET /articles/{id}/comments
func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	comments, err := h.store.ListComments(r.Context(), scope.ProviderID, id)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	httputil.WriteOK(w, "Comments", comments)
}

// AddComment handles POST /articles/{id}/comments and announces the new
// comment to the provider room
func (h *Handlers) AddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, id, err := scopeAndID(r)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	var req CreateCommentRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	comment, err := h.store.AddComment(ctx, scope, id, req)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	if h.broadcaster != nil {
		if err := h.broadcaster.Broadcast(ctx, scope.ProviderID.String(), EventCommentCreated, comment); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to broadcast comment")
		}
	}

	httputil.WriteCreated(w, "Comment added", comment)
}

// ToggleLike handles POST /articles/{id}/like
func (h *Handlers) ToggleLike(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	state, err := h.store.ToggleLike(r.Context(), scope, id)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}

	message := "Article unliked"
	if state.Liked {
		message = "Article liked"
	}
	httputil.WriteOK(w, message, state)
}
