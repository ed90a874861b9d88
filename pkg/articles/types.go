package articles

import (
	"time"

	"github.com/google/uuid"
)

// EventCommentCreated is broadcast to the provider room for every new
// comment
const EventCommentCreated = "article.comment.created"

// Article is a provider-owned post
type Article struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	AuthorID   uuid.UUID `json:"author_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	LikeCount  int       `json:"like_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Comment is a comment on an article. Replies are only one level deep.
type Comment struct {
	ID        uuid.UUID  `json:"id"`
	ArticleID uuid.UUID  `json:"article_id"`
	AuthorID  uuid.UUID  `json:"author_id"`
	ParentID  *uuid.UUID `json:"parent_id"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	Replies   []Comment  `json:"replies,omitempty"`
}

// LikeState is the result of a like toggle
type LikeState struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}

// CreateArticleRequest is the body of POST /articles
type CreateArticleRequest struct {
	Title string `json:"title" validate:"required,max=255"`
	Body  string `json:"body" validate:"required"`
}

// UpdateArticleRequest is the body of PUT /articles/{id}
type UpdateArticleRequest struct {
	Title *string `json:"title" validate:"omitempty,min=1,max=255"`
	Body  *string `json:"body" validate:"omitempty,min=1"`
}

// CreateCommentRequest is the body of POST /articles/{id}/comments
type CreateCommentRequest struct {
	Body     string     `json:"body" validate:"required,max=4000"`
	ParentID *uuid.UUID `json:"parent_id"`
}
