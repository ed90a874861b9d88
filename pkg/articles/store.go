package articles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/database"
	"github.com/medora/medora/pkg/tenancy"
)

// ErrReplyDepth is returned when replying to a reply
var ErrReplyDepth = fmt.Errorf("%w: replies to replies are not allowed", apierr.ErrBadRequest)

const articleColumns = `a.id, a.provider_id, a.author_id, a.title, a.body,
	(SELECT COUNT(*) FROM article_likes l WHERE l.article_id = a.id),
	a.created_at, a.updated_at`

// providerColumn qualifies the provider column for the aliased articles table
const providerColumn = "a.provider_id"

// Store handles article, comment and like persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new article store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	if err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.AuthorID,
		&a.Title,
		&a.Body,
		&a.LikeCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListArticles returns one page of providerID's articles, newest first
func (s *Store) ListArticles(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Article, int, error) {
	count := tenancy.NewFilter(providerID)
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles "+count.Where(), count.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	f := tenancy.NewFilterOn(providerColumn, providerID)
	where := f.Where()
	query := "SELECT " + articleColumns + " FROM articles a " + where + " ORDER BY a.created_at DESC, a.id " + f.Page(limit, offset)

	rows, err := s.db.QueryContext(ctx, query, f.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read articles: %w", err)
	}
	return articles, total, nil
}

// GetArticle returns an article of providerID
func (s *Store) GetArticle(ctx context.Context, providerID, id uuid.UUID) (*Article, error) {
	f := tenancy.NewFilterOn(providerColumn, providerID).Eq("a.id", id)
	a, err := scanArticle(s.db.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles a "+f.Where(), f.Args()...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenancy.NotFound("article", id)
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return a, nil
}

// CreateArticle inserts an article written by scope's account
func (s *Store) CreateArticle(ctx context.Context, scope tenancy.Scope, req CreateArticleRequest) (*Article, error) {
	a := Article{
		ID:         uuid.New(),
		ProviderID: scope.ProviderID,
		AuthorID:   scope.AccountID,
		Title:      req.Title,
		Body:       req.Body,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO articles (id, provider_id, author_id, title, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, a.ID, a.ProviderID, a.AuthorID, a.Title, a.Body).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("failed to create article: %w", err))
	}
	return &a, nil
}

// UpdateArticle applies the non-nil fields of req to an article of
// providerID
func (s *Store) UpdateArticle(ctx context.Context, providerID, id uuid.UUID, req UpdateArticleRequest) (*Article, error) {
	f := tenancy.NewFilter(providerID).Eq("id", id)
	args := f.Args()
	sets := []string{"updated_at = NOW()"}
	if req.Title != nil {
		args = append(args, *req.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if req.Body != nil {
		args = append(args, *req.Body)
		sets = append(sets, fmt.Sprintf("body = $%d", len(args)))
	}

	res, err := s.db.ExecContext(ctx, "UPDATE articles SET "+strings.Join(sets, ", ")+" "+f.Where(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update article: %w", err)
	}
	if err := tenancy.ExpectAffected(res, "article", id); err != nil {
		return nil, err
	}
	return s.GetArticle(ctx, providerID, id)
}

// DeleteArticle removes an article of providerID with its comments and
// likes
func (s *Store) DeleteArticle(ctx context.Context, providerID, id uuid.UUID) error {
	f := tenancy.NewFilter(providerID).Eq("id", id)
	res, err := s.db.ExecContext(ctx, "DELETE FROM articles "+f.Where(), f.Args()...)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	return tenancy.ExpectAffected(res, "article", id)
}

// ListComments returns the comments of an article of providerID. Replies
// are nested under the comment they answer.
func (s *Store) ListComments(ctx context.Context, providerID, articleID uuid.UUID) ([]Comment, error) {
	if err := requireArticle(ctx, s.db, providerID, articleID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, article_id, author_id, parent_id, body, created_at
		FROM article_comments
		WHERE article_id = $1
		ORDER BY created_at, id
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var flat []Comment
	for rows.Next() {
		var c Comment
		var parent uuid.NullUUID
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.AuthorID, &parent, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if parent.Valid {
			c.ParentID = &parent.UUID
		}
		flat = append(flat, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read comments: %w", err)
	}

	return nestReplies(flat), nil
}

func nestReplies(flat []Comment) []Comment {
	replies := make(map[uuid.UUID][]Comment)
	for _, c := range flat {
		if c.ParentID != nil {
			replies[*c.ParentID] = append(replies[*c.ParentID], c)
		}
	}

	top := []Comment{}
	for _, c := range flat {
		if c.ParentID == nil {
			c.Replies = replies[c.ID]
			top = append(top, c)
		}
	}
	return top
}

// AddComment adds a comment by scope's account to an article of scope's
// provider. A parent must be a top-level comment of the same article.
func (s *Store) AddComment(ctx context.Context, scope tenancy.Scope, articleID uuid.UUID, req CreateCommentRequest) (*Comment, error) {
	c := Comment{
		ID:        uuid.New(),
		ArticleID: articleID,
		AuthorID:  scope.AccountID,
		ParentID:  req.ParentID,
		Body:      req.Body,
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := requireArticle(ctx, tx, scope.ProviderID, articleID); err != nil {
			return err
		}

		if req.ParentID != nil {
			var grandparent uuid.NullUUID
			err := tx.QueryRowContext(ctx,
				"SELECT parent_id FROM article_comments WHERE id = $1 AND article_id = $2",
				*req.ParentID, articleID,
			).Scan(&grandparent)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: parent comment %s not found", apierr.ErrBadRequest, *req.ParentID)
			}
			if err != nil {
				return fmt.Errorf("failed to get parent comment: %w", err)
			}
			if grandparent.Valid {
				return ErrReplyDepth
			}
		}

		return tx.QueryRowContext(ctx, `
			INSERT INTO article_comments (id, article_id, author_id, parent_id, body)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`, c.ID, c.ArticleID, c.AuthorID, nullUUID(c.ParentID), c.Body).Scan(&c.CreatedAt)
	})
	if err != nil {
		return nil, database.Classify(err)
	}
	return &c, nil
}

// ToggleLike likes the article for scope's account, or removes the like
// when one exists
func (s *Store) ToggleLike(ctx context.Context, scope tenancy.Scope, articleID uuid.UUID) (*LikeState, error) {
	var state LikeState
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := requireArticle(ctx, tx, scope.ProviderID, articleID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"DELETE FROM article_likes WHERE article_id = $1 AND account_id = $2",
			articleID, scope.AccountID)
		if err != nil {
			return fmt.Errorf("failed to remove like: %w", err)
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}

		if removed == 0 {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO article_likes (article_id, account_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				articleID, scope.AccountID,
			); err != nil {
				return fmt.Errorf("failed to add like: %w", err)
			}
			state.Liked = true
		}

		return tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM article_likes WHERE article_id = $1", articleID,
		).Scan(&state.LikeCount)
	})
	if err != nil {
		return nil, database.Classify(err)
	}
	return &state, nil
}

// requireArticle reports not found unless articleID belongs to providerID
func requireArticle(ctx context.Context, q database.Querier, providerID, articleID uuid.UUID) error {
	f := tenancy.NewFilter(providerID).Eq("id", articleID)
	var id uuid.UUID
	err := q.QueryRowContext(ctx, "SELECT id FROM articles "+f.Where(), f.Args()...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenancy.NotFound("article", articleID)
		}
		return fmt.Errorf("failed to get article: %w", err)
	}
	return nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
