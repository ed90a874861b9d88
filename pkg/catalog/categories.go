package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/medora/medora/pkg/database"
)

// ListCategories returns every medicine category ordered by name.
// Categories are shared by all tenants.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, parent_id, created_at FROM medicine_categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		var parent uuid.NullUUID
		if err := rows.Scan(&c.ID, &c.Name, &parent, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if parent.Valid {
			c.ParentID = &parent.UUID
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}
	return categories, nil
}

// CategoryTree returns the categories arranged by parent
func (s *Store) CategoryTree(ctx context.Context) ([]*CategoryNode, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return buildCategoryTree(categories), nil
}

// CreateCategory inserts a category. An unknown parent is a bad request
// and a duplicate name a conflict.
func (s *Store) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*Category, error) {
	c := Category{ID: uuid.New(), Name: req.Name, ParentID: req.ParentID}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO medicine_categories (id, name, parent_id) VALUES ($1, $2, $3) RETURNING created_at",
		c.ID, c.Name, nullUUID(c.ParentID),
	).Scan(&c.CreatedAt)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("failed to create category: %w", err))
	}
	return &c, nil
}

// buildCategoryTree nests categories under their parents. Categories whose
// parent is missing become roots.
func buildCategoryTree(categories []Category) []*CategoryNode {
	nodes := make(map[uuid.UUID]*CategoryNode, len(categories))
	for _, c := range categories {
		nodes[c.ID] = &CategoryNode{Category: c, Children: []*CategoryNode{}}
	}

	roots := []*CategoryNode{}
	for _, c := range categories {
		node := nodes[c.ID]
		if c.ParentID != nil {
			if parent, ok := nodes[*c.ParentID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*CategoryNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}
