package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medora/medora/pkg/database"
	"github.com/medora/medora/pkg/tenancy"
)

const productColumns = "id, provider_id, category_id, name, description, price_cents, created_at, updated_at"

// Store handles product and medicine category persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new catalog store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var p Product
	var category uuid.NullUUID
	if err := row.Scan(
		&p.ID,
		&p.ProviderID,
		&category,
		&p.Name,
		&p.Description,
		&p.PriceCents,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if category.Valid {
		p.CategoryID = &category.UUID
	}
	return &p, nil
}

// ProductQuery narrows a product listing
type ProductQuery struct {
	CategoryID *uuid.UUID
	Limit      int
	Offset     int
}

// ListProducts returns one page of providerID's products and the total
// number matching q
func (s *Store) ListProducts(ctx context.Context, providerID uuid.UUID, q ProductQuery) ([]Product, int, error) {
	f := tenancy.NewFilter(providerID)
	if q.CategoryID != nil {
		f.Eq("category_id", *q.CategoryID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products "+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	where := f.Where()
	page := f.Page(q.Limit, q.Offset)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products "+where+" ORDER BY created_at DESC, id "+page,
		f.Args()...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read products: %w", err)
	}
	return products, total, nil
}

// GetProduct returns a product of providerID
func (s *Store) GetProduct(ctx context.Context, providerID, id uuid.UUID) (*Product, error) {
	f := tenancy.NewFilter(providerID).Eq("id", id)
	row := s.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products "+f.Where(), f.Args()...)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenancy.NotFound("product", id)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// CreateProduct inserts a product owned by providerID
func (s *Store) CreateProduct(ctx context.Context, providerID uuid.UUID, req CreateProductRequest) (*Product, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, provider_id, category_id, name, description, price_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+productColumns,
		uuid.New(), providerID, nullUUID(req.CategoryID), req.Name, req.Description, req.PriceCents,
	)
	p, err := scanProduct(row)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("failed to create product: %w", err))
	}
	return p, nil
}

// UpdateProduct applies the non-nil fields of req to a product of
// providerID
func (s *Store) UpdateProduct(ctx context.Context, providerID, id uuid.UUID, req UpdateProductRequest) (*Product, error) {
	f := tenancy.NewFilter(providerID).Eq("id", id)
	args := f.Args()
	sets := []string{"updated_at = NOW()"}
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if req.Name != nil {
		set("name", *req.Name)
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.PriceCents != nil {
		set("price_cents", *req.PriceCents)
	}
	if req.CategoryID != nil {
		set("category_id", *req.CategoryID)
	}

	query := "UPDATE products SET " + strings.Join(sets, ", ") + " " + f.Where() + " RETURNING " + productColumns
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenancy.NotFound("product", id)
		}
		return nil, database.Classify(fmt.Errorf("failed to update product: %w", err))
	}
	return p, nil
}

// DeleteProduct removes a product of providerID
func (s *Store) DeleteProduct(ctx context.Context, providerID, id uuid.UUID) error {
	f := tenancy.NewFilter(providerID).Eq("id", id)
	res, err := s.db.ExecContext(ctx, "DELETE FROM products "+f.Where(), f.Args()...)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return tenancy.ExpectAffected(res, "product", id)
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
