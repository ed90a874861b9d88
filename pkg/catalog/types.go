package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Product is a provider-owned catalog item
type Product struct {
	ID          uuid.UUID  `json:"id"`
	ProviderID  uuid.UUID  `json:"provider_id"`
	CategoryID  *uuid.UUID `json:"category_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	PriceCents  int64      `json:"price_cents"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateProductRequest is the body of POST /products
type CreateProductRequest struct {
	Name        string     `json:"name" validate:"required,max=255"`
	Description string     `json:"description"`
	PriceCents  int64      `json:"price_cents" validate:"min=0"`
	CategoryID  *uuid.UUID `json:"category_id"`
}

// UpdateProductRequest is the body of PUT /products/{id}. Nil fields are
// left unchanged.
type UpdateProductRequest struct {
	Name        *string    `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string    `json:"description"`
	PriceCents  *int64     `json:"price_cents" validate:"omitempty,min=0"`
	CategoryID  *uuid.UUID `json:"category_id"`
}

// Category is a medicine category shared by all tenants
type Category struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	ParentID  *uuid.UUID `json:"parent_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// CategoryNode is a category with its subcategories
type CategoryNode struct {
	Category
	Children []*CategoryNode `json:"children"`
}

// CreateCategoryRequest is the body of POST /medicine-categories
type CreateCategoryRequest struct {
	Name     string     `json:"name" validate:"required,max=255"`
	ParentID *uuid.UUID `json:"parent_id"`
}
