package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Permission is one entry of the shared permission catalog
type Permission struct {
	Key         string  `json:"key"`
	Description *string `json:"description"`
	Parent      *string `json:"parent"`
}

// PermissionNode is a permission of a role annotated with the other
// permissions of the same role whose parent is this key
type PermissionNode struct {
	Permission
	Children []Permission `json:"children"`
}

// TreeNode is a catalog permission with its full subtree
type TreeNode struct {
	Permission
	Children []*TreeNode `json:"children"`
}

// Role is a tenant-owned bundle of permission keys. ProviderID is nil for
// system roles seeded at bootstrap.
type Role struct {
	ID          uuid.UUID        `json:"id"`
	Key         string           `json:"key"`
	Description string           `json:"description"`
	ProviderID  *uuid.UUID       `json:"provider_id"`
	Permissions []PermissionNode `json:"permissions"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// RoleSummary is the list view of a role
type RoleSummary struct {
	ID              uuid.UUID `json:"id"`
	Key             string    `json:"key"`
	Description     string    `json:"description"`
	PermissionCount int       `json:"permission_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateRoleRequest is the body of POST /roles
type CreateRoleRequest struct {
	Key            string   `json:"key" validate:"required,max=64"`
	Description    string   `json:"description"`
	PermissionKeys []string `json:"permission_keys" validate:"dive,required,max=128"`
}

// UpdateRoleRequest is the body of PUT /roles/{id}. A nil PermissionKeys
// leaves the permission set untouched; an empty slice clears it.
type UpdateRoleRequest struct {
	Description    *string  `json:"description"`
	PermissionKeys []string `json:"permission_keys" validate:"omitempty,dive,required,max=128"`
}

// CreatePermissionRequest is the body of POST /permissions
type CreatePermissionRequest struct {
	Key         string  `json:"key" validate:"required,max=128"`
	Description *string `json:"description"`
	Parent      *string `json:"parent" validate:"omitempty,max=128"`
}
