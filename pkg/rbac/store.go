package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/database"
	"github.com/medora/medora/pkg/tenancy"
)

// Store handles permission catalog and role persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListPermissions returns the whole catalog ordered by key
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, description, parent FROM permissions ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// PermissionTree returns the catalog arranged by parent
func (s *Store) PermissionTree(ctx context.Context) ([]*TreeNode, error) {
	perms, err := s.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTree(perms), nil
}

// CreatePermission adds a catalog entry. An unknown parent is a bad request
// and an existing key a conflict.
func (s *Store) CreatePermission(ctx context.Context, req CreatePermissionRequest) (*Permission, error) {
	if req.Parent != nil && *req.Parent == req.Key {
		return nil, fmt.Errorf("%w: permission %s cannot be its own parent", apierr.ErrBadRequest, req.Key)
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO permissions (key, description, parent) VALUES ($1, $2, $3)",
		req.Key, req.Description, req.Parent,
	)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("failed to create permission: %w", err))
	}

	return &Permission{Key: req.Key, Description: req.Description, Parent: req.Parent}, nil
}

// DeletePermission removes a catalog entry. Role grants of the key are
// removed with it and its children lose their parent.
func (s *Store) DeletePermission(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM permissions WHERE key = $1", key)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return tenancy.ExpectAffected(res, "permission", key)
}

// CreateRole inserts a role owned by providerID together with its
// permission grants in one transaction. Unknown permission keys are
// rejected by the foreign key and reported as a bad request, as are
// platform-scoped keys.
func (s *Store) CreateRole(ctx context.Context, providerID uuid.UUID, req CreateRoleRequest) (*Role, error) {
	if err := rejectPlatformKeys(req.PermissionKeys); err != nil {
		return nil, err
	}
	roleID := uuid.New()

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO roles (id, key, description, provider_id) VALUES ($1, $2, $3, $4)",
			roleID, req.Key, req.Description, providerID,
		); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		return insertRolePermissions(ctx, tx, roleID, req.PermissionKeys, false)
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	return s.GetRole(ctx, providerID, roleID)
}

// GetRole returns a role owned by providerID with its permissions grouped
// one level by parent. Roles of other providers are reported as not found.
func (s *Store) GetRole(ctx context.Context, providerID, roleID uuid.UUID) (*Role, error) {
	f := tenancy.NewFilter(providerID).Eq("id", roleID)
	query := "SELECT id, key, description, provider_id, created_at, updated_at FROM roles " + f.Where()

	var role Role
	var owner uuid.NullUUID
	err := s.db.QueryRowContext(ctx, query, f.Args()...).Scan(
		&role.ID,
		&role.Key,
		&role.Description,
		&owner,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenancy.NotFound("role", roleID)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if owner.Valid {
		role.ProviderID = &owner.UUID
	}

	perms, err := s.rolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	role.Permissions = GroupChildren(perms)

	return &role, nil
}

// ListRoles returns the roles owned by providerID with their grant counts
func (s *Store) ListRoles(ctx context.Context, providerID uuid.UUID) ([]RoleSummary, error) {
	query := `
		SELECT r.id, r.key, r.description, COUNT(rp.id), r.created_at, r.updated_at
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		WHERE r.provider_id = $1
		GROUP BY r.id
		ORDER BY r.created_at, r.key
	`

	rows, err := s.db.QueryContext(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []RoleSummary{}
	for rows.Next() {
		var r RoleSummary
		if err := rows.Scan(&r.ID, &r.Key, &r.Description, &r.PermissionCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}

	return roles, nil
}

// UpdateRole changes the description and, when PermissionKeys is non-nil,
// replaces the whole permission set. The ownership check, the delete and
// the insert run in one transaction.
func (s *Store) UpdateRole(ctx context.Context, providerID, roleID uuid.UUID, req UpdateRoleRequest) (*Role, error) {
	if err := rejectPlatformKeys(req.PermissionKeys); err != nil {
		return nil, err
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		f := tenancy.NewFilter(providerID).Eq("id", roleID)
		var id uuid.UUID
		err := tx.QueryRowContext(ctx, "SELECT id FROM roles "+f.Where()+" FOR UPDATE", f.Args()...).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return tenancy.NotFound("role", roleID)
			}
			return fmt.Errorf("failed to lock role: %w", err)
		}

		if req.Description != nil {
			if _, err := tx.ExecContext(ctx,
				"UPDATE roles SET description = $1, updated_at = NOW() WHERE id = $2",
				*req.Description, roleID,
			); err != nil {
				return fmt.Errorf("failed to update role: %w", err)
			}
		}

		if req.PermissionKeys != nil {
			if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = $1", roleID); err != nil {
				return fmt.Errorf("failed to clear role permissions: %w", err)
			}
			if err := insertRolePermissions(ctx, tx, roleID, req.PermissionKeys, false); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "UPDATE roles SET updated_at = NOW() WHERE id = $1", roleID); err != nil {
				return fmt.Errorf("failed to update role: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	return s.GetRole(ctx, providerID, roleID)
}

// DeleteRole removes a role owned by providerID. Grants cascade and
// accounts holding the role are left without one.
func (s *Store) DeleteRole(ctx context.Context, providerID, roleID uuid.UUID) error {
	f := tenancy.NewFilter(providerID).Eq("id", roleID)
	res, err := s.db.ExecContext(ctx, "DELETE FROM roles "+f.Where(), f.Args()...)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return tenancy.ExpectAffected(res, "role", roleID)
}

// PermissionKeysForRole returns exactly the keys granted to roleID
func (s *Store) PermissionKeysForRole(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT permission_key FROM role_permissions WHERE role_id = $1", roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan permission key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read role permissions: %w", err)
	}
	return keys, nil
}

// SystemRoleID returns the id of a seeded system role
func (s *Store) SystemRoleID(ctx context.Context, key string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM roles WHERE key = $1 AND provider_id IS NULL", key,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("system role %s is not seeded", key)
		}
		return uuid.Nil, fmt.Errorf("failed to get system role: %w", err)
	}
	return id, nil
}

// RoleAssignable reports a bad request unless roleID is a role owned by
// providerID or a system role holding no platform-scoped permission
func (s *Store) RoleAssignable(ctx context.Context, providerID, roleID uuid.UUID) error {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM roles r
			WHERE r.id = $1
			  AND (r.provider_id = $2 OR r.provider_id IS NULL)
			  AND NOT EXISTS (
				SELECT 1 FROM role_permissions rp
				WHERE rp.role_id = r.id AND rp.permission_key = ANY($3)
			  )
		)
	`, roleID, providerID, pq.Array(auth.PlatformKeys())).Scan(&ok)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: role %s is not available", apierr.ErrBadRequest, roleID)
	}
	return nil
}

func (s *Store) rolePermissions(ctx context.Context, roleID uuid.UUID) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.key, p.description, p.parent
		FROM role_permissions rp
		JOIN permissions p ON p.key = rp.permission_key
		WHERE rp.role_id = $1
		ORDER BY p.key
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	perms := []Permission{}
	for rows.Next() {
		var p Permission
		var description, parent sql.NullString
		if err := rows.Scan(&p.Key, &description, &parent); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		if description.Valid {
			p.Description = &description.String
		}
		if parent.Valid {
			p.Parent = &parent.String
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permissions: %w", err)
	}
	return perms, nil
}

func rejectPlatformKeys(keys []string) error {
	for _, key := range keys {
		if auth.IsPlatformPermission(key) {
			return fmt.Errorf("%w: permission %s is reserved for platform administrators", apierr.ErrBadRequest, key)
		}
	}
	return nil
}

// insertRolePermissions grants keys to roleID with one multi-row insert.
// Duplicate keys are collapsed.
func insertRolePermissions(ctx context.Context, q database.Querier, roleID uuid.UUID, keys []string, ignoreExisting bool) error {
	seen := make(map[string]bool, len(keys))
	args := []interface{}{roleID}
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		args = append(args, key)
		values = append(values, fmt.Sprintf("($1, $%d)", len(args)))
	}
	if len(values) == 0 {
		return nil
	}

	query := "INSERT INTO role_permissions (role_id, permission_key) VALUES " + strings.Join(values, ", ")
	if ignoreExisting {
		query += " ON CONFLICT (role_id, permission_key) DO NOTHING"
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert role permissions: %w", err)
	}
	return nil
}
