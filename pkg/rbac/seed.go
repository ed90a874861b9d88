package rbac

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/database"
	"github.com/medora/medora/pkg/observability"
)

//go:embed permissions.yaml
var defaultCatalog []byte

// allPermissions in a role's permission list expands to the whole catalog,
// less the platform-scoped keys for provider roles
const allPermissions = "*"

// scopePlatform marks a catalog permission reserved for platform roles
const scopePlatform = "platform"

// Catalog is the permission catalog and the system roles applied at startup
type Catalog struct {
	Permissions []CatalogPermission `yaml:"permissions"`
	Roles       []CatalogRole       `yaml:"roles"`
}

// CatalogPermission is one seeded permission
type CatalogPermission struct {
	Key         string `yaml:"key"`
	Description string `yaml:"description"`
	Parent      string `yaml:"parent"`
	Scope       string `yaml:"scope"`
}

// CatalogRole is one seeded system role. Only platform roles may hold
// platform-scoped permissions.
type CatalogRole struct {
	Key         string   `yaml:"key"`
	Description string   `yaml:"description"`
	Platform    bool     `yaml:"platform"`
	Permissions []string `yaml:"permissions"`
}

// DefaultCatalog returns the catalog embedded in the binary
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse permission catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that keys are unique, parents exist, the parent graph is
// acyclic and roles only reference catalog keys. Platform scope must agree
// with auth.IsPlatformPermission and provider roles must not list
// platform-scoped keys.
func (c *Catalog) Validate() error {
	parents := make(map[string]string, len(c.Permissions))
	for _, p := range c.Permissions {
		if strings.TrimSpace(p.Key) == "" {
			return errors.New("permission catalog: empty permission key")
		}
		if _, dup := parents[p.Key]; dup {
			return fmt.Errorf("permission catalog: duplicate permission %q", p.Key)
		}
		parents[p.Key] = p.Parent

		switch p.Scope {
		case "", scopePlatform:
		default:
			return fmt.Errorf("permission catalog: %q has unknown scope %q", p.Key, p.Scope)
		}
		if (p.Scope == scopePlatform) != auth.IsPlatformPermission(p.Key) {
			return fmt.Errorf("permission catalog: %q scope does not match the platform key set", p.Key)
		}
	}

	for key, parent := range parents {
		if parent == "" {
			continue
		}
		if _, ok := parents[parent]; !ok {
			return fmt.Errorf("permission catalog: %q has unknown parent %q", key, parent)
		}
	}

	if key := findCycle(parents); key != "" {
		return fmt.Errorf("permission catalog: parent cycle through %q", key)
	}

	roles := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if strings.TrimSpace(r.Key) == "" {
			return errors.New("permission catalog: empty role key")
		}
		if roles[r.Key] {
			return fmt.Errorf("permission catalog: duplicate role %q", r.Key)
		}
		roles[r.Key] = true

		for _, key := range r.Permissions {
			if key == allPermissions {
				continue
			}
			if _, ok := parents[key]; !ok {
				return fmt.Errorf("permission catalog: role %q references unknown permission %q", r.Key, key)
			}
			if !r.Platform && auth.IsPlatformPermission(key) {
				return fmt.Errorf("permission catalog: role %q cannot hold platform permission %q", r.Key, key)
			}
		}
	}

	return nil
}

// RolePermissionKeys expands the permission list of a system role. "*"
// covers platform-scoped keys only for platform roles.
func (c *Catalog) RolePermissionKeys(role CatalogRole) []string {
	for _, key := range role.Permissions {
		if key == allPermissions {
			keys := make([]string, 0, len(c.Permissions))
			for _, p := range c.Permissions {
				if p.Scope == scopePlatform && !role.Platform {
					continue
				}
				keys = append(keys, p.Key)
			}
			return keys
		}
	}
	return role.Permissions
}

// platformRoleKeys lists the catalog roles allowed to keep platform keys
func (c *Catalog) platformRoleKeys() []string {
	keys := []string{}
	for _, r := range c.Roles {
		if r.Platform {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// Seed applies the catalog. It is idempotent: existing permissions get
// their description and parent refreshed, system roles are matched by key,
// and missing role permissions are added without removing others. The one
// removal is platform-scoped grants held by any role that is not a
// platform system role.
func Seed(ctx context.Context, db *sql.DB, c *Catalog, logger *observability.Logger) error {
	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		// parents are linked in a second pass so catalog order does not matter
		for _, p := range c.Permissions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO permissions (key, description)
				VALUES ($1, $2)
				ON CONFLICT (key) DO UPDATE SET description = EXCLUDED.description
			`, p.Key, nullString(p.Description)); err != nil {
				return fmt.Errorf("failed to seed permission %s: %w", p.Key, err)
			}
		}

		for _, p := range c.Permissions {
			if _, err := tx.ExecContext(ctx,
				"UPDATE permissions SET parent = $2 WHERE key = $1",
				p.Key, nullString(p.Parent),
			); err != nil {
				return fmt.Errorf("failed to link permission %s: %w", p.Key, err)
			}
		}

		for _, r := range c.Roles {
			var roleID uuid.UUID
			err := tx.QueryRowContext(ctx, `
				INSERT INTO roles (id, key, description)
				VALUES ($1, $2, $3)
				ON CONFLICT (key) WHERE provider_id IS NULL
				DO UPDATE SET description = EXCLUDED.description
				RETURNING id
			`, uuid.New(), r.Key, r.Description).Scan(&roleID)
			if err != nil {
				return fmt.Errorf("failed to seed role %s: %w", r.Key, err)
			}

			if err := insertRolePermissions(ctx, tx, roleID, c.RolePermissionKeys(r), true); err != nil {
				return fmt.Errorf("failed to seed role %s: %w", r.Key, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM role_permissions rp
			USING roles r
			WHERE r.id = rp.role_id
			  AND rp.permission_key = ANY($1)
			  AND NOT (r.provider_id IS NULL AND r.key = ANY($2))
		`, pq.Array(auth.PlatformKeys()), pq.Array(c.platformRoleKeys())); err != nil {
			return fmt.Errorf("failed to revoke platform permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"permissions": len(c.Permissions),
		"roles":       len(c.Roles),
	}).Info("Seeded permission catalog")
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
