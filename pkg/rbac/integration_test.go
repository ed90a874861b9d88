//go:build integration

package rbac

import (
	"context"
	"database/sql"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/database/dbtest"
	"github.com/medora/medora/pkg/observability"
)

func insertProvider(t *testing.T, db *sql.DB, email string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec("INSERT INTO accounts (id, email, kind) VALUES ($1, $2, 1)", id, email)
	require.NoError(t, err)
	return id
}

func TestIntegration_SeedAndRoles(t *testing.T) {
	db := dbtest.SetupPostgres(t)
	ctx := context.Background()
	logger := observability.NewLogger(observability.InfoLevel, io.Discard)

	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	// seeding twice leaves the same catalog
	require.NoError(t, Seed(ctx, db, catalog, logger))
	require.NoError(t, Seed(ctx, db, catalog, logger))

	store := NewStore(db)
	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(catalog.Permissions))

	ownerID, err := store.SystemRoleID(ctx, RoleOwner)
	require.NoError(t, err)
	ownerKeys, err := store.PermissionKeysForRole(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, ownerKeys, len(catalog.Permissions)-len(auth.PlatformKeys()))
	for _, key := range auth.PlatformKeys() {
		assert.NotContains(t, ownerKeys, key)
	}

	adminID, err := store.SystemRoleID(ctx, RolePlatformAdmin)
	require.NoError(t, err)
	adminKeys, err := store.PermissionKeysForRole(ctx, adminID)
	require.NoError(t, err)
	assert.Len(t, adminKeys, len(catalog.Permissions))

	p1 := insertProvider(t, db, "p1@example.com")
	p2 := insertProvider(t, db, "p2@example.com")

	t.Run("create and read back", func(t *testing.T) {
		role, err := store.CreateRole(ctx, p1, CreateRoleRequest{
			Key:            "counter",
			PermissionKeys: []string{"product", "product.read", "product.create"},
		})
		require.NoError(t, err)
		require.Len(t, role.Permissions, 3)
		for _, p := range role.Permissions {
			if p.Key == "product" {
				assert.Len(t, p.Children, 2)
			}
		}

		_, err = store.GetRole(ctx, p2, role.ID)
		assert.ErrorIs(t, err, apierr.ErrNotFound)

		assert.ErrorIs(t, store.RoleAssignable(ctx, p2, role.ID), apierr.ErrBadRequest)
		assert.NoError(t, store.RoleAssignable(ctx, p2, ownerID))
		assert.ErrorIs(t, store.RoleAssignable(ctx, p2, adminID), apierr.ErrBadRequest)
	})

	t.Run("platform permissions stay out of provider roles", func(t *testing.T) {
		_, err := store.CreateRole(ctx, p1, CreateRoleRequest{
			Key:            "escalate",
			PermissionKeys: []string{auth.PermPermissionManage},
		})
		assert.ErrorIs(t, err, apierr.ErrBadRequest)

		// grants written around the store are revoked by the next seed
		role, err := store.CreateRole(ctx, p1, CreateRoleRequest{Key: "legacy"})
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO role_permissions (role_id, permission_key) VALUES ($1, $2), ($1, $3)",
			role.ID, auth.PermMedicineCategoryManage, auth.PermProductRead)
		require.NoError(t, err)

		require.NoError(t, Seed(ctx, db, catalog, logger))

		keys, err := store.PermissionKeysForRole(ctx, role.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{auth.PermProductRead}, keys)

		adminKeys, err := store.PermissionKeysForRole(ctx, adminID)
		require.NoError(t, err)
		assert.Subset(t, adminKeys, auth.PlatformKeys())
	})

	t.Run("update replaces the set", func(t *testing.T) {
		role, err := store.CreateRole(ctx, p1, CreateRoleRequest{
			Key:            "replace",
			PermissionKeys: []string{"article.read", "article.create"},
		})
		require.NoError(t, err)

		updated, err := store.UpdateRole(ctx, p1, role.ID, UpdateRoleRequest{PermissionKeys: []string{"audit.read"}})
		require.NoError(t, err)
		require.Len(t, updated.Permissions, 1)
		assert.Equal(t, "audit.read", updated.Permissions[0].Key)

		keys, err := store.PermissionKeysForRole(ctx, role.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"audit.read"}, keys)
	})

	t.Run("unknown key rolls back", func(t *testing.T) {
		_, err := store.CreateRole(ctx, p1, CreateRoleRequest{
			Key:            "broken",
			PermissionKeys: []string{"does.not.exist"},
		})
		assert.ErrorIs(t, err, apierr.ErrBadRequest)

		roles, err := store.ListRoles(ctx, p1)
		require.NoError(t, err)
		for _, r := range roles {
			assert.NotEqual(t, "broken", r.Key)
		}
	})

	t.Run("delete is scoped", func(t *testing.T) {
		role, err := store.CreateRole(ctx, p1, CreateRoleRequest{Key: "temp"})
		require.NoError(t, err)

		assert.ErrorIs(t, store.DeleteRole(ctx, p2, role.ID), apierr.ErrNotFound)
		assert.NoError(t, store.DeleteRole(ctx, p1, role.ID))
		assert.ErrorIs(t, store.DeleteRole(ctx, p1, role.ID), apierr.ErrNotFound)
	})

	countGrants := func(t *testing.T, query string, arg interface{}) int {
		t.Helper()
		var n int
		require.NoError(t, db.QueryRow(query, arg).Scan(&n))
		return n
	}

	t.Run("deleting a role removes only its grants", func(t *testing.T) {
		shared := []string{auth.PermProductRead, auth.PermArticleRead}
		doomed, err := store.CreateRole(ctx, p1, CreateRoleRequest{Key: "doomed", PermissionKeys: shared})
		require.NoError(t, err)
		kept, err := store.CreateRole(ctx, p2, CreateRoleRequest{Key: "kept", PermissionKeys: shared})
		require.NoError(t, err)

		byRole := "SELECT COUNT(*) FROM role_permissions WHERE role_id = $1"
		require.Equal(t, 2, countGrants(t, byRole, doomed.ID))

		require.NoError(t, store.DeleteRole(ctx, p1, doomed.ID))

		assert.Equal(t, 0, countGrants(t, byRole, doomed.ID))
		assert.Equal(t, 2, countGrants(t, byRole, kept.ID))

		keys, err := store.PermissionKeysForRole(ctx, kept.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, shared, keys)
	})

	t.Run("deleting a permission removes its grants and unlinks children", func(t *testing.T) {
		parent := "report"
		_, err := store.CreatePermission(ctx, CreatePermissionRequest{Key: parent})
		require.NoError(t, err)
		_, err = store.CreatePermission(ctx, CreatePermissionRequest{Key: "report.read", Parent: &parent})
		require.NoError(t, err)

		r1, err := store.CreateRole(ctx, p1, CreateRoleRequest{
			Key:            "reporter",
			PermissionKeys: []string{parent, "report.read", auth.PermProductRead},
		})
		require.NoError(t, err)
		r2, err := store.CreateRole(ctx, p2, CreateRoleRequest{
			Key:            "reporter",
			PermissionKeys: []string{parent},
		})
		require.NoError(t, err)

		byKey := "SELECT COUNT(*) FROM role_permissions WHERE permission_key = $1"
		before := countGrants(t, byKey, auth.PermProductRead)
		require.Equal(t, 2, countGrants(t, byKey, parent))

		require.NoError(t, store.DeletePermission(ctx, parent))

		assert.Equal(t, 0, countGrants(t, byKey, parent))
		assert.Equal(t, before, countGrants(t, byKey, auth.PermProductRead))

		keys, err := store.PermissionKeysForRole(ctx, r1.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"report.read", auth.PermProductRead}, keys)

		keys, err = store.PermissionKeysForRole(ctx, r2.ID)
		require.NoError(t, err)
		assert.Empty(t, keys)

		var orphanParent sql.NullString
		require.NoError(t, db.QueryRow("SELECT parent FROM permissions WHERE key = 'report.read'").Scan(&orphanParent))
		assert.False(t, orphanParent.Valid)

		ownerKeys, err := store.PermissionKeysForRole(ctx, ownerID)
		require.NoError(t, err)
		assert.Contains(t, ownerKeys, auth.PermProductRead)
	})
}
