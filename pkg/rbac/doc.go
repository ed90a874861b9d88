// Package rbac manages the permission catalog and tenant-owned roles.
//
// # Permissions
//
// A permission is a string key such as "product.create" with an optional
// parent key. The catalog is shared by every tenant and seeded at startup
// from permissions.yaml (see Seed). Parents only group keys for display:
// holding "product" does not grant "product.create".
//
// # Roles
//
// A role is a named set of permission keys owned by one provider. Seeded
// system roles (owner, staff, viewer) have no owner and may be assigned by
// any provider. Every role query is filtered by the caller's provider id,
// so a role of another tenant reads as not found.
//
// Role detail responses group permissions one level by parent:
//
//	{"key": "product", "children": [{"key": "product.read"}, ...]}
//
// Children only include keys the role itself holds. Every granted key also
// appears at the top level of the list.
//
// # Usage
//
//	store := rbac.NewStore(db)
//	handlers := rbac.NewHandlers(store, auditLogger)
//	handlers.RegisterRoutes(router, gate)
package rbac
