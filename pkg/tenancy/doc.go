// Package tenancy applies provider scoping to queries on provider-owned
// tables.
//
// Every read-one, update and delete of a provider-owned row filters on the
// row id AND the caller's provider id. A row owned by another provider is
// reported exactly like a missing row:
//
//	scope, err := tenancy.FromContext(ctx)
//	f := tenancy.NewFilter(scope.ProviderID).Eq("id", productID)
//	res, err := db.ExecContext(ctx, "DELETE FROM products "+f.Where(), f.Args()...)
//	err = tenancy.ExpectAffected(res, "product", productID)
//
// Creates stamp provider_id from the scope, never from the request body.
// Shared tables (the permission catalog, medicine categories) are not
// scoped.
package tenancy
