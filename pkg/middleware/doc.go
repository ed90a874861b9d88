// Package middleware resolves callers, enforces route permissions and
// limits request rates.
//
// The chain for API routes is
//
//	router.Use(resolver.Middleware)  // bearer JWT or dev "id" header -> *auth.Context
//	router.Use(limiter.Middleware)   // Redis fixed window per account or IP
//	router.Handle("/roles", gate.Require(auth.PermRoleCreate, h.CreateRole))
//
// The resolver never rejects a request for a missing, expired or forged
// token; the caller simply stays anonymous and the gate answers 401 on any
// protected route. Failing to load the role's permissions is a 500.
//
// Gate checks are exact: a role holding "product" is not allowed a route
// requiring "product.read".
package middleware
