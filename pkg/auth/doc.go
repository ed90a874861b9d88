// Package auth holds the caller identity and the per-request authorization
// context.
//
// A Context is built by the authentication resolver from a verified token
// and the permission keys of the caller's role:
//
//	id, err := tokens.Parse(auth.BearerToken(r.Header.Get("Authorization")))
//	keys, err := roles.PermissionKeysForRole(ctx, *id.RoleID)
//	ctx = auth.WithContext(ctx, auth.NewContext(id, keys))
//
// Permission checks are exact set membership. A parent permission key does
// not grant the keys beneath it.
//
// Tokens are HS256 JWTs carrying the account id as the subject together with
// role_id, is_verified, kind, provider_id and profile_id claims.
package auth
