package httputil

import "net/http"

// Guard wraps handlers with authorization checks. Handler packages register
// their routes through a Guard so they do not depend on how the check is
// made.
type Guard interface {
	// Require runs next only when the caller holds permission
	Require(permission string, next http.HandlerFunc) http.Handler

	// Authenticated runs next for any resolved caller
	Authenticated(next http.HandlerFunc) http.Handler
}
