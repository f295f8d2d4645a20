// Package middleware adapts the transport-neutral session recipe to net/http:
// cookie/header extraction, the VerifySession guard, and a handler for the
// session routes.
package middleware
