package middleware

import (
	"context"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

type sessionContextKey struct{}

// SessionFromContext returns the verified session attached by VerifySession.
// The second return is false on routes where the session was optional and no
// tokens were presented.
func SessionFromContext(ctx context.Context) (*goSession.SessionContainer, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*goSession.SessionContainer)
	return s, ok && s != nil
}

// VerifySession guards a handler with session verification. Recipe errors are
// written through the recipe's error handlers; anything else becomes a 500.
func VerifySession(recipe *goSession.Recipe, options *goSession.VerifySessionOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, res := WrapRequest(r), WrapResponse(w)

			session, err := recipe.VerifySession(r.Context(), options, req, res)
			if err != nil {
				if handleErr := recipe.HandleError(err, req, res); handleErr != nil {
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
				return
			}

			ctx := r.Context()
			if session != nil {
				ctx = context.WithValue(ctx, sessionContextKey{}, session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionRoutes serves the recipe's own routes (refresh, signout) and passes
// everything else to next.
func SessionRoutes(recipe *goSession.Recipe, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, res := WrapRequest(r), WrapResponse(w)

		handled, err := recipe.HandleAPIRequest(r.Context(), r.Method, r.URL.Path, req, res)
		if err != nil {
			if handleErr := recipe.HandleError(err, req, res); handleErr != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}
		if handled {
			return
		}
		if next != nil {
			next.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}
