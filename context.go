package goSession

import "context"

type userContextKey struct{}

// WithUserContext attaches a caller-supplied user context object that flows
// through recipe functions, grant callbacks, and overrides.
func WithUserContext(ctx context.Context, userContext JSONObject) context.Context {
	return context.WithValue(ctx, userContextKey{}, userContext)
}

// UserContextFrom extracts the user context, or an empty object when none was
// attached.
func UserContextFrom(ctx context.Context) JSONObject {
	if v, ok := ctx.Value(userContextKey{}).(JSONObject); ok && v != nil {
		return v
	}
	return JSONObject{}
}
