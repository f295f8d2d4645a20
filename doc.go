// Package goSession is a Redis-backed session SDK built around a signed
// access token, a rotating refresh token with reuse (theft) detection, and a
// grants payload gating access to protected operations.
//
// # Quick start
//
//	recipe, err := goSession.New().
//		WithRedis(rdb).
//		Build()
//	if err != nil { ... }
//	defer recipe.Close()
//
//	session, err := recipe.CreateNewSession(ctx, res, "user-1", nil, nil, nil)
//
// Incoming requests are verified with GetSession (or the middleware
// package's VerifySession wrapper); expired access tokens fail with
// ErrTryRefreshToken and the client calls the refresh route, where
// presenting anything but the session's current refresh token revokes every
// session of that user.
//
// All recipe behavior — the function table, the API handlers, and the OpenID
// JWT sub-feature — can be replaced piecemeal through Config.Override.
package goSession
