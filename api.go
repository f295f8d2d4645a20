package goSession

import (
	"context"
	"net/http"
	"strings"
)

func makeAPIImplementation() APIInterface {
	return APIInterface{
		RefreshPOST:   defaultRefreshPOST,
		SignOutPOST:   defaultSignOutPOST,
		VerifySession: defaultVerifySession,
	}
}

func defaultRefreshPOST(ctx context.Context, options APIOptions) error {
	_, err := options.RecipeImplementation.RefreshSession(ctx, options.Req, options.Res)
	return err
}

func defaultSignOutPOST(ctx context.Context, options APIOptions) (JSONObject, error) {
	required := false
	session, err := options.RecipeImplementation.GetSession(ctx, options.Req, options.Res, &VerifySessionOptions{
		SessionRequired: &required,
	})
	if err != nil {
		return nil, err
	}
	if session != nil {
		if err := session.RevokeSession(ctx); err != nil {
			return nil, err
		}
	}
	return JSONObject{"status": "OK"}, nil
}

func defaultVerifySession(ctx context.Context, verifyOptions *VerifySessionOptions, options APIOptions) (*SessionContainer, error) {
	return options.RecipeImplementation.GetSession(ctx, options.Req, options.Res, verifyOptions)
}

func (r *Recipe) apiOptions(req Request, res Response) APIOptions {
	return APIOptions{
		RecipeImplementation: r.recipeImpl,
		Config:               r.config,
		Req:                  req,
		Res:                  res,
	}
}

// HandleAPIRequest routes one request against the recipe's API surface.
// Returns false when the path/method pair is not a session route or its
// handler was overridden to nil, so the caller can fall through to its own
// routing.
func (r *Recipe) HandleAPIRequest(ctx context.Context, method, path string, req Request, res Response) (bool, error) {
	if !strings.EqualFold(method, http.MethodPost) {
		return false, nil
	}
	base := r.config.APIBasePath
	switch {
	case path == base+"/session/refresh":
		return r.HandleRefreshAPI(ctx, req, res)
	case path == base+"/signout":
		return r.HandleSignOutAPI(ctx, req, res)
	default:
		return false, nil
	}
}

// HandleRefreshAPI runs the refresh handler. A nil RefreshPOST un-handles
// the route.
func (r *Recipe) HandleRefreshAPI(ctx context.Context, req Request, res Response) (bool, error) {
	if r.apiImpl.RefreshPOST == nil {
		return false, nil
	}
	if err := r.apiImpl.RefreshPOST(ctx, r.apiOptions(req, res)); err != nil {
		return true, err
	}
	return true, res.WriteJSON(JSONObject{})
}

// HandleSignOutAPI runs the sign-out handler. A nil SignOutPOST un-handles
// the route.
func (r *Recipe) HandleSignOutAPI(ctx context.Context, req Request, res Response) (bool, error) {
	if r.apiImpl.SignOutPOST == nil {
		return false, nil
	}
	body, err := r.apiImpl.SignOutPOST(ctx, r.apiOptions(req, res))
	if err != nil {
		return true, err
	}
	return true, res.WriteJSON(body)
}

// VerifySession verifies the request through the override-composed API table.
func (r *Recipe) VerifySession(ctx context.Context, verifyOptions *VerifySessionOptions, req Request, res Response) (*SessionContainer, error) {
	return r.apiImpl.VerifySession(ctx, verifyOptions, r.apiOptions(req, res))
}
