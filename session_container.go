package goSession

import (
	"context"
	"sync"
	"time"
)

type containerState struct {
	handle      string
	userID      string
	payload     JSONObject
	grants      JSONObject
	accessToken string
	timeCreated time.Time
	expiry      time.Time
}

// SessionContainer is the request-scoped view of one verified session. It is
// bound to the response it was created with: mutating calls persist through
// the store and re-issue the access cookie when needed.
//
// A container is not safe for use after RevokeSession.
type SessionContainer struct {
	recipe *Recipe
	res    Response

	mu      sync.Mutex
	state   containerState
	revoked bool
}

func newSessionContainer(r *Recipe, res Response, state containerState) *SessionContainer {
	if state.payload == nil {
		state.payload = JSONObject{}
	}
	if state.grants == nil {
		state.grants = JSONObject{}
	}
	return &SessionContainer{
		recipe: r,
		res:    res,
		state:  state,
	}
}

// GetUserID returns the session's user.
func (s *SessionContainer) GetUserID() string {
	return s.state.userID
}

// GetHandle returns the session handle.
func (s *SessionContainer) GetHandle() string {
	return s.state.handle
}

// GetAccessToken returns the signed access token currently bound to this
// request.
func (s *SessionContainer) GetAccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.accessToken
}

// GetAccessTokenPayload returns a copy of the access-token payload.
func (s *SessionContainer) GetAccessTokenPayload() JSONObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CloneJSON(s.state.payload)
}

// GetSessionGrants returns a copy of the grants payload.
func (s *SessionContainer) GetSessionGrants() JSONObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CloneJSON(s.state.grants)
}

// GetSessionData reads the session data from the store.
func (s *SessionContainer) GetSessionData(ctx context.Context) (JSONObject, error) {
	info, err := s.recipe.GetSessionInformation(ctx, s.state.handle)
	if err != nil {
		return nil, err
	}
	return info.SessionData, nil
}

// UpdateSessionData replaces the session data in the store.
func (s *SessionContainer) UpdateSessionData(ctx context.Context, newSessionData JSONObject) error {
	return s.recipe.UpdateSessionData(ctx, s.state.handle, newSessionData)
}

// UpdateAccessTokenPayload replaces the payload in the store and re-issues
// the access cookie on this request's response.
func (s *SessionContainer) UpdateAccessTokenPayload(ctx context.Context, newPayload JSONObject) error {
	s.mu.Lock()
	accessToken := s.state.accessToken
	s.mu.Unlock()

	result, err := s.recipe.RegenerateAccessToken(ctx, accessToken, newPayload, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state.payload = result.Session.AccessTokenPayload
	s.state.grants = result.Session.Grants
	s.state.accessToken = result.AccessToken.Token
	s.mu.Unlock()

	s.recipe.attachAccessToken(s.res, result.AccessToken)
	return nil
}

// GetTimeCreated returns the session's creation time from the store.
func (s *SessionContainer) GetTimeCreated(ctx context.Context) (time.Time, error) {
	if !s.state.timeCreated.IsZero() {
		return s.state.timeCreated, nil
	}
	info, err := s.recipe.GetSessionInformation(ctx, s.state.handle)
	if err != nil {
		return time.Time{}, err
	}
	return info.TimeCreated, nil
}

// GetExpiry returns the session's current expiry from the store.
func (s *SessionContainer) GetExpiry(ctx context.Context) (time.Time, error) {
	if !s.state.expiry.IsZero() {
		return s.state.expiry, nil
	}
	info, err := s.recipe.GetSessionInformation(ctx, s.state.handle)
	if err != nil {
		return time.Time{}, err
	}
	return info.Expiry, nil
}

// RevokeSession revokes this session and clears its cookies on the response.
func (s *SessionContainer) RevokeSession(ctx context.Context) error {
	if _, err := s.recipe.RevokeSession(ctx, s.state.handle); err != nil {
		return err
	}
	s.mu.Lock()
	s.revoked = true
	s.mu.Unlock()
	s.recipe.clearTokens(s.res)
	return nil
}

// FetchGrant runs the grant's FetchValue and, when it yields a value, merges
// it into the grants payload and persists it.
func (s *SessionContainer) FetchGrant(ctx context.Context, grant Grant) error {
	userContext := UserContextFrom(ctx)
	value, err := grant.FetchValue(ctx, s.state.userID, userContext)
	if err != nil {
		return err
	}
	if value == nil {
		return nil
	}

	s.mu.Lock()
	s.state.grants = grant.AddToPayload(s.state.grants, value, userContext)
	grants := CloneJSON(s.state.grants)
	s.mu.Unlock()

	return s.recipe.UpdateSessionGrants(ctx, s.state.handle, grants)
}

// ShouldRefetchGrant reports whether the grant considers its stored value
// stale.
func (s *SessionContainer) ShouldRefetchGrant(ctx context.Context, grant Grant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return grant.ShouldRefetch(s.state.grants, UserContextFrom(ctx))
}

// CheckGrantInToken validates the grant against this request's view of the
// grants payload, without touching the store.
func (s *SessionContainer) CheckGrantInToken(ctx context.Context, grant Grant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return grant.IsValid(s.state.grants, UserContextFrom(ctx))
}

// AddGrant force-sets a grant value and persists it.
func (s *SessionContainer) AddGrant(ctx context.Context, grant Grant, value any) error {
	userContext := UserContextFrom(ctx)

	s.mu.Lock()
	s.state.grants = grant.AddToPayload(s.state.grants, value, userContext)
	grants := CloneJSON(s.state.grants)
	s.mu.Unlock()

	return s.recipe.UpdateSessionGrants(ctx, s.state.handle, grants)
}

// RemoveGrant deletes a grant from the payload and persists the removal.
func (s *SessionContainer) RemoveGrant(ctx context.Context, grant Grant) error {
	userContext := UserContextFrom(ctx)

	s.mu.Lock()
	s.state.grants = grant.RemoveFromPayload(s.state.grants, userContext)
	grants := CloneJSON(s.state.grants)
	s.mu.Unlock()

	return s.recipe.UpdateSessionGrants(ctx, s.state.handle, grants)
}
