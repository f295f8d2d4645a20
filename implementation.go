package goSession

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
)

// makeRecipeImplementation builds the default function table. Overrides run
// on top of the returned value.
func makeRecipeImplementation(r *Recipe) RecipeInterface {
	return RecipeInterface{
		CreateNewSession:            r.createNewSession,
		GetSession:                  r.getSession,
		RefreshSession:              r.refreshSession,
		GetSessionInformation:       r.getSessionInformation,
		GetAllSessionHandlesForUser: r.getAllSessionHandlesForUser,
		RevokeSession:               r.revokeSession,
		RevokeMultipleSessions:      r.revokeMultipleSessions,
		RevokeAllSessionsForUser:    r.revokeAllSessionsForUser,
		UpdateSessionData:           r.updateSessionData,
		UpdateAccessTokenPayload:    r.updateAccessTokenPayload,
		UpdateSessionGrants:         r.updateSessionGrants,
		RegenerateAccessToken:       r.regenerateAccessToken,
		GetAccessTokenLifetime:      r.getAccessTokenLifetime,
		GetRefreshTokenLifetime:     r.getRefreshTokenLifetime,
	}
}

func hashHex(secret [32]byte) string {
	sum := internal.HashChainSecret(secret)
	return hex.EncodeToString(sum[:])
}

// withStandaloneJWT re-mints the OpenID sub-feature JWT into the payload
// when the feature is enabled. The returned payload is a copy.
func (r *Recipe) withStandaloneJWT(ctx context.Context, userID string, payload JSONObject) (JSONObject, error) {
	if !r.config.JWT.Enable {
		return payload, nil
	}
	prop := r.config.JWT.PropertyNameInAccessTokenPayload

	claims := CloneJSON(payload)
	delete(claims, prop)
	claims["sub"] = userID

	signed, err := r.jwtImpl.CreateJWT(ctx, claims, uint64(r.config.AccessTokenValidity.Seconds()))
	if err != nil {
		return nil, err
	}
	out := CloneJSON(payload)
	out[prop] = signed
	return out, nil
}

func (r *Recipe) createNewSession(ctx context.Context, res Response, userID string, accessTokenPayload, sessionData JSONObject, sessionGrants []Grant) (*SessionContainer, error) {
	if userID == "" {
		return nil, newBadInput("userID must not be empty")
	}
	if accessTokenPayload == nil {
		accessTokenPayload = JSONObject{}
	}
	if sessionData == nil {
		sessionData = JSONObject{}
	}

	handle := uuid.NewString()
	userContext := UserContextFrom(ctx)

	// Seed the grants payload from the configured defaults plus any per-call
	// grants. Validity is not enforced at creation; the verify path does that.
	grants := JSONObject{}
	for _, grant := range mergeRequiredGrants(r.config.DefaultRequiredGrants, sessionGrants) {
		value, err := grant.FetchValue(ctx, userID, userContext)
		if err != nil {
			return nil, err
		}
		if value != nil {
			grants = grant.AddToPayload(grants, value, userContext)
		}
	}

	payload, err := r.withStandaloneJWT(ctx, userID, accessTokenPayload)
	if err != nil {
		return nil, err
	}

	refreshSecret, err := internal.NewChainSecret()
	if err != nil {
		return nil, err
	}
	idSecret, err := internal.NewChainSecret()
	if err != nil {
		return nil, err
	}
	refreshToken, err := internal.EncodeChainToken(handle, refreshSecret)
	if err != nil {
		return nil, err
	}
	idRefreshToken, err := internal.EncodeChainToken(handle, idSecret)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiry := now.Add(r.config.RefreshTokenValidity)
	refreshHash := hashHex(refreshSecret)

	var antiCsrf string
	if r.config.AntiCsrf == token.AntiCsrfViaToken {
		antiCsrf = token.NewAntiCsrfToken()
	}

	key, err := r.currentSigningKey(ctx)
	if err != nil {
		return nil, err
	}
	accessToken, accessExpiry, err := token.Issue(key, token.IssueParams{
		SessionHandle:    handle,
		UserID:           userID,
		RefreshTokenHash: refreshHash,
		UserPayload:      payload,
		Grants:           grants,
		AntiCsrf:         antiCsrf,
		Validity:         r.config.AccessTokenValidity,
	})
	if err != nil {
		return nil, err
	}

	if err := r.store.CreateSession(ctx, &store.SessionRecord{
		SessionHandle:      handle,
		UserID:             userID,
		RefreshTokenHash:   refreshHash,
		IdRefreshTokenHash: hashHex(idSecret),
		SessionData:        sessionData,
		AccessTokenPayload: payload,
		Grants:             grants,
		TimeCreatedMS:      now.UnixMilli(),
		ExpiryMS:           expiry.UnixMilli(),
	}); err != nil {
		return nil, err
	}

	tokens := &SessionTokens{
		AccessToken:    TokenInfo{Token: accessToken, ExpiryMS: accessExpiry.UnixMilli(), CreatedMS: now.UnixMilli()},
		RefreshToken:   TokenInfo{Token: refreshToken, ExpiryMS: expiry.UnixMilli(), CreatedMS: now.UnixMilli()},
		IdRefreshToken: TokenInfo{Token: idRefreshToken, ExpiryMS: expiry.UnixMilli(), CreatedMS: now.UnixMilli()},
		AntiCsrfToken:  antiCsrf,
	}
	r.attachTokens(res, tokens)

	r.metrics.Inc(MetricSessionCreated)
	r.emitAudit(ctx, AuditSessionCreated, userID, handle, true, nil)
	r.logger.Debug().Str("sessionHandle", handle).Str("userId", userID).Msg("session created")

	return newSessionContainer(r, res, containerState{
		handle:      handle,
		userID:      userID,
		payload:     payload,
		grants:      grants,
		accessToken: accessToken,
		timeCreated: now,
		expiry:      expiry,
	}), nil
}

func (r *Recipe) getSession(ctx context.Context, req Request, res Response, options *VerifySessionOptions) (*SessionContainer, error) {
	start := time.Now()
	container, err := r.getSessionInner(ctx, req, res, options)
	r.metrics.Observe(MetricVerifyLatency, time.Since(start))
	if err != nil {
		r.metrics.Inc(MetricVerifyFailure)
		return nil, err
	}
	if container != nil {
		r.metrics.Inc(MetricSessionVerified)
	}
	return container, nil
}

func (r *Recipe) getSessionInner(ctx context.Context, req Request, res Response, options *VerifySessionOptions) (*SessionContainer, error) {
	idRefreshToken := req.GetCookie(IdRefreshTokenCookieName)
	if idRefreshToken == "" {
		if !options.sessionRequired() {
			return nil, nil
		}
		return nil, newUnauthorised("no session tokens on request", nil)
	}

	accessToken := req.GetCookie(AccessTokenCookieName)
	if accessToken == "" {
		return nil, newTryRefreshToken("access token missing", nil)
	}

	state, err := r.getHandshake(ctx)
	if err != nil {
		return nil, err
	}

	claims, verifyErr := token.Verify(accessToken, state.verifyKeys, 0)
	if errors.Is(verifyErr, token.ErrUnknownKeyID) {
		// The signing key may have rotated under us; refetch once.
		state, err = r.refreshHandshake(ctx)
		if err != nil {
			return nil, err
		}
		claims, verifyErr = token.Verify(accessToken, state.verifyKeys, 0)
	}
	switch {
	case verifyErr == nil:
	case errors.Is(verifyErr, token.ErrTokenExpired):
		return nil, newTryRefreshToken("access token expired", verifyErr)
	default:
		return nil, newUnauthorised("access token invalid", verifyErr)
	}

	if options.antiCsrfCheck() {
		switch state.info.AntiCsrf {
		case token.AntiCsrfViaToken:
			if err := token.CheckAntiCsrf(claims.AntiCsrf, req.GetHeader(AntiCsrfHeaderName)); err != nil {
				return nil, newUnauthorised("anti-csrf check failed", err)
			}
		case token.AntiCsrfViaCustomHeader:
			if req.GetHeader(RidHeaderName) == "" {
				return nil, newUnauthorised("anti-csrf check failed: rid header missing", nil)
			}
		}
	}

	handle := claims.SessionHandle
	userID := claims.UserID
	payload := claims.UserPayload
	userContext := UserContextFrom(ctx)
	required := mergeRequiredGrants(r.config.DefaultRequiredGrants, options.grants())

	var rec *store.SessionRecord
	if state.info.AccessTokenBlacklistingEnabled {
		rec, err = r.store.GetSession(ctx, handle)
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, newUnauthorised("session has been revoked", err)
		}
		if err != nil {
			return nil, err
		}
	}

	// Grant checks read the token's own grants claim; the store is touched
	// only when a refetch produces new values to persist.
	grants := claims.Grants
	if grants == nil {
		grants = JSONObject{}
	}

	if len(required) > 0 {
		result, evalErr := evaluateGrants(ctx, userID, grants, required, userContext)
		if evalErr != nil {
			if se, ok := AsSessionError(evalErr); ok && se.Kind == ErrMissingGrant {
				r.metrics.Inc(MetricGrantMissing)
				r.emitAudit(ctx, AuditGrantMissing, userID, handle, false, evalErr)
			}
			return nil, evalErr
		}
		grants = result.payload

		if result.changed {
			r.metrics.Inc(MetricGrantRefetch)
			if err := r.updateSessionGrants(ctx, handle, grants); err != nil {
				return nil, err
			}
			// A fresh access token rides back so the client sees the new
			// grant state without a refresh round trip.
			info, reissueErr := r.reissueAccessToken(ctx, claims, payload, grants)
			if reissueErr != nil {
				return nil, reissueErr
			}
			r.attachAccessToken(res, info)
		}
	}

	return newSessionContainer(r, res, containerState{
		handle:      handle,
		userID:      userID,
		payload:     payload,
		grants:      grants,
		accessToken: accessToken,
		timeCreated: timeFromClaims(rec),
		expiry:      expiryFromClaims(rec),
	}), nil
}

func timeFromClaims(rec *store.SessionRecord) time.Time {
	if rec == nil {
		return time.Time{}
	}
	return time.UnixMilli(rec.TimeCreatedMS)
}

func expiryFromClaims(rec *store.SessionRecord) time.Time {
	if rec == nil {
		return time.Time{}
	}
	return time.UnixMilli(rec.ExpiryMS)
}

func (o *VerifySessionOptions) grants() []Grant {
	if o == nil {
		return nil
	}
	return o.RequiredGrants
}

// reissueAccessToken mints a new access token bound to the same session and
// refresh chain position as the presented one.
func (r *Recipe) reissueAccessToken(ctx context.Context, claims *token.AccessClaims, payload, grants JSONObject) (TokenInfo, error) {
	key, err := r.currentSigningKey(ctx)
	if err != nil {
		return TokenInfo{}, err
	}
	signed, expiry, err := token.Issue(key, token.IssueParams{
		SessionHandle:          claims.SessionHandle,
		UserID:                 claims.UserID,
		RefreshTokenHash:       claims.RefreshTokenHash,
		ParentRefreshTokenHash: claims.ParentRefreshTokenHash,
		UserPayload:            payload,
		Grants:                 grants,
		AntiCsrf:               claims.AntiCsrf,
		Validity:               r.config.AccessTokenValidity,
	})
	if err != nil {
		return TokenInfo{}, err
	}
	return TokenInfo{Token: signed, ExpiryMS: expiry.UnixMilli(), CreatedMS: time.Now().UnixMilli()}, nil
}

func (r *Recipe) refreshSession(ctx context.Context, req Request, res Response) (*SessionContainer, error) {
	container, err := r.refreshSessionInner(ctx, req, res)
	if err != nil {
		r.metrics.Inc(MetricRefreshFailure)
		return nil, err
	}
	r.metrics.Inc(MetricRefreshSuccess)
	return container, nil
}

func (r *Recipe) refreshSessionInner(ctx context.Context, req Request, res Response) (*SessionContainer, error) {
	refreshToken := req.GetCookie(RefreshTokenCookieName)
	if refreshToken == "" {
		r.clearTokens(res)
		return nil, newUnauthorised("refresh token missing", nil)
	}
	if r.config.AntiCsrf == token.AntiCsrfViaCustomHeader && req.GetHeader(RidHeaderName) == "" {
		return nil, newUnauthorised("anti-csrf check failed: rid header missing", nil)
	}

	handle, secret, err := internal.DecodeChainToken(refreshToken)
	if err != nil {
		r.clearTokens(res)
		return nil, newUnauthorised("refresh token malformed", err)
	}
	providedHash := hashHex(secret)

	nextSecret, err := internal.NewChainSecret()
	if err != nil {
		return nil, err
	}
	nextIdSecret, err := internal.NewChainSecret()
	if err != nil {
		return nil, err
	}
	nextHash := hashHex(nextSecret)

	now := time.Now()
	newExpiry := now.Add(r.config.RefreshTokenValidity)

	rec, err := r.store.RotateRefreshTokens(ctx, handle, providedHash, nextHash, hashHex(nextIdSecret), newExpiry)
	if errors.Is(err, store.ErrSessionNotFound) {
		r.clearTokens(res)
		return nil, newUnauthorised("session does not exist", err)
	}
	if errors.Is(err, store.ErrRefreshInvalid) {
		// The hash matches neither the current nor the previous chain member:
		// a fabricated token, not evidence of theft.
		r.clearTokens(res)
		return nil, newUnauthorised("refresh token not recognised", err)
	}
	if errors.Is(err, store.ErrRefreshReuse) {
		// An older chain member of a live session: theft. Every session of
		// the user goes away.
		userID := ""
		if rec != nil {
			userID = rec.UserID
		}
		revoked, revokeErr := r.store.DeleteAllForUser(ctx, userID)
		if revokeErr != nil {
			return nil, revokeErr
		}
		r.clearTokens(res)
		r.metrics.Inc(MetricTokenTheftDetected)
		r.emitAudit(ctx, AuditTokenTheftDetected, userID, handle, false, err)
		r.logger.Warn().
			Str("sessionHandle", handle).
			Str("userId", userID).
			Int("sessionsRevoked", len(revoked)).
			Msg("refresh token reuse: all user sessions revoked")
		return nil, newTokenTheftDetected(handle, userID)
	}
	if err != nil {
		return nil, err
	}

	payload, err := r.withStandaloneJWT(ctx, rec.UserID, rec.AccessTokenPayload)
	if err != nil {
		return nil, err
	}
	if r.config.JWT.Enable {
		if _, err := r.store.UpdateAccessTokenPayload(ctx, handle, payload); err != nil {
			return nil, err
		}
	}

	var antiCsrf string
	if r.config.AntiCsrf == token.AntiCsrfViaToken {
		antiCsrf = token.NewAntiCsrfToken()
	}

	key, err := r.currentSigningKey(ctx)
	if err != nil {
		return nil, err
	}
	accessToken, accessExpiry, err := token.Issue(key, token.IssueParams{
		SessionHandle:          handle,
		UserID:                 rec.UserID,
		RefreshTokenHash:       nextHash,
		ParentRefreshTokenHash: providedHash,
		UserPayload:            payload,
		Grants:                 rec.Grants,
		AntiCsrf:               antiCsrf,
		Validity:               r.config.AccessTokenValidity,
	})
	if err != nil {
		return nil, err
	}

	newRefreshToken, err := internal.EncodeChainToken(handle, nextSecret)
	if err != nil {
		return nil, err
	}
	newIdRefreshToken, err := internal.EncodeChainToken(handle, nextIdSecret)
	if err != nil {
		return nil, err
	}

	tokens := &SessionTokens{
		AccessToken:    TokenInfo{Token: accessToken, ExpiryMS: accessExpiry.UnixMilli(), CreatedMS: now.UnixMilli()},
		RefreshToken:   TokenInfo{Token: newRefreshToken, ExpiryMS: newExpiry.UnixMilli(), CreatedMS: now.UnixMilli()},
		IdRefreshToken: TokenInfo{Token: newIdRefreshToken, ExpiryMS: newExpiry.UnixMilli(), CreatedMS: now.UnixMilli()},
		AntiCsrfToken:  antiCsrf,
	}
	r.attachTokens(res, tokens)

	r.emitAudit(ctx, AuditSessionRefreshed, rec.UserID, handle, true, nil)
	r.logger.Debug().Str("sessionHandle", handle).Str("userId", rec.UserID).Msg("session refreshed")

	return newSessionContainer(r, res, containerState{
		handle:      handle,
		userID:      rec.UserID,
		payload:     payload,
		grants:      rec.Grants,
		accessToken: accessToken,
		timeCreated: time.UnixMilli(rec.TimeCreatedMS),
		expiry:      newExpiry,
	}), nil
}

func (r *Recipe) getSessionInformation(ctx context.Context, sessionHandle string) (*SessionInformation, error) {
	rec, err := r.store.GetSession(ctx, sessionHandle)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, newUnknownSession(sessionHandle)
	}
	if err != nil {
		return nil, err
	}
	return &SessionInformation{
		SessionHandle:      rec.SessionHandle,
		UserID:             rec.UserID,
		SessionData:        rec.SessionData,
		AccessTokenPayload: rec.AccessTokenPayload,
		Grants:             rec.Grants,
		TimeCreated:        time.UnixMilli(rec.TimeCreatedMS),
		Expiry:             time.UnixMilli(rec.ExpiryMS),
	}, nil
}

func (r *Recipe) getAllSessionHandlesForUser(ctx context.Context, userID string) ([]string, error) {
	return r.store.GetHandlesForUser(ctx, userID)
}

func (r *Recipe) revokeSession(ctx context.Context, sessionHandle string) (bool, error) {
	existed, err := r.store.DeleteSession(ctx, sessionHandle)
	if err != nil {
		return false, err
	}
	if existed {
		r.metrics.Inc(MetricSessionRevoked)
		r.emitAudit(ctx, AuditSessionRevoked, "", sessionHandle, true, nil)
	}
	return existed, nil
}

func (r *Recipe) revokeMultipleSessions(ctx context.Context, sessionHandles []string) ([]string, error) {
	revoked := make([]string, 0, len(sessionHandles))
	for _, handle := range sessionHandles {
		existed, err := r.revokeSession(ctx, handle)
		if err != nil {
			return revoked, err
		}
		if existed {
			revoked = append(revoked, handle)
		}
	}
	return revoked, nil
}

func (r *Recipe) revokeAllSessionsForUser(ctx context.Context, userID string) ([]string, error) {
	revoked, err := r.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, handle := range revoked {
		r.metrics.Inc(MetricSessionRevoked)
		r.emitAudit(ctx, AuditSessionRevoked, userID, handle, true, nil)
	}
	return revoked, nil
}

func (r *Recipe) updateSessionData(ctx context.Context, sessionHandle string, newSessionData JSONObject) error {
	existed, err := r.store.UpdateSessionData(ctx, sessionHandle, newSessionData)
	if err != nil {
		return err
	}
	if !existed {
		return newUnknownSession(sessionHandle)
	}
	return nil
}

func (r *Recipe) updateAccessTokenPayload(ctx context.Context, sessionHandle string, newAccessTokenPayload JSONObject) error {
	rec, err := r.store.GetSession(ctx, sessionHandle)
	if errors.Is(err, store.ErrSessionNotFound) {
		return newUnknownSession(sessionHandle)
	}
	if err != nil {
		return err
	}

	payload, err := r.withStandaloneJWT(ctx, rec.UserID, newAccessTokenPayload)
	if err != nil {
		return err
	}
	existed, err := r.store.UpdateAccessTokenPayload(ctx, sessionHandle, payload)
	if err != nil {
		return err
	}
	if !existed {
		return newUnknownSession(sessionHandle)
	}
	return nil
}

func (r *Recipe) updateSessionGrants(ctx context.Context, sessionHandle string, grants JSONObject) error {
	existed, err := r.store.UpdateGrants(ctx, sessionHandle, grants)
	if err != nil {
		return err
	}
	if !existed {
		return newUnknownSession(sessionHandle)
	}
	return nil
}

func (r *Recipe) regenerateAccessToken(ctx context.Context, accessToken string, newAccessTokenPayload, newGrants JSONObject) (*RegenerateAccessTokenResult, error) {
	state, err := r.getHandshake(ctx)
	if err != nil {
		return nil, err
	}

	// Expired tokens are fine here; only the binding to a session matters.
	claims, verifyErr := token.Verify(accessToken, state.verifyKeys, 0)
	if verifyErr != nil && !errors.Is(verifyErr, token.ErrTokenExpired) {
		return nil, newUnauthorised("access token invalid", verifyErr)
	}
	handle := claims.SessionHandle

	if newAccessTokenPayload != nil {
		if err := r.updateAccessTokenPayload(ctx, handle, newAccessTokenPayload); err != nil {
			return nil, err
		}
	}
	if newGrants != nil {
		if err := r.updateSessionGrants(ctx, handle, newGrants); err != nil {
			return nil, err
		}
	}

	rec, err := r.store.GetSession(ctx, handle)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, newUnknownSession(handle)
	}
	if err != nil {
		return nil, err
	}

	info, err := r.reissueAccessToken(ctx, claims, rec.AccessTokenPayload, rec.Grants)
	if err != nil {
		return nil, err
	}

	result := &RegenerateAccessTokenResult{AccessToken: info}
	result.Session.Handle = handle
	result.Session.UserID = claims.UserID
	result.Session.AccessTokenPayload = rec.AccessTokenPayload
	result.Session.Grants = rec.Grants
	return result, nil
}

func (r *Recipe) getAccessTokenLifetime(ctx context.Context) (time.Duration, error) {
	state, err := r.getHandshake(ctx)
	if err != nil {
		return 0, err
	}
	return state.info.AccessTokenValidity, nil
}

func (r *Recipe) getRefreshTokenLifetime(ctx context.Context) (time.Duration, error) {
	state, err := r.getHandshake(ctx)
	if err != nil {
		return 0, err
	}
	return state.info.RefreshTokenValidity, nil
}
