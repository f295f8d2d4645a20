package goSession

import (
	"errors"
	"fmt"
)

// Sentinel kinds for errors.Is matching. Every recipe failure is a
// *SessionError wrapping one of these.
var (
	// ErrUnauthorised means no usable session: missing tokens, bad signature,
	// failed anti-CSRF check, or a revoked session.
	ErrUnauthorised = errors.New("unauthorised")
	// ErrTryRefreshToken means the access token is expired but the session may
	// still be live; the client should call the refresh endpoint.
	ErrTryRefreshToken = errors.New("try refresh token")
	// ErrTokenTheftDetected means an older refresh token of a live session was
	// presented. All of the user's sessions have been revoked.
	ErrTokenTheftDetected = errors.New("token theft detected")
	// ErrMissingGrant means a required grant is absent or invalid on the
	// session's grants payload.
	ErrMissingGrant = errors.New("missing grant")
	// ErrBadInput means the caller passed arguments the recipe cannot act on.
	ErrBadInput = errors.New("bad input")
	// ErrUnknownSession means the named session handle resolves to nothing.
	ErrUnknownSession = errors.New("unknown session")
)

// SessionError is the tagged error carried by every recipe failure. The Kind
// field matches one of the sentinel errors above via errors.Is; the payload
// fields are populated per kind (SessionHandle and UserID for theft, GrantID
// for missing grants).
type SessionError struct {
	Kind          error
	Msg           string
	SessionHandle string
	UserID        string
	GrantID       string
	cause         error
}

func (e *SessionError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.Error()
}

func (e *SessionError) Is(target error) bool {
	return target == e.Kind
}

func (e *SessionError) Unwrap() error {
	return e.cause
}

// IsSessionError reports whether err (or anything it wraps) is a recipe
// error, as opposed to a transport or store failure passing through opaque.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}

// AsSessionError extracts the *SessionError from err's chain, if present.
func AsSessionError(err error) (*SessionError, bool) {
	var se *SessionError
	ok := errors.As(err, &se)
	return se, ok
}

func newUnauthorised(msg string, cause error) error {
	return &SessionError{Kind: ErrUnauthorised, Msg: msg, cause: cause}
}

func newTryRefreshToken(msg string, cause error) error {
	return &SessionError{Kind: ErrTryRefreshToken, Msg: msg, cause: cause}
}

func newTokenTheftDetected(sessionHandle, userID string) error {
	return &SessionError{
		Kind:          ErrTokenTheftDetected,
		Msg:           fmt.Sprintf("token theft detected for session %s", sessionHandle),
		SessionHandle: sessionHandle,
		UserID:        userID,
	}
}

func newMissingGrant(grantID string) error {
	return &SessionError{
		Kind:    ErrMissingGrant,
		Msg:     fmt.Sprintf("session lacks required grant %q", grantID),
		GrantID: grantID,
	}
}

func newBadInput(msg string) error {
	return &SessionError{Kind: ErrBadInput, Msg: msg}
}

func newUnknownSession(handle string) error {
	return &SessionError{
		Kind:          ErrUnknownSession,
		Msg:           fmt.Sprintf("unknown session handle %q", handle),
		SessionHandle: handle,
	}
}
