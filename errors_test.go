package goSession

import (
	"errors"
	"fmt"
	"testing"
)

func TestSessionErrorKindMatching(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{newUnauthorised("no tokens", nil), ErrUnauthorised},
		{newTryRefreshToken("expired", nil), ErrTryRefreshToken},
		{newTokenTheftDetected("handle-1", "user-1"), ErrTokenTheftDetected},
		{newMissingGrant("plan"), ErrMissingGrant},
		{newBadInput("empty userID"), ErrBadInput},
		{newUnknownSession("handle-1"), ErrUnknownSession},
	}

	kinds := []error{
		ErrUnauthorised, ErrTryRefreshToken, ErrTokenTheftDetected,
		ErrMissingGrant, ErrBadInput, ErrUnknownSession,
	}

	for _, tc := range cases {
		if !errors.Is(tc.err, tc.kind) {
			t.Fatalf("%v should match kind %v", tc.err, tc.kind)
		}
		for _, other := range kinds {
			if other != tc.kind && errors.Is(tc.err, other) {
				t.Fatalf("%v must not match kind %v", tc.err, other)
			}
		}
	}
}

func TestSessionErrorMatchesWhenWrapped(t *testing.T) {
	err := fmt.Errorf("verify failed: %w", newMissingGrant("plan"))

	if !errors.Is(err, ErrMissingGrant) {
		t.Fatal("wrapped session error should still match its kind")
	}
	se, ok := AsSessionError(err)
	if !ok {
		t.Fatal("AsSessionError should find the wrapped error")
	}
	if se.GrantID != "plan" {
		t.Fatalf("expected grantID plan, got %q", se.GrantID)
	}
}

func TestTheftErrorCarriesIdentity(t *testing.T) {
	err := newTokenTheftDetected("handle-1", "user-1")

	se, ok := AsSessionError(err)
	if !ok {
		t.Fatal("expected a SessionError")
	}
	if se.SessionHandle != "handle-1" || se.UserID != "user-1" {
		t.Fatalf("unexpected identity %q/%q", se.SessionHandle, se.UserID)
	}
}

func TestIsSessionErrorPassThrough(t *testing.T) {
	if IsSessionError(errors.New("redis: connection refused")) {
		t.Fatal("plain errors are not session errors")
	}
	if IsSessionError(nil) {
		t.Fatal("nil is not a session error")
	}
	if !IsSessionError(newUnauthorised("x", nil)) {
		t.Fatal("expected a session error")
	}
}

func TestSessionErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("signature invalid")
	err := newUnauthorised("access token invalid", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
}
