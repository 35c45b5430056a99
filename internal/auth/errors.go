package auth

import (
	"errors"
	"fmt"

	"github.com/dgellow/streamauth/internal/session"
)

var (
	// ErrInvalidState means the state echoed by the provider does not match
	// the one sent with the request. The redirect may be forged; the session
	// is never touched on this path.
	ErrInvalidState = errors.New("invalid state value")

	// ErrAuthorizationFailed matches every *AuthorizationError
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrProfileFetchFailed matches every *ProfileFetchError
	ErrProfileFetchFailed = errors.New("failed to fetch user profile")

	// ErrAccessDenied is returned when the user declines the consent screen
	ErrAccessDenied = errors.New("access denied")

	// ErrFlowAlreadyInProgress is returned when SignIn is called while a
	// sign-in or sign-out is running
	ErrFlowAlreadyInProgress = session.ErrFlowAlreadyInProgress

	// ErrNonceGeneration is returned when no state value could be generated
	ErrNonceGeneration = errors.New("failed to generate state nonce")

	// ErrRedirectTimeout is returned when the redirect did not complete
	// within the configured timeout
	ErrRedirectTimeout = errors.New("timed out waiting for authorization redirect")
)

// AuthorizationError carries the reason the provider or the redirect
// handler gave for a failed authorization.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return ErrAuthorizationFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrAuthorizationFailed, e.Reason)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorizationFailed
}

// ProfileFetchError wraps the failure of the profile request that follows
// a successful redirect.
type ProfileFetchError struct {
	Err error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("%s: %v", ErrProfileFetchFailed, e.Err)
}

func (e *ProfileFetchError) Is(target error) bool {
	return target == ErrProfileFetchFailed
}

func (e *ProfileFetchError) Unwrap() error {
	return e.Err
}
