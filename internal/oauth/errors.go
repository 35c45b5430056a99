package oauth

import (
	"errors"
	"fmt"
)

// ErrorCode is an error value a provider may return in the redirect
type ErrorCode string

const (
	ErrInvalidRequest          ErrorCode = "invalid_request"
	ErrUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrAccessDenied            ErrorCode = "access_denied"
	ErrUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrInvalidScope            ErrorCode = "invalid_scope"
	ErrServerError             ErrorCode = "server_error"
	ErrTemporarilyUnavailable  ErrorCode = "temporarily_unavailable"
)

// Description returns the standard meaning of a known code, or "" for codes
// the provider made up.
func (c ErrorCode) Description() string {
	switch c {
	case ErrInvalidRequest:
		return "the authorization request is missing or repeats a parameter"
	case ErrUnauthorizedClient:
		return "the client is not allowed to use this grant"
	case ErrAccessDenied:
		return "the user or the provider denied the request"
	case ErrUnsupportedResponseType:
		return "the provider does not issue tokens this way"
	case ErrInvalidScope:
		return "a requested scope is invalid or unknown"
	case ErrServerError:
		return "the provider hit an unexpected error"
	case ErrTemporarilyUnavailable:
		return "the provider is temporarily unavailable"
	default:
		return ""
	}
}

// ErrRevocationFailed wraps any failure talking to the revocation endpoint.
// Callers log it; it is never surfaced to users.
var ErrRevocationFailed = errors.New("token revocation failed")

type revocationError struct {
	status int
	body   string
	err    error
}

func (e *revocationError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", ErrRevocationFailed, e.err)
	}
	if e.body != "" {
		return fmt.Sprintf("%s: status %d: %s", ErrRevocationFailed, e.status, e.body)
	}
	return fmt.Sprintf("%s: status %d", ErrRevocationFailed, e.status)
}

func (e *revocationError) Is(target error) bool {
	return target == ErrRevocationFailed
}

func (e *revocationError) Unwrap() error {
	return e.err
}
