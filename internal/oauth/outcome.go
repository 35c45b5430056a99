package oauth

import "net/url"

// OutcomeKind tags the terminal result of a redirect
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeCancelled
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is what a redirect handler reports once the user has finished
// (or abandoned) the provider's authorization page. Only the fields that
// belong to Kind are populated.
type Outcome struct {
	Kind OutcomeKind

	// Success
	AccessToken              string
	State                    string
	ProviderError            string
	ProviderErrorDescription string

	// Error
	Reason string
}

// Success reports a completed redirect. providerError may be empty.
func Success(accessToken, state, providerError string) Outcome {
	return Outcome{
		Kind:          OutcomeSuccess,
		AccessToken:   accessToken,
		State:         state,
		ProviderError: providerError,
	}
}

// Cancelled reports that the user dismissed the authorization page
func Cancelled() Outcome {
	return Outcome{Kind: OutcomeCancelled}
}

// Failed reports that the redirect could not be completed
func Failed(reason string) Outcome {
	return Outcome{Kind: OutcomeError, Reason: reason}
}

// OutcomeFromParams interprets the parameters the provider appended to the
// redirect URI. A denied consent is still a completed redirect and keeps the
// returned state so it can be checked; any other provider error becomes an
// Error outcome.
func OutcomeFromParams(params url.Values) Outcome {
	providerErr := params.Get("error")
	description := params.Get("error_description")

	switch {
	case providerErr == string(ErrAccessDenied):
		o := Success("", params.Get("state"), providerErr)
		o.ProviderErrorDescription = description
		return o
	case providerErr != "":
		if description == "" {
			description = ErrorCode(providerErr).Description()
		}
		if description == "" {
			return Failed(providerErr)
		}
		return Failed(providerErr + ": " + description)
	}

	return Success(params.Get("access_token"), params.Get("state"), "")
}
