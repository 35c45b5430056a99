package testutil

import (
	"context"

	"github.com/dgellow/streamauth/internal/oauth"
	"github.com/stretchr/testify/mock"
)

// MockRedirectHandler stands in for the browser round trip. Return either
// an oauth.Outcome or a func(authURL string) oauth.Outcome when the outcome
// depends on the request, e.g. to echo its state.
type MockRedirectHandler struct {
	mock.Mock
}

func (m *MockRedirectHandler) Authorize(ctx context.Context, authURL string) oauth.Outcome {
	args := m.Called(ctx, authURL)
	if fn, ok := args.Get(0).(func(string) oauth.Outcome); ok {
		return fn(authURL)
	}
	return args.Get(0).(oauth.Outcome)
}

// MockRevoker records revocation calls
type MockRevoker struct {
	mock.Mock
}

func (m *MockRevoker) Revoke(ctx context.Context, token, clientID string) error {
	args := m.Called(ctx, token, clientID)
	return args.Error(0)
}

// EchoState returns a redirect result that sends back the request's own
// state along with accessToken.
func EchoState(accessToken string) func(string) oauth.Outcome {
	return func(authURL string) oauth.Outcome {
		return oauth.Success(accessToken, StateOf(authURL), "")
	}
}
