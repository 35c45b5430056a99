package integration

import (
	"net/http"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInAndSignOut(t *testing.T) {
	provider := NewFakeProvider("integration-client", "tok-integration")
	defer provider.Close()
	configPath := writeConfig(t, provider, freeAddr(t))

	run := startCLI(t, "-config", configPath, "-no-browser", "-sign-out")
	authURL := run.waitForAuthURL(t)

	status, body := browse(t, authURL, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Signed in")

	require.Equal(t, 0, run.wait(t))
	assert.Contains(t, run.Stdout(), "Signed in as Alice (id 42)")
	assert.Contains(t, run.Stdout(), "email: alice@example.com")
	assert.Contains(t, run.Stdout(), "Signed out")

	t.Run("authorization request", func(t *testing.T) {
		q := provider.AuthorizeQuery()
		assert.Equal(t, "integration-client", q.Get("client_id"))
		assert.Equal(t, "token", q.Get("response_type"))
		assert.Equal(t, "true", q.Get("force_verify"))
		assert.Equal(t, "openid user:read:email user:read:follows", q.Get("scope"))
		assert.Len(t, q.Get("state"), 30)
	})

	t.Run("profile request", func(t *testing.T) {
		calls := provider.UserCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "Bearer tok-integration", calls[0].Get("Authorization"))
		assert.Equal(t, "integration-client", calls[0].Get("Client-Id"))
	})

	t.Run("revocation", func(t *testing.T) {
		revoked := provider.Revoked()
		require.Len(t, revoked, 1)
		assert.Equal(t, "tok-integration", revoked[0].Get("token"))
		assert.Equal(t, "integration-client", revoked[0].Get("client_id"))
	})
}

func TestSignInWithoutSignOut(t *testing.T) {
	provider := NewFakeProvider("integration-client", "tok-integration")
	defer provider.Close()
	configPath := writeConfig(t, provider, freeAddr(t))

	run := startCLI(t, "-config", configPath, "-no-browser")
	browse(t, run.waitForAuthURL(t), nil)

	require.Equal(t, 0, run.wait(t))
	assert.Contains(t, run.Stdout(), "Signed in as Alice")
	assert.NotContains(t, run.Stdout(), "Signed out")
	assert.Empty(t, provider.Revoked())
}

func TestAccessDenied(t *testing.T) {
	provider := NewFakeProvider("integration-client", "tok-integration")
	provider.Deny = true
	defer provider.Close()
	configPath := writeConfig(t, provider, freeAddr(t))

	run := startCLI(t, "-config", configPath, "-no-browser", "-sign-out")
	status, body := browse(t, run.waitForAuthURL(t), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Sign-in declined")

	assert.Equal(t, 1, run.wait(t))
	assert.Contains(t, run.Stderr(), "access denied")
	assert.Empty(t, run.Stdout())
	assert.Empty(t, provider.UserCalls())
	assert.Empty(t, provider.Revoked())
}

func TestForgedStateIsRejected(t *testing.T) {
	provider := NewFakeProvider("integration-client", "tok-integration")
	defer provider.Close()
	configPath := writeConfig(t, provider, freeAddr(t))

	run := startCLI(t, "-config", configPath, "-no-browser")
	browse(t, run.waitForAuthURL(t), func(params url.Values) {
		params.Set("state", "attacker-chosen-state-value-000")
	})

	assert.Equal(t, 1, run.wait(t))
	assert.Contains(t, run.Stderr(), "invalid state value")
	assert.Empty(t, provider.UserCalls(), "profile must not be fetched with an unverified token")
}

func TestInterruptCancelsSignIn(t *testing.T) {
	provider := NewFakeProvider("integration-client", "tok-integration")
	defer provider.Close()
	configPath := writeConfig(t, provider, freeAddr(t))

	run := startCLI(t, "-config", configPath, "-no-browser")
	run.waitForAuthURL(t)

	require.NoError(t, run.cmd.Process.Signal(os.Interrupt))

	assert.Equal(t, 0, run.wait(t))
	assert.Contains(t, run.Stdout(), "Sign-in cancelled")
	assert.Empty(t, provider.UserCalls())
}
