package auth

import (
	"context"

	"github.com/dgellow/streamauth/internal/crypto"
	"github.com/dgellow/streamauth/internal/log"
)

// SignOut revokes the current token on a best-effort basis and clears the
// local session. It never fails: an unreachable provider only costs a log
// line. Calling it while signed out is a no-op apart from the revocation
// attempt being skipped. While a sign-in is running the call is ignored.
func (f *Flow) SignOut(ctx context.Context) {
	token, ok := f.store.BeginSignOut()
	if !ok {
		log.LogWarnWithFields("auth", "Sign-out ignored, another flow is running", map[string]any{
			"state": f.store.Snapshot().State.String(),
		})
		return
	}

	revocationFailed := false
	defer func() {
		f.store.Clear()
		f.client.ClearBearer()
		f.store.EndSignOut()
		f.metrics.ObserveSignOut(revocationFailed)
	}()

	if token == "" {
		log.LogDebugWithFields("auth", "Sign-out without session, nothing to revoke", nil)
		return
	}

	if err := f.revoker.Revoke(ctx, token, f.client.ClientID()); err != nil {
		revocationFailed = true
		log.LogWarnWithFields("auth", "Token revocation failed, clearing session anyway", map[string]any{
			"token": crypto.Fingerprint(token),
			"error": err.Error(),
		})
		return
	}

	log.LogInfoWithFields("auth", "Signed out", map[string]any{
		"token": crypto.Fingerprint(token),
	})
}
