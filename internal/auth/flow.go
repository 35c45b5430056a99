package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/streamauth/internal/config"
	"github.com/dgellow/streamauth/internal/crypto"
	"github.com/dgellow/streamauth/internal/idp"
	"github.com/dgellow/streamauth/internal/log"
	"github.com/dgellow/streamauth/internal/metrics"
	"github.com/dgellow/streamauth/internal/oauth"
	"github.com/dgellow/streamauth/internal/session"
)

// RedirectHandler sends the user to the provider's authorization page and
// reports how the visit ended. It blocks until the user finishes, cancels,
// or ctx is done; a done ctx is reported as a cancelled outcome.
type RedirectHandler interface {
	Authorize(ctx context.Context, authURL string) oauth.Outcome
}

// Config holds the provider settings the flow needs beyond the client
type Config struct {
	AuthorizationEndpoint string
	RedirectURI           string
	Scopes                []string

	// RedirectTimeout bounds the wait for the redirect. Zero waits until
	// the handler returns.
	RedirectTimeout time.Duration
}

// NonceFunc produces the state value for one authorization request
type NonceFunc func(length int) (string, error)

// Flow signs the single process-wide user in and out. It is the only
// writer of the session store and of the shared client's bearer token.
type Flow struct {
	cfg      Config
	store    *session.Store
	client   *idp.Client
	redirect RedirectHandler
	revoker  oauth.Revoker
	metrics  *metrics.Metrics
	nonce    NonceFunc
}

// FlowOption configures a Flow
type FlowOption func(*Flow)

// WithMetrics records sign-in and sign-out results
func WithMetrics(m *metrics.Metrics) FlowOption {
	return func(f *Flow) {
		f.metrics = m
	}
}

// WithNonceFunc replaces the state generator
func WithNonceFunc(fn NonceFunc) FlowOption {
	return func(f *Flow) {
		f.nonce = fn
	}
}

// NewFlow wires a flow. client is the shared API client whose bearer token
// follows the session; it also supplies the client ID.
func NewFlow(cfg Config, store *session.Store, client *idp.Client, redirect RedirectHandler, revoker oauth.Revoker, opts ...FlowOption) *Flow {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = append([]string(nil), config.DefaultScopes...)
	}
	f := &Flow{
		cfg:      cfg,
		store:    store,
		client:   client,
		redirect: redirect,
		revoker:  revoker,
		nonce:    crypto.GenerateNonce,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Store returns the session store the flow writes to
func (f *Flow) Store() *session.Store {
	return f.store
}

// SignIn runs one implicit-grant sign-in. A cancelled redirect returns nil
// and leaves the session as it was. On any error the session is also left
// as it was; user and token are only ever replaced together.
func (f *Flow) SignIn(ctx context.Context) error {
	if err := f.store.BeginSignIn(); err != nil {
		f.metrics.ObserveSignIn(metrics.ResultRejected)
		log.LogWarnWithFields("auth", "Sign-in rejected", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	defer f.store.EndSignIn()

	result, err := f.signIn(ctx)
	f.metrics.ObserveSignIn(result)
	return err
}

func (f *Flow) signIn(ctx context.Context) (string, error) {
	nonce, err := f.nonce(crypto.DefaultNonceLength)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to generate state", map[string]any{
			"error": err.Error(),
		})
		return metrics.ResultInternalError, fmt.Errorf("%w: %w", ErrNonceGeneration, err)
	}

	req := oauth.NewAuthorizationRequest(f.client.ClientID(), f.cfg.RedirectURI, f.cfg.Scopes, nonce)
	authURL, err := req.URL(f.cfg.AuthorizationEndpoint)
	if err != nil {
		return metrics.ResultInternalError, fmt.Errorf("building authorization url: %w", err)
	}

	log.LogInfoWithFields("auth", "Starting sign-in", map[string]any{
		"endpoint": f.cfg.AuthorizationEndpoint,
		"redirect": f.cfg.RedirectURI,
		"scope":    req.Scopes,
	})

	outcome, timedOut := f.awaitRedirect(ctx, authURL)
	if timedOut {
		log.LogWarnWithFields("auth", "Authorization redirect timed out", map[string]any{
			"timeout": f.cfg.RedirectTimeout.String(),
		})
		return metrics.ResultRedirectTimeout, ErrRedirectTimeout
	}

	switch outcome.Kind {
	case oauth.OutcomeCancelled:
		log.LogInfoWithFields("auth", "Sign-in cancelled", nil)
		return metrics.ResultCancelled, nil
	case oauth.OutcomeError:
		log.LogErrorWithFields("auth", "Authorization failed", map[string]any{
			"reason": outcome.Reason,
		})
		return metrics.ResultAuthFailed, &AuthorizationError{Reason: outcome.Reason}
	case oauth.OutcomeSuccess:
	default:
		return metrics.ResultAuthFailed, &AuthorizationError{Reason: "unknown redirect outcome " + outcome.Kind.String()}
	}

	if outcome.ProviderError == string(oauth.ErrAccessDenied) {
		log.LogInfoWithFields("auth", "User denied access", map[string]any{
			"description": outcome.ProviderErrorDescription,
		})
		return metrics.ResultAccessDenied, ErrAccessDenied
	}

	if !oauth.StateMatches(nonce, outcome.State) {
		log.LogErrorWithFields("auth", "State mismatch in authorization redirect", map[string]any{
			"returned_length": len(outcome.State),
		})
		return metrics.ResultInvalidState, ErrInvalidState
	}

	if outcome.ProviderError != "" {
		return metrics.ResultAuthFailed, &AuthorizationError{Reason: outcome.ProviderError}
	}
	if outcome.AccessToken == "" {
		return metrics.ResultAuthFailed, &AuthorizationError{Reason: "redirect carried no access token"}
	}

	token := outcome.AccessToken
	user, err := f.client.WithBearer(token).FetchUser(ctx)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to fetch user profile", map[string]any{
			"token": crypto.Fingerprint(token),
			"error": err.Error(),
		})
		return metrics.ResultProfileFailed, &ProfileFetchError{Err: err}
	}

	if err := f.commit(user, token); err != nil {
		return metrics.ResultInternalError, err
	}

	log.LogInfoWithFields("auth", "Sign-in completed", map[string]any{
		"user_id": user.ID,
		"user":    user.DisplayName,
		"token":   crypto.Fingerprint(token),
	})
	return metrics.ResultSuccess, nil
}

// awaitRedirect is the only point where the flow waits on the user
func (f *Flow) awaitRedirect(ctx context.Context, authURL string) (oauth.Outcome, bool) {
	if f.cfg.RedirectTimeout <= 0 {
		return f.redirect.Authorize(ctx, authURL), false
	}

	redirectCtx, cancel := context.WithTimeout(ctx, f.cfg.RedirectTimeout)
	defer cancel()

	outcome := f.redirect.Authorize(redirectCtx, authURL)
	timedOut := outcome.Kind != oauth.OutcomeSuccess &&
		errors.Is(redirectCtx.Err(), context.DeadlineExceeded) &&
		ctx.Err() == nil
	return outcome, timedOut
}

// commit installs the credential on the shared client and the store
// together, restoring the previous credential if the store refuses.
func (f *Flow) commit(user *idp.UserProfile, token string) error {
	previous := f.store.Snapshot().AccessToken

	f.client.SetBearer(token)
	if err := f.store.Commit(user, token); err != nil {
		if previous != "" {
			f.client.SetBearer(previous)
		} else {
			f.client.ClearBearer()
		}
		return fmt.Errorf("committing session: %w", err)
	}
	return nil
}
