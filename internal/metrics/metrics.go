package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sign-in results used as the "result" label
const (
	ResultSuccess         = "success"
	ResultCancelled       = "cancelled"
	ResultAccessDenied    = "access_denied"
	ResultInvalidState    = "invalid_state"
	ResultAuthFailed      = "authorization_failed"
	ResultProfileFailed   = "profile_fetch_failed"
	ResultRejected        = "rejected"
	ResultInternalError   = "internal_error"
	ResultRedirectTimeout = "redirect_timeout"
)

// Metrics holds the authentication counters
type Metrics struct {
	SignIns            *prometheus.CounterVec
	SignOuts           prometheus.Counter
	RevocationFailures prometheus.Counter
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered, which is what tests and library users without a
// metrics endpoint want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SignIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamauth_signin_total",
			Help: "Sign-in attempts by result",
		}, []string{"result"}),
		SignOuts: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamauth_signout_total",
			Help: "Completed sign-outs",
		}),
		RevocationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamauth_revocation_failures_total",
			Help: "Token revocations that failed and were ignored",
		}),
	}
}

// ObserveSignIn counts one sign-in attempt
func (m *Metrics) ObserveSignIn(result string) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(result).Inc()
}

// ObserveSignOut counts one sign-out and whether revocation failed
func (m *Metrics) ObserveSignOut(revocationFailed bool) {
	if m == nil {
		return
	}
	m.SignOuts.Inc()
	if revocationFailed {
		m.RevocationFailures.Inc()
	}
}
