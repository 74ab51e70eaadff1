package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "deckhand", Name: "auth_logins_total", Help: "Number of OAuth2 login completions by result."},
		[]string{"result"},
	)
	RefreshRotations = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "deckhand", Name: "auth_refresh_rotations_total", Help: "Number of successful refresh-token rotations."},
	)
	RefreshReuseDetected = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "deckhand", Name: "auth_refresh_reuse_detected_total", Help: "Number of consumed refresh tokens presented again (family invalidated)."},
	)
	TokensRevoked = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "deckhand", Name: "auth_tokens_revoked_total", Help: "Number of access tokens added to the revocation blocklist."},
	)
	RevocationFailOpen = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "deckhand", Name: "auth_revocation_fail_open_total", Help: "Number of revocation checks degraded because the token store was unreachable."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "deckhand", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "deckhand", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(LoginsTotal)
	reg.MustRegister(RefreshRotations)
	reg.MustRegister(RefreshReuseDetected)
	reg.MustRegister(TokensRevoked)
	reg.MustRegister(RevocationFailOpen)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
