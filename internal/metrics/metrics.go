// Package metrics exposes Prometheus counters for the authorization control plane.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what components report through. Use Nop when metrics are off.
type Recorder interface {
	OTPIssued()
	OTPVerification(outcome string)
	RateLimitDecision(action string, allowed bool)
	StoreDegraded(component string)
	TokenRevoked(tokenType string)
}

// Collector records control plane metrics on a Prometheus registry.
type Collector struct {
	otpIssued       prometheus.Counter
	otpVerification *prometheus.CounterVec
	rateLimit       *prometheus.CounterVec
	storeDegraded   *prometheus.CounterVec
	tokensRevoked   *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector builds a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "txauth_otp_issued_total",
			Help: "One-time passcodes issued for pending transfers.",
		}),
		otpVerification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txauth_otp_verifications_total",
			Help: "OTP verification attempts by outcome.",
		}, []string{"outcome"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txauth_rate_limit_decisions_total",
			Help: "Rate limit checks by action and decision.",
		}, []string{"action", "decision"}),
		storeDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txauth_store_degraded_total",
			Help: "Decisions taken without the TTL store, by component.",
		}, []string{"component"}),
		tokensRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txauth_tokens_revoked_total",
			Help: "Tokens added to the revocation list by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		c.otpIssued,
		c.otpVerification,
		c.rateLimit,
		c.storeDegraded,
		c.tokensRevoked,
	)

	return c
}

func (c *Collector) OTPIssued() {
	c.otpIssued.Inc()
}

func (c *Collector) OTPVerification(outcome string) {
	c.otpVerification.WithLabelValues(outcome).Inc()
}

func (c *Collector) RateLimitDecision(action string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	c.rateLimit.WithLabelValues(action, decision).Inc()
}

func (c *Collector) StoreDegraded(component string) {
	c.storeDegraded.WithLabelValues(component).Inc()
}

func (c *Collector) TokenRevoked(tokenType string) {
	c.tokensRevoked.WithLabelValues(tokenType).Inc()
}

// Handler serves the registry for scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) OTPIssued()                     {}
func (Nop) OTPVerification(string)         {}
func (Nop) RateLimitDecision(string, bool) {}
func (Nop) StoreDegraded(string)           {}
func (Nop) TokenRevoked(string)            {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
