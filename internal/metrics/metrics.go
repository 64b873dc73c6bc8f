package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Dzaakk/sliding-rate-limiter/limiter"
)

const anonymousUser = "anonymous"

// Metrics exposes admission decisions as Prometheus collectors.
// Per-user labels are only used for users with a configured limit to keep cardinality bounded.
type Metrics struct {
	decisions       *prometheus.CounterVec
	configuredLimit *prometheus.GaugeVec
}

var _ limiter.Observer = (*Metrics)(nil)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_decisions_total",
				Help: "Total number of admission decisions",
			},
			[]string{"user", "scope", "result"},
		),
		configuredLimit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratelimit_configured_rps",
				Help: "Configured requests per second, 0 when unlimited",
			},
			[]string{"user", "scope"},
		),
	}
}

func (m *Metrics) ObserveDecision(userID string, scope limiter.Scope, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	m.decisions.WithLabelValues(userLabel(userID, scope), string(scope), result).Inc()
}

func (m *Metrics) SetGlobalLimit(rps int) {
	m.configuredLimit.WithLabelValues("", string(limiter.ScopeGlobal)).Set(float64(rps))
}

func (m *Metrics) SetUserLimit(userID string, rps int) {
	m.configuredLimit.WithLabelValues(userID, string(limiter.ScopeUser)).Set(float64(rps))
}

// DeleteUserLimit drops the gauge of a user no longer present in the config.
func (m *Metrics) DeleteUserLimit(userID string) {
	m.configuredLimit.DeleteLabelValues(userID, string(limiter.ScopeUser))
}

func userLabel(userID string, scope limiter.Scope) string {
	if scope == limiter.ScopeGlobal {
		return ""
	}
	if userID == "" {
		return anonymousUser
	}
	return userID
}
