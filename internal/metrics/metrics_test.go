package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Dzaakk/sliding-rate-limiter/limiter"
)

func TestObserveDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	rl := limiter.NewRateLimiter(limiter.NewSequenceClock(0, 1, 2, 3), limiter.WithObserver(m))
	rl.ConfigureLimit("1", 1)
	rl.ConfigureGlobalLimit(2)

	rl.ProcessRequest("1")
	rl.ProcessRequest("1")
	rl.ProcessRequest("2")
	rl.ProcessRequest("3")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("1", "user", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("1", "user", "rejected")))
	// the admitted user request took one of the two global slots
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("", "global", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("", "global", "rejected")))
}

func TestConfiguredLimitGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetGlobalLimit(100)
	m.SetUserLimit("a", 5)

	assert.Equal(t, 100.0, testutil.ToFloat64(m.configuredLimit.WithLabelValues("", "global")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.configuredLimit.WithLabelValues("a", "user")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.configuredLimit))
}

func TestUserLabel(t *testing.T) {
	assert.Equal(t, "", userLabel("x", limiter.ScopeGlobal))
	assert.Equal(t, "anonymous", userLabel("", limiter.ScopeUser))
	assert.Equal(t, "x", userLabel("x", limiter.ScopeUser))
}

func TestDeleteUserLimit(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetUserLimit("a", 5)
	m.SetUserLimit("b", 3)
	m.DeleteUserLimit("a")

	assert.Equal(t, 1, testutil.CollectAndCount(m.configuredLimit))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.configuredLimit.WithLabelValues("b", "user")))
}
