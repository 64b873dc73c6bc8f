package config

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dzaakk/sliding-rate-limiter/limiter"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApplyInitial(t *testing.T) {
	rl := limiter.NewRateLimiter(limiter.NewSequenceClock())
	next := &LimitsConfig{
		BucketWidthMs: 1,
		Global:        10,
		Users:         []UserLimit{{ID: "a", RPS: 2}},
	}

	Apply(rl, nil, next, discardLogger())

	rps, scope := rl.Limit("a")
	assert.Equal(t, 2, rps)
	assert.Equal(t, limiter.ScopeUser, scope)

	rps, scope = rl.Limit("b")
	assert.Equal(t, 10, rps)
	assert.Equal(t, limiter.ScopeGlobal, scope)
}

func TestApplyKeepsUnchangedWindows(t *testing.T) {
	rl := limiter.NewRateLimiter(limiter.NewSequenceClock(0, 10, 20, 30))
	prev := &LimitsConfig{
		BucketWidthMs: 1,
		Global:        0,
		Users:         []UserLimit{{ID: "a", RPS: 1}, {ID: "b", RPS: 1}},
	}
	Apply(rl, nil, prev, discardLogger())

	require.True(t, rl.ProcessRequest("a"))
	require.True(t, rl.ProcessRequest("b"))

	next := &LimitsConfig{
		BucketWidthMs: 1,
		Global:        0,
		Users:         []UserLimit{{ID: "a", RPS: 1}, {ID: "b", RPS: 2}},
	}
	Apply(rl, prev, next, discardLogger())

	// a keeps its window and stays limited, b got a fresh tracker
	assert.False(t, rl.ProcessRequest("a"))
	assert.True(t, rl.ProcessRequest("b"))
}

func TestApplyDoesNotDropRemovedUsers(t *testing.T) {
	rl := limiter.NewRateLimiter(limiter.NewSequenceClock())
	prev := &LimitsConfig{BucketWidthMs: 1, Users: []UserLimit{{ID: "a", RPS: 3}}}
	Apply(rl, nil, prev, discardLogger())

	Apply(rl, prev, &LimitsConfig{BucketWidthMs: 5}, discardLogger())

	rps, scope := rl.Limit("a")
	assert.Equal(t, 3, rps)
	assert.Equal(t, limiter.ScopeUser, scope)
}
