// Package limiter implements a sliding-window requests-per-second limiter with
// per-user limits that also count against a global limit.
package limiter

import (
	"log/slog"
	"sync"
)

const DefaultBucketWidthMs int64 = 1

type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

// Observer is notified of every admission decision.
type Observer interface {
	ObserveDecision(userID string, scope Scope, allowed bool)
}

type Option func(*RateLimiter)

// WithBucketWidth sets the bucket width used by trackers configured afterwards.
// Non-positive widths are ignored.
func WithBucketWidth(ms int64) Option {
	return func(r *RateLimiter) {
		if ms > 0 {
			r.bucketWidthMs = ms
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *RateLimiter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *RateLimiter) {
		r.observer = o
	}
}

// RateLimiter admits requests against an optional per-user limit and a global limit.
// Requests admitted under a user limit also count against the global limit.
type RateLimiter struct {
	clock         Clock
	bucketWidthMs int64
	logger        *slog.Logger
	observer      Observer

	mu           sync.Mutex
	global       Tracker
	userTrackers map[string]Tracker
	lastNow      int64
	seen         bool
}

func NewRateLimiter(clock Clock, opts ...Option) *RateLimiter {
	if clock == nil {
		clock = SystemClock{}
	}
	r := &RateLimiter{
		clock:         clock,
		bucketWidthMs: DefaultBucketWidthMs,
		logger:        slog.Default(),
		global:        UnlimitedTracker{},
		userTrackers:  make(map[string]Tracker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RateLimiter) BucketWidth() int64 {
	return r.bucketWidthMs
}

// ConfigureGlobalLimit replaces the global tracker. rps <= 0 removes the limit.
func (r *RateLimiter) ConfigureGlobalLimit(rps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = NewTracker(rps, r.bucketWidthMs)
	r.logger.Debug("global limit configured", "rps", rps)
}

// ConfigureLimit replaces the tracker of userID. rps <= 0 makes the user unlimited,
// but the user's admitted requests still count against the global limit.
func (r *RateLimiter) ConfigureLimit(userID string, rps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userTrackers[userID] = NewTracker(rps, r.bucketWidthMs)
	r.logger.Debug("user limit configured", "user", userID, "rps", rps)
}

// Limit reports the rps governing userID and whether it comes from a user or the global tracker.
func (r *RateLimiter) Limit(userID string) (int, Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.userTrackers[userID]; ok {
		return t.Limit(), ScopeUser
	}
	return r.global.Limit(), ScopeGlobal
}

func (r *RateLimiter) ProcessRequest(userID string) bool {
	return r.Admit(userID).Allowed
}

// Decision is the outcome of one admission together with the limit that produced it.
type Decision struct {
	Allowed bool
	Limit   int
	Scope   Scope
}

// Admit processes a request like ProcessRequest and reports the governing limit
// under the same lock, so a concurrent reconfiguration cannot split the two.
func (r *RateLimiter) Admit(userID string) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if t, ok := r.userTrackers[userID]; ok {
		d := Decision{Limit: t.Limit(), Scope: ScopeUser}
		if !t.OutOfLimit(now) {
			t.AddRequest(now)
			r.global.AddRequest(now)
			d.Allowed = true
		}
		r.observe(userID, d.Scope, d.Allowed)
		return d
	}

	d := Decision{Limit: r.global.Limit(), Scope: ScopeGlobal}
	if !r.global.OutOfLimit(now) {
		r.global.AddRequest(now)
		d.Allowed = true
	}
	r.observe(userID, d.Scope, d.Allowed)
	return d
}

func (r *RateLimiter) now() int64 {
	now := r.clock.NextTickInMs()
	if r.seen && now < r.lastNow {
		r.logger.Warn("clock went backwards", "previous_ms", r.lastNow, "current_ms", now)
		return now
	}
	r.lastNow = now
	r.seen = true
	return now
}

func (r *RateLimiter) observe(userID string, scope Scope, allowed bool) {
	if r.observer != nil {
		r.observer.ObserveDecision(userID, scope, allowed)
	}
}
