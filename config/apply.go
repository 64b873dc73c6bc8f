package config

import (
	"log/slog"

	"github.com/Dzaakk/sliding-rate-limiter/limiter"
)

// Apply configures rl with next. When prev is non-nil only the limits that differ
// from prev are reconfigured, since reconfiguring a tracker discards its window.
func Apply(rl *limiter.RateLimiter, prev, next *LimitsConfig, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if prev == nil || prev.Global != next.Global {
		rl.ConfigureGlobalLimit(next.Global)
		logger.Info("global limit applied", "rps", next.Global)
	}

	var prevUsers map[string]int
	if prev != nil {
		prevUsers = prev.UserLimits()
		if prev.BucketWidthMs != next.BucketWidthMs {
			logger.Warn("bucket width change requires a restart",
				"current_ms", rl.BucketWidth(),
				"configured_ms", next.BucketWidthMs,
			)
		}
	}

	nextUsers := next.UserLimits()
	for _, u := range next.Users {
		if old, ok := prevUsers[u.ID]; ok && old == u.RPS {
			continue
		}
		rl.ConfigureLimit(u.ID, u.RPS)
		logger.Info("user limit applied", "user", u.ID, "rps", u.RPS)
	}

	for id := range prevUsers {
		if _, ok := nextUsers[id]; !ok {
			logger.Warn("user limit removed from config is kept until restart", "user", id)
		}
	}
}
