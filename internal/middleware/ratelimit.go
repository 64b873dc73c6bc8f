package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Dzaakk/sliding-rate-limiter/limiter"
)

const (
	UserIDHeader    = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	tracerName = "github.com/Dzaakk/sliding-rate-limiter/internal/middleware"
)

type Admitter interface {
	Admit(userID string) limiter.Decision
}

type RateLimitMiddleware struct {
	limiter Admitter
	logger  *slog.Logger
}

func NewRateLimitMiddleware(l Admitter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: l,
		logger:  logger,
	}
}

func (m *RateLimitMiddleware) Handler(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otel.Tracer(tracerName).Start(ctx, "ratelimit.admit")
		defer span.End()

		userID := m.getUserID(r)
		requestID := m.getRequestID(r)
		w.Header().Set(RequestIDHeader, requestID)

		d := m.limiter.Admit(userID)
		allowed, limit, scope := d.Allowed, d.Limit, d.Scope

		span.SetAttributes(
			attribute.String("ratelimit.user", userID),
			attribute.String("ratelimit.scope", string(scope)),
			attribute.Int("ratelimit.limit", limit),
			attribute.Bool("ratelimit.allowed", allowed),
		)

		m.setRateLimitHeaders(w, limit, scope)

		if !allowed {
			span.SetStatus(codes.Error, "rate limit exceeded")
			m.logger.Warn("rate limit exceeded",
				"user", userID,
				"scope", scope,
				"limit", limit,
				"path", r.URL.Path,
				"request_id", requestID,
			)

			m.sendRateLimitError(w, limit, scope)
			return
		}

		m.logger.Info("request allowed",
			"user", userID,
			"scope", scope,
			"path", r.URL.Path,
			"request_id", requestID,
		)

		next(w, r.WithContext(ctx))
	}
}

// getUserID returns the caller identity; an empty id is evaluated against the global limit only.
func (m *RateLimitMiddleware) getUserID(r *http.Request) string {
	return r.Header.Get(UserIDHeader)
}

func (m *RateLimitMiddleware) getRequestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

func (m *RateLimitMiddleware) setRateLimitHeaders(w http.ResponseWriter, limit int, scope limiter.Scope) {
	w.Header().Set("X-RateLimit-Scope", string(scope))
	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	}
}

func (m *RateLimitMiddleware) sendRateLimitError(w http.ResponseWriter, limit int, scope limiter.Scope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]interface{}{
		"error": "Rate limit exceeded",
		"scope": scope,
		"limit": limit,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		m.logger.Error("failed to write rate limit response", "error", err)
	}
}
