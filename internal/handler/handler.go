package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Dzaakk/sliding-rate-limiter/limiter"
)

const userIDHeader = "X-User-ID"

type LimitReporter interface {
	Limit(userID string) (int, limiter.Scope)
}

func HelloHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		userID = "anonymous"
	}

	response := map[string]string{
		"message":   "Hello! Your request was successful.",
		"user_id":   userID,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	writeJSON(w, http.StatusOK, response)
}

func StatusHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}

	writeJSON(w, http.StatusOK, response)
}

// LimitsHandler reports which limit governs the calling user. rps 0 means unlimited.
func LimitsHandler(l LimitReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		rps, scope := l.Limit(userID)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user_id": userID,
			"rps":     rps,
			"scope":   scope,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
