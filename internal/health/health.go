// Package health implements the process's /healthz checks: database
// connectivity and reachability of the container runtime.
package health

import (
	"context"
	"net/http"
	"time"
)

// CheckType identifies what a Checker probes.
type CheckType string

const (
	CheckTypeDatabase CheckType = "database"
	CheckTypeRuntime  CheckType = "runtime"
)

// Result is the outcome of a single check.
type Result struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Checker probes one dependency.
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Handler aggregates a set of checkers behind a single HTTP endpoint.
// The overall response is 200 only if every checker is healthy.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

func NewHandler(timeout time.Duration, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, timeout: timeout}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make(map[string]Result, len(h.checkers))
	allHealthy := true
	for _, c := range h.checkers {
		res := c.Check(ctx)
		results[string(c.Type())] = res
		if !res.Healthy {
			allHealthy = false
		}
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": statusString(allHealthy),
		"checks": results,
	})
}

func statusString(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "unhealthy"
}
