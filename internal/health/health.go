// Package health provides HTTP health and readiness check handlers.
//
// The package exposes:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//   - /health  — aggregate status of the STT/LLM/TTS backend services
//     tracked by a [Monitor]: healthy, degraded, or failed per service ID.
//   - /health/reset/{service_id} — forces one service back to healthy,
//     for operator use after a backend has been fixed but has not yet
//     logged a success.
//
// /healthz and /readyz respond with JSON objects holding a top-level "status"
// field ("ok" or "fail") and a "checks" map containing the result of each
// named checker. /health responds with an overall status and a "services"
// map holding each tracked service's state.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "database",
	// "providers"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz, /readyz, /health, and /health/reset/{service_id}
// endpoints. It is safe for concurrent use; the checker list is fixed at
// construction time. monitor may be nil, in which case /health and
// /health/reset report an empty service set.
type Handler struct {
	checkers []Checker
	monitor  *Monitor
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request. The checkers are evaluated sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// WithMonitor attaches a [Monitor] so that /health and
// /health/reset/{service_id} report real per-service state.
func (h *Handler) WithMonitor(m *Monitor) *Handler {
	h.monitor = m
	return h
}

// serviceHealthResult is the JSON response body for GET /health.
type serviceHealthResult struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceStatus `json:"services"`
}

// Health reports the aggregate status of all monitored backend services.
// Status is "ok" if every service is healthy, "degraded" if at least one
// service is degraded but none have failed, and "fail" if any service has
// failed.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	services := map[string]ServiceStatus{}
	if h.monitor != nil {
		services = h.monitor.Snapshot()
	}

	status := "ok"
	for _, s := range services {
		switch s.State {
		case StateFailed:
			status = "fail"
		case StateDegraded:
			if status != "fail" {
				status = "degraded"
			}
		}
	}

	httpStatus := http.StatusOK
	if status == "fail" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, serviceHealthResult{Status: status, Services: services})
}

// HealthReset forces the service named by the {service_id} path segment
// back to healthy. Returns 404 if the service has never been observed.
func (h *Handler) HealthReset(w http.ResponseWriter, r *http.Request) {
	serviceID := r.PathValue("service_id")
	if h.monitor == nil {
		http.Error(w, `{"status":"error","message":"no monitor configured"}`, http.StatusNotFound)
		return
	}
	if err := h.monitor.Reset(serviceID); err != nil {
		http.Error(w, fmt.Sprintf(`{"status":"error","message":%q}`, err.Error()), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, serviceHealthResult{Status: "ok", Services: h.monitor.Snapshot()})
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz, /readyz, /health, and
// /health/reset/{service_id} routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /health/reset/{service_id}", h.HealthReset)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
