package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// Readiness and check states.
const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	CheckOK        = "ok"
	CheckFailed    = "error"
)

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the readiness body.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Ready reports whether every check passed.
func (resp ReadinessResponse) Ready() bool { return resp.Status == StatusReady }

// CheckNames returns the check names of resp in sorted order.
func (resp ReadinessResponse) CheckNames() []string {
	names := make([]string, 0, len(resp.Checks))
	for name := range resp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ReadinessChecks lists what readiness depends on.
type ReadinessChecks struct {
	// DefinitionsLoaded is always reported as the "definitions" check.
	DefinitionsLoaded func() bool

	// Checkers run concurrently, each under its own timeout. Nil entries
	// are skipped.
	Checkers map[string]HealthChecker
}

const checkTimeout = 2 * time.Second

var errNoDefinitions = errors.New("no definitions loaded")

// Ready runs every check and aggregates the results. The CLI status
// command calls it directly for the remote backend.
func Ready(ctx context.Context, checks ReadinessChecks) ReadinessResponse {
	resp := ReadinessResponse{Status: StatusReady, Checks: map[string]CheckResult{}}
	var mu sync.Mutex
	record := func(name string, result CheckResult) {
		mu.Lock()
		defer mu.Unlock()
		resp.Checks[name] = result
		if result.Status != CheckOK {
			resp.Status = StatusNotReady
		}
	}

	record("definitions", runCheck(ctx, HealthCheckFunc(func(context.Context) error {
		if checks.DefinitionsLoaded == nil || !checks.DefinitionsLoaded() {
			return errNoDefinitions
		}
		return nil
	})))

	var g errgroup.Group
	for name, checker := range checks.Checkers {
		if checker == nil {
			continue
		}
		g.Go(func() error {
			record(name, runCheck(ctx, checker))
			return nil
		})
	}
	_ = g.Wait()
	return resp
}

func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	result := CheckResult{Status: CheckOK, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Status = CheckFailed
		result.Error = err.Error()
	}
	return result
}

// HandleHealth serves the liveness endpoint. It always answers 200.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, HealthResponse{Status: CheckOK, Version: Version, Commit: Commit})
	}
}

// HandleReady serves the readiness endpoint, answering 503 while any
// check fails.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := Ready(r.Context(), checks)
		status := http.StatusOK
		if !resp.Ready() {
			status = http.StatusServiceUnavailable
		}
		writeProbe(w, status, resp)
	}
}

func writeProbe(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
