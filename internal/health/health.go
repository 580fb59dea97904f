// Package health reports whether the watch loop is keeping up: the outcome of
// the latest analysis run and the state of the record output.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth is the result of one check
type ComponentHealth struct {
	Status      Status                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthCheck reports the state of one component
type HealthCheck func(ctx context.Context) ComponentHealth

// Checker runs the registered checks, each bounded by timeout
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	timeout time.Duration
}

// NewChecker creates a checker. A zero timeout means five seconds.
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:  make(map[string]HealthCheck),
		timeout: timeout,
	}
}

// Register adds or replaces the check stored under name
func (c *Checker) Register(name string, check HealthCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs every check concurrently
func (c *Checker) Check(ctx context.Context) map[string]ComponentHealth {
	c.mu.RLock()
	checks := make(map[string]HealthCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]ComponentHealth, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			result := check(checkCtx)
			result.LastChecked = time.Now()

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return results
}

// OverallStatus runs the checks and folds them into one status
func (c *Checker) OverallStatus(ctx context.Context) Status {
	return overall(c.Check(ctx))
}

// overall is unhealthy if any component is, then degraded if any is
func overall(results map[string]ComponentHealth) Status {
	status := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// HealthResponse is the body served by HTTPHandler
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// HTTPHandler reports every component. Degraded still answers 200.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := c.Check(r.Context())
		response := HealthResponse{
			Status:     overall(results),
			Components: results,
			Timestamp:  time.Now(),
		}
		writeJSON(w, statusCode(response.Status), response)
	}
}

// LivenessHandler answers 200 while the process serves requests
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadinessHandler answers 503 once any check is unhealthy
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.OverallStatus(r.Context())
		writeJSON(w, statusCode(status), map[string]interface{}{
			"status":    status,
			"timestamp": time.Now(),
		})
	}
}

func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
