// Package health serves the liveness and readiness probes.
package health

import (
	"net/http"
	"sync"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Check reports nil when its dependency is ready.
type Check func() error

// Checker aggregates named readiness checks.
type Checker struct {
	mu     sync.RWMutex
	checks []named
}

type named struct {
	name  string
	check Check
}

// Add registers a readiness check.
func (c *Checker) Add(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, named{name: name, check: check})
}

// Ready runs every check and returns the name and error of the first
// failure, or "" and nil.
func (c *Checker) Ready() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.checks {
		if err := n.check(); err != nil {
			return n.name, err
		}
	}
	return "", nil
}

// Readyz returns 200 "ready\n" when every check passes and 503 naming the
// failing check otherwise. A nil Checker is always ready.
func (c *Checker) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if c != nil {
		if name, err := c.Ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: " + name + ": " + err.Error() + "\n"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
