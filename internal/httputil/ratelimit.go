package httputil

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter hands out one token bucket per client key.
// Buckets idle for longer than the idle timeout are dropped by Prune.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	b       int
	idle    time.Duration
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows perSecond sustained requests and burst at once for
// each client. A non-positive perSecond disables limiting.
func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	r := rate.Limit(perSecond)
	if perSecond <= 0 {
		r = rate.Inf
	}
	return &ClientLimiter{
		clients: make(map[string]*client),
		r:       r,
		b:       burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether key may make a request now.
func (l *ClientLimiter) Allow(key string) bool {
	if l.r == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.r, l.b)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Prune drops clients not seen within the idle timeout and returns how
// many remain.
func (l *ClientLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
	return len(l.clients)
}

// Len returns the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
