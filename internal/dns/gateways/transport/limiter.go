package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter tracks one token bucket per client address. A rate of
// zero or less disables limiting entirely.
type clientLimiter struct {
	qps   float64
	burst int

	mu      sync.Mutex
	clients map[string]*clientEntry
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(qps float64, burst int) *clientLimiter {
	return &clientLimiter{
		qps:     qps,
		burst:   burst,
		clients: make(map[string]*clientEntry),
	}
}

// Allow reports whether the client may send another query now.
func (l *clientLimiter) Allow(addr string) bool {
	if l.qps <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[addr]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(rate.Limit(l.qps), l.burst)}
		l.clients[addr] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Sweep drops buckets that have been idle longer than maxIdle.
func (l *clientLimiter) Sweep(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for addr, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, addr)
		}
	}
}

// Run sweeps idle buckets periodically until the context is done.
func (l *clientLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(interval)
		}
	}
}
