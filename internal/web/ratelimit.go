package web

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per client address. A client may burst
// its whole budget and then refills at budget per window.
type rateLimiter struct {
	every  rate.Limit
	burst  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*client

	done     chan struct{}
	stopOnce sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perWindow int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		every:   rate.Limit(float64(perWindow) / window.Seconds()),
		burst:   perWindow,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// allow spends one token of key's bucket if it has one.
func (rl *rateLimiter) allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// sweep forgets clients idle for two windows until stop is called. An idle
// client's bucket is full again by then, so forgetting it changes nothing.
func (rl *rateLimiter) sweep() {
	t := time.NewTicker(rl.window)
	defer t.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-t.C:
			cutoff := rl.now().Add(-2 * rl.window)
			rl.mu.Lock()
			for key, c := range rl.clients {
				if c.lastSeen.Before(cutoff) {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.allow(clientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "60")
		writeJSONStatus(w, r, http.StatusTooManyRequests, ErrorResponse{
			Error:   "rate limit exceeded",
			Message: "Too many requests",
			Action:  "Wait a minute and try again",
			Code:    "RATE001",
		})
	})
}
