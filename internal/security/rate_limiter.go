package security

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/llm-guardrails/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	config  config.RateLimitConfig
	clients map[string]*client
	mu      sync.Mutex
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}
	return r.getLimiter(clientIP).AllowN(r.now(), 1)
}

// Tokens returns the tokens left for a client, or the full burst for unknown clients
func (r *RateLimiter) Tokens(clientIP string) float64 {
	r.mu.Lock()
	c, exists := r.clients[clientIP]
	r.mu.Unlock()

	if !exists {
		return float64(r.burst())
	}
	return c.limiter.TokensAt(r.now())
}

// Clients returns the number of tracked client buckets
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *RateLimiter) burst() int {
	if r.config.Burst > 0 {
		return r.config.Burst
	}
	return r.config.RequestsPerMinute
}

// getLimiter gets or creates the bucket for a client IP
func (r *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	c, exists := r.clients[clientIP]
	if !exists {
		perSecond := rate.Limit(float64(r.config.RequestsPerMinute) / 60.0)
		c = &client{limiter: rate.NewLimiter(perSecond, r.burst())}
		r.clients[clientIP] = c
	}
	c.lastSeen = now
	return c.limiter
}

// CleanupOldBuckets removes buckets not used within the idle TTL
func (r *RateLimiter) CleanupOldBuckets() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ttl := r.config.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := r.now().Add(-ttl)

	removed := 0
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine removes idle buckets periodically until ctx is done
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	interval := r.config.CleanupInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets()
			}
		}
	}()
}
