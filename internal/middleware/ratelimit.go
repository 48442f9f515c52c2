package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Strob0t/TaskForge/internal/config"
)

const (
	limiterShards       = 32
	maxBucketsPerShard  = 4096
	defaultRateCleanup  = time.Minute
	defaultRateMaxIdle  = 10 * time.Minute
	rateLimitedResponse = `{"error":"rate limit exceeded"}`
)

// RateLimiter is per-IP token bucket rate limiting middleware. Buckets are
// spread over shards so clients never contend on one mutex.
type RateLimiter struct {
	shards          [limiterShards]*limiterShard
	rate            float64 // tokens per second
	burst           int     // max tokens
	cleanupInterval time.Duration
	maxIdle         time.Duration
	now             func() time.Time
}

type limiterShard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens    float64
	updatedAt time.Time
}

// NewRateLimiter creates a rate limiter from cfg.
func NewRateLimiter(cfg config.Rate) *RateLimiter {
	rl := &RateLimiter{
		rate:            cfg.RequestsPerSecond,
		burst:           max(cfg.Burst, 1),
		cleanupInterval: cfg.CleanupInterval,
		maxIdle:         cfg.MaxIdleTime,
		now:             time.Now,
	}
	if rl.cleanupInterval <= 0 {
		rl.cleanupInterval = defaultRateCleanup
	}
	if rl.maxIdle <= 0 {
		rl.maxIdle = defaultRateMaxIdle
	}
	for i := range rl.shards {
		rl.shards[i] = &limiterShard{buckets: make(map[string]*bucket)}
	}
	return rl
}

// Handler returns HTTP middleware that enforces per-IP rate limiting.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, retryAfter, allowed := rl.allow(realIP(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(rateLimitedResponse))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) shard(ip string) *limiterShard {
	return rl.shards[xxhash.Sum64String(ip)%limiterShards]
}

// allow reports whether a request from ip may proceed, the whole tokens left,
// and the seconds until the next token when it may not.
func (rl *RateLimiter) allow(ip string) (remaining int, retryAfter float64, allowed bool) {
	sh := rl.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := rl.now()
	b, exists := sh.buckets[ip]
	if !exists {
		if len(sh.buckets) >= maxBucketsPerShard {
			return 0, 1 / rl.rate, false
		}
		b = &bucket{tokens: float64(rl.burst), updatedAt: now}
		sh.buckets[ip] = b
	} else {
		b.tokens = math.Min(float64(rl.burst), b.tokens+now.Sub(b.updatedAt).Seconds()*rl.rate)
		b.updatedAt = now
	}

	if b.tokens < 1 {
		return 0, (1 - b.tokens) / rl.rate, false
	}
	b.tokens--
	return int(b.tokens), 0, true
}

// StartCleanup removes buckets idle for longer than the configured max idle
// time until ctx is cancelled.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(rl.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
}

func (rl *RateLimiter) cleanup() {
	cutoff := rl.now().Add(-rl.maxIdle)
	for _, sh := range rl.shards {
		sh.mu.Lock()
		for ip, b := range sh.buckets {
			if b.updatedAt.Before(cutoff) {
				delete(sh.buckets, ip)
			}
		}
		sh.mu.Unlock()
	}
}

// Len returns the number of tracked IP buckets.
func (rl *RateLimiter) Len() int {
	n := 0
	for _, sh := range rl.shards {
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}
	return n
}

// realIP extracts the client IP from RemoteAddr.
// Proxy headers (X-Forwarded-For, X-Real-Ip) are NOT trusted because
// they can be spoofed by attackers to bypass rate limiting.
func realIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
