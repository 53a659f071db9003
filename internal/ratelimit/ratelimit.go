// Package ratelimit keeps a token bucket per client IP so one noisy client
// cannot starve the evaluation API for everyone else.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config sizes the per-client buckets.
type Config struct {
	RequestsPerMinute int           // sustained refill rate
	BurstSize         int           // bucket capacity
	CleanupInterval   time.Duration // how often idle buckets are dropped
}

// DefaultConfig allows 2 requests/second sustained with short bursts of 20.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 120,
		BurstSize:         20,
		CleanupInterval:   time.Minute,
	}
}

// bucket holds the remaining tokens for one client.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// take refills for the time elapsed since the last request, then spends one
// token if the bucket has one.
func (bk *bucket) take(now time.Time, refillPerSec, capacity float64) bool {
	bk.tokens += now.Sub(bk.lastSeen).Seconds() * refillPerSec
	if bk.tokens > capacity {
		bk.tokens = capacity
	}
	bk.lastSeen = now

	if bk.tokens < 1 {
		return false
	}
	bk.tokens--
	return true
}

// Limiter owns the buckets and the background eviction of idle ones.
type Limiter struct {
	cfg          Config
	refillPerSec float64
	mu           sync.Mutex
	buckets      map[string]*bucket
	stop         chan struct{}
}

// New creates a limiter and starts its eviction loop.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:          cfg,
		refillPerSec: float64(cfg.RequestsPerMinute) / 60.0,
		buckets:      make(map[string]*bucket),
		stop:         make(chan struct{}),
	}
	go l.evictIdle()
	return l
}

// evictIdle drops buckets with no recent requests. A dropped client simply
// starts over with a full bucket.
func (l *Limiter) evictIdle() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * time.Minute)
			l.mu.Lock()
			for key, bk := range l.buckets {
				if bk.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop ends the eviction goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow spends one token from key's bucket. A first request starts a full
// bucket minus the token it spends.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	bk, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{
			tokens:   float64(l.cfg.BurstSize) - 1,
			lastSeen: now,
		}
		return true
	}
	return bk.take(now, l.refillPerSec, float64(l.cfg.BurstSize))
}

// Middleware rejects over-limit clients, keyed by IP, with a 429.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate_limit_exceeded",
			"message":     "Too many requests. Please slow down.",
			"retry_after": 1,
		})
	}
}
