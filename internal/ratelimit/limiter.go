// Package ratelimit provides per-user rate limiting for write endpoints.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures rate limiting behavior.
type Config struct {
	// RequestsPerSecond is the sustained request rate allowed per key.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// BurstSize is the maximum number of requests allowed in a burst.
	BurstSize int `yaml:"burst_size"`
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default limit for journal writes: a short burst,
// then roughly one post every few seconds.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 0.5,
		BurstSize:         5,
		Enabled:           true,
	}
}

// Bucket implements token bucket rate limiting.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewBucket creates a new token bucket.
func NewBucket(config Config) *Bucket {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}

	return &Bucket{
		tokens:     float64(config.BurstSize),
		maxTokens:  float64(config.BurstSize),
		refillRate: config.RequestsPerSecond,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request should be allowed and consumes a token if so.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// refill adds tokens based on time elapsed (must be called with lock held).
func (b *Bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// Tokens returns the current number of available tokens.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// Limiter manages rate limits for multiple keys (user ids, remote addrs).
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	config  Config
	maxKeys int
}

// NewLimiter creates a new rate limiter.
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		config:  config,
		maxKeys: 10000,
	}
}

// Allow checks if a request for the given key should be allowed.
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}

	return l.getBucket(key).Allow()
}

// Reset removes any accumulated state for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// getBucket returns or creates a bucket for the given key.
func (l *Limiter) getBucket(key string) *Bucket {
	l.mu.RLock()
	bucket, exists := l.buckets[key]
	l.mu.RUnlock()

	if exists {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists = l.buckets[key]; exists {
		return bucket
	}

	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}

	bucket = NewBucket(l.config)
	l.buckets[key] = bucket
	return bucket
}

// prune removes buckets with near-full tokens (likely inactive keys).
func (l *Limiter) prune() {
	for key, bucket := range l.buckets {
		if bucket.Tokens() >= bucket.maxTokens*0.9 {
			delete(l.buckets, key)
		}
	}
}
