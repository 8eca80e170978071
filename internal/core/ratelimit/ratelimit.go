// Package ratelimit implements a per-key token-bucket throttle with bounded
// memory: buckets are created lazily and evicted on an LRU basis once a
// configured maximum count is exceeded.
//
// Bucket accounting itself is built on golang.org/x/time/rate, the same
// token-bucket primitive the teacher module declared but never exercised;
// the LRU-bounded map around it is this package's own contribution, styled
// after the supervisor's map-plus-mutex bookkeeping.
package ratelimit

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxTokens is the default bucket burst capacity.
	DefaultMaxTokens = 10
	// DefaultRefillRate is the default refill rate in tokens/second.
	DefaultRefillRate = 0.5
	// DefaultMaxBuckets bounds the number of distinct keys tracked at once.
	DefaultMaxBuckets = 10_000
)

// Config sizes a Limiter.
type Config struct {
	MaxTokens  int
	RefillRate float64
	MaxBuckets int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.RefillRate <= 0 {
		c.RefillRate = DefaultRefillRate
	}
	if c.MaxBuckets <= 0 {
		c.MaxBuckets = DefaultMaxBuckets
	}
	return c
}

type bucketEntry struct {
	key     string
	limiter *rate.Limiter
	elem    *list.Element
}

// Limiter is a key-addressed, LRU-bounded collection of token buckets.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucketEntry
	lru     *list.List // front = most recently used
}

// New constructs a Limiter. A zero Config uses the package defaults.
func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucketEntry),
		lru:     list.New(),
	}
}

// Allow checks the bucket for key, refilling it by elapsed time, and
// consumes one token if available. It never blocks.
func (l *Limiter) Allow(key string) bool {
	return l.bucketFor(key).AllowN(time.Now(), 1)
}

// RetryAfter returns the estimated duration until key's bucket has at least
// one token available.
func (l *Limiter) RetryAfter(key string) time.Duration {
	res := l.bucketFor(key).ReserveN(time.Now(), 1)
	defer res.Cancel()
	if res.OK() {
		delay := res.DelayFrom(time.Now())
		if delay < 0 {
			return 0
		}
		return delay
	}
	return time.Second
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.buckets[key]; ok {
		l.lru.MoveToFront(entry.elem)
		return entry.limiter
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RefillRate), l.cfg.MaxTokens)
	entry := &bucketEntry{key: key, limiter: lim}
	entry.elem = l.lru.PushFront(entry)
	l.buckets[key] = entry

	for len(l.buckets) > l.cfg.MaxBuckets {
		oldest := l.lru.Back()
		if oldest == nil {
			break
		}
		l.lru.Remove(oldest)
		delete(l.buckets, oldest.Value.(*bucketEntry).key)
	}

	return lim
}

// Len reports the number of tracked buckets, for tests and diagnostics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
