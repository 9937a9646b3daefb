// Package ratelimit implements a fixed-window request cap per key. Window
// state lives behind Store so several instances can share it.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultWindow = 15 * time.Minute
	DefaultMax    = 100
)

type Window struct {
	Start time.Time
	Count int
}

// Store keeps one window per key.
type Store interface {
	// Get returns the current window for key, if there is one.
	Get(ctx context.Context, key string) (Window, bool, error)
	// Increment atomically adds one to the key's count and returns the new value.
	Increment(ctx context.Context, key string) (int, error)
	// Reset starts a new window at start with a count of 1.
	Reset(ctx context.Context, key string, start time.Time) error
}

type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
}

const stripes = 64

type Limiter struct {
	store  Store
	window time.Duration
	max    int
	now    func() time.Time
	log    zerolog.Logger

	locks [stripes]sync.Mutex
}

func New(store Store, window time.Duration, limit int, log zerolog.Logger) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultMax
	}
	return &Limiter{
		store:  store,
		window: window,
		max:    limit,
		now:    time.Now,
		log:    log.With().Str("component", "ratelimit").Logger(),
	}
}

func (l *Limiter) Window() time.Duration { return l.window }

// Allow counts one request for key. Store failures let the request through.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	mu := &l.locks[stripe(key)]
	mu.Lock()
	defer mu.Unlock()

	now := l.now()
	w, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return l.failOpen(key, err)
	}
	if !ok || now.Sub(w.Start) > l.window {
		if err := l.store.Reset(ctx, key, now); err != nil {
			return l.failOpen(key, err)
		}
		return Decision{Allowed: true, Count: 1, Limit: l.max}
	}

	n, err := l.store.Increment(ctx, key)
	if err != nil {
		return l.failOpen(key, err)
	}
	d := Decision{Allowed: n <= l.max, Count: n, Limit: l.max}
	if !d.Allowed {
		d.RetryAfter = w.Start.Add(l.window).Sub(now)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d
}

func (l *Limiter) failOpen(key string, err error) Decision {
	l.log.Error().Err(err).Str("key", key).Msg("rate limit store failed, allowing request")
	return Decision{Allowed: true, Limit: l.max}
}

func stripe(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % stripes
}
