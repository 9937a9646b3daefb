package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps windows in process memory. Counts are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*Window
	ttl     time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore returns a store whose janitor drops windows older than ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*Window),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		return Window{}, false, nil
	}
	return *w, true, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		w = &Window{Start: time.Now()}
		s.windows[key] = w
	}
	w.Count++
	return w.Count, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string, start time.Time) error {
	s.mu.Lock()
	s.windows[key] = &Window{Start: start, Count: 1}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// StartJanitor sweeps expired windows every interval until Close.
func (s *MemoryStore) StartJanitor(interval time.Duration) {
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case now := <-t.C:
				s.sweep(now)
			}
		}
	}()
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, w := range s.windows {
		if now.Sub(w.Start) > s.ttl {
			delete(s.windows, k)
		}
	}
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
