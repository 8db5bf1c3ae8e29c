package local

import (
	"context"
	"sync"
	"time"
)

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type entry struct {
	value    string
	deadline time.Time // zero means the key never expires
}

func (e entry) liveAt(now time.Time) bool {
	return e.deadline.IsZero() || now.Before(e.deadline)
}

// LocalCache keeps keys in process memory. It backs the bound-retrieve
// locks when the char server runs without Redis, which is only safe while a
// single char server owns the database.
type LocalCache struct {
	mu       sync.Mutex
	entries  map[string]entry
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewCache creates a LocalCache and starts sweeping expired keys every
// cfg.GCInterval (30s when unset).
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go c.sweepEvery(interval)
	return c, nil
}

// Close stops the sweeper.
func (c *LocalCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Len returns the number of stored keys, expired ones included until the
// next sweep.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *LocalCache) sweepEvery(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *LocalCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if !e.liveAt(now) {
			delete(c.entries, k)
		}
	}
}

// lookup must be called with mu held.
func (c *LocalCache) lookup(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.liveAt(c.now()) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

func (c *LocalCache) put(key, value string, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.deadline = c.now().Add(ttl)
	}
	c.entries[key] = e
}

func (c *LocalCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.lookup(key); held {
		return false, nil
	}
	c.put(key, value, ttl)
	return true, nil
}

func (c *LocalCache) DelIfEqual(_ context.Context, key, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(c.entries, key)
	return true, nil
}
