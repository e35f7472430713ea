package catalog

import (
	"context"
	"sync"
	"time"
)

// Logger is the subset of *zap.SugaredLogger the catalog package uses.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

const defaultFetchTimeout = 10 * time.Second

type slot struct {
	entries []Entry
	loading bool
	loaded  bool
	err     error
}

// Cache is the process-wide catalog cache. Reads never block: the first read
// of a key starts a background fetch and reports loading until it completes.
// Keys are never evicted. A failed fetch is retried on the next read.
type Cache struct {
	provider Provider
	log      Logger
	timeout  time.Duration

	mu      sync.Mutex
	slots   map[Key]*slot
	subs    map[int]func(Key)
	nextSub int
	wg      sync.WaitGroup
}

func NewCache(p Provider, log Logger) *Cache {
	return &Cache{
		provider: p,
		log:      log,
		timeout:  defaultFetchTimeout,
		slots:    make(map[Key]*slot),
		subs:     make(map[int]func(Key)),
	}
}

// Entries returns the cached entries for key and whether a fetch is in
// flight. The returned slice must not be modified.
func (c *Cache) Entries(key Key) ([]Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slots[key]
	if s == nil {
		s = &slot{}
		c.slots[key] = s
	}
	if !s.loaded && !s.loading {
		c.startLocked(key, s)
	}
	return s.entries, s.loading
}

// Lookup finds the entry for value without triggering a fetch.
func (c *Cache) Lookup(key Key, value string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slots[key]
	if s == nil {
		return Entry{}, false
	}
	return Find(s.entries, value)
}

// Err returns the error of the last failed fetch of key, if any.
func (c *Cache) Err(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.slots[key]; s != nil {
		return s.err
	}
	return nil
}

// Prefetch starts fetches for every key not yet loaded or loading.
func (c *Cache) Prefetch(keys ...Key) {
	for _, k := range keys {
		c.Entries(k)
	}
}

// Subscribe registers fn to be called after a key finishes loading. fn runs
// on the fetching goroutine and must not block. The returned func removes
// the subscription.
func (c *Cache) Subscribe(fn func(Key)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Replace installs entries for key as if they had just been fetched.
func (c *Cache) Replace(key Key, entries []Entry) {
	c.mu.Lock()
	c.slots[key] = &slot{entries: entries, loaded: true}
	subs := c.subscribersLocked()
	c.mu.Unlock()
	for _, fn := range subs {
		fn(key)
	}
}

// Wait blocks until every in-flight fetch has completed.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) startLocked(key Key, s *slot) {
	s.loading = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		entries, err := c.provider.Fetch(ctx, key)

		c.mu.Lock()
		s.loading = false
		if err != nil {
			s.err = err
			c.mu.Unlock()
			if c.log != nil {
				c.log.Errorw("catalog fetch failed", "key", key.String(), "error", err)
			}
			return
		}
		s.entries, s.loaded, s.err = entries, true, nil
		subs := c.subscribersLocked()
		c.mu.Unlock()

		if c.log != nil {
			c.log.Debugw("catalog loaded", "key", key.String(), "entries", len(entries))
		}
		for _, fn := range subs {
			fn(key)
		}
	}()
}

func (c *Cache) subscribersLocked() []func(Key) {
	out := make([]func(Key), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}
