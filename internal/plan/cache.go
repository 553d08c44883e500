// Package plan provides the generic plan cache shared by every transform family.
//
// A Cache maps a value-typed descriptor to the Plan built for it. Descriptors
// are bucketed by a hash function and matched by an equality function; the
// two must satisfy equal(a, b) => hash(a) == hash(b). There is no eviction:
// plans live until Close.
package plan

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/born-ml/xform/internal/errs"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("plan: cache closed")

// Plan is anything a cache can own.
type Plan interface {
	Release() error
}

// Stats counts cache activity.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
	Builds  uint64
	Failed  uint64
}

type entry[K any, P Plan] struct {
	key   K
	plan  P
	ready chan struct{}
	err   error
}

// Cache is a concurrency-safe descriptor to plan map.
type Cache[K any, P Plan] struct {
	name  string
	hash  func(K) uint64
	equal func(a, b K) bool

	mu      sync.RWMutex
	buckets map[uint64][]*entry[K, P]
	size    int
	closed  bool

	hits   atomic.Uint64
	misses atomic.Uint64
	builds atomic.Uint64
	failed atomic.Uint64
}

// New creates an empty cache.
func New[K any, P Plan](name string, hash func(K) uint64, equal func(a, b K) bool) *Cache[K, P] {
	return &Cache[K, P]{
		name:    name,
		hash:    hash,
		equal:   equal,
		buckets: make(map[uint64][]*entry[K, P]),
	}
}

// Name returns the cache name.
func (c *Cache[K, P]) Name() string {
	return c.name
}

// find returns the entry for k in bucket h. Caller holds c.mu.
func (c *Cache[K, P]) find(h uint64, k K) *entry[K, P] {
	for _, e := range c.buckets[h] {
		if c.equal(e.key, k) {
			return e
		}
	}
	return nil
}

// Lookup returns the ready plan for k. It never builds and never waits for a
// build in progress.
func (c *Cache[K, P]) Lookup(k K) (P, bool) {
	h := c.hash(k)

	c.mu.RLock()
	e := c.find(h, k)
	c.mu.RUnlock()

	if e != nil {
		select {
		case <-e.ready:
			if e.err == nil {
				c.hits.Add(1)
				return e.plan, true
			}
		default:
		}
	}
	c.misses.Add(1)
	var zero P
	return zero, false
}

// Insert registers p under k. If a plan already exists for an equal
// descriptor the insert is rejected and the caller keeps ownership of p.
func (c *Cache[K, P]) Insert(k K, p P) error {
	h := c.hash(k)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.find(h, k) != nil {
		return errs.New(errs.KindInvalidParameter, c.name, "plan already cached for descriptor")
	}
	e := &entry[K, P]{key: k, plan: p, ready: make(chan struct{})}
	close(e.ready)
	c.buckets[h] = append(c.buckets[h], e)
	c.size++
	return nil
}

// LookupOrCreate returns the plan for k, building it with build on a miss.
// Concurrent callers with equal descriptors share one build: the first
// caller builds while the rest wait. A failed build leaves no entry and its
// error is returned to every waiter.
func (c *Cache[K, P]) LookupOrCreate(k K, build func() (P, error)) (P, error) {
	h := c.hash(k)

	c.mu.RLock()
	e := c.find(h, k)
	closed := c.closed
	c.mu.RUnlock()

	if e == nil && !closed {
		c.mu.Lock()
		closed = c.closed
		if e = c.find(h, k); e == nil && !closed {
			e = &entry[K, P]{key: k, ready: make(chan struct{})}
			c.buckets[h] = append(c.buckets[h], e)
			c.size++
			c.mu.Unlock()

			c.misses.Add(1)
			return c.build(h, e, build)
		}
		c.mu.Unlock()
	}
	if e == nil {
		var zero P
		return zero, ErrClosed
	}

	<-e.ready
	if e.err != nil {
		var zero P
		return zero, e.err
	}
	c.hits.Add(1)
	return e.plan, nil
}

func (c *Cache[K, P]) build(h uint64, e *entry[K, P], build func() (P, error)) (p P, err error) {
	completed := false
	defer func() {
		if completed {
			return
		}
		// build panicked: drop the entry and wake waiters, then let the panic continue.
		e.err = errs.New(errs.KindVendor, c.name, "plan construction panicked")
		c.remove(h, e)
		close(e.ready)
	}()

	p, err = build()
	completed = true

	if err != nil {
		c.failed.Add(1)
		e.err = err
		c.remove(h, e)
		close(e.ready)
		var zero P
		return zero, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		e.err = ErrClosed
		close(e.ready)
		return p, errors.Join(ErrClosed, p.Release())
	}
	e.plan = p
	close(e.ready)
	c.mu.Unlock()

	c.builds.Add(1)
	return p, nil
}

func (c *Cache[K, P]) remove(h uint64, e *entry[K, P]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[h]
	for i, x := range bucket {
		if x == e {
			bucket = append(bucket[:i], bucket[i+1:]...)
			c.size--
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.buckets, h)
	} else {
		c.buckets[h] = bucket
	}
}

// Len returns the number of entries, including builds in progress.
func (c *Cache[K, P]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Stats returns a snapshot of cache counters.
func (c *Cache[K, P]) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Builds:  c.builds.Load(),
		Failed:  c.failed.Load(),
	}
}

// Close releases every cached plan and rejects further use. Builds still in
// progress release their plan when they finish.
func (c *Cache[K, P]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var ready []*entry[K, P]
	for _, bucket := range c.buckets {
		for _, e := range bucket {
			select {
			case <-e.ready:
				if e.err == nil {
					ready = append(ready, e)
				}
			default:
			}
		}
	}
	c.buckets = make(map[uint64][]*entry[K, P])
	c.size = 0
	c.mu.Unlock()

	var errList []error
	for _, e := range ready {
		if err := e.plan.Release(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
