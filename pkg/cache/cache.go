// Package cache shares decoded binaries between every consumer of the same
// (image, quality) pair and spreads the work over a small pool of decode
// units.
package cache

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"klvviewer/internal/models"
	"klvviewer/pkg/decodeunit"
	"klvviewer/pkg/fetch"
)

// DefaultUnits is the size of the decode unit pool when none is configured
const DefaultUnits = 2

// FailurePolicy decides what happens to a failed entry
type FailurePolicy int

const (
	// RetryFailures drops failed entries so that the next Get starts over
	RetryFailures FailurePolicy = iota
	// CacheFailures keeps failed entries and hands the failure to later callers
	CacheFailures
)

func (p FailurePolicy) String() string {
	switch p {
	case RetryFailures:
		return "retry"
	case CacheFailures:
		return "cache"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy is the inverse of FailurePolicy.String
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(s) {
	case "retry", "":
		return RetryFailures, nil
	case "cache":
		return CacheFailures, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Options configures a Cache
type Options struct {
	Units  int
	Policy FailurePolicy
	Logger *log.Logger
}

type key struct {
	id models.ImageID
	q  models.Quality
}

// Cache maps (ImageID, Quality) to a shared Future
type Cache struct {
	policy FailurePolicy
	logger *log.Logger
	units  chan *decodeunit.Unit

	mu      sync.Mutex
	entries map[key]*Future

	submissions atomic.Int64
}

// New creates a cache backed by a pool of decode units fetching through f
func New(f fetch.Fetcher, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	n := opts.Units
	if n <= 0 {
		n = DefaultUnits
	}

	c := &Cache{
		policy:  opts.Policy,
		logger:  logger,
		units:   make(chan *decodeunit.Unit, n),
		entries: make(map[key]*Future),
	}
	for i := 0; i < n; i++ {
		c.units <- decodeunit.New(f, decodeunit.Options{Name: fmt.Sprintf("unit-%d", i), Logger: logger})
	}
	return c
}

// Get returns the future of id at quality q, joining an existing one when
// present. Every call takes a reference that must be given back with Release.
//
// A key whose last reference was released while its decode was still
// running is not decoded again until that decode settles. The new future
// reuses its result when it succeeded anyway.
func (c *Cache) Get(id models.ImageID, q models.Quality) *Future {
	k := key{id, q}

	c.mu.Lock()
	prev, ok := c.entries[k]
	if ok && !prev.cancelled {
		prev.refs++
		c.mu.Unlock()
		return prev
	}
	f := newFuture(id, q)
	f.refs = 1
	if ok {
		f.prev = prev
	}
	c.entries[k] = f
	c.mu.Unlock()

	go c.load(f)
	return f
}

// Release gives back one reference. When the last reference of a future that
// has not settled yet goes away, its submission is aborted. The entry stays
// indexed until the decode settles so that a later Get cannot start a second
// decode of the same key. Settled entries stay cached.
func (c *Cache) Release(f *Future) {
	c.mu.Lock()
	if f.refs > 0 {
		f.refs--
	}
	if f.refs > 0 || f.Settled() || f.cancelled {
		c.mu.Unlock()
		return
	}

	f.cancelled = true
	close(f.abort)
	unit, h := f.unit, f.handle
	c.mu.Unlock()

	c.logger.Printf("cache: %s@%s released before settling, aborting", f.id, f.quality)
	if h != nil {
		unit.Abort(h)
	}
}

// ListCached returns the qualities of id that are cached successfully, in
// ascending fidelity
func (c *Cache) ListCached(id models.ImageID) []models.Quality {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.Quality
	for _, q := range models.Qualities {
		f, ok := c.entries[key{id, q}]
		if !ok || !f.Settled() {
			continue
		}
		if _, err := f.Result(); err == nil {
			out = append(out, q)
		}
	}
	return out
}

// Len returns the number of entries, settled or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Submissions returns how many requests were handed to decode units
func (c *Cache) Submissions() int64 {
	return c.submissions.Load()
}

// remove drops f from the index if it is still the entry for its key.
// Must be called with c.mu held.
func (c *Cache) remove(f *Future) {
	k := key{f.id, f.quality}
	if c.entries[k] == f {
		delete(c.entries, k)
	}
}

// awaitPrevious blocks until every earlier decode of f's key has settled and
// returns the most recent successful result among them. It reports false
// when f is released while waiting.
func (c *Cache) awaitPrevious(f *Future) (*Result, bool) {
	c.mu.Lock()
	p := f.prev
	c.mu.Unlock()

	var res *Result
	for p != nil {
		select {
		case <-p.done:
		case <-f.abort:
			return nil, false
		}
		if r, err := p.Result(); err == nil && res == nil {
			res = r
		}
		// prev is cleared only once every earlier decode has settled
		c.mu.Lock()
		p = p.prev
		c.mu.Unlock()
	}

	c.mu.Lock()
	f.prev = nil
	c.mu.Unlock()
	return res, true
}

func (c *Cache) load(f *Future) {
	earlier, ok := c.awaitPrevious(f)
	if !ok {
		c.settle(f, nil, abortedError(f))
		return
	}
	if earlier != nil {
		c.logger.Printf("cache: %s@%s reused the result of a released decode", f.id, f.quality)
		c.settle(f, earlier, nil)
		return
	}

	var unit *decodeunit.Unit
	select {
	case unit = <-c.units:
	case <-f.abort:
		c.settle(f, nil, abortedError(f))
		return
	}
	defer func() { c.units <- unit }()

	c.mu.Lock()
	if f.cancelled {
		c.mu.Unlock()
		c.settle(f, nil, abortedError(f))
		return
	}
	h, err := unit.Submit(f.id, f.quality)
	if err != nil {
		c.mu.Unlock()
		c.settle(f, nil, &LoadError{ImageID: f.id, Quality: f.quality, StatusCode: fetch.StatusTransport, Err: err})
		return
	}
	f.unit, f.handle = unit, h
	f.setState(models.Active)
	c.submissions.Add(1)
	c.mu.Unlock()

	resp := <-h.Done()
	if !resp.OK() {
		c.settle(f, nil, &LoadError{ImageID: f.id, Quality: f.quality, StatusCode: resp.StatusCode, Err: resp.Err})
		return
	}
	c.settle(f, &Result{
		ImageID:       f.id,
		Quality:       f.quality,
		Metadata:      resp.Metadata,
		Pixels:        resp.Pixels,
		ElementFormat: resp.ElementFormat,
	}, nil)
}

// settle publishes the outcome of f. Released futures leave the index
// whatever their outcome; a success that arrives after the release is handed
// only to a future that replaced it.
func (c *Cache) settle(f *Future, res *Result, err error) {
	c.mu.Lock()
	cancelled := f.cancelled
	if cancelled || (err != nil && c.policy == RetryFailures) {
		c.remove(f)
	}
	c.mu.Unlock()

	switch {
	case err != nil:
		c.logger.Printf("cache: %s@%s failed: %v", f.id, f.quality, err)
	case cancelled:
		c.logger.Printf("cache: %s@%s decoded after release, not cached", f.id, f.quality)
	default:
		c.logger.Printf("cache: %s@%s cached", f.id, f.quality)
	}
	f.resolve(res, err)
}

// Wait is a convenience for Get followed by Future.Wait. The reference is
// released on return.
func (c *Cache) Wait(ctx context.Context, id models.ImageID, q models.Quality) (*Result, error) {
	f := c.Get(id, q)
	defer c.Release(f)
	return f.Wait(ctx)
}
