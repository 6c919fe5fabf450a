package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"klvviewer/internal/models"
	"klvviewer/pkg/decodeunit"
)

// Result is a successfully decoded binary. It is shared by every holder of
// the future and must be treated as read-only.
type Result struct {
	ImageID       models.ImageID
	Quality       models.Quality
	Metadata      models.Metadata
	Pixels        *models.PixelBuffer
	ElementFormat models.ElementFormat
}

// LoadError is the failure of one (image, quality) pair
type LoadError struct {
	ImageID    models.ImageID
	Quality    models.Quality
	StatusCode int
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s@%s: status %d: %v", e.ImageID, e.Quality, e.StatusCode, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func abortedError(f *Future) error {
	return &LoadError{ImageID: f.id, Quality: f.quality, StatusCode: decodeunit.StatusAborted, Err: decodeunit.ErrAborted}
}

// IsAborted reports whether err comes from a released or aborted request
func IsAborted(err error) bool {
	return errors.Is(err, decodeunit.ErrAborted)
}

// Future is the eventual outcome of one cache entry
type Future struct {
	id      models.ImageID
	quality models.Quality
	done    chan struct{}
	abort   chan struct{}

	// guarded by the owning cache
	refs      int
	cancelled bool
	unit      *decodeunit.Unit
	handle    *decodeunit.Handle

	// prev is the released entry this one replaced while it was still
	// decoding; nil once every earlier decode of the key has settled
	prev *Future

	mu     sync.Mutex
	state  models.RequestState
	result *Result
	err    error
}

func newFuture(id models.ImageID, q models.Quality) *Future {
	return &Future{
		id:      id,
		quality: q,
		done:    make(chan struct{}),
		abort:   make(chan struct{}),
		state:   models.Pending,
	}
}

// ImageID returns the image the future loads
func (f *Future) ImageID() models.ImageID { return f.id }

// Quality returns the quality the future loads
func (f *Future) Quality() models.Quality { return f.quality }

// Done is closed once the future settles
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the outcome is known
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// State returns the lifecycle state of the underlying request
func (f *Future) State() models.RequestState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Result returns the outcome. Before settling it returns nil, nil.
func (f *Future) Result() (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// Wait blocks until the future settles or ctx is done
func (f *Future) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) setState(s models.RequestState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Future) resolve(res *Result, err error) {
	f.mu.Lock()
	f.result, f.err = res, err
	switch {
	case err == nil:
		f.state = models.Done
	case IsAborted(err):
		f.state = models.Aborted
	default:
		f.state = models.Failed
	}
	f.mu.Unlock()
	close(f.done)
}
