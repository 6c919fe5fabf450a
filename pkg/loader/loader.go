// Package loader drives the progressive display of one image: every quality
// is requested at once and each result is handed to subscribers as soon as it
// arrives.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"klvviewer/internal/listener"
	"klvviewer/internal/models"
	"klvviewer/pkg/cache"
	"klvviewer/pkg/postprocess"
)

var ErrAlreadyStarted = errors.New("loader: binaries already requested")

// State of a loading session
type State int

const (
	Idle State = iota
	Loading
	Settled
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Settled:
		return "settled"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source hands out shared futures. *cache.Cache implements it.
type Source interface {
	Get(id models.ImageID, q models.Quality) *cache.Future
	Release(f *cache.Future)
}

// Binary is one successfully loaded quality
type Binary struct {
	Quality  models.Quality
	Pixels   *models.PixelBuffer
	Metadata models.Metadata
}

// Failure is one quality that could not be loaded
type Failure struct {
	Quality models.Quality
	Err     error
}

// Options configures a Loader
type Options struct {
	Logger *log.Logger

	// PostProcess runs on every quality before it is delivered. A step
	// failure is reported as a loading failure of that quality.
	PostProcess postprocess.Chain
}

// Loader is a single image display session
type Loader struct {
	source    Source
	id        models.ImageID
	qualities []models.Quality
	logger    *log.Logger
	chain     postprocess.Chain

	loaded listener.Listener[Binary]
	failed listener.Listener[Failure]

	mu       sync.Mutex
	state    State
	futures  map[models.Quality]*cache.Future
	released map[models.Quality]bool
	arrived  []models.Quality
	cancel   context.CancelFunc

	// deliveries are serialised so subscribers never run concurrently
	deliverMu sync.Mutex

	done        chan struct{}
	closeDone   sync.Once
	destroyOnce sync.Once
}

// New creates an idle session for id. qualities are requested in the given
// order, normally the output of quality.Select.
func New(source Source, id models.ImageID, qualities []models.Quality, opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Loader{
		source:    source,
		id:        id,
		qualities: append([]models.Quality(nil), qualities...),
		logger:    logger,
		chain:     opts.PostProcess,
		futures:   make(map[models.Quality]*cache.Future),
		released:  make(map[models.Quality]bool),
		done:      make(chan struct{}),
	}
}

// ImageID returns the image of the session
func (l *Loader) ImageID() models.ImageID { return l.id }

// State returns the session state
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Arrived returns the qualities delivered so far in arrival order
func (l *Loader) Arrived() []models.Quality {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Quality(nil), l.arrived...)
}

// OnBinaryLoaded subscribes to successful qualities
func (l *Loader) OnBinaryLoaded(fn func(q models.Quality, pixels *models.PixelBuffer, meta models.Metadata)) *listener.Subscription {
	return l.loaded.Listen(func(b Binary) {
		fn(b.Quality, b.Pixels, b.Metadata)
	})
}

// OnLoadingFailed subscribes to failed qualities
func (l *Loader) OnLoadingFailed(fn func(q models.Quality, err error)) *listener.Subscription {
	return l.failed.Listen(func(f Failure) {
		fn(f.Quality, f.Err)
	})
}

// LoadBinaries requests every quality without waiting for any of them and
// returns immediately. Results are delivered in arrival order.
func (l *Loader) LoadBinaries() error {
	l.mu.Lock()
	if l.state != Idle {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.state = Loading
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	for _, q := range l.qualities {
		l.futures[q] = l.source.Get(l.id, q)
	}
	futures := make(map[models.Quality]*cache.Future, len(l.futures))
	for q, f := range l.futures {
		futures[q] = f
	}
	l.mu.Unlock()

	l.logger.Printf("loader: %s requesting %v", l.id, l.qualities)

	var g errgroup.Group
	for _, q := range l.qualities {
		q := q
		f := futures[q]
		g.Go(func() error {
			res, err := f.Wait(ctx)
			if ctx.Err() != nil {
				return nil
			}
			l.release(q)
			res, err = l.process(q, res, err)
			l.deliver(q, res, err)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		cancel()
		l.mu.Lock()
		if l.state == Loading {
			l.state = Settled
		}
		l.mu.Unlock()
		l.closeDone.Do(func() { close(l.done) })
	}()
	return nil
}

func (l *Loader) deliver(q models.Quality, res *cache.Result, err error) {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()

	l.mu.Lock()
	if l.state == Aborted {
		l.mu.Unlock()
		return
	}
	if err == nil {
		l.arrived = append(l.arrived, q)
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Printf("loader: %s@%s failed: %v", l.id, q, err)
		l.failed.Trigger(Failure{Quality: q, Err: err})
		return
	}
	l.logger.Printf("loader: %s@%s loaded", l.id, q)
	l.loaded.Trigger(Binary{Quality: q, Pixels: res.Pixels, Metadata: res.Metadata})
}

// process applies the session chain to a successful result
func (l *Loader) process(q models.Quality, res *cache.Result, err error) (*cache.Result, error) {
	if err != nil || len(l.chain) == 0 {
		return res, err
	}
	buf, meta, err := l.chain.Apply(res.Pixels, res.Metadata)
	if err != nil {
		return nil, fmt.Errorf("post-processing %s@%s: %w", l.id, q, err)
	}
	out := *res
	out.Pixels, out.Metadata, out.ElementFormat = buf, meta, buf.Format
	return &out, nil
}

// release gives back the reference of q once
func (l *Loader) release(q models.Quality) {
	l.mu.Lock()
	f, ok := l.futures[q]
	if !ok || l.released[q] {
		l.mu.Unlock()
		return
	}
	l.released[q] = true
	l.mu.Unlock()
	l.source.Release(f)
}

// AbortBinariesLoading stops the session. Pending requests are released,
// which aborts them unless another session shares them. Results that already
// arrived are kept by the cache. A notification in progress is waited for and
// none is started after it returns, so it must not be called from one of
// this loader's own subscribers.
func (l *Loader) AbortBinariesLoading() {
	l.mu.Lock()
	if l.state == Aborted || l.state == Settled {
		l.mu.Unlock()
		return
	}
	l.state = Aborted
	cancel := l.cancel
	qualities := make([]models.Quality, 0, len(l.futures))
	for q := range l.futures {
		qualities = append(qualities, q)
	}
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, q := range qualities {
		l.release(q)
	}
	// deliver checks the state under deliverMu
	l.deliverMu.Lock()
	l.deliverMu.Unlock() //nolint:staticcheck

	l.logger.Printf("loader: %s aborted", l.id)
	l.closeDone.Do(func() { close(l.done) })
}

// Destroy aborts the session and detaches every subscriber. Calling it again
// does nothing.
func (l *Loader) Destroy() {
	l.destroyOnce.Do(func() {
		l.AbortBinariesLoading()
		l.loaded.Close()
		l.failed.Close()
	})
}

// Wait blocks until the session is settled or aborted
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
