// Package decodeunit implements the isolated execution context that fetches,
// parses and decodes one image binary at a time.
//
// A Unit holds a single slot. Submitting while the slot is taken is a
// protocol violation and is rejected, never queued. Every accepted request
// produces exactly one Response, including aborted ones.
package decodeunit

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"klvviewer/internal/models"
	"klvviewer/pkg/fetch"
	"klvviewer/pkg/klv"
	"klvviewer/pkg/pixels"
)

// Options configures a Unit
type Options struct {
	// Name identifies the unit in logs and errors
	Name string

	// Logger receives protocol violations and request traces.
	// Nil discards them.
	Logger *log.Logger
}

// Unit is a single-slot decode executor
type Unit struct {
	name    string
	fetcher fetch.Fetcher
	logger  *log.Logger

	mu     sync.Mutex
	active *Handle
}

// Handle tracks one accepted request
type Handle struct {
	id      models.ImageID
	quality models.Quality
	done    chan Response
	cancel  context.CancelFunc

	mu      sync.Mutex
	state   models.RequestState
	aborted bool
}

// Done yields the single response of the request
func (h *Handle) Done() <-chan Response {
	return h.done
}

// State returns the current lifecycle state
func (h *Handle) State() models.RequestState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ImageID returns the requested image
func (h *Handle) ImageID() models.ImageID { return h.id }

// Quality returns the requested quality
func (h *Handle) Quality() models.Quality { return h.quality }

func (h *Handle) setState(s models.RequestState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) wasAborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborted
}

// New creates an idle unit
func New(fetcher fetch.Fetcher, opts Options) *Unit {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	name := opts.Name
	if name == "" {
		name = "unit"
	}
	return &Unit{name: name, fetcher: fetcher, logger: logger}
}

// Name returns the unit name
func (u *Unit) Name() string {
	return u.name
}

// Busy reports whether a request is active
func (u *Unit) Busy() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active != nil
}

// Submit starts fetch, parse and decode of id at quality q. It fails with a
// *ProtocolError wrapping ErrBusy if a request is already active.
func (u *Unit) Submit(id models.ImageID, q models.Quality) (*Handle, error) {
	u.mu.Lock()
	if u.active != nil {
		busy := u.active
		u.mu.Unlock()
		err := &ProtocolError{Unit: u.name, Command: CommandGetBinary, Err: fmt.Errorf("%w (active %s@%s, rejected %s@%s)", ErrBusy, busy.id, busy.quality, id, q)}
		u.logger.Printf("ERROR %v", err)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		id:      id,
		quality: q,
		done:    make(chan Response, 1),
		cancel:  cancel,
		state:   models.Active,
	}
	u.active = h
	u.mu.Unlock()

	go u.run(ctx, h)
	return h, nil
}

// Abort cancels the byte fetch of h if it is still the active request.
// Decompression that already started runs to completion. Aborting a request
// that already finished is a no-op.
func (u *Unit) Abort(h *Handle) {
	u.mu.Lock()
	active := u.active == h
	u.mu.Unlock()
	if !active {
		return
	}

	h.mu.Lock()
	h.aborted = true
	h.mu.Unlock()
	h.cancel()
}

// Post dispatches a protocol message. getBinary returns the new handle;
// abort targets whatever request is active and returns nil.
func (u *Unit) Post(req Request) (*Handle, error) {
	switch req.Command {
	case CommandGetBinary:
		return u.Submit(req.ImageID, req.Quality)
	case CommandAbort:
		u.mu.Lock()
		h := u.active
		u.mu.Unlock()
		if h != nil {
			u.Abort(h)
		}
		return nil, nil
	default:
		err := &ProtocolError{Unit: u.name, Command: req.Command, Err: ErrUnknownCommand}
		u.logger.Printf("ERROR %v", err)
		return nil, err
	}
}

func (u *Unit) run(ctx context.Context, h *Handle) {
	resp, state := u.process(ctx, h)

	u.mu.Lock()
	u.active = nil
	u.mu.Unlock()

	h.setState(state)
	h.cancel()
	h.done <- resp
}

// process runs the pipeline and maps its outcome to a response and a final state
func (u *Unit) process(ctx context.Context, h *Handle) (Response, models.RequestState) {
	resp := Response{ImageID: h.id, Quality: h.quality}

	data, err := u.fetcher.Fetch(ctx, h.id, h.quality)
	if err != nil {
		resp.Status = StatusFailure
		if h.wasAborted() {
			resp.StatusCode = StatusAborted
			resp.Err = fmt.Errorf("%w: %w", ErrAborted, err)
			u.logger.Printf("%s: %s@%s aborted", u.name, h.id, h.quality)
			return resp, models.Aborted
		}
		resp.StatusCode = fetch.StatusOf(err)
		if resp.StatusCode < 0 {
			resp.StatusCode = fetch.StatusTransport
		}
		resp.Err = err
		u.logger.Printf("%s: %s@%s fetch failed: %v", u.name, h.id, h.quality, err)
		return resp, models.Failed
	}

	c, err := klv.Parse(data)
	if err != nil {
		return u.decodeFailure(resp, err), models.Failed
	}
	buf, err := pixels.Decode(c)
	if err != nil {
		return u.decodeFailure(resp, err), models.Failed
	}

	resp.Status = StatusSuccess
	resp.Metadata = c.Metadata
	resp.Pixels = buf
	resp.ElementFormat = buf.Format
	u.logger.Printf("%s: %s@%s decoded %s %s x%d", u.name, h.id, h.quality, buf.Resolution(), buf.Format, buf.Channels)
	return resp, models.Done
}

func (u *Unit) decodeFailure(resp Response, err error) Response {
	resp.Status = StatusFailure
	resp.StatusCode = StatusDecodeFailed
	resp.Err = err
	u.logger.Printf("%s: %s@%s decode failed: %v", u.name, resp.ImageID, resp.Quality, err)
	return resp
}
