package decodeunit

import (
	"errors"
	"fmt"

	"klvviewer/internal/models"
)

// Commands accepted by Unit.Post
const (
	CommandGetBinary = "getBinary"
	CommandAbort     = "abort"
)

// Response statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Status codes produced by the unit itself. Fetch failures keep the code of
// the fetch layer.
const (
	// StatusAborted marks a failure caused by an explicit abort
	StatusAborted = 0
	// StatusDecodeFailed marks a container or pixel format failure
	StatusDecodeFailed = 422
)

var (
	ErrBusy           = errors.New("decodeunit: another request is already in process")
	ErrUnknownCommand = errors.New("decodeunit: unknown command")
	ErrAborted        = errors.New("decodeunit: request aborted")
)

// ProtocolError is a caller bug: the unit was used outside of its
// one-request-at-a-time contract.
type ProtocolError struct {
	Unit    string
	Command string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("decode unit %s: %s: %v", e.Unit, e.Command, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Request is a message sent to a unit
type Request struct {
	Command string
	ImageID models.ImageID
	Quality models.Quality
}

// Response is the single outcome of an accepted getBinary request
type Response struct {
	Status        string
	ImageID       models.ImageID
	Quality       models.Quality
	Metadata      models.Metadata
	Pixels        *models.PixelBuffer
	ElementFormat models.ElementFormat

	// StatusCode and Err are set on failure
	StatusCode int
	Err        error
}

// OK reports a successful decode
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// Aborted reports a failure caused by an abort
func (r Response) Aborted() bool {
	return r.Status == StatusFailure && errors.Is(r.Err, ErrAborted)
}
