// Package fetch retrieves container bytes for an (image, quality) pair and
// reports failures with an HTTP-style status code.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"klvviewer/internal/models"
)

// Status codes surfaced to consumers
const (
	// StatusTransport is used when no response was received at all
	StatusTransport  = 0
	StatusBadRequest = fasthttp.StatusBadRequest
	StatusNotFound   = fasthttp.StatusNotFound
)

// ErrInvalidInstance rejects instance ids that cannot name a single path
// segment
var ErrInvalidInstance = errors.New("fetch: invalid instance id")

// Fetcher returns the raw container bytes of one image at one quality
type Fetcher interface {
	Fetch(ctx context.Context, id models.ImageID, q models.Quality) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, id models.ImageID, q models.Quality) ([]byte, error)

// Fetch calls f
func (f FetcherFunc) Fetch(ctx context.Context, id models.ImageID, q models.Quality) ([]byte, error) {
	return f(ctx, id, q)
}

// FetchError is a transport failure or a non-200 answer
type FetchError struct {
	StatusCode int
	Target     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.Target, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusOf returns the status code carried by err, or -1 if err is not a
// FetchError
func StatusOf(err error) int {
	var ferr *FetchError
	if errors.As(err, &ferr) {
		return ferr.StatusCode
	}
	return -1
}

// IsNotFound reports whether err means the image or quality does not exist
func IsNotFound(err error) bool {
	return StatusOf(err) == StatusNotFound
}

// suffixes are the processing chains the server applies per quality
var suffixes = map[models.Quality]string{
	models.Lossless:       "/png/klv",
	models.DownscaledHigh: "/resize:1000/8bit/jpeg:100/klv",
	models.DownscaledLow:  "/resize:150/8bit/jpeg:100/klv",
}

// Targets builds fetch URLs below an API root
type Targets struct {
	BaseURL string
}

// CheckInstance verifies that the instance of id is a single, non-relative
// path segment
func CheckInstance(id models.ImageID) error {
	inst := id.InstanceID
	if inst == "" || inst == "." || inst == ".." || strings.ContainsAny(inst, `/\`) {
		return &FetchError{StatusCode: StatusBadRequest, Target: inst, Err: ErrInvalidInstance}
	}
	return nil
}

// For returns the URL of the container of id at quality q
func (t Targets) For(id models.ImageID, q models.Quality) (string, error) {
	if err := CheckInstance(id); err != nil {
		return "", err
	}
	suffix, ok := suffixes[q]
	if !ok {
		return "", fmt.Errorf("undefined quality: %v", q)
	}
	base := strings.TrimRight(t.BaseURL, "/")
	return base + "/nuks/" + url.PathEscape(id.InstanceID) + "/" + strconv.FormatUint(uint64(id.Frame), 10) + suffix, nil
}
