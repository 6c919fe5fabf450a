package fetch

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"klvviewer/internal/models"
)

// DefaultTimeout bounds requests when no timeout is configured
const DefaultTimeout = 30 * time.Second

// HTTPFetcher downloads containers from the viewer API
type HTTPFetcher struct {
	Client  *fasthttp.Client
	Targets Targets

	// Timeout bounds each request, including one abandoned by its context
	Timeout time.Duration
}

// NewHTTPFetcher creates a fetcher for the API rooted at baseURL. A zero
// timeout means DefaultTimeout.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		Client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		Targets: Targets{BaseURL: baseURL},
		Timeout: timeout,
	}
}

// deadline is the earliest of the fetcher timeout and the context deadline
func (f *HTTPFetcher) deadline(ctx context.Context) time.Time {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

type httpResult struct {
	status int
	body   []byte
	err    error
}

// Fetch performs a GET on the quality specific target. Cancelling ctx
// abandons the request; the connection is left to finish in the background
// until the request deadline.
func (f *HTTPFetcher) Fetch(ctx context.Context, id models.ImageID, q models.Quality) ([]byte, error) {
	target, err := f.Targets.For(id, q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{StatusCode: StatusTransport, Target: target, Err: err}
	}

	deadline := f.deadline(ctx)
	done := make(chan httpResult, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(target)
		req.Header.SetMethod(fasthttp.MethodGet)

		if err := f.Client.DoDeadline(req, resp, deadline); err != nil {
			done <- httpResult{err: err}
			return
		}
		res := httpResult{status: resp.StatusCode()}
		if res.status == fasthttp.StatusOK {
			res.body = append([]byte(nil), resp.Body()...)
		}
		done <- res
	}()

	select {
	case <-ctx.Done():
		return nil, &FetchError{StatusCode: StatusTransport, Target: target, Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			return nil, &FetchError{StatusCode: StatusTransport, Target: target, Err: res.err}
		}
		if res.status != fasthttp.StatusOK {
			return nil, &FetchError{StatusCode: res.status, Target: target}
		}
		return res.body, nil
	}
}
