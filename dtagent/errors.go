package dtagent

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrAgent matches every failure below the HTTP layer, i.e. a TimeoutError or
// a TransportError, via errors.Is.
var ErrAgent = errors.New("agent error")

// TimeoutError is returned when a round trip exceeds the agent's timeout. The
// in-flight request has been aborted.
type TimeoutError struct {
	Request *http.Request
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Request != nil {
		return fmt.Sprintf("%s %s: timeout after %s", e.Request.Method, redactRequestURL(e.Request.URL), e.Timeout)
	}
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrAgent }

// HTTPError is returned when the collector responds with a status code of 400
// or above. The full response is available to the caller.
type HTTPError struct {
	Response *Response
}

func (e *HTTPError) Error() string {
	if msg := errorMessage(e.Response.Body); msg != "" {
		return msg
	}
	return fmt.Sprintf("HTTP %d %s", e.Response.StatusCode, http.StatusText(e.Response.StatusCode))
}

// StatusCode of the response that caused the error.
func (e *HTTPError) StatusCode() int { return e.Response.StatusCode }

// TransportError is returned for any network failure that isn't a timeout.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, redactURL(e.Err))
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrAgent }

// errorMessage extracts error.message from a decoded JSON body.
func errorMessage(body any) string {
	obj, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	inner, ok := obj["error"].(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := inner["message"].(string)
	return msg
}

// redactURL strips the url.Error wrapper, which repeats the full request URL.
func redactURL(err error) error {
	if urlErr := (&url.Error{}); errors.As(err, &urlErr) {
		err = fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func redactRequestURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
