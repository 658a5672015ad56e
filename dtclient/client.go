// Package dtclient is the typed API of a deeptrace collector.
package dtclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/deeptrace/deeptrace-go"
	"github.com/deeptrace/deeptrace-go/dtagent"
)

// Doer models a dtagent.Agent.
type Doer interface {
	Do(ctx context.Context, method, path string, req dtagent.Request) (*dtagent.Response, error)
}

var _ Doer = (*dtagent.Agent)(nil)

// Client creates and finds records in a collector.
type Client struct {
	agent Doer
}

var _ deeptrace.Client = (*Client)(nil)

// New returns a client calling the collector behind the agent.
func New(agent Doer) *Client {
	return &Client{
		agent: agent,
	}
}

// CreateTrace sends the record to the collector. On success the same record
// is returned unchanged.
func (c *Client) CreateTrace(ctx context.Context, rec *deeptrace.Record) (*deeptrace.Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("create trace: nil record")
	}

	if _, err := c.agent.Do(ctx, http.MethodPost, "/", dtagent.Request{Body: rec}); err != nil {
		return nil, fmt.Errorf("create trace %s: %w", rec.ID, refine(err))
	}

	return rec, nil
}

// FindTraceByID fetches a single record from the collector.
func (c *Client) FindTraceByID(ctx context.Context, id string) (*deeptrace.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("find trace: empty ID")
	}

	res, err := c.agent.Do(ctx, http.MethodGet, "/"+url.PathEscape(id), dtagent.Request{
		Header: http.Header{"Accept": []string{"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("find trace %s: %w", id, refine(err))
	}

	var rec deeptrace.Record
	if err := json.Unmarshal(res.Raw, &rec); err != nil {
		return nil, fmt.Errorf("decode trace %s: %w", id, err)
	}

	return &rec, nil
}

// NotFoundError is a collector response with status 404.
type NotFoundError struct{ *dtagent.HTTPError }

func (e *NotFoundError) Unwrap() error { return e.HTTPError }

// DuplicatedError is a collector response with status 409.
type DuplicatedError struct{ *dtagent.HTTPError }

func (e *DuplicatedError) Unwrap() error { return e.HTTPError }

// ServerError is a collector response with a 5xx status.
type ServerError struct{ *dtagent.HTTPError }

func (e *ServerError) Unwrap() error { return e.HTTPError }

// refine maps HTTP errors to the more specific client errors by status code.
// Any other error is returned as-is.
func refine(err error) error {
	var httpErr *dtagent.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}

	switch code := httpErr.StatusCode(); {
	case code == http.StatusNotFound:
		return &NotFoundError{httpErr}
	case code == http.StatusConflict:
		return &DuplicatedError{httpErr}
	case code >= 500:
		return &ServerError{httpErr}
	default:
		return httpErr
	}
}
