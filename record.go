package deeptrace

import (
	"net/http"
	"time"
)

// Record is the correlation and timing data collected for a single request.
// It's created when the request arrives, completed exactly once when the
// response is finished, and then handed off for delivery.
//
// The JSON form of a record is the collector wire format.
type Record struct {
	// ID is unique to this record.
	ID string `json:"id"`

	// ParentID is the ID of the record which caused this one, taken from the
	// inbound parent header. It's empty for root requests.
	ParentID string `json:"parentId,omitempty"`

	// ContextID is shared by every record in a causal chain. It's taken from
	// the inbound context header, or is equal to ID for root requests.
	ContextID string `json:"contextId"`

	// Request is captured when the record is created.
	Request RequestSnapshot `json:"request"`

	// Response is nil until the response is finished.
	Response *ResponseSnapshot `json:"response"`

	// Tags are static metadata about the service which produced the record.
	Tags Tags `json:"tags"`

	// StartedAt is when the record was created.
	StartedAt time.Time `json:"startedAt"`

	// FinishedAt is nil until the response is finished.
	FinishedAt *time.Time `json:"finishedAt"`
}

// Finished returns true if the response has been captured.
func (rec *Record) Finished() bool {
	return rec.Response != nil && rec.FinishedAt != nil
}

// Duration returns the time between start and finish. If the record isn't
// finished, it returns the time since start.
func (rec *Record) Duration() time.Duration {
	if rec.FinishedAt == nil {
		return time.Since(rec.StartedAt)
	}
	return rec.FinishedAt.Sub(rec.StartedAt)
}

// IsRoot returns true if the request had no parent.
func (rec *Record) IsRoot() bool {
	return rec.ParentID == ""
}

// RequestSnapshot is the part of an inbound request kept in a record.
type RequestSnapshot struct {
	IP      string      `json:"ip"`
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers http.Header `json:"headers"`
	Body    *string     `json:"body"`
}

// ResponseSnapshot is the part of a response kept in a record.
type ResponseSnapshot struct {
	Status  int         `json:"status"`
	Headers http.Header `json:"headers"`
	Body    *string     `json:"body"`
}

// Tags describe the service producing records. They're set once, via config,
// and shared by every record produced by a tracer.
type Tags struct {
	Environment string `json:"environment,omitempty"`
	Service     string `json:"service,omitempty"`
	Release     string `json:"release,omitempty"`
	Commit      string `json:"commit,omitempty"`
}
