package deeptrace

import (
	"net/http"
	"sync"
	"time"
)

// Reporter is the per-request view of a tracer. It's open from the moment the
// request arrives until the response is ended, at which point the record is
// finished and handed off for delivery. It can't be reopened.
//
// Handlers get the reporter from the request context via [FromContext], and use
// it to propagate correlation headers to the requests they make.
type Reporter struct {
	tracer *Tracer
	ids    Identifiers

	mtx    sync.Mutex
	record *Record // nil once closed
	final  Record
	closed bool
}

// ID of the current record.
func (rp *Reporter) ID() string { return rp.ids.ID }

// ParentID of the current record, empty for roots.
func (rp *Reporter) ParentID() string { return rp.ids.ParentID }

// ContextID of the current record.
func (rp *Reporter) ContextID() string { return rp.ids.ContextID }

// Closed returns true once the response has ended.
func (rp *Reporter) Closed() bool {
	rp.mtx.Lock()
	defer rp.mtx.Unlock()
	return rp.closed
}

// Record returns a copy of the record. Before the response has ended, the copy
// has no response data.
func (rp *Reporter) Record() Record {
	rp.mtx.Lock()
	defer rp.mtx.Unlock()
	if rp.closed {
		return rp.final
	}
	return *rp.record
}

// PropagableHeaders returns the headers to set on requests made while serving
// the current request.
func (rp *Reporter) PropagableHeaders() http.Header {
	rec := Record{ID: rp.ids.ID, ContextID: rp.ids.ContextID}
	return PropagableHeaders(&rec, rp.tracer.cfg.Headers)
}

// Propagate calls fn with the propagable headers, and returns its error.
func (rp *Reporter) Propagate(fn func(http.Header) error) error {
	return fn(rp.PropagableHeaders())
}

// Inject sets the propagable headers on an outbound request.
func (rp *Reporter) Inject(req *http.Request) {
	for k, vs := range rp.PropagableHeaders() {
		req.Header[k] = vs
	}
}

// close is the interceptor's end function. It finishes the record and hands
// it to the tracer. Only the first call has any effect.
func (rp *Reporter) close(status int, header http.Header, body string) {
	rec := func() *Record {
		rp.mtx.Lock()
		defer rp.mtx.Unlock()

		if rp.closed {
			return nil
		}

		rec := rp.record
		resp := SnapshotResponse(status, header, body)
		now := time.Now().UTC()
		rec.Response = &resp
		rec.FinishedAt = &now

		rp.final = *rec
		rp.record = nil
		rp.closed = true

		return rec
	}()
	if rec == nil {
		return
	}

	rp.tracer.finish(rec)
}
