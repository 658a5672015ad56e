package deeptrace

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deeptrace/deeptrace-go/internal/dtutil"
)

// Client delivers finished records to a collector. It's implemented by
// [github.com/deeptrace/deeptrace-go/dtclient.Client].
type Client interface {
	CreateTrace(ctx context.Context, rec *Record) (*Record, error)
}

// Tracer creates a record for each request, and delivers finished records via
// its client. A tracer is safe for concurrent use, and should be shared by all
// requests served by a program.
type Tracer struct {
	cfg     Config
	client  Client
	valid   bool
	newID   func() string
	metrics *Metrics
	wg      sync.WaitGroup
}

// New returns a tracer for the config. Records are only delivered if the
// config is valid: every header name is set, the DSN is set, and the client is
// non-nil. Otherwise, the tracer still assigns identifiers and provides
// propagation headers, and a single warning is logged.
func New(cfg Config, client Client) *Tracer {
	cfg = cfg.withDefaults()

	newID, err := NewIDFunc(cfg.IDFormat)
	if err != nil {
		cfg.Logger.Warn("invalid ID format, using UUIDs", zap.String("format", cfg.IDFormat))
		newID = NewUUID
	}

	t := &Tracer{
		cfg:     cfg,
		client:  client,
		valid:   cfg.Headers.Valid() && cfg.DSN != "" && client != nil,
		newID:   newID,
		metrics: NewMetrics(cfg.Registerer),
	}

	if !t.valid {
		cfg.Logger.Warn("configuration incomplete, records will not be reported",
			zap.Bool("dsn", cfg.DSN != ""),
			zap.Bool("client", client != nil),
			zap.Stringer("headers", cfg.Headers),
		)
	}

	return t
}

// Valid returns true if the tracer delivers records.
func (t *Tracer) Valid() bool {
	return t.valid
}

// Config returns the tracer's resolved config.
func (t *Tracer) Config() Config {
	return t.cfg
}

// Metrics returns the tracer's metrics.
func (t *Tracer) Metrics() *Metrics {
	return t.metrics
}

// Bind opens a record for the request. The ID header is set on w. The returned
// interceptor must be used in place of w, and ended when the handler is done;
// that closes the record. The returned request carries the reporter in its
// context.
func (t *Tracer) Bind(w http.ResponseWriter, r *http.Request) (*Reporter, *Interceptor, *http.Request) {
	ids := DeriveIdentifiers(r.Header, t.cfg.Headers, t.newID)

	req, err := SnapshotRequest(r)
	if err != nil {
		t.cfg.Logger.Debug("request snapshot incomplete", zap.String("id", ids.ID), zap.Error(err))
	}

	rec := &Record{
		ID:        ids.ID,
		ParentID:  ids.ParentID,
		ContextID: ids.ContextID,
		Request:   req,
		Tags:      t.cfg.Tags,
		StartedAt: time.Now().UTC(),
	}

	t.metrics.RecordsTotal.Inc()

	for k, vs := range ExposableHeaders(rec, t.cfg.Headers) {
		w.Header()[k] = vs
	}

	rp := &Reporter{
		tracer: t,
		ids:    ids,
		record: rec,
	}

	iw := NewInterceptor(w, rp.close)

	return rp, iw, r.WithContext(NewContext(r.Context(), rp))
}

// Middleware decorates next so that every request is traced. The record is
// closed when next returns. If next panics, the response never completed, and
// the record is dropped without being reported.
func (t *Tracer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, iw, r := t.Bind(w, r)
		next.ServeHTTP(iw, r)
		iw.End(nil)
	})
}

// Wait blocks until every delivery started so far is done.
func (t *Tracer) Wait() {
	t.wg.Wait()
}

// finish is called exactly once per record, after the response is complete.
// Ownership of rec passes to the delivery goroutine.
func (t *Tracer) finish(rec *Record) {
	if !t.valid || !t.cfg.ShouldReport(rec, t.cfg) {
		t.metrics.ReportsTotal.WithLabelValues(OutcomeSkipped).Inc()
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.deliver(rec)
	}()
}

func (t *Tracer) deliver(rec *Record) {
	begin := time.Now()
	_, err := t.client.CreateTrace(context.Background(), rec)
	took := time.Since(begin)

	t.metrics.observeReport(err, took)

	if err != nil {
		t.cfg.Logger.Debug("report failed",
			zap.String("id", rec.ID),
			zap.String("took", dtutil.HumanizeDuration(took)),
			zap.Error(err),
		)
		t.cfg.ErrorHandler(err)
		return
	}

	t.cfg.Logger.Debug("report delivered",
		zap.String("id", rec.ID),
		zap.String("took", dtutil.HumanizeDuration(took)),
	)
}
