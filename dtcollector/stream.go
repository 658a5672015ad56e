package dtcollector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"go.uber.org/zap"

	"github.com/deeptrace/deeptrace-go"
	"github.com/deeptrace/deeptrace-go/internal/dtpubsub"
)

// StreamFilter selects the records sent to a stream subscriber. Empty fields
// match everything.
type StreamFilter struct {
	ContextID string `json:"context,omitempty"`
	Service   string `json:"service,omitempty"`
}

// Allow returns true if rec passes the filter.
func (f StreamFilter) Allow(rec *deeptrace.Record) bool {
	if f.ContextID != "" && f.ContextID != rec.ContextID {
		return false
	}
	if f.Service != "" && f.Service != rec.Tags.Service {
		return false
	}
	return true
}

func (f StreamFilter) encode(query url.Values) {
	if f.ContextID != "" {
		query.Set("context", f.ContextID)
	}
	if f.Service != "" {
		query.Set("service", f.Service)
	}
}

func parseStreamFilter(query url.Values) StreamFilter {
	return StreamFilter{
		ContextID: query.Get("context"),
		Service:   query.Get("service"),
	}
}

// StreamStats are sent periodically to each stream subscriber.
type StreamStats struct {
	Broker dtpubsub.Stats `json:"broker"`
	Store  StoreStats     `json:"store"`
}

// handleStream serves new records as server-sent events. Requests must
// Accept: text/event-stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !requestExplicitlyAccepts(r, "text/event-stream") {
		respondError(w, fmt.Errorf("invalid request Accept header (%s)", r.Header.Get("accept")), http.StatusBadRequest)
		return
	}

	var (
		query   = r.URL.Query()
		filter  = parseStreamFilter(query)
		stats   = parseDefault(query.Get("stats"), time.ParseDuration, 10*time.Second)
		sendbuf = parseRange(query.Get("sendbuf"), strconv.Atoi, 0, 100, 100000)
		recc    = make(chan *deeptrace.Record, sendbuf)
		donec   = make(chan struct{})
		logger  = s.cfg.Logger.With(zap.String("remote", r.RemoteAddr))
	)

	if stats < time.Second {
		stats = time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stats, err := s.broker.Subscribe(ctx, filter.Allow, recc)
		logger.Debug("stream done", zap.Stringer("stats", stats), zap.Error(err))
		close(donec)
	}()
	defer func() {
		cancel()
		<-donec
	}()

	logger.Debug("stream started", zap.String("context", filter.ContextID), zap.String("service", filter.Service))

	eventsource.Handler(func(lastId string, encoder *eventsource.Encoder, stop <-chan bool) {
		ticker := time.NewTicker(stats)
		defer ticker.Stop()

		initc := make(chan struct{}, 1)
		initc <- struct{}{}

		emit := func(eventType string, v any) {
			data, err := json.Marshal(v)
			if err != nil {
				logger.Error("JSON marshal event", zap.String("type", eventType), zap.Error(err))
				return
			}
			if err := encoder.Encode(eventsource.Event{Type: eventType, Data: data}); err != nil {
				logger.Debug("encode event", zap.String("type", eventType), zap.Error(err))
			}
		}

		for {
			select {
			case <-initc:
				emit("init", map[string]any{
					"filter":  filter,
					"sendbuf": cap(recc),
				})

			case <-ticker.C:
				brokerStats, err := s.broker.Stats(recc)
				if err != nil {
					logger.Debug("get stats", zap.Error(err))
					continue
				}
				emit("stats", StreamStats{Broker: brokerStats, Store: s.cfg.Store.Stats()})

			case rec := <-recc:
				emit("record", rec)

			case <-donec:
				cancel()
				return

			case <-stop:
				cancel()
				return

			case <-ctx.Done():
				return
			}
		}
	}).ServeHTTP(w, r)
}

//
//
//

// StreamClient reads records from the stream endpoint of a server.
type StreamClient struct {
	// URI of the server's stream endpoint, e.g. http://localhost:8080/stream.
	// Required.
	URI string

	// Header is sent with every connection attempt, e.g. for authorization.
	Header http.Header

	// Filter is applied by the server.
	Filter StreamFilter

	// SendBuffer used by the server. Min 0, max 100k.
	SendBuffer int

	// RetryInterval between reconnect attempts. Default 3s, min 1s, max 60s.
	RetryInterval time.Duration

	// StatsInterval for stream stats updates. Default 10s, min 1s, max 60s.
	StatsInterval time.Duration

	// OnStats is called for every stats event. Optional.
	OnStats func(StreamStats)

	// Logger receives diagnostics. Optional.
	Logger *zap.Logger
}

func (c *StreamClient) initialize() {
	if min, max := 0, 100000; c.SendBuffer < min {
		c.SendBuffer = min
	} else if c.SendBuffer > max {
		c.SendBuffer = max
	}

	if def, min, max := 3*time.Second, 1*time.Second, 60*time.Second; c.RetryInterval == 0 {
		c.RetryInterval = def
	} else if c.RetryInterval < min {
		c.RetryInterval = min
	} else if c.RetryInterval > max {
		c.RetryInterval = max
	}

	if def, min, max := 10*time.Second, 1*time.Second, 60*time.Second; c.StatsInterval == 0 {
		c.StatsInterval = def
	} else if c.StatsInterval < min {
		c.StatsInterval = min
	} else if c.StatsInterval > max {
		c.StatsInterval = max
	}

	if c.OnStats == nil {
		c.OnStats = func(StreamStats) {}
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Stream records from the server to ch, until the context is canceled or a
// non-recoverable error occurs.
func (c *StreamClient) Stream(ctx context.Context, ch chan<- *deeptrace.Record) error {
	c.initialize()

	// The request deliberately has no context: EventSource treats context
	// cancelation as recoverable, and would wait a retry interval before Read
	// returns. It also re-uses the request for reconnects, so everything goes
	// in the URL and headers.
	var req *http.Request
	{
		uri, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("parse stream URI: %w", err)
		}

		query := uri.Query()
		query.Set("sendbuf", strconv.Itoa(c.SendBuffer))
		query.Set("stats", c.StatsInterval.String())
		c.Filter.encode(query)
		uri.RawQuery = query.Encode()

		r, err := http.NewRequest("GET", uri.String(), nil)
		if err != nil {
			return fmt.Errorf("create stream request: %w", err)
		}
		for k, vs := range c.Header {
			r.Header[k] = vs
		}
		r.Header.Set("accept", "text/event-stream")

		req = r
	}

	es := eventsource.New(req, c.RetryInterval)
	go func() {
		<-ctx.Done()
		es.Close()
	}()

	for {
		ev, err := es.Read()
		if errors.Is(err, eventsource.ErrClosed) {
			c.Logger.Debug("stream closed", zap.Error(err))
			return nil
		}
		if err != nil {
			return fmt.Errorf("read server-sent event: %w", err)
		}

		switch ev.Type {
		case "init":
			c.Logger.Debug("stream init", zap.ByteString("data", ev.Data))

		case "record":
			var rec deeptrace.Record
			if err := json.Unmarshal(ev.Data, &rec); err != nil {
				return fmt.Errorf("decode record event: %w", err)
			}
			select {
			case <-ctx.Done():
			case ch <- &rec:
			}

		case "stats":
			var stats StreamStats
			if err := json.Unmarshal(ev.Data, &stats); err != nil {
				return fmt.Errorf("decode stats event: %w", err)
			}
			c.OnStats(stats)

		default:
			c.Logger.Debug("unknown event type", zap.String("type", ev.Type))
		}
	}
}
