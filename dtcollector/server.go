// Package dtcollector is a small in-memory collector for deeptrace records.
// It accepts records over the collector wire protocol, serves them by ID, and
// streams new records to subscribers as server-sent events.
package dtcollector

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/deeptrace/deeptrace-go"
	"github.com/deeptrace/deeptrace-go/internal/dtpubsub"
	"github.com/deeptrace/deeptrace-go/internal/dtutil"
)

const maxRequestBodySizeBytes = 4 * 1024 * 1024

// ServerConfig configures a server. Only Store is required.
type ServerConfig struct {
	Store *Store

	// Username and Password, if either is set, are required as basic auth.
	Username string
	Password string

	// Secret, if set and basic auth isn't configured, is required as a
	// bearer token.
	Secret string

	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// Server is an http.Handler implementing the collector wire protocol.
//
//	POST /        create a record, 202 on success
//	GET  /stream  server-sent events for new records
//	GET  /{id}    fetch a record
type Server struct {
	cfg     ServerConfig
	mux     *http.ServeMux
	broker  *dtpubsub.Broker[*deeptrace.Record]
	metrics *serverMetrics
}

// NewServer returns a server for the config.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Store == nil {
		cfg.Store = NewStore(DefaultCapacity)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		broker: dtpubsub.NewBroker[*deeptrace.Record](),
	}
	s.metrics = newServerMetrics(cfg.Registerer, s)

	s.mux.HandleFunc("POST /{$}", s.handleCreate)
	s.mux.HandleFunc("GET /stream", s.handleStream)
	s.mux.HandleFunc("GET /{id}", s.handleFind)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("www-authenticate", `Basic realm="deeptrace"`)
		respondError(w, errors.New("unauthorized"), http.StatusUnauthorized)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Store returns the server's store.
func (s *Server) Store() *Store {
	return s.cfg.Store
}

func (s *Server) authorized(r *http.Request) bool {
	switch {
	case s.cfg.Username != "" || s.cfg.Password != "":
		username, password, ok := r.BasicAuth()
		return ok && secureEqual(username, s.cfg.Username) && secureEqual(password, s.cfg.Password)
	case s.cfg.Secret != "":
		token, ok := strings.CutPrefix(r.Header.Get("authorization"), "Bearer ")
		return ok && secureEqual(token, s.cfg.Secret)
	default:
		return true
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("content-type")
	if ct != "" && !requestHasContentType(r, "application/json") {
		s.reject(w, "content_type", fmt.Errorf("unsupported content type %q", ct), http.StatusUnsupportedMediaType)
		return
	}

	var body io.Reader = http.MaxBytesReader(w, r.Body, maxRequestBodySizeBytes)
	if strings.EqualFold(r.Header.Get("content-encoding"), "gzip") {
		zr, err := gzip.NewReader(body)
		if err != nil {
			s.reject(w, "decode", fmt.Errorf("read gzip body: %w", err), http.StatusBadRequest)
			return
		}
		defer zr.Close()
		body = io.LimitReader(zr, maxRequestBodySizeBytes)
	}

	var rec deeptrace.Record
	if err := json.NewDecoder(body).Decode(&rec); err != nil {
		s.reject(w, "decode", fmt.Errorf("decode record: %w", err), http.StatusBadRequest)
		return
	}

	if rec.ID == "" {
		s.reject(w, "invalid", errors.New("record ID is required"), http.StatusBadRequest)
		return
	}

	if err := s.cfg.Store.Create(&rec); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, ErrDuplicate) {
			code = http.StatusConflict
		}
		s.reject(w, "duplicate", fmt.Errorf("create record %s: %w", rec.ID, err), code)
		return
	}

	s.metrics.received.Inc()
	s.broker.Publish(&rec)

	s.cfg.Logger.Info("record received",
		zap.String("id", rec.ID),
		zap.String("context", rec.ContextID),
		zap.String("service", rec.Tags.Service),
		zap.String("method", rec.Request.Method),
		zap.String("url", rec.Request.URL),
		zap.String("took", dtutil.HumanizeDuration(rec.Duration())),
		zap.String("body", dtutil.HumanizeBytes(responseSize(&rec))),
	)

	respondJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := s.cfg.Store.Find(id)
	if err != nil {
		respondError(w, fmt.Errorf("find record %s: %w", id, err), http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) reject(w http.ResponseWriter, reason string, err error, code int) {
	s.metrics.rejected.WithLabelValues(reason).Inc()
	s.cfg.Logger.Debug("record rejected", zap.String("reason", reason), zap.Error(err))
	respondError(w, err, code)
}

func responseSize(rec *deeptrace.Record) int {
	if rec.Response == nil || rec.Response.Body == nil {
		return 0
	}
	return len(*rec.Response.Body)
}

func secureEqual(have, want string) bool {
	return subtle.ConstantTimeCompare([]byte(have), []byte(want)) == 1
}

//
//
//

type serverMetrics struct {
	received prometheus.Counter
	rejected *prometheus.CounterVec
}

func newServerMetrics(reg prometheus.Registerer, s *Server) *serverMetrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "deeptrace",
		Subsystem: "collector",
		Name:      "stored_records",
		Help:      "Records currently held in the store.",
	}, func() float64 { return float64(s.cfg.Store.Stats().Count) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "deeptrace",
		Subsystem: "collector",
		Name:      "stream_subscribers",
		Help:      "Active stream subscriptions.",
	}, func() float64 { return float64(s.broker.Subscribers()) })

	return &serverMetrics{
		received: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "deeptrace",
			Subsystem: "collector",
			Name:      "records_received_total",
			Help:      "Records accepted by the collector.",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deeptrace",
			Subsystem: "collector",
			Name:      "records_rejected_total",
			Help:      "Records rejected by the collector, by reason.",
		}, []string{"reason"}),
	}
}
