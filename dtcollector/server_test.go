package dtcollector_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/deeptrace/deeptrace-go"
	"github.com/deeptrace/deeptrace-go/dtagent"
	"github.com/deeptrace/deeptrace-go/dtclient"
	"github.com/deeptrace/deeptrace-go/dtcollector"
)

func TestServerRoundTrip(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	server := httptest.NewServer(dtcollector.NewServer(dtcollector.ServerConfig{
		Store:      dtcollector.NewStore(10),
		Registerer: reg,
	}))
	defer server.Close()

	agent, err := dtagent.New(server.URL, dtagent.WithCompression(true))
	if err != nil {
		t.Fatal(err)
	}
	client := dtclient.New(agent)
	ctx := context.Background()

	hello := "hello"
	rec := &deeptrace.Record{
		ID:        "abc",
		ContextID: "abc",
		Request:   deeptrace.RequestSnapshot{Method: "GET", URL: "http://svc/"},
		Response:  &deeptrace.ResponseSnapshot{Status: 200, Body: &hello},
		StartedAt: time.Now().UTC(),
	}

	if _, err := client.CreateTrace(ctx, rec); err != nil {
		t.Fatalf("CreateTrace: %v", err)
	}

	var dup *dtclient.DuplicatedError
	if _, err := client.CreateTrace(ctx, rec); !errors.As(err, &dup) {
		t.Errorf("second CreateTrace: want DuplicatedError, have %T %v", err, err)
	}

	found, err := client.FindTraceByID(ctx, "abc")
	if err != nil {
		t.Fatalf("FindTraceByID: %v", err)
	}
	if want, have := "hello", *found.Response.Body; want != have {
		t.Errorf("response body: want %q, have %q", want, have)
	}

	var notFound *dtclient.NotFoundError
	if _, err := client.FindTraceByID(ctx, "nope"); !errors.As(err, &notFound) {
		t.Errorf("FindTraceByID(nope): want NotFoundError, have %T %v", err, err)
	}

	if err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP deeptrace_collector_records_received_total Records accepted by the collector.
# TYPE deeptrace_collector_records_received_total counter
deeptrace_collector_records_received_total 1
# HELP deeptrace_collector_stored_records Records currently held in the store.
# TYPE deeptrace_collector_stored_records gauge
deeptrace_collector_stored_records 1
`), "deeptrace_collector_records_received_total", "deeptrace_collector_stored_records"); err != nil {
		t.Error(err)
	}
}

func TestServerRejectsBadRecords(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(dtcollector.NewServer(dtcollector.ServerConfig{}))
	defer server.Close()

	for _, tc := range []struct {
		name        string
		contentType string
		encoding    string
		body        []byte
		want        int
	}{
		{"not JSON", "application/json", "", []byte(`{`), http.StatusBadRequest},
		{"no ID", "application/json", "", []byte(`{"contextId":"x"}`), http.StatusBadRequest},
		{"wrong content type", "text/plain", "", []byte(`{"id":"x"}`), http.StatusUnsupportedMediaType},
		{"bad gzip", "application/json", "gzip", []byte(`{"id":"x"}`), http.StatusBadRequest},
		{"gzip", "application/json", "gzip", gzipped(t, `{"id":"y"}`), http.StatusAccepted},
		{"no content type", "", "", []byte(`{"id":"z"}`), http.StatusAccepted},
	} {
		req, _ := http.NewRequest("POST", server.URL+"/", bytes.NewReader(tc.body))
		if tc.contentType != "" {
			req.Header.Set("content-type", tc.contentType)
		}
		if tc.encoding != "" {
			req.Header.Set("content-encoding", tc.encoding)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		resp.Body.Close()
		if want, have := tc.want, resp.StatusCode; want != have {
			t.Errorf("%s: want %d, have %d", tc.name, want, have)
		}
	}
}

func TestServerAuth(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		config dtcollector.ServerConfig
		dsn    func(string) string
		opts   []dtagent.Option
		ok     bool
	}{
		{
			name:   "basic ok",
			config: dtcollector.ServerConfig{Username: "u", Password: "p"},
			dsn:    func(u string) string { return strings.Replace(u, "http://", "http://u:p@", 1) },
			ok:     true,
		},
		{
			name:   "basic wrong",
			config: dtcollector.ServerConfig{Username: "u", Password: "p"},
			dsn:    func(u string) string { return strings.Replace(u, "http://", "http://u:x@", 1) },
		},
		{
			name:   "bearer ok",
			config: dtcollector.ServerConfig{Secret: "s"},
			dsn:    func(u string) string { return u },
			opts:   []dtagent.Option{dtagent.WithSecret("s")},
			ok:     true,
		},
		{
			name:   "bearer missing",
			config: dtcollector.ServerConfig{Secret: "s"},
			dsn:    func(u string) string { return u },
		},
	} {
		server := httptest.NewServer(dtcollector.NewServer(tc.config))

		agent, err := dtagent.New(tc.dsn(server.URL), tc.opts...)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}

		_, err = dtclient.New(agent).CreateTrace(context.Background(), &deeptrace.Record{ID: "x"})
		if tc.ok && err != nil {
			t.Errorf("%s: want success, have %v", tc.name, err)
		}
		if !tc.ok {
			var httpErr *dtagent.HTTPError
			if !errors.As(err, &httpErr) || httpErr.StatusCode() != http.StatusUnauthorized {
				t.Errorf("%s: want HTTP 401, have %v", tc.name, err)
			}
		}

		server.Close()
	}
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
