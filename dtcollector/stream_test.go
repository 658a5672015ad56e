package dtcollector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deeptrace/deeptrace-go"
)

func TestStream(t *testing.T) {
	t.Parallel()

	var (
		ctx, cancel = context.WithCancel(context.Background())
		s           = NewServer(ServerConfig{Store: NewStore(10)})
		server      = httptest.NewServer(s)
		recc        = make(chan *deeptrace.Record, 10)
		errc        = make(chan error, 1)
	)
	defer server.Close()
	defer cancel()

	client := &StreamClient{
		URI:           server.URL + "/stream",
		Filter:        StreamFilter{Service: "api"},
		SendBuffer:    10,
		RetryInterval: time.Second,
	}
	go func() { errc <- client.Stream(ctx, recc) }()

	deadline := time.Now().Add(5 * time.Second)
	for s.broker.Subscribers() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for subscriber")
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, rec := range []*deeptrace.Record{
		{ID: "1", Tags: deeptrace.Tags{Service: "web"}},
		{ID: "2", Tags: deeptrace.Tags{Service: "api"}},
	} {
		s.broker.Publish(rec)
	}

	select {
	case rec := <-recc:
		if want, have := "2", rec.ID; want != have {
			t.Errorf("streamed record: want ID %q, have %q", want, have)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for record")
	}

	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Stream: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Stream to return")
	}
}

func TestStreamRequiresEventStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(NewServer(ServerConfig{}))
	defer server.Close()

	resp, err := http.Get(server.URL + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if want, have := http.StatusBadRequest, resp.StatusCode; want != have {
		t.Errorf("want %d, have %d", want, have)
	}
}

func TestStreamFilter(t *testing.T) {
	t.Parallel()

	rec := &deeptrace.Record{ID: "a", ContextID: "ctx", Tags: deeptrace.Tags{Service: "api"}}

	for _, tc := range []struct {
		filter StreamFilter
		want   bool
	}{
		{StreamFilter{}, true},
		{StreamFilter{ContextID: "ctx"}, true},
		{StreamFilter{ContextID: "other"}, false},
		{StreamFilter{Service: "api"}, true},
		{StreamFilter{ContextID: "ctx", Service: "web"}, false},
	} {
		if want, have := tc.want, tc.filter.Allow(rec); want != have {
			t.Errorf("%+v: want %v, have %v", tc.filter, want, have)
		}
	}
}
