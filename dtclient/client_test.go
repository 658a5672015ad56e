package dtclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deeptrace/deeptrace-go"
	"github.com/deeptrace/deeptrace-go/dtagent"
	"github.com/deeptrace/deeptrace-go/dtclient"
	"github.com/google/go-cmp/cmp"
)

func TestClientStatusRefinement(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusOK, func(err error) bool { return err == nil }, "nil"},
		{http.StatusAccepted, func(err error) bool { return err == nil }, "nil"},
		{http.StatusNotFound, isType[*dtclient.NotFoundError], "NotFoundError"},
		{http.StatusConflict, isType[*dtclient.DuplicatedError], "DuplicatedError"},
		{http.StatusInternalServerError, isType[*dtclient.ServerError], "ServerError"},
		{http.StatusServiceUnavailable, isType[*dtclient.ServerError], "ServerError"},
		{http.StatusTeapot, isPlainHTTPError, "HTTPError"},
	} {
		status := tc.status
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("content-type", "application/json")
			w.WriteHeader(status)
			if r.Method == http.MethodGet {
				json.NewEncoder(w).Encode(deeptrace.Record{ID: "abc", ContextID: "abc"})
			}
		}))

		agent, err := dtagent.New(server.URL)
		if err != nil {
			t.Fatal(err)
		}
		client := dtclient.New(agent)

		rec := &deeptrace.Record{ID: "abc", ContextID: "abc"}
		created, err := client.CreateTrace(context.Background(), rec)
		if !tc.check(err) {
			t.Errorf("CreateTrace %d: want %s, have %T %v", tc.status, tc.name, err, err)
		}
		if err == nil && created != rec {
			t.Errorf("CreateTrace %d: want the same record back", tc.status)
		}

		found, err := client.FindTraceByID(context.Background(), "abc")
		if !tc.check(err) {
			t.Errorf("FindTraceByID %d: want %s, have %T %v", tc.status, tc.name, err, err)
		}
		if err == nil && found.ID != "abc" {
			t.Errorf("FindTraceByID %d: want ID abc, have %q", tc.status, found.ID)
		}

		if err != nil {
			var httpErr *dtagent.HTTPError
			if !errors.As(err, &httpErr) {
				t.Errorf("%d: refined error should unwrap to HTTPError", tc.status)
			} else if want, have := tc.status, httpErr.StatusCode(); want != have {
				t.Errorf("%d: status: want %d, have %d", tc.status, want, have)
			}
		}

		server.Close()
	}
}

func TestClientPassesThroughAgentErrors(t *testing.T) {
	t.Parallel()

	timeoutErr := &dtagent.TimeoutError{Timeout: time.Second, Err: context.DeadlineExceeded}
	client := dtclient.New(doerFunc(func(ctx context.Context, method, path string, req dtagent.Request) (*dtagent.Response, error) {
		return nil, timeoutErr
	}))

	_, err := client.CreateTrace(context.Background(), &deeptrace.Record{ID: "x"})

	var have *dtagent.TimeoutError
	if !errors.As(err, &have) || have != timeoutErr {
		t.Errorf("want the agent's TimeoutError, have %T %v", err, err)
	}
	if isType[*dtclient.ServerError](err) || isType[*dtclient.NotFoundError](err) {
		t.Errorf("timeout should not be refined, have %v", err)
	}
}

func TestClientCreateTraceWireFormat(t *testing.T) {
	t.Parallel()

	bodyc := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if want, have := "POST /", r.Method+" "+r.URL.Path; want != have {
			t.Errorf("want %q, have %q", want, have)
		}
		body, _ := io.ReadAll(r.Body)
		bodyc <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	agent, err := dtagent.New(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	hello := "hello"
	rec := &deeptrace.Record{
		ID:        "X",
		ContextID: "X",
		Request:   deeptrace.RequestSnapshot{Method: "GET", URL: "http://svc/hi"},
		Response:  &deeptrace.ResponseSnapshot{Status: 200, Body: &hello},
		Tags:      deeptrace.Tags{Service: "svc"},
		StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if _, err := dtclient.New(agent).CreateTrace(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	var have map[string]any
	if err := json.Unmarshal(<-bodyc, &have); err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"id":        "X",
		"contextId": "X",
		"request": map[string]any{
			"ip": "", "method": "GET", "url": "http://svc/hi", "headers": nil, "body": nil,
		},
		"response": map[string]any{
			"status": float64(200), "headers": nil, "body": "hello",
		},
		"tags":       map[string]any{"service": "svc"},
		"startedAt":  "2024-01-02T03:04:05Z",
		"finishedAt": nil,
	}
	if !cmp.Equal(want, have) {
		t.Error(cmp.Diff(want, have))
	}
}

func TestClientRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	client := dtclient.New(doerFunc(func(context.Context, string, string, dtagent.Request) (*dtagent.Response, error) {
		t.Errorf("agent should not be called")
		return nil, nil
	}))

	if _, err := client.CreateTrace(context.Background(), nil); err == nil {
		t.Errorf("CreateTrace(nil): want error")
	}
	if _, err := client.FindTraceByID(context.Background(), ""); err == nil {
		t.Errorf("FindTraceByID(\"\"): want error")
	}
}

type doerFunc func(ctx context.Context, method, path string, req dtagent.Request) (*dtagent.Response, error)

func (f doerFunc) Do(ctx context.Context, method, path string, req dtagent.Request) (*dtagent.Response, error) {
	return f(ctx, method, path, req)
}

func isType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func isPlainHTTPError(err error) bool {
	return isType[*dtagent.HTTPError](err) &&
		!isType[*dtclient.NotFoundError](err) &&
		!isType[*dtclient.DuplicatedError](err) &&
		!isType[*dtclient.ServerError](err)
}
