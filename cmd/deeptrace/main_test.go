package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deeptrace/deeptrace-go"
	"github.com/deeptrace/deeptrace-go/dtcollector"
)

func TestExecHelp(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := exec(context.Background(), nil, &stdout, &stderr, []string{"--help"}); err != nil {
		t.Fatalf("exec: %v", err)
	}

	for _, want := range []string{"collect", "find", "tail"} {
		if !strings.Contains(stderr.String(), want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestExecFind(t *testing.T) {
	t.Parallel()

	store := dtcollector.NewStore(10)
	store.Create(&deeptrace.Record{ID: "abc", ContextID: "abc"})
	server := httptest.NewServer(dtcollector.NewServer(dtcollector.ServerConfig{Store: store, Secret: "s"}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	args := []string{"find", "--dsn", server.URL, "--secret", "s", "--log-level", "none", "abc"}
	if err := exec(context.Background(), nil, &stdout, &stderr, args); err != nil {
		t.Fatalf("exec: %v (%s)", err, stderr.String())
	}

	var rec deeptrace.Record
	if err := json.Unmarshal(stdout.Bytes(), &rec); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if want, have := "abc", rec.ID; want != have {
		t.Errorf("ID: want %q, have %q", want, have)
	}

	stdout.Reset()
	args = []string{"find", "--dsn", server.URL, "--secret", "s", "--log-level", "none", "missing"}
	if err := exec(context.Background(), nil, &stdout, &stderr, args); err == nil {
		t.Errorf("find missing: want error")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		level, format string
		ok            bool
	}{
		{"info", "console", true},
		{"debug", "json", true},
		{"none", "whatever", true},
		{"loud", "json", false},
		{"info", "xml", false},
	} {
		var buf bytes.Buffer
		logger, err := newLogger(&buf, tc.level, tc.format)
		if want, have := tc.ok, err == nil; want != have {
			t.Errorf("%s/%s: want ok %v, have error %v", tc.level, tc.format, want, err)
			continue
		}
		if err == nil {
			logger.Info("hello")
		}
	}
}
