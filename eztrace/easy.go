// Package eztrace wires a tracer from the environment in one call.
package eztrace

import (
	"context"
	"fmt"
	"net/http"

	"github.com/deeptrace/deeptrace-go"
	"github.com/deeptrace/deeptrace-go/dtagent"
	"github.com/deeptrace/deeptrace-go/dtclient"
)

// New resolves a config from the environment and opts, and returns a tracer.
// When a DSN is configured, records are delivered to it via a dedicated agent
// and client. Without a DSN, the tracer still assigns identifiers and
// propagation headers, but never delivers.
func New(opts ...deeptrace.Option) (*deeptrace.Tracer, error) {
	cfg, err := deeptrace.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var client deeptrace.Client
	if cfg.DSN != "" {
		agent, err := dtagent.New(cfg.DSN,
			dtagent.WithTimeout(cfg.Timeout),
			dtagent.WithSecret(cfg.Secret),
			dtagent.WithCompression(cfg.Compress),
			dtagent.WithLogger(cfg.Logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create agent: %w", err)
		}
		client = dtclient.New(agent)
	}

	return deeptrace.New(cfg, client), nil
}

// Middleware returns a decorator that traces every request with a tracer from
// [New].
func Middleware(opts ...deeptrace.Option) (func(http.Handler) http.Handler, error) {
	t, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return t.Middleware, nil
}

// Headers returns the propagable headers of the request in ctx, or nil if
// the request isn't traced.
func Headers(ctx context.Context) http.Header {
	rp, ok := deeptrace.FromContext(ctx)
	if !ok {
		return nil
	}
	return rp.PropagableHeaders()
}

// HTTPClient returns an HTTP client that propagates correlation headers from
// each request's context.
func HTTPClient() *http.Client {
	return &http.Client{
		Transport: &deeptrace.Transport{},
	}
}
