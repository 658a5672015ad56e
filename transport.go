package deeptrace

import "net/http"

// Transport is an http.RoundTripper that sets the propagable headers of the
// reporter in each request's context. Requests without a reporter are sent
// unmodified. Use it for clients that call downstream services while serving
// a traced request, and build those requests with the request context.
type Transport struct {
	// Base is the underlying round tripper. Default http.DefaultTransport.
	Base http.RoundTripper
}

var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	rp, ok := FromContext(req.Context())
	if !ok {
		return base.RoundTrip(req)
	}

	// Round trippers must not modify the original request.
	req = req.Clone(req.Context())
	rp.Inject(req)

	return base.RoundTrip(req)
}
