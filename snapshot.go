package deeptrace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
)

// MaxRequestBodyBytes is the largest request body prefix kept in a record.
const MaxRequestBodyBytes = 1024 * 1024

// SnapshotRequest captures the parts of r kept in a record. If r has a body, at
// most [MaxRequestBodyBytes] of it are read and kept, and the body is replaced
// with a reader yielding those bytes followed by the unread remainder, so the
// handler still sees the full body. A body read error is returned along with
// the snapshot, which then has no body.
func SnapshotRequest(r *http.Request) (RequestSnapshot, error) {
	snap := RequestSnapshot{
		IP:      remoteIP(r),
		Method:  r.Method,
		URL:     requestURL(r),
		Headers: r.Header.Clone(),
	}

	if r.Body == nil || r.Body == http.NoBody {
		return snap, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodyBytes))
	r.Body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(body), r.Body),
		Closer: r.Body,
	}
	if err != nil {
		return snap, fmt.Errorf("read request body: %w", err)
	}

	snap.Body = Stringify(body)
	return snap, nil
}

// replayBody serves the captured prefix of a request body, then the rest of
// the original body, which it also closes.
type replayBody struct {
	io.Reader
	io.Closer
}

// SnapshotResponse captures the parts of a finished response kept in a record.
func SnapshotResponse(status int, header http.Header, body string) ResponseSnapshot {
	return ResponseSnapshot{
		Status:  status,
		Headers: header,
		Body:    Stringify(body),
	}
}

// Stringify normalizes a body to the string form stored in records. Empty
// bodies become nil. Strings, byte slices, and raw JSON pass through as text.
// Anything else is JSON encoded, so an empty object is kept as "{}". Values
// which encode to JSON null, like nil pointers, are absent.
func Stringify(body any) *string {
	var s string
	switch x := body.(type) {
	case nil:
		return nil
	case string:
		s = x
	case []byte:
		s = string(x)
	case json.RawMessage:
		s = string(x)
	default:
		buf, err := json.Marshal(x)
		switch {
		case err != nil:
			s = fmt.Sprintf("%v", x)
		case string(buf) == "null":
			return nil
		default:
			s = string(buf)
		}
	}

	if s == "" {
		return nil
	}

	return &s
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestURL reconstructs the absolute URL of an inbound request.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	host := r.Host
	if host == "" {
		host = r.URL.Host
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}

	return u.String()
}
