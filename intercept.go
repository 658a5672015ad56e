package deeptrace

import (
	"bytes"
	"net/http"
	"sync"
)

// Interceptor decorates an http.ResponseWriter. Writes are forwarded to the
// wrapped writer unchanged, and the bytes it accepts are also kept in memory.
// When the response is ended, the complete body is passed to the end function.
//
// End is the terminal write. It forwards its final chunk, if any, and only then
// calls the end function, exactly once, even when nothing was ever written.
// Calls to End after the first are no-ops.
//
// Interceptors are not safe for concurrent use, just like the response writers
// they decorate.
type Interceptor struct {
	http.ResponseWriter

	flush func()
	code  int
	n     int
	body  bytes.Buffer
	once  sync.Once
	onEnd func(status int, header http.Header, body string)
}

// NewInterceptor wraps w. The onEnd function receives the response status, a
// copy of the response headers, and the body as text.
func NewInterceptor(w http.ResponseWriter, onEnd func(status int, header http.Header, body string)) *Interceptor {
	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	return &Interceptor{ResponseWriter: w, flush: flush, onEnd: onEnd}
}

// WriteHeader implements http.ResponseWriter.
func (i *Interceptor) WriteHeader(code int) {
	if i.code == 0 {
		i.code = code
	}
	i.ResponseWriter.WriteHeader(code)
}

// Write implements http.ResponseWriter.
func (i *Interceptor) Write(p []byte) (int, error) {
	n, err := i.ResponseWriter.Write(p)
	i.body.Write(p[:n])
	i.n += n
	return n, err
}

// End completes the response, writing the optional final chunk first.
func (i *Interceptor) End(final []byte) (err error) {
	i.once.Do(func() {
		if len(final) > 0 {
			_, err = i.Write(final)
		}
		if i.onEnd != nil {
			i.onEnd(i.Code(), i.Header().Clone(), i.body.String())
		}
	})
	return err
}

// Code returns the response status code. Writers which track their own status,
// like gin's, are asked directly.
func (i *Interceptor) Code() int {
	if s, ok := i.ResponseWriter.(interface{ Status() int }); ok {
		if code := s.Status(); code != 0 {
			return code
		}
	}
	if i.code == 0 {
		return http.StatusOK
	}
	return i.code
}

// Written returns the number of body bytes accepted by the wrapped writer.
func (i *Interceptor) Written() int {
	return i.n
}

// Body returns the body captured so far.
func (i *Interceptor) Body() []byte {
	return i.body.Bytes()
}

// Flush implements http.Flusher.
func (i *Interceptor) Flush() {
	i.flush()
}

// Unwrap returns the wrapped writer, for http.ResponseController.
func (i *Interceptor) Unwrap() http.ResponseWriter {
	return i.ResponseWriter
}
