// Package dtgin adapts a deeptrace tracer to gin engines.
package dtgin

import (
	"github.com/gin-gonic/gin"

	"github.com/deeptrace/deeptrace-go"
)

// ContextKey is the gin context key holding the request's reporter.
const ContextKey = "deeptrace"

// Middleware returns a gin middleware that traces every request with t. The
// record is closed once all following handlers have returned. Requests which
// match no route are closed by the default body gin writes after the chain,
// so the record holds the body the client received. Requests whose handlers
// panic are never reported.
func Middleware(t *deeptrace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		// gin sets the error status before running the NoRoute or NoMethod
		// chain, and writes its default body only if that status is unchanged
		// and nothing was written.
		unmatched, code := c.FullPath() == "", c.Writer.Status()

		rp, iw, r := t.Bind(c.Writer, c.Request)
		w := &responseWriter{ResponseWriter: c.Writer, iw: iw}

		c.Request = r
		c.Writer = w
		c.Set(ContextKey, rp)

		c.Next()

		if unmatched && !w.Written() && w.Status() == code {
			w.endOnWrite = true
			return
		}
		iw.End(nil)
	}
}

// FromContext returns the reporter for the request handled by c.
func FromContext(c *gin.Context) (*deeptrace.Reporter, bool) {
	if v, ok := c.Get(ContextKey); ok {
		if rp, ok := v.(*deeptrace.Reporter); ok {
			return rp, true
		}
	}
	return deeptrace.FromContext(c.Request.Context())
}

// responseWriter routes body writes through the interceptor, and leaves
// everything else to gin's writer.
type responseWriter struct {
	gin.ResponseWriter
	iw         *deeptrace.Interceptor
	endOnWrite bool
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.endOnWrite {
		w.endOnWrite = false
		if err := w.iw.End(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	return w.iw.Write(p)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
