package deeptrace_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deeptrace/deeptrace-go"
)

func TestInterceptorCapturesBody(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		writes []string
		final  string
		want   string
	}{
		{"no writes, final chunk", nil, "hello", "hello"},
		{"writes and final chunk", []string{"he", "ll"}, "o", "hello"},
		{"writes and empty end", []string{"he", "l", "lo"}, "", "hello"},
		{"nothing at all", nil, "", ""},
		{"binary", []string{"\x00\xff"}, "\x01", "\x00\xff\x01"},
	} {
		var (
			rec   = httptest.NewRecorder()
			calls = 0
			body  string
			iw    = deeptrace.NewInterceptor(rec, func(status int, header http.Header, b string) {
				calls++
				body = b
			})
		)

		for _, w := range tc.writes {
			if _, err := iw.Write([]byte(w)); err != nil {
				t.Fatalf("%s: Write: %v", tc.name, err)
			}
		}

		var final []byte
		if tc.final != "" {
			final = []byte(tc.final)
		}
		if err := iw.End(final); err != nil {
			t.Fatalf("%s: End: %v", tc.name, err)
		}
		iw.End([]byte("ignored"))

		if want, have := 1, calls; want != have {
			t.Errorf("%s: end calls: want %d, have %d", tc.name, want, have)
		}
		if want, have := tc.want, body; want != have {
			t.Errorf("%s: captured body: want %q, have %q", tc.name, want, have)
		}
		if want, have := tc.want, rec.Body.String(); want != have {
			t.Errorf("%s: delivered body: want %q, have %q", tc.name, want, have)
		}
		if want, have := len(tc.want), iw.Written(); want != have {
			t.Errorf("%s: written: want %d, have %d", tc.name, want, have)
		}
	}
}

func TestInterceptorStatusAndHeaders(t *testing.T) {
	t.Parallel()

	var (
		rec    = httptest.NewRecorder()
		status int
		header http.Header
		iw     = deeptrace.NewInterceptor(rec, func(s int, h http.Header, _ string) {
			status, header = s, h
		})
	)

	iw.Header().Set("x-custom", "1")
	iw.WriteHeader(http.StatusTeapot)
	iw.WriteHeader(http.StatusOK) // superfluous, ignored for the record
	iw.End([]byte("short and stout"))

	if want, have := http.StatusTeapot, status; want != have {
		t.Errorf("status: want %d, have %d", want, have)
	}
	if want, have := "1", header.Get("x-custom"); want != have {
		t.Errorf("header: want %q, have %q", want, have)
	}

	// The captured headers are a copy.
	iw.Header().Set("x-custom", "2")
	if want, have := "1", header.Get("x-custom"); want != have {
		t.Errorf("header after mutation: want %q, have %q", want, have)
	}
}

func TestInterceptorDefaultStatus(t *testing.T) {
	t.Parallel()

	var status int
	iw := deeptrace.NewInterceptor(httptest.NewRecorder(), func(s int, _ http.Header, _ string) { status = s })
	iw.End(nil)

	if want, have := http.StatusOK, status; want != have {
		t.Errorf("want %d, have %d", want, have)
	}
}

func TestInterceptorResponseController(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	iw := deeptrace.NewInterceptor(rec, nil)

	iw.Write([]byte("x"))
	if err := http.NewResponseController(iw).Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !rec.Flushed {
		t.Errorf("recorder should be flushed")
	}
	if err := iw.End(nil); err != nil {
		t.Errorf("End with nil end function: %v", err)
	}
}
