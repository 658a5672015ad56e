package deeptrace

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Default header names for the three correlation roles.
const (
	DefaultIDHeader        = "DeepTrace-Id"
	DefaultParentIDHeader  = "DeepTrace-Parent-Id"
	DefaultContextIDHeader = "DeepTrace-Context-Id"
)

// HeaderMapping assigns a wire header name to each correlation role.
type HeaderMapping struct {
	// ID is set on every response, carrying the record ID.
	ID string

	// ParentID is read from inbound requests, and set on outbound requests
	// with the current record ID.
	ParentID string

	// ContextID is read from inbound requests, and set on outbound requests
	// with the current context ID.
	ContextID string
}

// DefaultHeaderMapping returns the default header names.
func DefaultHeaderMapping() HeaderMapping {
	return HeaderMapping{
		ID:        DefaultIDHeader,
		ParentID:  DefaultParentIDHeader,
		ContextID: DefaultContextIDHeader,
	}
}

// Valid returns true if every role has a non-empty header name, and no two
// roles share a header. Header names are case-insensitive.
func (m HeaderMapping) Valid() bool {
	id, parent, ctx := strings.TrimSpace(m.ID), strings.TrimSpace(m.ParentID), strings.TrimSpace(m.ContextID)
	if id == "" || parent == "" || ctx == "" {
		return false
	}
	return !strings.EqualFold(id, parent) &&
		!strings.EqualFold(id, ctx) &&
		!strings.EqualFold(parent, ctx)
}

func (m HeaderMapping) String() string {
	return fmt.Sprintf("id=%q parent=%q context=%q", m.ID, m.ParentID, m.ContextID)
}

// Identifiers are the three correlation IDs of a record.
type Identifiers struct {
	ID        string
	ParentID  string
	ContextID string
}

// DeriveIdentifiers produces the identifiers for a new record. The ID is taken
// from newID, the parent and context IDs from the inbound headers. Empty header
// values are treated as absent: a missing parent leaves ParentID empty, and a
// missing context makes the record its own context root.
func DeriveIdentifiers(h http.Header, m HeaderMapping, newID func() string) Identifiers {
	id := newID()

	contextID := headerValue(h, m.ContextID)
	if contextID == "" {
		contextID = id
	}

	return Identifiers{
		ID:        id,
		ParentID:  headerValue(h, m.ParentID),
		ContextID: contextID,
	}
}

// ExposableHeaders returns the headers that should be set on the response to
// the current request, so callers can correlate that response with the record.
func ExposableHeaders(rec *Record, m HeaderMapping) http.Header {
	h := http.Header{}
	h.Set(m.ID, rec.ID)
	return h
}

// PropagableHeaders returns the headers that should be set on any request made
// while serving the current request. The current record becomes the parent of
// the downstream request, and the context is inherited unchanged.
func PropagableHeaders(rec *Record, m HeaderMapping) http.Header {
	h := http.Header{}
	h.Set(m.ParentID, rec.ID)
	h.Set(m.ContextID, rec.ContextID)
	return h
}

func headerValue(h http.Header, name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(h.Get(name))
}

//
//
//

// ID formats accepted by [NewIDFunc].
const (
	IDFormatUUID = "uuid"
	IDFormatULID = "ulid"
)

// NewIDFunc returns a generator for the given ID format. UUIDs are random
// (version 4). ULIDs are time-sortable, and use a shared monotonic source of
// entropy which is safe for concurrent use.
func NewIDFunc(format string) (func() string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", IDFormatUUID:
		return NewUUID, nil
	case IDFormatULID:
		return NewULID, nil
	default:
		return nil, fmt.Errorf("unsupported ID format %q", format)
	}
}

// NewUUID returns a random UUID string.
func NewUUID() string {
	return uuid.NewString()
}

var idEntropy = ulid.DefaultEntropy()

// NewULID returns a ULID string with the current timestamp.
func NewULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}
