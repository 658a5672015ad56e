// Package deeptrace provides request tracing for HTTP servers that report to a
// remote collector.
//
// Every request served through a [Tracer] is assigned a [Record]: a fresh ID,
// the ID of the request that caused it (the parent), and the ID shared by every
// request in the same logical transaction (the context). The record captures a
// snapshot of the request when it arrives, and a snapshot of the response,
// including its body, when the handler is done writing. Complete records are
// then handed to a [Client] in the background. Delivery is best effort: the
// response to the original caller never waits on it, and delivery errors are
// only visible via the configured error handler.
//
// Correlation flows through HTTP headers. The inbound parent and context
// headers are read from each request, the record ID is set on each response,
// and a [Reporter] in the request context provides the headers that outbound
// requests should carry, so that downstream services record this request as
// their parent. [Transport] does that automatically for an [http.Client].
//
// Most applications should not construct a Tracer directly, and should instead
// use [github.com/deeptrace/deeptrace-go/eztrace], which resolves configuration
// from the environment and wires up the collector client.
package deeptrace
