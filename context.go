package deeptrace

import "context"

type reporterContextKey struct{}

// NewContext returns a copy of ctx carrying rp.
func NewContext(ctx context.Context, rp *Reporter) context.Context {
	return context.WithValue(ctx, reporterContextKey{}, rp)
}

// FromContext returns the reporter in ctx, if one exists.
func FromContext(ctx context.Context) (*Reporter, bool) {
	rp, ok := ctx.Value(reporterContextKey{}).(*Reporter)
	return rp, ok && rp != nil
}
