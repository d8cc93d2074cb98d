package platform

import "context"

// Progress is one step of a long-running batch.
type Progress struct {
	Done    int
	Total   int
	Message string
}

// ProgressFunc receives progress updates.
type ProgressFunc func(p Progress)

type progressKey struct{}

// WithProgress returns a context carrying the given progress callback.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress calls the progress callback in ctx, if any. With no callback set
// (MCP mode, tests) it does nothing.
func ReportProgress(ctx context.Context, p Progress) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(p)
	}
}
