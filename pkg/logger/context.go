package logger

import "context"

type contextKeyLogger struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger{}, l)
}

// FromContext returns the request-scoped logger, or the global one when ctx
// carries none.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKeyLogger{}).(Logger); ok {
			return l
		}
	}
	return Get()
}
