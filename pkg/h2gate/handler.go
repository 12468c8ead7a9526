package h2gate

// Handler serves one request bound to a single HTTP/2 (or HTTP/1.1,
// synthesized onto the same Stream abstraction) stream. ctx.StreamID
// identifies the underlying engine stream for correlating logs, metrics,
// and traces back to the connection that carried it.
type Handler interface {
	ServeHTTP2(ctx *Context) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as stream handlers.
type HandlerFunc func(ctx *Context) error

// ServeHTTP2 calls f(ctx).
func (f HandlerFunc) ServeHTTP2(ctx *Context) error {
	return f(ctx)
}

// Middleware is a function that wraps a Handler with additional functionality.
type Middleware func(Handler) Handler

// MiddlewareFunc is a function-based middleware that receives the context and next handler.
type MiddlewareFunc func(ctx *Context, next Handler) error

// ToMiddleware converts a MiddlewareFunc to a Middleware.
func (m MiddlewareFunc) ToMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			return m(ctx, next)
		})
	}
}

// Chain combines multiple middlewares into a single middleware, applied
// outermost-first so the first entry in middlewares sees a request before
// the last. Every engine-level stream (h2 or the synthesized h1 one) passes
// through the same chain, which is how Prometheus/Tracing/Recovery end up
// applied uniformly across both protocols.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
