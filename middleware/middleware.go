// Package middleware wraps the command handler with cross-cutting behaviour.
package middleware

import (
	"context"

	"mini-cmd/message"
)

// HandlerFunc resolves one decoded request into its response.
type HandlerFunc func(ctx context.Context, req message.Request) message.Response

// Middleware decorates a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one is the outermost:
// Chain(A, B, C)(h) is A(B(C(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
