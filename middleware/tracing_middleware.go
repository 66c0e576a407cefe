package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mini-cmd/message"
)

const tracerName = "mini-cmd/server"

// Tracing starts a server span around each request. A nil provider means the global one.
func Tracing(tp trace.TracerProvider) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) message.Response {
			kind := commandKind(req)
			ctx, span := tracer.Start(ctx, "command "+string(kind),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("command.kind", string(kind)),
					attribute.String("request.id", req.RequestID.String()),
				),
			)
			defer span.End()

			resp := next(ctx, req)

			if batch, ok := req.Command.(message.Batch); ok {
				span.SetAttributes(attribute.Int("batch.size", len(batch.Items)))
			}
			if resp.IsError() {
				span.SetStatus(codes.Error, resp.Error)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return resp
		}
	}
}
