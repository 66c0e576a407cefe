package middleware

import (
	"context"
	"time"

	"mini-cmd/logger"
	"mini-cmd/message"
)

// Logging logs every received request at info level and every response at debug level.
func Logging(log logger.Logger) Middleware {
	log = log.Named("request")
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) message.Response {
			kind := commandKind(req)
			log.Infow("received request", "command", kind, "request_id", req.RequestID)

			start := time.Now()
			resp := next(ctx, req)

			kv := []any{
				"command", kind,
				"request_id", req.RequestID,
				"status", resp.Status,
				"duration", time.Since(start),
			}
			if resp.IsError() {
				kv = append(kv, "error", resp.Error)
			}
			log.Debugw("sending response", kv...)
			return resp
		}
	}
}

func commandKind(req message.Request) message.CommandKind {
	if req.Command == nil {
		return ""
	}
	return req.Command.Kind()
}
