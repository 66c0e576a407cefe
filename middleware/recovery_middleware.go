package middleware

import (
	"context"
	"fmt"
	"runtime"

	"mini-cmd/logger"
	"mini-cmd/message"
)

// InternalErrorMessage is sent back when handling a request panicked.
const InternalErrorMessage = "internal server error"

// Recovery turns a panic in the rest of the chain into an error response for the request.
func Recovery(log logger.Logger) Middleware {
	log = log.Named("recovery")
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) (resp message.Response) {
			defer func() {
				if r := recover(); r != nil {
					stackTrace := make([]byte, 4096) // 4KB
					stackTrace = stackTrace[:runtime.Stack(stackTrace, false)]

					log.Errorw("panic recovered",
						"request_id", req.RequestID,
						"panic_value", fmt.Sprintf("%v", r),
						"stack_trace", string(stackTrace),
					)
					resp = message.ErrorResponse(&req.RequestID, InternalErrorMessage)
				}
			}()

			return next(ctx, req)
		}
	}
}
