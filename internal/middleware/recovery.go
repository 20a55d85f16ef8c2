package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
)

// stackSize bounds the captured stack trace.
const stackSize = 4 << 10

// Recovery turns a panic in a handler into a 500 response and logs it with
// the current goroutine's stack.
func Recovery(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				panicErr, ok := r.(error)
				if !ok {
					panicErr = fmt.Errorf("%v", r)
				}

				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]

				req := c.Request()
				logger.ErrorContext(req.Context(), "panic recovered",
					slog.String("error", panicErr.Error()),
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.String("request_id", GetRequestID(c)),
					slog.String("stack", string(stack)),
				)

				if !c.Response().Committed {
					err = c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", "An internal error occurred"))
				}
			}()

			return next(c)
		}
	}
}

func errorBody(code, message string) map[string]any {
	return map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
}
