package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nmi-agro/fdm/internal/web"
)

// DefaultTimeout is the default request deadline.
const DefaultTimeout = 30 * time.Second

// Timeout puts a deadline on the request context whose cause is a
// *TimeoutError. A handler error returned after the deadline passed carries
// that cause to the error handler.
//
// Handlers must pass the request context to blocking calls for the
// deadline to have any effect.
func Timeout(d time.Duration) web.Middleware {
	if d <= 0 {
		d = DefaultTimeout
	}

	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(c web.Context) error {
			ctx, cancel := context.WithTimeoutCause(c.Request().Context(), d, &TimeoutError{Duration: d})
			defer cancel()
			c.SetContext(ctx)

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return err
			}
			c.Logger().WarnContext(c, "request timeout", slog.Duration("timeout", d))
			if !c.Written() && !errors.Is(err, context.Cause(ctx)) {
				return errors.Join(context.Cause(ctx), err)
			}
			return err
		}
	}
}
