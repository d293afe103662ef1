package middlewares

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/pkg/clientip"
)

// Logging writes one record per request after the handler returns.
// Server errors log at Error, client errors at Warn, the rest at Info.
// Paths listed in skip (health probes, typically) are not logged.
func Logging(skip ...string) web.Middleware {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(c web.Context) error {
			r := c.Request()
			if _, ok := skipped[r.URL.Path]; ok {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			rw := c.ResponseWriter()
			status := rw.Status()
			if err != nil && !rw.Written() {
				// The error handler has not run yet; report what it will send.
				status = statusFor(err)
			}

			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int64("size", rw.Size()),
				slog.Duration("duration", time.Since(start)),
				slog.String("ip", clientip.GetIP(r)),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			c.Logger().LogAttrs(c, level, "http request", attrs...)
			return err
		}
	}
}

func statusFor(err error) int {
	if he := web.AsHTTPError(err); he != nil {
		return he.Code
	}
	if _, ok := AsTimeoutError(err); ok {
		return http.StatusGatewayTimeout
	}
	if _, ok := AsRateLimitError(err); ok {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
