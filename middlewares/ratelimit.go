package middlewares

import (
	"math"
	"strconv"
	"time"

	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/pkg/clientip"
	"github.com/nmi-agro/fdm/pkg/ratelimit"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c web.Context) string

// ByClientIP keys requests by the resolved client address.
func ByClientIP(c web.Context) string { return clientip.GetIP(c.Request()) }

// RateLimit rejects requests over the limiter's budget with a
// *RateLimitError and sets Retry-After. A nil limiter disables the check,
// as does an empty key.
func RateLimit(l *ratelimit.Limiter, key KeyFunc) web.Middleware {
	if key == nil {
		key = ByClientIP
	}

	return func(next web.HandlerFunc) web.HandlerFunc {
		if l == nil {
			return next
		}
		return func(c web.Context) error {
			k := key(c)
			now := time.Now()
			if l.Allow(k, now) {
				return next(c)
			}

			wait := l.RetryAfter(k, now)
			c.SetHeader("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			return &RateLimitError{RetryAfter: wait}
		}
	}
}
