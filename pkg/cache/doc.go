// Package cache provides a generic Cache interface with in-memory and Redis
// implementations.
//
// TTL semantics for Set:
//   - Positive duration: item expires after this duration
//   - Zero: use the cache's configured default TTL
//   - Negative: item never expires
//
// [Memory] can retain expired entries for a configurable window
// ([WithStaleRetention]). Together with [GetOrRefresh] this gives
// stale-on-error reads: a value is refreshed once it expires, and if the
// refresh fails the previous value keeps being served.
//
//	idx, res, err := cache.GetOrRefresh(ctx, c, "ahn:index",
//	    func(ctx context.Context) (Index, time.Duration, error) {
//	        idx, err := fetch(ctx)
//	        return idx, 24 * time.Hour, err
//	    })
//	if res.Stale {
//	    log.Warn("serving stale index", "error", res.RefreshErr)
//	}
//
// [GetOrSet] and [GetOrRefresh] collapse concurrent misses for the same key
// into a single load.
package cache
