package integrations

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nmi-agro/fdm/internal/metrics"
	"github.com/nmi-agro/fdm/pkg/cache"
)

const (
	// AHNIndexTTL is how long a fetched index is served without refetching.
	AHNIndexTTL = 24 * time.Hour
	// DefaultAHNIndexURL is the public AHN tile index.
	DefaultAHNIndexURL = "https://service.pdok.nl/rws/ahn/atom/downloads/dtm_05m/kaartbladindex.json"

	ahnFetchTimeout = 10 * time.Second
	ahnUpstream     = "ahn"
)

// AHNIndex serves the AHN (Actueel Hoogtebestand Nederland) tile index from
// a process-wide cache. Expired data is refreshed lazily on the next call;
// concurrent refreshes share one fetch.
type AHNIndex struct {
	url   string
	key   string
	opts  options
	cache *cache.Memory[json.RawMessage]
}

// NewAHNIndex returns an index cache for url. An empty url uses
// DefaultAHNIndexURL.
func NewAHNIndex(url string, opts ...Option) *AHNIndex {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if url == "" {
		url = DefaultAHNIndexURL
	}
	return &AHNIndex{
		url:  url,
		key:  "ahn:index:" + url,
		opts: o,
		cache: cache.NewMemory[json.RawMessage](
			cache.WithDefaultTTL(AHNIndexTTL),
			cache.WithStaleRetention(-1),
			cache.WithCleanupInterval(0),
			cache.WithClock(o.now),
		),
	}
}

// Get returns the index JSON. When a refresh fails and an earlier copy
// exists, the earlier copy is returned and a warning logged. Without any
// copy the error wraps ErrUpstream.
func (a *AHNIndex) Get(ctx context.Context) (json.RawMessage, error) {
	fetched := false
	data, res, err := cache.GetOrRefresh(ctx, a.cache, a.key, func(ctx context.Context) (json.RawMessage, time.Duration, error) {
		fetched = true
		ctx, cancel := context.WithTimeout(ctx, ahnFetchTimeout)
		defer cancel()

		var raw json.RawMessage
		if err := fetchJSON(ctx, a.opts, ahnUpstream, a.url, nil, &raw); err != nil {
			return nil, 0, err
		}
		return raw, AHNIndexTTL, nil
	})

	switch {
	case err != nil:
		a.opts.metrics.ObserveCache(ahnUpstream, metrics.CacheMiss)
		return nil, err
	case res.Stale:
		a.opts.metrics.ObserveCache(ahnUpstream, metrics.CacheStale)
		a.opts.logger.WarnContext(ctx, "serving stale AHN index",
			slog.Any("error", res.RefreshErr),
			slog.Time("stored_at", a.storedAt()),
		)
	case fetched:
		a.opts.metrics.ObserveCache(ahnUpstream, metrics.CacheMiss)
	default:
		a.opts.metrics.ObserveCache(ahnUpstream, metrics.CacheHit)
	}
	return data, nil
}

func (a *AHNIndex) storedAt() time.Time {
	t, _ := a.cache.StoredAt(a.key)
	return t
}

// Close releases the cache.
func (a *AHNIndex) Close() error { return a.cache.Close() }
