package integrations

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nmi-agro/fdm/internal/metrics"
	"github.com/nmi-agro/fdm/pkg/cache"
)

const (
	// SoilCacheTTL is how long a classification is kept per coordinate.
	SoilCacheTTL = 7 * 24 * time.Hour
	// DefaultNMIAPIURL is the NMI open soil API.
	DefaultNMIAPIURL = "https://api.nmi-agro.nl"

	soilTimeout  = 5 * time.Second
	soilUpstream = "nmi_soil"
	// soilPrecision rounds coordinates to about 10 metres for cache keys.
	soilPrecision = 1e4
)

// SoilClassification is the soil information for one location.
type SoilClassification struct {
	Lat          float64 `json:"a_lat"`
	Lon          float64 `json:"a_lon"`
	SoilType     string  `json:"b_soiltype_agr"`
	GWLClass     string  `json:"b_gwl_class,omitempty"`
	SomLoi       float64 `json:"a_som_loi,omitempty"`
	ClayContent  float64 `json:"a_clay_mi,omitempty"`
	SandContent  float64 `json:"a_sand_mi,omitempty"`
	SiltContent  float64 `json:"a_silt_mi,omitempty"`
	Acidity      float64 `json:"a_ph_cc,omitempty"`
	SourceRegion string  `json:"b_region,omitempty"`
}

// SoilLookup queries the NMI soil API for the classification at a point.
type SoilLookup struct {
	baseURL string
	apiKey  string
	opts    options
	cache   cache.Cache[SoilClassification]
}

// NewSoilLookup returns a lookup against baseURL authenticated with apiKey.
// Results are cached in c, or in process memory when c is nil. An empty
// apiKey yields ErrNotConfigured.
func NewSoilLookup(baseURL, apiKey string, c cache.Cache[SoilClassification], opts ...Option) (*SoilLookup, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if baseURL == "" {
		baseURL = DefaultNMIAPIURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("integrations: soil api url: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if c == nil {
		c = cache.NewMemory[SoilClassification](
			cache.WithDefaultTTL(SoilCacheTTL),
			cache.WithMaxEntries(10_000),
			cache.WithClock(o.now),
		)
	}
	return &SoilLookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		opts:    o,
		cache:   c,
	}, nil
}

// ParseCoordinates parses latitude and longitude query values.
func ParseCoordinates(lat, lon string) (float64, float64, error) {
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, err2 := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: lat=%q lon=%q", ErrInvalidCoordinates, lat, lon)
	}
	if err := checkCoordinates(la, lo); err != nil {
		return 0, 0, err
	}
	return la, lo, nil
}

func checkCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinates, lat, lon)
	}
	return nil
}

// Classify returns the soil classification at lat, lon. The call to the
// soil API is aborted after five seconds.
func (s *SoilLookup) Classify(ctx context.Context, lat, lon float64) (SoilClassification, error) {
	if err := checkCoordinates(lat, lon); err != nil {
		return SoilClassification{}, err
	}
	lat, lon = round(lat), round(lon)
	key := "soil:" + strconv.FormatFloat(lat, 'f', 4, 64) + ":" + strconv.FormatFloat(lon, 'f', 4, 64)

	hit := true
	sc, err := cache.GetOrSet(ctx, s.cache, key, func(ctx context.Context) (SoilClassification, time.Duration, error) {
		hit = false
		ctx, cancel := context.WithTimeout(ctx, soilTimeout)
		defer cancel()

		q := url.Values{}
		q.Set("a_lat", strconv.FormatFloat(lat, 'f', -1, 64))
		q.Set("a_lon", strconv.FormatFloat(lon, 'f', -1, 64))

		var body struct {
			Data SoilClassification `json:"data"`
		}
		header := http.Header{"Authorization": {"Bearer " + s.apiKey}}
		if err := fetchJSON(ctx, s.opts, soilUpstream, s.baseURL+"/v1/estimates?"+q.Encode(), header, &body); err != nil {
			return SoilClassification{}, 0, err
		}
		body.Data.Lat, body.Data.Lon = lat, lon
		return body.Data, SoilCacheTTL, nil
	})
	if hit && err == nil {
		s.opts.metrics.ObserveCache(soilUpstream, metrics.CacheHit)
	} else {
		s.opts.metrics.ObserveCache(soilUpstream, metrics.CacheMiss)
	}
	return sc, err
}

// Close releases the cache.
func (s *SoilLookup) Close() error { return s.cache.Close() }

func round(v float64) float64 { return math.Round(v*soilPrecision) / soilPrecision }
