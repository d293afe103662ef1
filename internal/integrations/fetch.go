package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrUpstream is returned when an external service fails or times out
	// and no cached data can stand in.
	ErrUpstream = errors.New("integrations: upstream service unavailable")
	// ErrNotConfigured is returned by integrations without a target URL.
	ErrNotConfigured = errors.New("integrations: not configured")
	// ErrInvalidCoordinates is returned for latitude/longitude pairs out of
	// range.
	ErrInvalidCoordinates = errors.New("integrations: invalid coordinates")
)

// maxResponseBody caps how much of an upstream body is read.
const maxResponseBody = 8 << 20

// fetchJSON GETs url and decodes a 200 response into v. header may be nil.
// Every failure is joined with ErrUpstream.
func fetchJSON(ctx context.Context, o options, upstream, url string, header http.Header, v any) (err error) {
	start := time.Now()
	defer func() { o.metrics.ObserveFetch(upstream, time.Since(start), err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Join(ErrUpstream, err)
	}
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return errors.Join(ErrUpstream, fmt.Errorf("%s: %w", upstream, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Join(ErrUpstream, fmt.Errorf("%s: status=%d body=%s", upstream, resp.StatusCode, body))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(v); err != nil {
		return errors.Join(ErrUpstream, fmt.Errorf("%s: decode: %w", upstream, err))
	}
	return nil
}
