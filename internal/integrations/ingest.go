package integrations

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/middlewares"
	"github.com/nmi-agro/fdm/pkg/ratelimit"
)

// IngestPrefix is the path the analytics proxy is mounted under.
const IngestPrefix = "/ingest"

// IngestProxy forwards browser analytics to PostHog so that they are sent
// first-party. Static assets go to the matching assets host.
type IngestProxy struct {
	api     *url.URL
	assets  *url.URL
	proxy   *httputil.ReverseProxy
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewIngestProxy returns a proxy to host, e.g. "https://eu.i.posthog.com".
// An empty host yields ErrNotConfigured. limiter may be nil.
func NewIngestProxy(host string, limiter *ratelimit.Limiter, opts ...Option) (*IngestProxy, error) {
	if host == "" {
		return nil, ErrNotConfigured
	}
	api, err := url.Parse(host)
	if err != nil || api.Scheme == "" || api.Host == "" {
		return nil, fmt.Errorf("integrations: invalid posthog host %q", host)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &IngestProxy{
		api:     api,
		assets:  assetsURL(api),
		limiter: limiter,
		logger:  o.logger,
	}
	p.proxy = &httputil.ReverseProxy{
		Rewrite:      p.rewrite,
		Transport:    o.client.Transport,
		ErrorHandler: p.proxyError,
	}
	return p, nil
}

// assetsURL maps "eu.i.posthog.com" to "eu-assets.i.posthog.com". Other
// hosts serve their own assets.
func assetsURL(api *url.URL) *url.URL {
	u := *api
	region, rest, ok := strings.Cut(u.Host, ".")
	if ok && strings.HasPrefix(rest, "i.posthog.com") {
		u.Host = region + "-assets." + rest
	}
	return &u
}

func (p *IngestProxy) rewrite(r *httputil.ProxyRequest) {
	path := strings.TrimPrefix(r.In.URL.Path, IngestPrefix)
	target := p.api
	if strings.HasPrefix(path, "/static/") {
		target = p.assets
	}
	r.SetURL(target)
	r.Out.URL.Path = strings.TrimRight(target.Path, "/") + path
	r.Out.URL.RawPath = ""
	r.Out.Host = target.Host
	r.Out.Header.Del("Cookie")
	r.SetXForwarded()
}

func (p *IngestProxy) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.WarnContext(r.Context(), "ingest proxy failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	w.WriteHeader(http.StatusBadGateway)
}

// Routes mounts the proxy under IngestPrefix, rate limited per client IP.
func (p *IngestProxy) Routes(r web.Router) {
	limit := middlewares.RateLimit(p.limiter, middlewares.ByClientIP)
	r.GET(IngestPrefix+"/*", p.serve, limit)
	r.POST(IngestPrefix+"/*", p.serve, limit)
}

func (p *IngestProxy) serve(c web.Context) error {
	p.proxy.ServeHTTP(c.Response(), c.Request())
	return nil
}
