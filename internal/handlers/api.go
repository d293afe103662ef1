package handlers

import (
	"net/http"
	"strconv"

	"github.com/nmi-agro/fdm/internal/auth"
	"github.com/nmi-agro/fdm/internal/catalogue"
	"github.com/nmi-agro/fdm/internal/integrations"
	"github.com/nmi-agro/fdm/internal/web"
)

// API serves catalogue search and the integration endpoints under /api.
// Elevation and soil routes are only registered when their integration is
// configured.
type API struct {
	catalogue *catalogue.Service
	elevation *integrations.AHNIndex
	soil      *integrations.SoilLookup
	resolver  *auth.Resolver
}

// APIOption configures API.
type APIOption func(*API)

func WithElevation(idx *integrations.AHNIndex) APIOption {
	return func(a *API) { a.elevation = idx }
}

func WithSoilLookup(s *integrations.SoilLookup) APIOption {
	return func(a *API) { a.soil = s }
}

func NewAPI(c *catalogue.Service, resolver *auth.Resolver, opts ...APIOption) *API {
	a := &API{catalogue: c, resolver: resolver}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Routes(r web.Router) {
	r.GET("/api/catalogue/cultivations", a.searchCultivations)
	r.GET("/api/catalogue/fertilizers", a.searchFertilizers)
	if a.elevation != nil {
		r.GET("/api/elevation/index", a.elevationIndex)
	}
	if a.soil != nil {
		r.GET("/api/soil/classification", a.soilClassification, auth.RequireSession(a.resolver))
	}
}

func limit(c web.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return n
}

func (a *API) searchCultivations(c web.Context) error {
	entries, err := a.catalogue.SearchCultivations(c, c.Query("q"), limit(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"cultivations": entries})
}

func (a *API) searchFertilizers(c web.Context) error {
	entries, err := a.catalogue.SearchFertilizers(c, c.Query("q"), limit(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"fertilizers": entries})
}

func (a *API) elevationIndex(c web.Context) error {
	data, err := a.elevation.Get(c)
	if err != nil {
		return err
	}
	c.SetHeader("Cache-Control", "public, max-age=3600")
	return c.JSON(http.StatusOK, data)
}

func (a *API) soilClassification(c web.Context) error {
	lat, lon, err := integrations.ParseCoordinates(c.Query("lat"), c.Query("lon"))
	if err != nil {
		return err
	}
	sc, err := a.soil.Classify(c, lat, lon)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sc)
}
