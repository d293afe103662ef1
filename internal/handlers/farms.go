package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/nmi-agro/fdm/internal/auth"
	"github.com/nmi-agro/fdm/internal/calendar"
	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/internal/loader"
	"github.com/nmi-agro/fdm/internal/web"
)

// Farms serves the /farm tree. Every route requires a session.
type Farms struct {
	core     *core.Service
	loader   *loader.Loader
	resolver *auth.Resolver
	now      func() time.Time
}

func NewFarms(svc *core.Service, l *loader.Loader, resolver *auth.Resolver) *Farms {
	return &Farms{core: svc, loader: l, resolver: resolver, now: time.Now}
}

func (h *Farms) Routes(r web.Router) {
	r.Route("/farm", func(r web.Router) {
		r.Use(auth.RequireSession(h.resolver))

		r.GET("/", h.list)
		r.POST("/", h.create)

		r.Route("/{b_id_farm}", func(r web.Router) {
			r.GET("/", h.show)
			r.PATCH("/", h.update)
			r.GET("/calendar", h.calendar)
			r.POST("/share", h.share)
			r.DELETE("/share/{principal_id}", h.unshare)

			r.POST("/field", h.createField)
			r.DELETE("/field/{b_id}", h.deleteField)
			r.DELETE("/field/{b_id}/cultivation/{b_lu}", h.deleteCultivation)
			r.DELETE("/field/{b_id}/fertilizer/{p_app_id}", h.deleteApplication)
			r.POST("/field/{b_id}/soil", h.createSoilAnalysis)
			r.DELETE("/field/{b_id}/soil/{a_id}", h.deleteSoilAnalysis)
			r.GET("/field/{b_id}/soil/{a_id}/document", h.soilDocument)

			r.GET("/fertilizers", h.fertilizers)
			r.POST("/fertilizers", h.createFertilizer)
			r.DELETE("/fertilizers/{p_id}", h.deleteFertilizer)

			r.Route("/{calendar}", func(r web.Router) {
				r.GET("/field", h.fields)
				r.GET("/field/{b_id}", h.field)
				r.GET("/field/{b_id}/cultivation", h.cultivations)
				r.POST("/field/{b_id}/cultivation", h.createCultivation)
				r.GET("/field/{b_id}/fertilizer", h.applications)
				r.POST("/field/{b_id}/fertilizer", h.createApplication)
				r.GET("/field/{b_id}/soil", h.soilAnalyses)
				r.GET("/cultivation", h.cultivationPlan)
			})
		})
	})
}

// principal returns the signed-in principal id. RequireSession guarantees
// one exists.
func principal(c web.Context) (string, error) {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func timeframe(c web.Context) (calendar.Timeframe, error) {
	return calendar.Parse(c.Param("calendar"))
}

func (h *Farms) list(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	farms, err := h.loader.Farms(c, pid)
	if err != nil {
		return err
	}
	if farms == nil {
		farms = []core.FarmWithRole{}
	}
	return c.JSON(http.StatusOK, map[string]any{"farms": farms})
}

func (h *Farms) create(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	var in core.FarmInput
	if err := c.BindJSON(&in); err != nil {
		return err
	}
	farm, err := h.core.CreateFarm(c, pid, in)
	if err != nil {
		return err
	}
	c.SetHeader("Location", "/farm/"+farm.ID)
	return c.JSON(http.StatusCreated, farm)
}

func (h *Farms) show(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	farm, err := h.loader.Farm(c, pid, c.Param("b_id_farm"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, farm)
}

func (h *Farms) update(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	var in core.FarmInput
	if err := c.BindJSON(&in); err != nil {
		return err
	}
	farm, err := h.core.UpdateFarm(c, pid, c.Param("b_id_farm"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, farm)
}

// calendar lists the selectable timeframes and the default one.
func (h *Farms) calendar(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	farm, err := h.loader.Farm(c, pid, c.Param("b_id_farm"))
	if err != nil {
		return err
	}
	now := h.now()
	return c.JSON(http.StatusOK, map[string]any{
		"b_id_farm": farm.ID,
		"calendar":  calendar.Default(now),
		"options":   calendar.Selection(now),
	})
}

type shareRequest struct {
	PrincipalID string    `json:"principal_id"`
	Role        core.Role `json:"role"`
}

func (h *Farms) share(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	var req shareRequest
	if err := c.BindJSON(&req); err != nil {
		return err
	}
	if err := h.core.GrantRole(c, pid, c.Param("b_id_farm"), req.PrincipalID, req.Role); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Farms) unshare(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.core.RevokeRole(c, pid, c.Param("b_id_farm"), c.Param("principal_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Farms) fields(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	tf, err := timeframe(c)
	if err != nil {
		return err
	}
	page, err := h.loader.Fields(c, pid, c.Param("b_id_farm"), tf)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Farms) field(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	if _, err := timeframe(c); err != nil {
		return err
	}
	field, err := h.loader.Field(c, pid, c.Param("b_id_farm"), c.Param("b_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, field)
}

func (h *Farms) createField(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	var in core.FieldInput
	if err := c.BindJSON(&in); err != nil {
		return err
	}
	field, err := h.core.AddField(c, pid, c.Param("b_id_farm"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, field)
}

func (h *Farms) deleteField(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	field, err := h.loader.Field(c, pid, c.Param("b_id_farm"), c.Param("b_id"))
	if err != nil {
		return err
	}
	if err := h.core.RemoveField(c, pid, field.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Farms) cultivations(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	tf, err := timeframe(c)
	if err != nil {
		return err
	}
	page, err := h.loader.Cultivations(c, pid, c.Param("b_id_farm"), c.Param("b_id"), tf)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Farms) createCultivation(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	field, err := h.loader.Field(c, pid, c.Param("b_id_farm"), c.Param("b_id"))
	if err != nil {
		return err
	}
	var in core.CultivationInput
	if err := c.BindJSON(&in); err != nil {
		return err
	}
	cult, err := h.core.AddCultivation(c, pid, field.ID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cult)
}

func (h *Farms) deleteCultivation(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	field, err := h.loader.Field(c, pid, c.Param("b_id_farm"), c.Param("b_id"))
	if err != nil {
		return err
	}
	cult, err := h.core.Cultivation(c, pid, c.Param("b_lu"))
	if err != nil {
		return err
	}
	if cult.FieldID != field.ID {
		return core.ErrNotFound
	}
	if err := h.core.RemoveCultivation(c, pid, cult.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Farms) cultivationPlan(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	tf, err := timeframe(c)
	if err != nil {
		return err
	}
	page, err := h.loader.CultivationPlan(c, pid, c.Param("b_id_farm"), tf)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Farms) fertilizers(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	page, err := h.loader.Fertilizers(c, pid, c.Param("b_id_farm"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Farms) createFertilizer(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	var in core.FertilizerInput
	if err := c.BindJSON(&in); err != nil {
		return err
	}
	fert, err := h.core.AddFertilizer(c, pid, c.Param("b_id_farm"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, fert)
}

func (h *Farms) deleteFertilizer(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	page, err := h.loader.Fertilizers(c, pid, c.Param("b_id_farm"))
	if err != nil {
		return err
	}
	fid := c.Param("p_id")
	if !slices.ContainsFunc(page.Items, func(f core.Fertilizer) bool { return f.ID == fid }) {
		return core.ErrNotFound
	}
	if err := h.core.RemoveFertilizer(c, pid, fid); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Farms) applications(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	tf, err := timeframe(c)
	if err != nil {
		return err
	}
	page, err := h.loader.FertilizerApplications(c, pid, c.Param("b_id_farm"), c.Param("b_id"), tf)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Farms) createApplication(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	field, err := h.loader.Field(c, pid, c.Param("b_id_farm"), c.Param("b_id"))
	if err != nil {
		return err
	}
	var in core.ApplicationInput
	if err := c.BindJSON(&in); err != nil {
		return err
	}
	app, err := h.core.AddApplication(c, pid, field.ID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, app)
}

func (h *Farms) deleteApplication(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	page, err := h.loader.FertilizerApplications(c, pid, c.Param("b_id_farm"), c.Param("b_id"), calendar.Timeframe{})
	if err != nil {
		return err
	}
	appID := c.Param("p_app_id")
	if !slices.ContainsFunc(page.Items, func(a core.FertilizerApplication) bool { return a.ID == appID }) {
		return core.ErrNotFound
	}
	if err := h.core.RemoveApplication(c, pid, appID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
