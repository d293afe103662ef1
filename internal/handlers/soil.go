package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/pkg/id"
	"github.com/nmi-agro/fdm/pkg/storage"
)

const (
	maxDocumentSize = 10 << 20
	documentURLTTL  = 5 * time.Minute
)

func (h *Farms) soilAnalyses(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	tf, err := timeframe(c)
	if err != nil {
		return err
	}
	page, err := h.loader.SoilAnalyses(c, pid, c.Param("b_id_farm"), c.Param("b_id"), tf)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// createSoilAnalysis accepts JSON or a multipart form. A form may carry the
// lab report as "document"; it is stored before the analysis is written.
func (h *Farms) createSoilAnalysis(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	farmID := c.Param("b_id_farm")
	field, err := h.loader.Field(c, pid, farmID, c.Param("b_id"))
	if err != nil {
		return err
	}

	var in core.SoilAnalysisInput
	ct, _, _ := mime.ParseMediaType(c.Header("Content-Type"))
	if ct == "multipart/form-data" {
		if in, err = soilForm(c); err != nil {
			return err
		}
		key, err := h.storeDocument(c, farmID, field.ID)
		if err != nil {
			return err
		}
		in.Document = key
	} else if err := c.BindJSON(&in); err != nil {
		return err
	}

	analysis, err := h.core.AddSoilAnalysis(c, pid, field.ID, in)
	if err != nil {
		if in.Document != "" {
			h.dropDocument(c, in.Document)
		}
		return err
	}
	return c.JSON(http.StatusCreated, analysis)
}

func soilForm(c web.Context) (core.SoilAnalysisInput, error) {
	if err := c.Request().ParseMultipartForm(maxDocumentSize); err != nil {
		return core.SoilAnalysisInput{}, web.ErrBadRequest("invalid form", web.WithErrorCode("invalid_body"), web.WithCause(err))
	}

	in := core.SoilAnalysisInput{
		Source:   c.Form("a_source"),
		SoilType: c.Form("b_soiltype_agr"),
	}
	if v := strings.TrimSpace(c.Form("b_sampling_date")); v != "" {
		d, err := parseDate(v)
		if err != nil {
			return in, web.ErrBadRequest("b_sampling_date must be a date", web.WithErrorCode("invalid_input"), web.WithCause(err))
		}
		in.SamplingDate = d
	}

	var errs []error
	for name, dst := range map[string]**float64{
		"a_som_loi": &in.SomLoi,
		"a_p_al":    &in.PAl,
		"a_p_cc":    &in.PCc,
		"a_ph_cc":   &in.PhCc,
	} {
		v := strings.TrimSpace(c.Form(name))
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*dst = &f
	}
	if len(errs) > 0 {
		return in, web.ErrBadRequest("soil parameters must be numbers", web.WithErrorCode("invalid_input"), web.WithCause(errors.Join(errs...)))
	}
	return in, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// storeDocument uploads the optional "document" file and returns its key,
// or "" when the form has none.
func (h *Farms) storeDocument(c web.Context, farmID, fieldID string) (string, error) {
	file, header, err := c.FormFile("document")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", web.ErrBadRequest("invalid document", web.WithErrorCode("invalid_document"), web.WithCause(err))
	}
	defer file.Close()

	store, err := c.Storage()
	if err != nil {
		return "", web.ErrBadRequest("document upload is not available", web.WithErrorCode("storage_disabled"), web.WithCause(err))
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	key := storage.Key("soil", farmID, fieldID, id.New()+ext)
	obj, err := store.Put(c, key, file, "",
		storage.NotEmpty(),
		storage.MaxSize(maxDocumentSize),
		storage.AllowedTypes(storage.DocumentTypes...),
	)
	if err != nil {
		return "", err
	}
	return obj.Key, nil
}

func (h *Farms) dropDocument(c web.Context, key string) {
	store, err := c.Storage()
	if err != nil {
		return
	}
	if err := store.Delete(c, key); err != nil {
		c.Logger().WarnContext(c, "delete soil document", slog.String("key", key), slog.Any("error", err))
	}
}

// soilAnalysis loads an analysis and checks that it belongs to the field
// and farm in the URL.
func (h *Farms) soilAnalysis(c web.Context, pid string) (*core.SoilAnalysis, error) {
	field, err := h.loader.Field(c, pid, c.Param("b_id_farm"), c.Param("b_id"))
	if err != nil {
		return nil, err
	}
	a, err := h.core.SoilAnalysis(c, pid, c.Param("a_id"))
	if err != nil {
		return nil, err
	}
	if a.FieldID != field.ID {
		return nil, core.ErrNotFound
	}
	return a, nil
}

func (h *Farms) deleteSoilAnalysis(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	a, err := h.soilAnalysis(c, pid)
	if err != nil {
		return err
	}
	removed, err := h.core.RemoveSoilAnalysis(c, pid, a.ID)
	if err != nil {
		return err
	}
	if removed.Document != "" {
		h.dropDocument(c, removed.Document)
	}
	return c.NoContent(http.StatusNoContent)
}

// soilDocument redirects to a short-lived download link for the lab report.
func (h *Farms) soilDocument(c web.Context) error {
	pid, err := principal(c)
	if err != nil {
		return err
	}
	a, err := h.soilAnalysis(c, pid)
	if err != nil {
		return err
	}
	if a.Document == "" {
		return core.ErrNotFound
	}
	store, err := c.Storage()
	if err != nil {
		return web.ErrNotFound("document storage is not available", web.WithCause(err))
	}
	filename := "soil-analysis-" + a.SamplingDate.Format(time.DateOnly) + path.Ext(a.Document)
	u, err := store.URL(c, a.Document, filename, documentURLTTL)
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, u)
}
