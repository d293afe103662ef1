package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmi-agro/fdm/internal/auth"
	"github.com/nmi-agro/fdm/internal/calendar"
	"github.com/nmi-agro/fdm/internal/catalogue"
	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/internal/core/coretest"
	"github.com/nmi-agro/fdm/internal/handlers"
	"github.com/nmi-agro/fdm/internal/integrations"
	"github.com/nmi-agro/fdm/internal/loader"
	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/middlewares"
	"github.com/nmi-agro/fdm/pkg/cookie"
	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/session"
	"github.com/nmi-agro/fdm/pkg/storage"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	parcel     = `{"type":"Polygon","coordinates":[[[5.66,51.97],[5.67,51.97],[5.67,51.975],[5.66,51.975],[5.66,51.97]]]}`
)

type routes func(r web.Router)

func (f routes) Routes(r web.Router) { f(r) }

// client keeps cookies between requests.
type client struct {
	t       *testing.T
	app     http.Handler
	cookies map[string]*http.Cookie
}

func (cl *client) do(r *http.Request) *httptest.ResponseRecorder {
	cl.t.Helper()
	for _, c := range cl.cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	cl.app.ServeHTTP(rec, r)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(cl.cookies, c.Name)
			continue
		}
		cl.cookies[c.Name] = c
	}
	return rec
}

func (cl *client) get(target string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Header.Set("Accept", "application/json")
	return cl.do(r)
}

func (cl *client) send(method, target string, body any) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	require.NoError(cl.t, err)
	r := httptest.NewRequest(method, target, bytes.NewReader(raw))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/json")
	return cl.do(r)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type env struct {
	app   *web.App
	svc   *core.Service
	store *storage.Memory
	farm  string
	field string
}

func newEnv(t *testing.T, apiOpts ...handlers.APIOption) *env {
	t.Helper()

	var seq atomic.Int64
	repo := coretest.New()
	repo.AddPrincipal("owner", "owner@example.com")
	repo.AddPrincipal("stranger", "stranger@example.com")

	cat := catalogue.New(repo)
	t.Cleanup(func() { _ = cat.Close() })
	_, err := cat.Sync(t.Context())
	require.NoError(t, err)

	svc := core.New(repo, core.WithIDGenerator(func() string { return fmt.Sprintf("id%03d", seq.Add(1)) }))
	farm, err := svc.CreateFarm(t.Context(), "owner", core.FarmInput{Name: "De Hoeve"})
	require.NoError(t, err)
	field, err := svc.AddField(t.Context(), "owner", farm.ID, core.FieldInput{
		Name: "Achter", Geometry: parcel, Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	cookies := cookie.New(cookie.WithSecret(testSecret))
	resolver := auth.NewResolver(svc, nil)
	store := storage.NewMemory("https://files.test")

	app := web.New(
		web.WithCookieManager(cookies),
		web.WithSessionManager(web.NewSessionManager(session.NewMemoryStore(), cookies)),
		web.WithStorage(store),
		web.WithMiddleware(middlewares.RequestID()),
		web.WithErrorHandler(handlers.ErrorHandler(logger.NewNope())),
		web.WithHandlers(
			handlers.NewFarms(svc, loader.New(svc, nil), resolver),
			handlers.NewAPI(cat, resolver, apiOpts...),
			routes(func(r web.Router) {
				r.POST("/test/login/{pid}", func(c web.Context) error {
					if err := c.AuthenticateSession(c.Param("pid")); err != nil {
						return err
					}
					return c.NoContent(http.StatusNoContent)
				})
			}),
		),
	)
	return &env{app: app, svc: svc, store: store, farm: farm.ID, field: field.ID}
}

func (e *env) client(t *testing.T, pid string) *client {
	t.Helper()
	cl := &client{t: t, app: e.app, cookies: map[string]*http.Cookie{}}
	if pid != "" {
		rec := cl.do(httptest.NewRequest(http.MethodPost, "/test/login/"+pid, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	return cl
}

func TestFarms_RequireSession(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	anon := e.client(t, "")

	for _, path := range []string{"/farm", "/farm/" + e.farm, "/farm/" + e.farm + "/2025/field"} {
		rec := anon.get(path)
		require.Equal(t, http.StatusFound, rec.Code, path)
		assert.Equal(t, auth.SignInURL(path), rec.Header().Get("Location"))
		assert.NotContains(t, rec.Body.String(), "De Hoeve")
	}
}

func TestFarms_Access(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	owner := e.client(t, "owner")
	stranger := e.client(t, "stranger")

	list := decode[struct {
		Farms []core.FarmWithRole `json:"farms"`
	}](t, owner.get("/farm"))
	require.Len(t, list.Farms, 1)
	assert.Equal(t, core.RoleOwner, list.Farms[0].Role)

	empty := decode[struct {
		Farms []core.FarmWithRole `json:"farms"`
	}](t, stranger.get("/farm"))
	assert.Empty(t, empty.Farms)

	rec := stranger.get("/farm/" + e.farm)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "De Hoeve")

	rec = stranger.get("/farm/" + e.farm + "/all/field")
	require.Equal(t, http.StatusForbidden, rec.Code)

	existing := stranger.get("/farm/" + e.farm + "/all/field/" + e.field)
	missing := stranger.get("/farm/" + e.farm + "/all/field/no-such-field")
	require.Equal(t, http.StatusForbidden, existing.Code)
	require.Equal(t, missing.Code, existing.Code)
	errCode := func(rec *httptest.ResponseRecorder) string {
		return decode[map[string]map[string]string](t, rec)["error"]["code"]
	}
	assert.Equal(t, errCode(missing), errCode(existing))

	rec = owner.send(http.MethodPost, "/farm/"+e.farm+"/share", map[string]string{"principal_id": "stranger", "role": "researcher"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, http.StatusOK, stranger.get("/farm/"+e.farm).Code)

	rec = stranger.send(http.MethodPost, "/farm/"+e.farm+"/field", core.FieldInput{Name: "x", Geometry: parcel, Start: time.Now()})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFarms_CreateAndLoad(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	owner := e.client(t, "owner")

	rec := owner.send(http.MethodPost, "/farm", core.FarmInput{Name: "  Nieuwe   boerderij "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	farm := decode[core.Farm](t, rec)
	assert.Equal(t, "Nieuwe boerderij", farm.Name)
	assert.Equal(t, "/farm/"+farm.ID, rec.Header().Get("Location"))

	rec = owner.send(http.MethodPost, "/farm/"+e.farm+"/2025/field/"+e.field+"/cultivation", core.CultivationInput{
		CatalogueID: "nl_259", Start: time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	page := decode[map[string]json.RawMessage](t, owner.get("/farm/"+e.farm+"/2025/field/"+e.field+"/cultivation"))
	assert.JSONEq(t, `"2025"`, string(page["calendar"]))
	var cults []core.Cultivation
	require.NoError(t, json.Unmarshal(page["cultivations"], &cults))
	require.Len(t, cults, 1)

	page = decode[map[string]json.RawMessage](t, owner.get("/farm/"+e.farm+"/2024/field/"+e.field+"/cultivation"))
	assert.JSONEq(t, `[]`, string(page["cultivations"]))

	plan := decode[map[string]json.RawMessage](t, owner.get("/farm/"+e.farm+"/2025/cultivation"))
	assert.Contains(t, string(plan["cultivation_plan"]), `"b_lu_catalogue":"nl_259"`)

	rec = owner.do(httptest.NewRequest(http.MethodDelete, "/farm/"+e.farm+"/field/"+e.field+"/cultivation/"+cults[0].ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFarms_Fertilizers(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	owner := e.client(t, "owner")

	rec := owner.get("/farm/" + e.farm + "/fertilizers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"b_id_farm":%q,"fertilizers":[]}`, e.farm), rec.Body.String())

	rec = owner.send(http.MethodPost, "/farm/"+e.farm+"/fertilizers", core.FertilizerInput{
		CatalogueID: "nl_2014", AcquiringDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fert := decode[core.Fertilizer](t, rec)

	rec = owner.send(http.MethodPost, "/farm/"+e.farm+"/2025/field/"+e.field+"/fertilizer", core.ApplicationInput{
		FertilizerID: fert.ID, Amount: 25000, Method: "injection", Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	app := decode[core.FertilizerApplication](t, rec)

	page := decode[map[string]json.RawMessage](t, owner.get("/farm/"+e.farm+"/2025/field/"+e.field+"/fertilizer"))
	assert.Contains(t, string(page["fertilizer_applications"]), app.ID)

	rec = owner.do(httptest.NewRequest(http.MethodDelete, "/farm/"+e.farm+"/field/"+e.field+"/fertilizer/"+app.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = owner.do(httptest.NewRequest(http.MethodDelete, "/farm/"+e.farm+"/fertilizers/"+fert.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFarms_Calendar(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	owner := e.client(t, "owner")

	body := decode[struct {
		Calendar string   `json:"calendar"`
		Options  []string `json:"options"`
	}](t, owner.get("/farm/"+e.farm+"/calendar"))
	assert.Equal(t, calendar.Default(time.Now()), body.Calendar)
	assert.Equal(t, calendar.All, body.Options[0])

	rec := owner.get("/farm/" + e.farm + "/20x5/field")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decode[map[string]map[string]string](t, rec)
	assert.Equal(t, "invalid_calendar", errBody["error"]["code"])
	assert.NotEmpty(t, errBody["error"]["request_id"])
}

func TestFarms_SoilAnalysis(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	owner := e.client(t, "owner")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("b_sampling_date", "2025-02-10"))
	require.NoError(t, mw.WriteField("a_source", "Eurofins"))
	require.NoError(t, mw.WriteField("a_som_loi", "3,4"))
	fw, err := mw.CreateFormFile("document", "rapport.pdf")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "%PDF-1.4\n%report\n")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/farm/"+e.farm+"/field/"+e.field+"/soil", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	rec := owner.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	analysis := decode[core.SoilAnalysis](t, rec)
	require.NotNil(t, analysis.SomLoi)
	assert.InDelta(t, 3.4, *analysis.SomLoi, 1e-9)
	assert.True(t, strings.HasPrefix(analysis.Document, "soil/"+e.farm+"/"+e.field+"/"))
	assert.Equal(t, 1, e.store.Len())

	page := decode[map[string]json.RawMessage](t, owner.get("/farm/"+e.farm+"/2025/field/"+e.field+"/soil"))
	assert.Contains(t, string(page["soil_analyses"]), analysis.ID)

	rec = owner.get("/farm/" + e.farm + "/field/" + e.field + "/soil/" + analysis.ID + "/document")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "https://files.test/"+analysis.Document)
	assert.Contains(t, rec.Header().Get("Location"), "soil-analysis-2025-02-10.pdf")

	rec = owner.do(httptest.NewRequest(http.MethodDelete, "/farm/"+e.farm+"/field/"+e.field+"/soil/"+analysis.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, e.store.Len())
}

func TestFarms_FieldOfAnotherFarm(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	owner := e.client(t, "owner")

	other, err := e.svc.CreateFarm(t.Context(), "owner", core.FarmInput{Name: "Elders"})
	require.NoError(t, err)

	rec := owner.get("/farm/" + other.ID + "/all/field/" + e.field)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[{"id":"01CZ1"}]}`)
	}))
	t.Cleanup(upstream.Close)

	idx := integrations.NewAHNIndex(upstream.URL)
	t.Cleanup(func() { _ = idx.Close() })
	e := newEnv(t, handlers.WithElevation(idx))
	anon := e.client(t, "")

	rec := anon.get("/api/catalogue/cultivations?q=mais")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nl_259")

	rec = anon.get("/api/catalogue/fertilizers?q=drijfmest&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]core.FertilizerCatalogueEntry](t, rec)
	assert.Len(t, body["fertilizers"], 1)

	for range 3 {
		rec = anon.get("/api/elevation/index")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Contains(t, rec.Body.String(), "01CZ1")
	assert.Equal(t, int64(1), calls.Load())

	rec = anon.get("/api/soil/classification?lat=52&lon=5")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_SoilClassification(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(upstream.Close)

	lookup, err := integrations.NewSoilLookup(upstream.URL, "key", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lookup.Close() })

	e := newEnv(t, handlers.WithSoilLookup(lookup))
	owner := e.client(t, "owner")

	rec := owner.get("/api/soil/classification?lat=abc&lon=5")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = owner.get("/api/soil/classification?lat=52.08&lon=5.12")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream_unavailable", decode[map[string]map[string]string](t, rec)["error"]["code"])
}

func TestErrorHandler_Panic(t *testing.T) {
	t.Parallel()

	app := web.New(
		web.WithMiddleware(middlewares.RequestID(), middlewares.Recover()),
		web.WithErrorHandler(handlers.ErrorHandler(logger.NewNope())),
		web.WithHandlers(routes(func(r web.Router) {
			r.GET("/boom", func(web.Context) error { panic("secret detail") })
		})),
	)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestErrorHandler_Timeout(t *testing.T) {
	t.Parallel()

	app := web.New(
		web.WithMiddleware(middlewares.RequestID(), middlewares.Timeout(20*time.Millisecond)),
		web.WithErrorHandler(handlers.ErrorHandler(logger.NewNope())),
		web.WithHandlers(routes(func(r web.Router) {
			r.GET("/slow", func(c web.Context) error {
				<-c.Done()
				return c.Err()
			})
		})),
	)

	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "timeout", decode[map[string]map[string]string](t, rec)["error"]["code"])
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"missing calendar", calendar.ErrMissingCalendar, http.StatusBadRequest},
		{"invalid calendar", fmt.Errorf("%w: %q", calendar.ErrInvalidCalendar, "x"), http.StatusBadRequest},
		{"missing farm", loader.ErrMissingFarmID, http.StatusBadRequest},
		{"missing field", loader.ErrMissingFieldID, http.StatusBadRequest},
		{"invalid input", &core.InputError{Message: "b_name is required"}, http.StatusBadRequest},
		{"not found", core.ErrNotFound, http.StatusNotFound},
		{"forbidden", core.ErrPermissionDenied, http.StatusForbidden},
		{"conflict", core.ErrConflict, http.StatusConflict},
		{"upstream", errors.Join(integrations.ErrUpstream, errors.New("dial tcp")), http.StatusBadGateway},
		{"timeout", &middlewares.TimeoutError{Duration: time.Second}, http.StatusGatewayTimeout},
		{"timeout over http error", errors.Join(&middlewares.TimeoutError{Duration: time.Second}, web.ErrInternal("x")), http.StatusGatewayTimeout},
		{"rate limit", &middlewares.RateLimitError{RetryAfter: time.Second}, http.StatusTooManyRequests},
		{"too large", &storage.ValidationError{Err: storage.ErrFileTooLarge, Message: "too big"}, http.StatusRequestEntityTooLarge},
		{"http error", web.ErrBadRequest("nope"), http.StatusBadRequest},
		{"panic", &middlewares.PanicError{Value: "x"}, http.StatusInternalServerError},
		{"unknown", errors.New("pq: connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			he := handlers.Translate(tt.err)
			assert.Equal(t, tt.code, he.Code)
			assert.NotEmpty(t, he.ErrorCode)
			if tt.code == http.StatusInternalServerError {
				assert.Equal(t, "Internal Server Error", he.Message)
			}
		})
	}

	assert.Equal(t, "b_name is required", handlers.Translate(&core.InputError{Message: "b_name is required"}).Message)
}
