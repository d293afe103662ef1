package loader_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmi-agro/fdm/internal/calendar"
	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/internal/core/coretest"
	"github.com/nmi-agro/fdm/internal/loader"
)

const parcel = `{"type":"Polygon","coordinates":[[[5.66,51.97],[5.67,51.97],[5.67,51.975],[5.66,51.975],[5.66,51.97]]]}`

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

type env struct {
	svc    *core.Service
	loader *loader.Loader
	farm   string
	wheat  string // field with wheat in 2024 and maize in 2025
	grass  string // field acquired in 2025
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	var seq atomic.Int64
	repo := coretest.New()
	repo.AddPrincipal("owner", "owner@example.com")
	repo.AddPrincipal("stranger", "stranger@example.com")
	_, err := repo.UpsertCultivationCatalogue(ctx, []core.CultivationCatalogueEntry{
		{ID: "nl_233", Source: "brp", Name: "Wintertarwe", Hash: "a"},
		{ID: "nl_259", Source: "brp", Name: "Snijmaïs", Hash: "b"},
		{ID: "nl_265", Source: "brp", Name: "Grasland, blijvend", Hash: "c"},
	})
	require.NoError(t, err)
	_, err = repo.UpsertFertilizerCatalogue(ctx, []core.FertilizerCatalogueEntry{
		{ID: "nl_2014", Source: "srm", NameNL: "Rundveedrijfmest", Type: core.FertilizerManure, Hash: "d"},
	})
	require.NoError(t, err)

	svc := core.New(repo,
		core.WithClock(func() time.Time { return date(2025, 6, 1) }),
		core.WithIDGenerator(func() string { return fmt.Sprintf("id%03d", seq.Add(1)) }),
	)

	farm, err := svc.CreateFarm(ctx, "owner", core.FarmInput{Name: "De Hoeve"})
	require.NoError(t, err)

	wheat, err := svc.AddField(ctx, "owner", farm.ID, core.FieldInput{Name: "Achter", Geometry: parcel, Start: date(2020, 1, 1)})
	require.NoError(t, err)
	grass, err := svc.AddField(ctx, "owner", farm.ID, core.FieldInput{Name: "Voor", Geometry: parcel, Start: date(2025, 1, 1)})
	require.NoError(t, err)

	end2024 := date(2024, 8, 15)
	for _, in := range []struct {
		field string
		core.CultivationInput
	}{
		{wheat.ID, core.CultivationInput{CatalogueID: "nl_233", Start: date(2023, 10, 20), End: &end2024}},
		{wheat.ID, core.CultivationInput{CatalogueID: "nl_259", Start: date(2025, 4, 25)}},
		{grass.ID, core.CultivationInput{CatalogueID: "nl_265", Start: date(2025, 1, 1)}},
	} {
		_, err := svc.AddCultivation(ctx, "owner", in.field, in.CultivationInput)
		require.NoError(t, err)
	}

	fert, err := svc.AddFertilizer(ctx, "owner", farm.ID, core.FertilizerInput{CatalogueID: "nl_2014", AcquiringDate: date(2024, 2, 1)})
	require.NoError(t, err)
	for _, d := range []time.Time{date(2024, 3, 1), date(2025, 3, 1)} {
		_, err := svc.AddApplication(ctx, "owner", wheat.ID, core.ApplicationInput{FertilizerID: fert.ID, Amount: 30000, Method: "injection", Date: d})
		require.NoError(t, err)
	}
	_, err = svc.AddSoilAnalysis(ctx, "owner", wheat.ID, core.SoilAnalysisInput{SamplingDate: date(2024, 11, 5), Source: "lab"})
	require.NoError(t, err)

	return &env{svc: svc, loader: loader.New(svc, nil), farm: farm.ID, wheat: wheat.ID, grass: grass.ID}
}

func TestLoader_MissingIDs(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	all, _ := calendar.Parse("all")

	_, err := e.loader.Farm(ctx, "owner", "")
	require.ErrorIs(t, err, loader.ErrMissingFarmID)
	_, err = e.loader.Fields(ctx, "owner", "", all)
	require.ErrorIs(t, err, loader.ErrMissingFarmID)
	_, err = e.loader.Fertilizers(ctx, "owner", "")
	require.ErrorIs(t, err, loader.ErrMissingFarmID)
	_, err = e.loader.CultivationPlan(ctx, "owner", "", all)
	require.ErrorIs(t, err, loader.ErrMissingFarmID)
	_, err = e.loader.Cultivations(ctx, "owner", e.farm, "", all)
	require.ErrorIs(t, err, loader.ErrMissingFieldID)
}

func TestLoader_Authorization(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	all, _ := calendar.Parse("all")

	_, err := e.loader.Farm(ctx, "stranger", e.farm)
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	_, err = e.loader.Fields(ctx, "stranger", e.farm, all)
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	_, err = e.loader.SoilAnalyses(ctx, "stranger", e.farm, e.wheat, all)
	require.ErrorIs(t, err, core.ErrPermissionDenied)

	t.Run("field existence is hidden", func(t *testing.T) {
		_, existing := e.loader.Field(ctx, "stranger", e.farm, e.wheat)
		_, missing := e.loader.Field(ctx, "stranger", e.farm, "no-such-field")
		require.ErrorIs(t, existing, core.ErrPermissionDenied)
		require.ErrorIs(t, missing, core.ErrPermissionDenied)
		assert.Equal(t, missing.Error(), existing.Error())
	})

	t.Run("field of another farm", func(t *testing.T) {
		other, err := e.svc.CreateFarm(ctx, "owner", core.FarmInput{Name: "Elders"})
		require.NoError(t, err)
		_, err = e.loader.Field(ctx, "owner", other.ID, e.wheat)
		require.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestLoader_Timeframe(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	y2024, y2025 := calendar.Year(2024), calendar.Year(2025)
	all, err := calendar.Parse("all")
	require.NoError(t, err)

	fields, err := e.loader.Fields(ctx, "owner", e.farm, y2024)
	require.NoError(t, err)
	require.Len(t, fields.Items, 1)
	assert.Equal(t, e.wheat, fields.Items[0].ID)

	fields, err = e.loader.Fields(ctx, "owner", e.farm, y2025)
	require.NoError(t, err)
	assert.Len(t, fields.Items, 2)

	cults, err := e.loader.Cultivations(ctx, "owner", e.farm, e.wheat, y2024)
	require.NoError(t, err)
	require.Len(t, cults.Items, 1)
	assert.Equal(t, "nl_233", cults.Items[0].CatalogueID)

	cults, err = e.loader.Cultivations(ctx, "owner", e.farm, e.wheat, all)
	require.NoError(t, err)
	assert.Len(t, cults.Items, 2)

	apps, err := e.loader.FertilizerApplications(ctx, "owner", e.farm, e.wheat, y2025)
	require.NoError(t, err)
	require.Len(t, apps.Items, 1)
	assert.Equal(t, date(2025, 3, 1), apps.Items[0].Date)

	soil, err := e.loader.SoilAnalyses(ctx, "owner", e.farm, e.wheat, y2025)
	require.NoError(t, err)
	assert.Empty(t, soil.Items)
	soil, err = e.loader.SoilAnalyses(ctx, "owner", e.farm, e.wheat, y2024)
	require.NoError(t, err)
	assert.Len(t, soil.Items, 1)
}

func TestLoader_CultivationPlan(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	plan, err := e.loader.CultivationPlan(context.Background(), "owner", e.farm, calendar.Year(2025))
	require.NoError(t, err)
	require.Len(t, plan.Items, 2)

	assert.Equal(t, "nl_265", plan.Items[0].CatalogueID)
	assert.Equal(t, "nl_259", plan.Items[1].CatalogueID)
	require.Len(t, plan.Items[1].Fields, 1)
	assert.Equal(t, e.wheat, plan.Items[1].Fields[0].FieldID)
	assert.Greater(t, plan.Items[1].TotalArea, 30.0)
}

func TestPage_MarshalJSON(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	page, err := e.loader.Fertilizers(context.Background(), "owner", e.farm)
	require.NoError(t, err)
	raw, err := json.Marshal(page)
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.JSONEq(t, `"`+e.farm+`"`, string(got["b_id_farm"]))
	assert.NotContains(t, got, "calendar")
	assert.NotContains(t, got, "b_id")
	assert.Contains(t, got, "fertilizers")

	empty, err := json.Marshal(loader.Page[core.Field]{FarmID: "f1", Calendar: "2025", Key: "fields"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b_id_farm":"f1","calendar":"2025","fields":[]}`, string(empty))
}
