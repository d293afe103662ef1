package loader

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nmi-agro/fdm/internal/calendar"
	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/pkg/logger"
)

var (
	ErrMissingFarmID  = errors.New("loader: b_id_farm is required")
	ErrMissingFieldID = errors.New("loader: b_id is required")
)

// Store is the authorized data access the loader builds on. core.Service
// implements it.
type Store interface {
	Farms(ctx context.Context, principalID string) ([]core.FarmWithRole, error)
	Farm(ctx context.Context, principalID, farmID string) (*core.FarmWithRole, error)
	Fields(ctx context.Context, principalID, farmID string) ([]core.Field, error)
	Field(ctx context.Context, principalID, fieldID string) (*core.Field, error)
	Cultivations(ctx context.Context, principalID, fieldID string) ([]core.Cultivation, error)
	FarmCultivations(ctx context.Context, principalID, farmID string) ([]core.Cultivation, error)
	Fertilizers(ctx context.Context, principalID, farmID string) ([]core.Fertilizer, error)
	Applications(ctx context.Context, principalID, fieldID string) ([]core.FertilizerApplication, error)
	SoilAnalyses(ctx context.Context, principalID, fieldID string) ([]core.SoilAnalysis, error)
}

// Loader validates route parameters, delegates to Store and shapes the
// results for the farm pages.
type Loader struct {
	store  Store
	logger *slog.Logger
}

// New returns a Loader on store. A nil logger discards output.
func New(store Store, log *slog.Logger) *Loader {
	if log == nil {
		log = logger.NewNope()
	}
	return &Loader{store: store, logger: log}
}

// Page is a farm-scoped collection. It encodes as
// {"b_id_farm": ..., "b_id": ..., "calendar": ..., "<key>": [...]}, with
// b_id and calendar omitted when empty.
type Page[T any] struct {
	FarmID   string
	FieldID  string
	Calendar string
	Key      string
	Items    []T
}

func (p Page[T]) MarshalJSON() ([]byte, error) {
	m := map[string]any{"b_id_farm": p.FarmID}
	if p.FieldID != "" {
		m["b_id"] = p.FieldID
	}
	if p.Calendar != "" {
		m["calendar"] = p.Calendar
	}
	items := p.Items
	if items == nil {
		items = []T{}
	}
	m[p.Key] = items
	return json.Marshal(m)
}

func page[T any](farmID, fieldID string, tf *calendar.Timeframe, key string, items []T) Page[T] {
	p := Page[T]{FarmID: farmID, FieldID: fieldID, Key: key, Items: items}
	if tf != nil {
		p.Calendar = tf.Token()
	}
	return p
}

// Farms lists the farms the principal holds a role on.
func (l *Loader) Farms(ctx context.Context, principalID string) ([]core.FarmWithRole, error) {
	return l.store.Farms(ctx, principalID)
}

// Farm returns one farm with the principal's role.
func (l *Loader) Farm(ctx context.Context, principalID, farmID string) (*core.FarmWithRole, error) {
	if farmID == "" {
		return nil, ErrMissingFarmID
	}
	return l.store.Farm(ctx, principalID, farmID)
}

// Fields lists the farm's fields whose acquiring period overlaps tf.
func (l *Loader) Fields(ctx context.Context, principalID, farmID string, tf calendar.Timeframe) (Page[core.Field], error) {
	if farmID == "" {
		return Page[core.Field]{}, ErrMissingFarmID
	}
	fields, err := l.store.Fields(ctx, principalID, farmID)
	if err != nil {
		return Page[core.Field]{}, err
	}
	fields = keep(fields, func(f core.Field) bool { return tf.Overlaps(f.Start, f.End) })
	return page(farmID, "", &tf, "fields", fields), nil
}

// Field returns a field of farmID. The farm is authorized first, so a
// principal without a role on it cannot tell which fields exist. A field
// of another farm is reported as not found.
func (l *Loader) Field(ctx context.Context, principalID, farmID, fieldID string) (*core.Field, error) {
	if farmID == "" {
		return nil, ErrMissingFarmID
	}
	if fieldID == "" {
		return nil, ErrMissingFieldID
	}
	if _, err := l.store.Farm(ctx, principalID, farmID); err != nil {
		return nil, err
	}
	f, err := l.store.Field(ctx, principalID, fieldID)
	if err != nil {
		return nil, err
	}
	if f.FarmID != farmID {
		l.logger.WarnContext(ctx, "field requested through another farm",
			slog.String("b_id", fieldID),
			slog.String("b_id_farm", farmID),
		)
		return nil, core.ErrNotFound
	}
	return f, nil
}

// Cultivations lists the cultivations on a field that are active in tf.
func (l *Loader) Cultivations(ctx context.Context, principalID, farmID, fieldID string, tf calendar.Timeframe) (Page[core.Cultivation], error) {
	if _, err := l.Field(ctx, principalID, farmID, fieldID); err != nil {
		return Page[core.Cultivation]{}, err
	}
	items, err := l.store.Cultivations(ctx, principalID, fieldID)
	if err != nil {
		return Page[core.Cultivation]{}, err
	}
	items = keep(items, func(c core.Cultivation) bool { return tf.Overlaps(c.Start, c.End) })
	return page(farmID, fieldID, &tf, "cultivations", items), nil
}

// PlanField is one field growing a crop of the cultivation plan.
type PlanField struct {
	FieldID       string     `json:"b_id"`
	FieldName     string     `json:"b_name"`
	Area          *float64   `json:"b_area"`
	CultivationID string     `json:"b_lu"`
	Start         time.Time  `json:"b_lu_start"`
	End           *time.Time `json:"b_lu_end"`
}

// PlanEntry groups the fields growing one catalogue crop.
type PlanEntry struct {
	CatalogueID string      `json:"b_lu_catalogue"`
	Name        string      `json:"b_lu_name"`
	NameEN      string      `json:"b_lu_name_en"`
	TotalArea   float64     `json:"b_area_total"`
	Fields      []PlanField `json:"fields"`
}

// CultivationPlan groups the farm's cultivations active in tf by catalogue
// crop, listing the fields each grows on. Entries are sorted by name.
func (l *Loader) CultivationPlan(ctx context.Context, principalID, farmID string, tf calendar.Timeframe) (Page[PlanEntry], error) {
	if farmID == "" {
		return Page[PlanEntry]{}, ErrMissingFarmID
	}

	var (
		fields       []core.Field
		cultivations []core.Cultivation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		fields, err = l.store.Fields(gctx, principalID, farmID)
		return err
	})
	g.Go(func() (err error) {
		cultivations, err = l.store.FarmCultivations(gctx, principalID, farmID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Page[PlanEntry]{}, err
	}

	byID := make(map[string]core.Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}

	index := map[string]int{}
	var plan []PlanEntry
	for _, c := range cultivations {
		if !tf.Overlaps(c.Start, c.End) {
			continue
		}
		f, ok := byID[c.FieldID]
		if !ok {
			continue
		}
		i, ok := index[c.CatalogueID]
		if !ok {
			i = len(plan)
			index[c.CatalogueID] = i
			plan = append(plan, PlanEntry{CatalogueID: c.CatalogueID, Name: c.Name, NameEN: c.NameEN})
		}
		plan[i].Fields = append(plan[i].Fields, PlanField{
			FieldID:       f.ID,
			FieldName:     f.Name,
			Area:          f.Area,
			CultivationID: c.ID,
			Start:         c.Start,
			End:           c.End,
		})
		if f.Area != nil {
			plan[i].TotalArea += *f.Area
		}
	}

	slices.SortFunc(plan, func(a, b PlanEntry) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.CatalogueID, b.CatalogueID))
	})
	for i := range plan {
		slices.SortFunc(plan[i].Fields, func(a, b PlanField) int {
			return cmp.Or(cmp.Compare(a.FieldName, b.FieldName), a.Start.Compare(b.Start))
		})
	}
	return page(farmID, "", &tf, "cultivation_plan", plan), nil
}

// Fertilizers lists the fertilizers the farm acquired. A farm without
// fertilizers yields an empty collection.
func (l *Loader) Fertilizers(ctx context.Context, principalID, farmID string) (Page[core.Fertilizer], error) {
	if farmID == "" {
		return Page[core.Fertilizer]{}, ErrMissingFarmID
	}
	items, err := l.store.Fertilizers(ctx, principalID, farmID)
	if err != nil {
		return Page[core.Fertilizer]{}, err
	}
	return page(farmID, "", nil, "fertilizers", items), nil
}

// FertilizerApplications lists the applications on a field dated in tf.
func (l *Loader) FertilizerApplications(ctx context.Context, principalID, farmID, fieldID string, tf calendar.Timeframe) (Page[core.FertilizerApplication], error) {
	if _, err := l.Field(ctx, principalID, farmID, fieldID); err != nil {
		return Page[core.FertilizerApplication]{}, err
	}
	items, err := l.store.Applications(ctx, principalID, fieldID)
	if err != nil {
		return Page[core.FertilizerApplication]{}, err
	}
	items = keep(items, func(a core.FertilizerApplication) bool { return tf.Contains(a.Date) })
	return page(farmID, fieldID, &tf, "fertilizer_applications", items), nil
}

// SoilAnalyses lists the soil analyses of a field sampled in tf.
func (l *Loader) SoilAnalyses(ctx context.Context, principalID, farmID, fieldID string, tf calendar.Timeframe) (Page[core.SoilAnalysis], error) {
	if _, err := l.Field(ctx, principalID, farmID, fieldID); err != nil {
		return Page[core.SoilAnalysis]{}, err
	}
	items, err := l.store.SoilAnalyses(ctx, principalID, fieldID)
	if err != nil {
		return Page[core.SoilAnalysis]{}, err
	}
	items = keep(items, func(a core.SoilAnalysis) bool { return tf.Contains(a.SamplingDate) })
	return page(farmID, fieldID, &tf, "soil_analyses", items), nil
}

func keep[T any](items []T, fn func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if fn(it) {
			out = append(out, it)
		}
	}
	return out
}
