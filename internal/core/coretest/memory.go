// Package coretest provides an in-memory core.Repository for tests.
package coretest

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nmi-agro/fdm/internal/core"
)

type roleKey struct{ farm, principal string }

type accountKey struct{ provider, user string }

// Repository keeps farm data in process memory. The zero value is not
// usable; call New.
type Repository struct {
	mu sync.RWMutex

	principals    map[string]core.Principal
	accounts      map[accountKey]core.Account
	verifications map[string]core.Verification

	roles        map[roleKey]core.Role
	farms        map[string]core.Farm
	fields       map[string]core.Field
	cultivations map[string]core.Cultivation
	fertilizers  map[string]core.Fertilizer
	applications map[string]core.FertilizerApplication
	soil         map[string]core.SoilAnalysis

	cultivationCatalogue map[string]core.CultivationCatalogueEntry
	fertilizerCatalogue  map[string]core.FertilizerCatalogueEntry
}

var _ core.Repository = (*Repository)(nil)

// New returns an empty Repository.
func New() *Repository {
	return &Repository{
		principals:           make(map[string]core.Principal),
		accounts:             make(map[accountKey]core.Account),
		verifications:        make(map[string]core.Verification),
		roles:                make(map[roleKey]core.Role),
		farms:                make(map[string]core.Farm),
		fields:               make(map[string]core.Field),
		cultivations:         make(map[string]core.Cultivation),
		fertilizers:          make(map[string]core.Fertilizer),
		applications:         make(map[string]core.FertilizerApplication),
		soil:                 make(map[string]core.SoilAnalysis),
		cultivationCatalogue: make(map[string]core.CultivationCatalogueEntry),
		fertilizerCatalogue:  make(map[string]core.FertilizerCatalogueEntry),
	}
}

// AddPrincipal stores a principal with the given id and email and returns it.
func (r *Repository) AddPrincipal(id, email string) core.Principal {
	p := core.Principal{ID: id, Email: email, CreatedAt: time.Now().UTC()}
	r.mu.Lock()
	r.principals[id] = p
	r.mu.Unlock()
	return p
}

func get[K comparable, V any](mu *sync.RWMutex, m map[K]V, k K) (*V, error) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := m[k]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &v, nil
}

func del[K comparable, V any](mu *sync.RWMutex, m map[K]V, k K) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := m[k]; !ok {
		return core.ErrNotFound
	}
	delete(m, k)
	return nil
}

func filter[K comparable, V any](mu *sync.RWMutex, m map[K]V, keep func(V) bool, order func(a, b V) int) []V {
	mu.RLock()
	defer mu.RUnlock()
	var out []V
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, order)
	return out
}

// Principals

func (r *Repository) GetPrincipal(_ context.Context, id string) (*core.Principal, error) {
	return get(&r.mu, r.principals, id)
}

func (r *Repository) GetPrincipalByEmail(_ context.Context, email string) (*core.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.principals {
		if p.Email == email {
			return &p, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *Repository) CreatePrincipal(_ context.Context, p core.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.principals {
		if existing.ID == p.ID || existing.Email == p.Email {
			return core.ErrConflict
		}
	}
	r.principals[p.ID] = p
	return nil
}

func (r *Repository) UpdatePrincipal(_ context.Context, p core.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.principals[p.ID]; !ok {
		return core.ErrNotFound
	}
	r.principals[p.ID] = p
	return nil
}

func (r *Repository) GetAccount(_ context.Context, provider, providerUserID string) (*core.Account, error) {
	return get(&r.mu, r.accounts, accountKey{provider, providerUserID})
}

func (r *Repository) LinkAccount(_ context.Context, a core.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := accountKey{a.Provider, a.ProviderUserID}
	if _, ok := r.accounts[k]; !ok {
		r.accounts[k] = a
	}
	return nil
}

func (r *Repository) CreateVerification(_ context.Context, v core.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.verifications[v.TokenHash]; ok {
		return core.ErrConflict
	}
	r.verifications[v.TokenHash] = v
	return nil
}

func (r *Repository) ConsumeVerification(_ context.Context, tokenHash string, now time.Time) (*core.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.verifications[tokenHash]
	if !ok || !v.ExpiresAt.After(now) {
		return nil, core.ErrNotFound
	}
	delete(r.verifications, tokenHash)
	return &v, nil
}

func (r *Repository) DeleteExpiredVerifications(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, v := range r.verifications {
		if !v.ExpiresAt.After(before) {
			delete(r.verifications, k)
			n++
		}
	}
	return n, nil
}

// Roles and farms

func (r *Repository) GetRole(_ context.Context, farmID, principalID string) (core.Role, error) {
	role, err := get(&r.mu, r.roles, roleKey{farmID, principalID})
	if err != nil {
		return "", err
	}
	return *role, nil
}

func (r *Repository) GrantRole(_ context.Context, farmID, principalID string, role core.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.farms[farmID]; !ok {
		return core.ErrInvalidInput
	}
	r.roles[roleKey{farmID, principalID}] = role
	return nil
}

func (r *Repository) RevokeRole(_ context.Context, farmID, principalID string) error {
	return del(&r.mu, r.roles, roleKey{farmID, principalID})
}

func (r *Repository) CountOwners(_ context.Context, farmID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for k, role := range r.roles {
		if k.farm == farmID && role == core.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (r *Repository) ListFarms(_ context.Context, principalID string) ([]core.FarmWithRole, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.FarmWithRole
	for k, role := range r.roles {
		if k.principal != principalID {
			continue
		}
		if f, ok := r.farms[k.farm]; ok {
			out = append(out, core.FarmWithRole{Farm: f, Role: role})
		}
	}
	slices.SortFunc(out, func(a, b core.FarmWithRole) int {
		return cmp.Or(cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r *Repository) GetFarm(_ context.Context, farmID string) (*core.Farm, error) {
	return get(&r.mu, r.farms, farmID)
}

func (r *Repository) CreateFarm(_ context.Context, f core.Farm, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.farms[f.ID]; ok {
		return core.ErrConflict
	}
	r.farms[f.ID] = f
	r.roles[roleKey{f.ID, owner}] = core.RoleOwner
	return nil
}

func (r *Repository) UpdateFarm(_ context.Context, f core.Farm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.farms[f.ID]; !ok {
		return core.ErrNotFound
	}
	r.farms[f.ID] = f
	return nil
}

// Fields

func (r *Repository) ListFields(_ context.Context, farmID string) ([]core.Field, error) {
	return filter(&r.mu, r.fields,
		func(f core.Field) bool { return f.FarmID == farmID },
		func(a, b core.Field) int { return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID)) },
	), nil
}

func (r *Repository) GetField(_ context.Context, fieldID string) (*core.Field, error) {
	return get(&r.mu, r.fields, fieldID)
}

func (r *Repository) CreateField(_ context.Context, f core.Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.farms[f.FarmID]; !ok {
		return core.ErrInvalidInput
	}
	r.fields[f.ID] = f
	return nil
}

// DeleteField cascades to the field's cultivations, applications and
// soil analyses.
func (r *Repository) DeleteField(_ context.Context, fieldID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fields[fieldID]; !ok {
		return core.ErrNotFound
	}
	delete(r.fields, fieldID)
	for k, c := range r.cultivations {
		if c.FieldID == fieldID {
			delete(r.cultivations, k)
		}
	}
	for k, a := range r.applications {
		if a.FieldID == fieldID {
			delete(r.applications, k)
		}
	}
	for k, a := range r.soil {
		if a.FieldID == fieldID {
			delete(r.soil, k)
		}
	}
	return nil
}

// Cultivations

func (r *Repository) ListCultivations(_ context.Context, fieldIDs ...string) ([]core.Cultivation, error) {
	return filter(&r.mu, r.cultivations,
		func(c core.Cultivation) bool { return slices.Contains(fieldIDs, c.FieldID) },
		func(a, b core.Cultivation) int { return cmp.Or(a.Start.Compare(b.Start), cmp.Compare(a.ID, b.ID)) },
	), nil
}

func (r *Repository) GetCultivation(_ context.Context, id string) (*core.Cultivation, error) {
	return get(&r.mu, r.cultivations, id)
}

func (r *Repository) CreateCultivation(_ context.Context, c core.Cultivation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fields[c.FieldID]; !ok {
		return core.ErrInvalidInput
	}
	r.cultivations[c.ID] = c
	return nil
}

func (r *Repository) DeleteCultivation(_ context.Context, id string) error {
	return del(&r.mu, r.cultivations, id)
}

// Fertilizers

func (r *Repository) ListFertilizers(_ context.Context, farmID string) ([]core.Fertilizer, error) {
	return filter(&r.mu, r.fertilizers,
		func(f core.Fertilizer) bool { return f.FarmID == farmID },
		func(a, b core.Fertilizer) int {
			return cmp.Or(b.AcquiringDate.Compare(a.AcquiringDate), cmp.Compare(a.ID, b.ID))
		},
	), nil
}

func (r *Repository) GetFertilizer(_ context.Context, id string) (*core.Fertilizer, error) {
	return get(&r.mu, r.fertilizers, id)
}

func (r *Repository) CreateFertilizer(_ context.Context, f core.Fertilizer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.farms[f.FarmID]; !ok {
		return core.ErrInvalidInput
	}
	r.fertilizers[f.ID] = f
	return nil
}

func (r *Repository) DeleteFertilizer(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fertilizers[id]; !ok {
		return core.ErrNotFound
	}
	delete(r.fertilizers, id)
	for k, a := range r.applications {
		if a.FertilizerID == id {
			delete(r.applications, k)
		}
	}
	return nil
}

func (r *Repository) ListApplications(_ context.Context, fieldID string) ([]core.FertilizerApplication, error) {
	return filter(&r.mu, r.applications,
		func(a core.FertilizerApplication) bool { return a.FieldID == fieldID },
		func(a, b core.FertilizerApplication) int {
			return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.ID, b.ID))
		},
	), nil
}

func (r *Repository) GetApplication(_ context.Context, id string) (*core.FertilizerApplication, error) {
	return get(&r.mu, r.applications, id)
}

func (r *Repository) CreateApplication(_ context.Context, a core.FertilizerApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applications[a.ID] = a
	return nil
}

func (r *Repository) DeleteApplication(_ context.Context, id string) error {
	return del(&r.mu, r.applications, id)
}

// Soil analyses

func (r *Repository) ListSoilAnalyses(_ context.Context, fieldID string) ([]core.SoilAnalysis, error) {
	return filter(&r.mu, r.soil,
		func(a core.SoilAnalysis) bool { return a.FieldID == fieldID },
		func(a, b core.SoilAnalysis) int {
			return cmp.Or(b.SamplingDate.Compare(a.SamplingDate), cmp.Compare(a.ID, b.ID))
		},
	), nil
}

func (r *Repository) GetSoilAnalysis(_ context.Context, id string) (*core.SoilAnalysis, error) {
	return get(&r.mu, r.soil, id)
}

func (r *Repository) CreateSoilAnalysis(_ context.Context, a core.SoilAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.soil[a.ID] = a
	return nil
}

func (r *Repository) DeleteSoilAnalysis(_ context.Context, id string) error {
	return del(&r.mu, r.soil, id)
}

// Catalogues

func (r *Repository) UpsertCultivationCatalogue(_ context.Context, entries []core.CultivationCatalogueEntry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range entries {
		if prev, ok := r.cultivationCatalogue[e.ID]; ok && prev.Hash == e.Hash {
			continue
		}
		r.cultivationCatalogue[e.ID] = e
		n++
	}
	return n, nil
}

func (r *Repository) ListCultivationCatalogue(_ context.Context) ([]core.CultivationCatalogueEntry, error) {
	return filter(&r.mu, r.cultivationCatalogue,
		func(core.CultivationCatalogueEntry) bool { return true },
		func(a, b core.CultivationCatalogueEntry) int {
			return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
		},
	), nil
}

func (r *Repository) GetCultivationCatalogue(_ context.Context, id string) (*core.CultivationCatalogueEntry, error) {
	return get(&r.mu, r.cultivationCatalogue, id)
}

func (r *Repository) UpsertFertilizerCatalogue(_ context.Context, entries []core.FertilizerCatalogueEntry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range entries {
		if prev, ok := r.fertilizerCatalogue[e.ID]; ok && prev.Hash == e.Hash {
			continue
		}
		r.fertilizerCatalogue[e.ID] = e
		n++
	}
	return n, nil
}

func (r *Repository) ListFertilizerCatalogue(_ context.Context) ([]core.FertilizerCatalogueEntry, error) {
	return filter(&r.mu, r.fertilizerCatalogue,
		func(core.FertilizerCatalogueEntry) bool { return true },
		func(a, b core.FertilizerCatalogueEntry) int {
			return cmp.Or(cmp.Compare(a.NameNL, b.NameNL), cmp.Compare(a.ID, b.ID))
		},
	), nil
}

func (r *Repository) GetFertilizerCatalogue(_ context.Context, id string) (*core.FertilizerCatalogueEntry, error) {
	return get(&r.mu, r.fertilizerCatalogue, id)
}
