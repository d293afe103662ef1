package core

import (
	"context"
	"time"
)

// Repository is the persistence boundary. It performs no authorization;
// Service checks roles before calling it. Lookups of missing rows return
// ErrNotFound.
type Repository interface {
	PrincipalStore
	CatalogueStore

	GetRole(ctx context.Context, farmID, principalID string) (Role, error)
	GrantRole(ctx context.Context, farmID, principalID string, role Role) error
	RevokeRole(ctx context.Context, farmID, principalID string) error
	CountOwners(ctx context.Context, farmID string) (int, error)

	ListFarms(ctx context.Context, principalID string) ([]FarmWithRole, error)
	GetFarm(ctx context.Context, farmID string) (*Farm, error)
	CreateFarm(ctx context.Context, f Farm, owner string) error
	UpdateFarm(ctx context.Context, f Farm) error

	ListFields(ctx context.Context, farmID string) ([]Field, error)
	GetField(ctx context.Context, fieldID string) (*Field, error)
	CreateField(ctx context.Context, f Field) error
	DeleteField(ctx context.Context, fieldID string) error

	// ListCultivations returns cultivations on the given fields joined with
	// the catalogue, ordered by start date.
	ListCultivations(ctx context.Context, fieldIDs ...string) ([]Cultivation, error)
	GetCultivation(ctx context.Context, cultivationID string) (*Cultivation, error)
	CreateCultivation(ctx context.Context, c Cultivation) error
	DeleteCultivation(ctx context.Context, cultivationID string) error

	ListFertilizers(ctx context.Context, farmID string) ([]Fertilizer, error)
	GetFertilizer(ctx context.Context, fertilizerID string) (*Fertilizer, error)
	CreateFertilizer(ctx context.Context, f Fertilizer) error
	DeleteFertilizer(ctx context.Context, fertilizerID string) error

	ListApplications(ctx context.Context, fieldID string) ([]FertilizerApplication, error)
	GetApplication(ctx context.Context, applicationID string) (*FertilizerApplication, error)
	CreateApplication(ctx context.Context, a FertilizerApplication) error
	DeleteApplication(ctx context.Context, applicationID string) error

	ListSoilAnalyses(ctx context.Context, fieldID string) ([]SoilAnalysis, error)
	GetSoilAnalysis(ctx context.Context, analysisID string) (*SoilAnalysis, error)
	CreateSoilAnalysis(ctx context.Context, a SoilAnalysis) error
	DeleteSoilAnalysis(ctx context.Context, analysisID string) error
}

// PrincipalStore persists principals and their sign-in credentials.
type PrincipalStore interface {
	GetPrincipal(ctx context.Context, principalID string) (*Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	CreatePrincipal(ctx context.Context, p Principal) error
	UpdatePrincipal(ctx context.Context, p Principal) error

	GetAccount(ctx context.Context, provider, providerUserID string) (*Account, error)
	LinkAccount(ctx context.Context, a Account) error

	CreateVerification(ctx context.Context, v Verification) error
	// ConsumeVerification deletes and returns the verification with the
	// given hash. Expired rows yield ErrNotFound.
	ConsumeVerification(ctx context.Context, tokenHash string, now time.Time) (*Verification, error)
	DeleteExpiredVerifications(ctx context.Context, before time.Time) (int64, error)
}

// CatalogueStore persists the reference catalogues.
type CatalogueStore interface {
	// UpsertCultivationCatalogue inserts or updates entries whose hash
	// changed and returns how many rows were written.
	UpsertCultivationCatalogue(ctx context.Context, entries []CultivationCatalogueEntry) (int, error)
	ListCultivationCatalogue(ctx context.Context) ([]CultivationCatalogueEntry, error)
	GetCultivationCatalogue(ctx context.Context, id string) (*CultivationCatalogueEntry, error)

	UpsertFertilizerCatalogue(ctx context.Context, entries []FertilizerCatalogueEntry) (int, error)
	ListFertilizerCatalogue(ctx context.Context) ([]FertilizerCatalogueEntry, error)
	GetFertilizerCatalogue(ctx context.Context, id string) (*FertilizerCatalogueEntry, error)
}
