package core

import "time"

// Principal is a user account.
type Principal struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Account links a principal to an external identity provider.
type Account struct {
	Provider       string
	ProviderUserID string
	PrincipalID    string
	CreatedAt      time.Time
}

// Verification is a pending magic-link sign-in. Only the token hash is
// stored.
type Verification struct {
	TokenHash  string
	Email      string
	RedirectTo string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

type Farm struct {
	ID         string    `json:"b_id_farm"`
	Name       string    `json:"b_name_farm"`
	BusinessID string    `json:"b_businessid_farm,omitempty"`
	Address    string    `json:"b_address_farm,omitempty"`
	PostalCode string    `json:"b_postalcode_farm,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// FarmWithRole is a farm as seen by one principal.
type FarmWithRole struct {
	Farm
	Role Role `json:"role"`
}

// AcquiringMethod describes how a farm holds a field.
type AcquiringMethod string

const (
	AcquiringOwner   AcquiringMethod = "owner"
	AcquiringLease   AcquiringMethod = "lease"
	AcquiringUnknown AcquiringMethod = "unknown"
)

func (m AcquiringMethod) Valid() bool {
	switch m {
	case AcquiringOwner, AcquiringLease, AcquiringUnknown:
		return true
	}
	return false
}

// Field is a parcel acquired by one farm from Start until End.
type Field struct {
	ID              string          `json:"b_id"`
	FarmID          string          `json:"b_id_farm"`
	Name            string          `json:"b_name"`
	Geometry        string          `json:"b_geometry"`
	SourceID        string          `json:"b_id_source,omitempty"`
	Area            *float64        `json:"b_area"`
	Start           time.Time       `json:"b_start"`
	End             *time.Time      `json:"b_end"`
	AcquiringMethod AcquiringMethod `json:"b_acquiring_method"`
}

type CultivationCatalogueEntry struct {
	ID        string `json:"b_lu_catalogue" yaml:"b_lu_catalogue"`
	Source    string `json:"b_lu_source" yaml:"b_lu_source"`
	Name      string `json:"b_lu_name" yaml:"b_lu_name"`
	NameEN    string `json:"b_lu_name_en" yaml:"b_lu_name_en"`
	HCat3     string `json:"b_lu_hcat3" yaml:"b_lu_hcat3"`
	HCat3Name string `json:"b_lu_hcat3_name" yaml:"b_lu_hcat3_name"`
	Hash      string `json:"-" yaml:"-"`
}

// Cultivation is a crop grown on a field, joined with its catalogue entry.
type Cultivation struct {
	ID          string     `json:"b_lu"`
	CatalogueID string     `json:"b_lu_catalogue"`
	FieldID     string     `json:"b_id"`
	Start       time.Time  `json:"b_lu_start"`
	End         *time.Time `json:"b_lu_end"`
	Name        string     `json:"b_lu_name"`
	NameEN      string     `json:"b_lu_name_en"`
	HCat3       string     `json:"b_lu_hcat3"`
}

// FertilizerType groups fertilizers by origin.
type FertilizerType string

const (
	FertilizerManure  FertilizerType = "manure"
	FertilizerMineral FertilizerType = "mineral"
	FertilizerCompost FertilizerType = "compost"
)

func (t FertilizerType) Valid() bool {
	switch t {
	case FertilizerManure, FertilizerMineral, FertilizerCompost:
		return true
	}
	return false
}

// FertilizerCatalogueEntry holds product properties. Contents are in g/kg.
type FertilizerCatalogueEntry struct {
	ID     string         `json:"p_id_catalogue" yaml:"p_id_catalogue"`
	Source string         `json:"p_source" yaml:"p_source"`
	NameNL string         `json:"p_name_nl" yaml:"p_name_nl"`
	NameEN string         `json:"p_name_en" yaml:"p_name_en"`
	Type   FertilizerType `json:"p_type" yaml:"p_type"`
	DM     *float64       `json:"p_dm" yaml:"p_dm"`
	OM     *float64       `json:"p_om" yaml:"p_om"`
	NRt    *float64       `json:"p_n_rt" yaml:"p_n_rt"`
	PRt    *float64       `json:"p_p_rt" yaml:"p_p_rt"`
	KRt    *float64       `json:"p_k_rt" yaml:"p_k_rt"`
	Hash   string         `json:"-" yaml:"-"`
}

// Fertilizer is a product acquired by a farm, joined with its catalogue
// entry.
type Fertilizer struct {
	ID              string    `json:"p_id"`
	CatalogueID     string    `json:"p_id_catalogue"`
	FarmID          string    `json:"b_id_farm"`
	AcquiringAmount *float64  `json:"p_acquiring_amount"`
	AcquiringDate   time.Time `json:"p_acquiring_date"`

	FertilizerCatalogueEntry
}

// FertilizerApplication is a dose of a fertilizer on a field, in kg/ha.
type FertilizerApplication struct {
	ID           string    `json:"p_app_id"`
	FieldID      string    `json:"b_id"`
	FertilizerID string    `json:"p_id"`
	Amount       float64   `json:"p_app_amount"`
	Method       string    `json:"p_app_method"`
	Date         time.Time `json:"p_app_date"`
	Name         string    `json:"p_name_nl"`
}

type SoilAnalysis struct {
	ID           string    `json:"a_id"`
	FieldID      string    `json:"b_id"`
	SamplingDate time.Time `json:"b_sampling_date"`
	Source       string    `json:"a_source"`
	SomLoi       *float64  `json:"a_som_loi"`
	PAl          *float64  `json:"a_p_al"`
	PCc          *float64  `json:"a_p_cc"`
	PhCc         *float64  `json:"a_ph_cc"`
	SoilType     string    `json:"b_soiltype_agr,omitempty"`
	Document     string    `json:"a_document,omitempty"`
}
