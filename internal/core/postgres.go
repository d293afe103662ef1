package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nmi-agro/fdm/pkg/db"
)

// PostgresRepository implements Repository on a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a repository on pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

// pgErr maps driver errors onto the package sentinels.
func pgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, op)
		case "23503", "23514":
			return fmt.Errorf("%w: %s: %s", ErrInvalidInput, op, pe.ConstraintName)
		}
	}
	return fmt.Errorf("core: %s: %w", op, err)
}

// execOne runs a statement that must affect exactly one row.
func (r *PostgresRepository) execOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return pgErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Principals

const principalColumns = `id, email, name, image, created_at`

func scanPrincipal(row pgx.Row) (*Principal, error) {
	var p Principal
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Image, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) GetPrincipal(ctx context.Context, principalID string) (*Principal, error) {
	p, err := scanPrincipal(r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM fdm_authn.principal WHERE id = $1`, principalID))
	return p, pgErr("get principal", err)
}

func (r *PostgresRepository) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	p, err := scanPrincipal(r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM fdm_authn.principal WHERE email = $1`, email))
	return p, pgErr("get principal by email", err)
}

func (r *PostgresRepository) CreatePrincipal(ctx context.Context, p Principal) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fdm_authn.principal (id, email, name, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		p.ID, p.Email, p.Name, p.Image, p.CreatedAt)
	return pgErr("create principal", err)
}

func (r *PostgresRepository) UpdatePrincipal(ctx context.Context, p Principal) error {
	return r.execOne(ctx, "update principal", `
		UPDATE fdm_authn.principal SET name = $2, image = $3, updated_at = now()
		WHERE id = $1`, p.ID, p.Name, p.Image)
}

func (r *PostgresRepository) GetAccount(ctx context.Context, provider, providerUserID string) (*Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `
		SELECT provider, provider_user_id, principal_id, created_at
		FROM fdm_authn.account WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&a.Provider, &a.ProviderUserID, &a.PrincipalID, &a.CreatedAt)
	if err != nil {
		return nil, pgErr("get account", err)
	}
	return &a, nil
}

func (r *PostgresRepository) LinkAccount(ctx context.Context, a Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fdm_authn.account (provider, provider_user_id, principal_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_user_id) DO NOTHING`,
		a.Provider, a.ProviderUserID, a.PrincipalID, a.CreatedAt)
	return pgErr("link account", err)
}

func (r *PostgresRepository) CreateVerification(ctx context.Context, v Verification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fdm_authn.verification (token_hash, email, redirect_to, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		v.TokenHash, v.Email, v.RedirectTo, v.ExpiresAt, v.CreatedAt)
	return pgErr("create verification", err)
}

func (r *PostgresRepository) ConsumeVerification(ctx context.Context, tokenHash string, now time.Time) (*Verification, error) {
	var v Verification
	err := r.pool.QueryRow(ctx, `
		DELETE FROM fdm_authn.verification
		WHERE token_hash = $1 AND expires_at > $2
		RETURNING token_hash, email, redirect_to, expires_at, created_at`,
		tokenHash, now,
	).Scan(&v.TokenHash, &v.Email, &v.RedirectTo, &v.ExpiresAt, &v.CreatedAt)
	if err != nil {
		return nil, pgErr("consume verification", err)
	}
	return &v, nil
}

func (r *PostgresRepository) DeleteExpiredVerifications(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM fdm_authn.verification WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, pgErr("delete expired verifications", err)
	}
	return tag.RowsAffected(), nil
}

// Roles and farms

func (r *PostgresRepository) GetRole(ctx context.Context, farmID, principalID string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT role FROM fdm.farm_roles WHERE b_id_farm = $1 AND principal_id = $2`,
		farmID, principalID,
	).Scan(&role)
	return role, pgErr("get role", err)
}

func (r *PostgresRepository) GrantRole(ctx context.Context, farmID, principalID string, role Role) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fdm.farm_roles (b_id_farm, principal_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (b_id_farm, principal_id) DO UPDATE SET role = EXCLUDED.role`,
		farmID, principalID, role)
	return pgErr("grant role", err)
}

func (r *PostgresRepository) RevokeRole(ctx context.Context, farmID, principalID string) error {
	return r.execOne(ctx, "revoke role",
		`DELETE FROM fdm.farm_roles WHERE b_id_farm = $1 AND principal_id = $2`, farmID, principalID)
}

func (r *PostgresRepository) CountOwners(ctx context.Context, farmID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM fdm.farm_roles WHERE b_id_farm = $1 AND role = 'owner'`, farmID,
	).Scan(&n)
	return n, pgErr("count owners", err)
}

const farmColumns = `f.b_id_farm, f.b_name_farm, f.b_businessid_farm, f.b_address_farm, f.b_postalcode_farm, f.created_at`

func (r *PostgresRepository) ListFarms(ctx context.Context, principalID string) ([]FarmWithRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+farmColumns+`, fr.role
		FROM fdm.farms f JOIN fdm.farm_roles fr ON fr.b_id_farm = f.b_id_farm
		WHERE fr.principal_id = $1
		ORDER BY lower(f.b_name_farm), f.b_id_farm`, principalID)
	if err != nil {
		return nil, pgErr("list farms", err)
	}
	farms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (FarmWithRole, error) {
		var f FarmWithRole
		err := row.Scan(&f.ID, &f.Name, &f.BusinessID, &f.Address, &f.PostalCode, &f.CreatedAt, &f.Role)
		return f, err
	})
	return farms, pgErr("list farms", err)
}

func (r *PostgresRepository) GetFarm(ctx context.Context, farmID string) (*Farm, error) {
	var f Farm
	err := r.pool.QueryRow(ctx, `SELECT `+farmColumns+` FROM fdm.farms f WHERE f.b_id_farm = $1`, farmID).
		Scan(&f.ID, &f.Name, &f.BusinessID, &f.Address, &f.PostalCode, &f.CreatedAt)
	if err != nil {
		return nil, pgErr("get farm", err)
	}
	return &f, nil
}

// CreateFarm inserts the farm and its owner role in one transaction.
func (r *PostgresRepository) CreateFarm(ctx context.Context, f Farm, owner string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO fdm.farms (b_id_farm, b_name_farm, b_businessid_farm, b_address_farm, b_postalcode_farm, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			f.ID, f.Name, f.BusinessID, f.Address, f.PostalCode, f.CreatedAt,
		); err != nil {
			return pgErr("create farm", err)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO fdm.farm_roles (b_id_farm, principal_id, role) VALUES ($1, $2, 'owner')`,
			f.ID, owner)
		return pgErr("grant owner", err)
	})
}

func (r *PostgresRepository) UpdateFarm(ctx context.Context, f Farm) error {
	return r.execOne(ctx, "update farm", `
		UPDATE fdm.farms
		SET b_name_farm = $2, b_businessid_farm = $3, b_address_farm = $4, b_postalcode_farm = $5, updated_at = now()
		WHERE b_id_farm = $1`,
		f.ID, f.Name, f.BusinessID, f.Address, f.PostalCode)
}

// Fields

const fieldSelect = `
	SELECT f.b_id, fa.b_id_farm, f.b_name, f.b_geometry, f.b_id_source, f.b_area,
	       fa.b_start, fa.b_end, fa.b_acquiring_method
	FROM fdm.fields f JOIN fdm.field_acquiring fa ON fa.b_id = f.b_id`

func scanField(row pgx.Row) (Field, error) {
	var f Field
	err := row.Scan(&f.ID, &f.FarmID, &f.Name, &f.Geometry, &f.SourceID, &f.Area,
		&f.Start, &f.End, &f.AcquiringMethod)
	return f, err
}

func (r *PostgresRepository) ListFields(ctx context.Context, farmID string) ([]Field, error) {
	rows, err := r.pool.Query(ctx, fieldSelect+` WHERE fa.b_id_farm = $1 ORDER BY f.b_name`, farmID)
	if err != nil {
		return nil, pgErr("list fields", err)
	}
	fields, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Field, error) { return scanField(row) })
	return fields, pgErr("list fields", err)
}

func (r *PostgresRepository) GetField(ctx context.Context, fieldID string) (*Field, error) {
	f, err := scanField(r.pool.QueryRow(ctx, fieldSelect+` WHERE f.b_id = $1`, fieldID))
	if err != nil {
		return nil, pgErr("get field", err)
	}
	return &f, nil
}

func (r *PostgresRepository) CreateField(ctx context.Context, f Field) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO fdm.fields (b_id, b_name, b_geometry, b_id_source, b_area)
			VALUES ($1, $2, $3, $4, $5)`,
			f.ID, f.Name, f.Geometry, f.SourceID, f.Area,
		); err != nil {
			return pgErr("create field", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO fdm.field_acquiring (b_id, b_id_farm, b_start, b_end, b_acquiring_method)
			VALUES ($1, $2, $3, $4, $5)`,
			f.ID, f.FarmID, f.Start, f.End, f.AcquiringMethod)
		return pgErr("create field acquiring", err)
	})
}

func (r *PostgresRepository) DeleteField(ctx context.Context, fieldID string) error {
	return r.execOne(ctx, "delete field", `DELETE FROM fdm.fields WHERE b_id = $1`, fieldID)
}

// Cultivations

const cultivationSelect = `
	SELECT c.b_lu, c.b_lu_catalogue, c.b_id, c.b_lu_start, c.b_lu_end,
	       cc.b_lu_name, cc.b_lu_name_en, cc.b_lu_hcat3
	FROM fdm.cultivations c JOIN fdm.cultivations_catalogue cc ON cc.b_lu_catalogue = c.b_lu_catalogue`

func scanCultivation(row pgx.Row) (Cultivation, error) {
	var c Cultivation
	err := row.Scan(&c.ID, &c.CatalogueID, &c.FieldID, &c.Start, &c.End, &c.Name, &c.NameEN, &c.HCat3)
	return c, err
}

func (r *PostgresRepository) ListCultivations(ctx context.Context, fieldIDs ...string) ([]Cultivation, error) {
	rows, err := r.pool.Query(ctx, cultivationSelect+`
		WHERE c.b_id = ANY($1) ORDER BY c.b_lu_start, c.b_lu`, fieldIDs)
	if err != nil {
		return nil, pgErr("list cultivations", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Cultivation, error) { return scanCultivation(row) })
	return out, pgErr("list cultivations", err)
}

func (r *PostgresRepository) GetCultivation(ctx context.Context, cultivationID string) (*Cultivation, error) {
	c, err := scanCultivation(r.pool.QueryRow(ctx, cultivationSelect+` WHERE c.b_lu = $1`, cultivationID))
	if err != nil {
		return nil, pgErr("get cultivation", err)
	}
	return &c, nil
}

func (r *PostgresRepository) CreateCultivation(ctx context.Context, c Cultivation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fdm.cultivations (b_lu, b_lu_catalogue, b_id, b_lu_start, b_lu_end)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.CatalogueID, c.FieldID, c.Start, c.End)
	return pgErr("create cultivation", err)
}

func (r *PostgresRepository) DeleteCultivation(ctx context.Context, cultivationID string) error {
	return r.execOne(ctx, "delete cultivation", `DELETE FROM fdm.cultivations WHERE b_lu = $1`, cultivationID)
}

// Fertilizers

const fertilizerSelect = `
	SELECT f.p_id, f.b_id_farm, f.p_acquiring_amount, f.p_acquiring_date, ` + fertilizerCatalogueColumns + `
	FROM fdm.fertilizers f JOIN fdm.fertilizers_catalogue fc ON fc.p_id_catalogue = f.p_id_catalogue`

func scanFertilizer(row pgx.Row) (Fertilizer, error) {
	var f Fertilizer
	e := &f.FertilizerCatalogueEntry
	err := row.Scan(&f.ID, &f.FarmID, &f.AcquiringAmount, &f.AcquiringDate,
		&e.ID, &e.Source, &e.NameNL, &e.NameEN, &e.Type, &e.DM, &e.OM, &e.NRt, &e.PRt, &e.KRt, &e.Hash)
	f.CatalogueID = e.ID
	return f, err
}

func (r *PostgresRepository) ListFertilizers(ctx context.Context, farmID string) ([]Fertilizer, error) {
	rows, err := r.pool.Query(ctx, fertilizerSelect+`
		WHERE f.b_id_farm = $1 ORDER BY f.p_acquiring_date DESC, f.p_id`, farmID)
	if err != nil {
		return nil, pgErr("list fertilizers", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Fertilizer, error) { return scanFertilizer(row) })
	return out, pgErr("list fertilizers", err)
}

func (r *PostgresRepository) GetFertilizer(ctx context.Context, fertilizerID string) (*Fertilizer, error) {
	f, err := scanFertilizer(r.pool.QueryRow(ctx, fertilizerSelect+` WHERE f.p_id = $1`, fertilizerID))
	if err != nil {
		return nil, pgErr("get fertilizer", err)
	}
	return &f, nil
}

func (r *PostgresRepository) CreateFertilizer(ctx context.Context, f Fertilizer) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fdm.fertilizers (p_id, p_id_catalogue, b_id_farm, p_acquiring_amount, p_acquiring_date)
		VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.CatalogueID, f.FarmID, f.AcquiringAmount, f.AcquiringDate)
	return pgErr("create fertilizer", err)
}

func (r *PostgresRepository) DeleteFertilizer(ctx context.Context, fertilizerID string) error {
	return r.execOne(ctx, "delete fertilizer", `DELETE FROM fdm.fertilizers WHERE p_id = $1`, fertilizerID)
}

const applicationSelect = `
	SELECT a.p_app_id, a.b_id, a.p_id, a.p_app_amount, a.p_app_method, a.p_app_date, fc.p_name_nl
	FROM fdm.fertilizer_applying a
	JOIN fdm.fertilizers f ON f.p_id = a.p_id
	JOIN fdm.fertilizers_catalogue fc ON fc.p_id_catalogue = f.p_id_catalogue`

func scanApplication(row pgx.Row) (FertilizerApplication, error) {
	var a FertilizerApplication
	err := row.Scan(&a.ID, &a.FieldID, &a.FertilizerID, &a.Amount, &a.Method, &a.Date, &a.Name)
	return a, err
}

func (r *PostgresRepository) ListApplications(ctx context.Context, fieldID string) ([]FertilizerApplication, error) {
	rows, err := r.pool.Query(ctx, applicationSelect+` WHERE a.b_id = $1 ORDER BY a.p_app_date, a.p_app_id`, fieldID)
	if err != nil {
		return nil, pgErr("list applications", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (FertilizerApplication, error) { return scanApplication(row) })
	return out, pgErr("list applications", err)
}

func (r *PostgresRepository) GetApplication(ctx context.Context, applicationID string) (*FertilizerApplication, error) {
	a, err := scanApplication(r.pool.QueryRow(ctx, applicationSelect+` WHERE a.p_app_id = $1`, applicationID))
	if err != nil {
		return nil, pgErr("get application", err)
	}
	return &a, nil
}

func (r *PostgresRepository) CreateApplication(ctx context.Context, a FertilizerApplication) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fdm.fertilizer_applying (p_app_id, b_id, p_id, p_app_amount, p_app_method, p_app_date)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.FieldID, a.FertilizerID, a.Amount, a.Method, a.Date)
	return pgErr("create application", err)
}

func (r *PostgresRepository) DeleteApplication(ctx context.Context, applicationID string) error {
	return r.execOne(ctx, "delete application", `DELETE FROM fdm.fertilizer_applying WHERE p_app_id = $1`, applicationID)
}

// Soil analyses

const soilSelect = `
	SELECT a_id, b_id, b_sampling_date, a_source, a_som_loi, a_p_al, a_p_cc, a_ph_cc, b_soiltype_agr, a_document
	FROM fdm.soil_analysis`

func scanSoilAnalysis(row pgx.Row) (SoilAnalysis, error) {
	var a SoilAnalysis
	err := row.Scan(&a.ID, &a.FieldID, &a.SamplingDate, &a.Source, &a.SomLoi, &a.PAl, &a.PCc, &a.PhCc, &a.SoilType, &a.Document)
	return a, err
}

func (r *PostgresRepository) ListSoilAnalyses(ctx context.Context, fieldID string) ([]SoilAnalysis, error) {
	rows, err := r.pool.Query(ctx, soilSelect+` WHERE b_id = $1 ORDER BY b_sampling_date DESC, a_id`, fieldID)
	if err != nil {
		return nil, pgErr("list soil analyses", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SoilAnalysis, error) { return scanSoilAnalysis(row) })
	return out, pgErr("list soil analyses", err)
}

func (r *PostgresRepository) GetSoilAnalysis(ctx context.Context, analysisID string) (*SoilAnalysis, error) {
	a, err := scanSoilAnalysis(r.pool.QueryRow(ctx, soilSelect+` WHERE a_id = $1`, analysisID))
	if err != nil {
		return nil, pgErr("get soil analysis", err)
	}
	return &a, nil
}

func (r *PostgresRepository) CreateSoilAnalysis(ctx context.Context, a SoilAnalysis) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fdm.soil_analysis
			(a_id, b_id, b_sampling_date, a_source, a_som_loi, a_p_al, a_p_cc, a_ph_cc, b_soiltype_agr, a_document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.FieldID, a.SamplingDate, a.Source, a.SomLoi, a.PAl, a.PCc, a.PhCc, a.SoilType, a.Document)
	return pgErr("create soil analysis", err)
}

func (r *PostgresRepository) DeleteSoilAnalysis(ctx context.Context, analysisID string) error {
	return r.execOne(ctx, "delete soil analysis", `DELETE FROM fdm.soil_analysis WHERE a_id = $1`, analysisID)
}
