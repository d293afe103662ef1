package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nmi-agro/fdm/pkg/db"
)

const cultivationCatalogueColumns = `b_lu_catalogue, b_lu_source, b_lu_name, b_lu_name_en, b_lu_hcat3, b_lu_hcat3_name, hash`

const fertilizerCatalogueColumns = `fc.p_id_catalogue, fc.p_source, fc.p_name_nl, fc.p_name_en, fc.p_type,
	fc.p_dm, fc.p_om, fc.p_n_rt, fc.p_p_rt, fc.p_k_rt, fc.hash`

func scanCultivationEntry(row pgx.Row) (CultivationCatalogueEntry, error) {
	var e CultivationCatalogueEntry
	err := row.Scan(&e.ID, &e.Source, &e.Name, &e.NameEN, &e.HCat3, &e.HCat3Name, &e.Hash)
	return e, err
}

func scanFertilizerEntry(row pgx.Row) (FertilizerCatalogueEntry, error) {
	var e FertilizerCatalogueEntry
	err := row.Scan(&e.ID, &e.Source, &e.NameNL, &e.NameEN, &e.Type, &e.DM, &e.OM, &e.NRt, &e.PRt, &e.KRt, &e.Hash)
	return e, err
}

// UpsertCultivationCatalogue writes entries in one transaction. Rows whose
// hash is unchanged are left alone.
func (r *PostgresRepository) UpsertCultivationCatalogue(ctx context.Context, entries []CultivationCatalogueEntry) (int, error) {
	var written int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO fdm.cultivations_catalogue (`+cultivationCatalogueColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (b_lu_catalogue) DO UPDATE SET
					b_lu_source = EXCLUDED.b_lu_source,
					b_lu_name = EXCLUDED.b_lu_name,
					b_lu_name_en = EXCLUDED.b_lu_name_en,
					b_lu_hcat3 = EXCLUDED.b_lu_hcat3,
					b_lu_hcat3_name = EXCLUDED.b_lu_hcat3_name,
					hash = EXCLUDED.hash,
					updated_at = now()
				WHERE fdm.cultivations_catalogue.hash <> EXCLUDED.hash`,
				e.ID, e.Source, e.Name, e.NameEN, e.HCat3, e.HCat3Name, e.Hash,
			).Exec(func(tag pgconn.CommandTag) error {
				written += int(tag.RowsAffected())
				return nil
			})
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return written, pgErr("upsert cultivation catalogue", err)
}

func (r *PostgresRepository) ListCultivationCatalogue(ctx context.Context) ([]CultivationCatalogueEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+cultivationCatalogueColumns+` FROM fdm.cultivations_catalogue ORDER BY b_lu_name`)
	if err != nil {
		return nil, pgErr("list cultivation catalogue", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CultivationCatalogueEntry, error) {
		return scanCultivationEntry(row)
	})
	return out, pgErr("list cultivation catalogue", err)
}

func (r *PostgresRepository) GetCultivationCatalogue(ctx context.Context, id string) (*CultivationCatalogueEntry, error) {
	e, err := scanCultivationEntry(r.pool.QueryRow(ctx,
		`SELECT `+cultivationCatalogueColumns+` FROM fdm.cultivations_catalogue WHERE b_lu_catalogue = $1`, id))
	if err != nil {
		return nil, pgErr("get cultivation catalogue", err)
	}
	return &e, nil
}

func (r *PostgresRepository) UpsertFertilizerCatalogue(ctx context.Context, entries []FertilizerCatalogueEntry) (int, error) {
	var written int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO fdm.fertilizers_catalogue
					(p_id_catalogue, p_source, p_name_nl, p_name_en, p_type, p_dm, p_om, p_n_rt, p_p_rt, p_k_rt, hash)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (p_id_catalogue) DO UPDATE SET
					p_source = EXCLUDED.p_source,
					p_name_nl = EXCLUDED.p_name_nl,
					p_name_en = EXCLUDED.p_name_en,
					p_type = EXCLUDED.p_type,
					p_dm = EXCLUDED.p_dm,
					p_om = EXCLUDED.p_om,
					p_n_rt = EXCLUDED.p_n_rt,
					p_p_rt = EXCLUDED.p_p_rt,
					p_k_rt = EXCLUDED.p_k_rt,
					hash = EXCLUDED.hash,
					updated_at = now()
				WHERE fdm.fertilizers_catalogue.hash <> EXCLUDED.hash`,
				e.ID, e.Source, e.NameNL, e.NameEN, e.Type, e.DM, e.OM, e.NRt, e.PRt, e.KRt, e.Hash,
			).Exec(func(tag pgconn.CommandTag) error {
				written += int(tag.RowsAffected())
				return nil
			})
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return written, pgErr("upsert fertilizer catalogue", err)
}

func (r *PostgresRepository) ListFertilizerCatalogue(ctx context.Context) ([]FertilizerCatalogueEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+fertilizerCatalogueColumns+` FROM fdm.fertilizers_catalogue fc ORDER BY fc.p_name_nl`)
	if err != nil {
		return nil, pgErr("list fertilizer catalogue", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (FertilizerCatalogueEntry, error) {
		return scanFertilizerEntry(row)
	})
	return out, pgErr("list fertilizer catalogue", err)
}

func (r *PostgresRepository) GetFertilizerCatalogue(ctx context.Context, id string) (*FertilizerCatalogueEntry, error) {
	e, err := scanFertilizerEntry(r.pool.QueryRow(ctx,
		`SELECT `+fertilizerCatalogueColumns+` FROM fdm.fertilizers_catalogue fc WHERE fc.p_id_catalogue = $1`, id))
	if err != nil {
		return nil, pgErr("get fertilizer catalogue", err)
	}
	return &e, nil
}
