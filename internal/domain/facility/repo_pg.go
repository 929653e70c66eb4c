package facility

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, r.pool)
}

func (r *repoPG) GetByCode(ctx context.Context, clues string) (*Facility, error) {
	var f Facility
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT clues, nombre_unidad, entidad, municipio, nivel_atencion,
		       direccion_unidad, tipo_establecimiento, subtipo_establecimiento, region
		FROM clues_catalogo WHERE clues = $1`, clues,
	).Scan(&f.CLUES, &f.NombreUnidad, &f.Entidad, &f.Municipio, &f.NivelAtencion,
		&f.Direccion, &f.TipoEstablecimiento, &f.SubtipoEstablecimiento, &f.Region)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("CLUES %s not found", clues)
	}
	if err != nil {
		return nil, fmt.Errorf("get clues %s: %w", clues, err)
	}
	return &f, nil
}

func (r *repoPG) ListRegions(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT entidad FROM clues_catalogo WHERE entidad IS NOT NULL AND entidad <> ''
		UNION
		SELECT entidad FROM cupos_entidad
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	regions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return regions, nil
}

func (r *repoPG) GetQuota(ctx context.Context, region string) (*RegionQuota, error) {
	var q RegionQuota
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT entidad, minimo, maximo FROM cupos_entidad WHERE entidad = $1`, region,
	).Scan(&q.Entidad, &q.Minimo, &q.Maximo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quota %s: %w", region, err)
	}
	return &q, nil
}

func (r *repoPG) ListQuotas(ctx context.Context) ([]*RegionQuota, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT entidad, minimo, maximo FROM cupos_entidad ORDER BY entidad`)
	if err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	defer rows.Close()

	var out []*RegionQuota
	for rows.Next() {
		var q RegionQuota
		if err := rows.Scan(&q.Entidad, &q.Minimo, &q.Maximo); err != nil {
			return nil, fmt.Errorf("scan quota: %w", err)
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}
