package reporting

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imssbienestar/medicos/internal/platform/db"
)

const (
	liveRecords = `NOT is_deleted`
	countable   = liveRecords + ` AND UPPER(TRIM(COALESCE(coordinacion, ''))) NOT IN ('SI', 'SÍ', 'TRUE')`
)

// catalogColumns are export keys read from clues_catalogo rather than
// doctores.
var catalogColumns = map[string]bool{
	"direccion_unidad":        true,
	"tipo_establecimiento":    true,
	"subtipo_establecimiento": true,
	"region":                  true,
}

type storePG struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, s.pool)
}

// CountBy groups countable records by column. column must come from
// Charts; it is interpolated into the query.
func (s *storePG) CountBy(ctx context.Context, column string) ([]Item, error) {
	sql := fmt.Sprintf(`SELECT %[1]s, COUNT(*) FROM doctores
		WHERE %[2]s AND %[1]s IS NOT NULL AND %[1]s <> ''
		GROUP BY %[1]s ORDER BY COUNT(*) DESC, %[1]s`, pgx.Identifier{column}.Sanitize(), countable)
	rows, err := s.conn(ctx).Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Label, &it.Value); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *storePG) Total(ctx context.Context) (int64, error) {
	var n int64
	err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctores WHERE `+countable).Scan(&n)
	return n, err
}

// ExportRows returns every non-deleted record ordered by id_imss, one text
// value per selected column. Missing values are empty strings, including
// catalog columns of records whose CLUES is not in the catalog.
func (s *storePG) ExportRows(ctx context.Context, cols []Column) ([][]string, error) {
	exprs := make([]string, len(cols))
	for i, c := range cols {
		table := "d"
		if catalogColumns[c.Key] {
			table = "c"
		}
		exprs[i] = fmt.Sprintf("COALESCE(%s::text, '')", pgx.Identifier{table, c.Key}.Sanitize())
	}
	sql := `SELECT ` + strings.Join(exprs, ", ") +
		` FROM doctores d LEFT JOIN clues_catalogo c ON c.clues = d.clues
		WHERE NOT d.is_deleted ORDER BY d.id_imss`
	rows, err := s.conn(ctx).Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("export rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		vals := make([]string, len(cols))
		dst := make([]any, len(cols))
		for i := range vals {
			dst[i] = &vals[i]
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}
