package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imssbienestar/medicos/internal/platform/db"
)

const entryCols = `id, timestamp, username, action, entity_type, entity_id, details`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO audit_logs (username, action, entity_type, entity_id, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, timestamp`,
		e.Username, e.Action, e.EntityType, e.EntityID, e.Details,
	).Scan(&e.ID, &e.Timestamp)
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	q := db.NewSearchQuery("audit_logs", entryCols)
	switch {
	case f.Username == SystemActor:
		q.Add("username IS NULL")
	case f.Username != "":
		q.Add("username ILIKE "+q.Next(), "%"+f.Username+"%")
	}
	if f.Action != "" {
		q.Eq("action", f.Action)
	}
	if f.Start != nil {
		q.Add("timestamp >= "+q.Next(), *f.Start)
	}
	if f.End != nil {
		q.Add("timestamp < "+q.Next(), *f.End)
	}
	q.OrderBy("timestamp DESC, id DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Timestamp, &e.Username, &e.Action, &e.EntityType, &e.EntityID, &e.Details)
	if err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return &e, nil
}

func (r *repoPG) Delete(ctx context.Context, ids []int64) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM audit_logs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete audit logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
