package db

import (
	"context"
	"fmt"
	"strings"
)

// TxRunner is satisfied by *TxManager. Services depend on it so tests can run
// units of work without a database.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SearchQuery accumulates WHERE fragments and their positional arguments for
// a filtered, paginated listing.
type SearchQuery struct {
	table   string
	cols    string
	where   []string
	args    []interface{}
	orderBy string
}

func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{table: table, cols: cols}
}

// Next returns the placeholder for the next argument.
func (q *SearchQuery) Next() string {
	return fmt.Sprintf("$%d", len(q.args)+1)
}

// Add appends a raw clause. Placeholders inside clause must have been taken
// from Next before the call, in argument order.
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	q.where = append(q.where, clause)
	q.args = append(q.args, args...)
}

// Eq adds "column = value".
func (q *SearchQuery) Eq(column string, value interface{}) {
	q.Add(column+" = "+q.Next(), value)
}

// ILikeAny adds a case-insensitive substring match against any of columns,
// sharing one argument.
func (q *SearchQuery) ILikeAny(value string, columns ...string) {
	ph := q.Next()
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " ILIKE " + ph
	}
	q.Add("("+strings.Join(parts, " OR ")+")", "%"+value+"%")
}

func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

func (q *SearchQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *SearchQuery) CountSQL() string {
	return "SELECT COUNT(*) FROM " + q.table + q.whereSQL()
}

func (q *SearchQuery) Args() []interface{} {
	return q.args
}

// DataSQL returns the page query. limit <= 0 returns every row.
func (q *SearchQuery) DataSQL(limit int) string {
	sql := "SELECT " + q.cols + " FROM " + q.table + q.whereSQL()
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(q.args)+1, len(q.args)+2)
	}
	return sql
}

func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	if limit <= 0 {
		return q.args
	}
	out := make([]interface{}, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}
