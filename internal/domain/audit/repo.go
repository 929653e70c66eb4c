package audit

import "context"

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
	// Delete removes the given ids and returns how many existed.
	Delete(ctx context.Context, ids []int64) (int, error)
}
