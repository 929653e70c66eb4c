package facility

import "context"

type Repository interface {
	GetByCode(ctx context.Context, clues string) (*Facility, error)
	ListRegions(ctx context.Context) ([]string, error)
	// GetQuota returns nil, nil when the region has no quota row.
	GetQuota(ctx context.Context, region string) (*RegionQuota, error)
	ListQuotas(ctx context.Context) ([]*RegionQuota, error)
}
