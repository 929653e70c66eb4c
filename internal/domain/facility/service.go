package facility

import (
	"context"
	"strings"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetFacility(ctx context.Context, clues string) (*Facility, error) {
	clues = strings.ToUpper(strings.TrimSpace(clues))
	if clues == "" {
		return nil, apperr.Validation("clues is required")
	}
	return s.repo.GetByCode(ctx, clues)
}

func (s *Service) Regions(ctx context.Context) ([]string, error) {
	return s.repo.ListRegions(ctx)
}

// Quota returns the quota for region, or nil when none is configured.
func (s *Service) Quota(ctx context.Context, region string) (*RegionQuota, error) {
	return s.repo.GetQuota(ctx, region)
}

func (s *Service) Quotas(ctx context.Context) ([]*RegionQuota, error) {
	return s.repo.ListQuotas(ctx)
}
