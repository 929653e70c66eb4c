package doctor

import (
	"context"
	"sort"

	"github.com/imssbienestar/medicos/internal/domain/facility"
	"github.com/imssbienestar/medicos/internal/platform/apperr"
)

// countsTowardQuota reports whether d occupies a slot of its region's quota.
func countsTowardQuota(d *Doctor) bool {
	return d.Estatus == StatusActive && !IsCoordination(d.Coordinacion) && str(d.Entidad) != ""
}

// checkQuota rejects a new record that would push its region past the
// configured maximum. Regions without a quota row are unconstrained.
func (s *Service) checkQuota(ctx context.Context, d *Doctor) error {
	if !countsTowardQuota(d) {
		return nil
	}
	region := *d.Entidad
	quota, err := s.catalog.Quota(ctx, region)
	if err != nil {
		return apperr.Internal("load quota", err)
	}
	if quota == nil {
		return nil
	}
	current, err := s.repo.CountActiveInRegion(ctx, region)
	if err != nil {
		return apperr.Internal("count active doctors", err)
	}
	if current >= quota.Maximo {
		return apperr.Conflict("region %s has reached its maximum of %d active doctors", region, quota.Maximo)
	}
	return nil
}

func capacityRow(region string, actual int, q *facility.RegionQuota) *CapacityRow {
	row := &CapacityRow{Entidad: region, Actual: actual}
	if q != nil {
		minimo, maximo := q.Minimo, q.Maximo
		free := maximo - actual
		if free < 0 {
			free = 0
		}
		row.Minimo, row.Maximo, row.Disponible = &minimo, &maximo, &free
	}
	return row
}

// RegionCapacity lists every region with either a quota or active doctors.
func (s *Service) RegionCapacity(ctx context.Context) ([]*CapacityRow, error) {
	quotas, err := s.catalog.Quotas(ctx)
	if err != nil {
		return nil, apperr.Internal("load quotas", err)
	}
	counts, err := s.repo.ActiveCountsByRegion(ctx)
	if err != nil {
		return nil, apperr.Internal("count active doctors", err)
	}

	byRegion := make(map[string]*facility.RegionQuota, len(quotas))
	for _, q := range quotas {
		byRegion[q.Entidad] = q
	}
	regions := make(map[string]bool, len(quotas)+len(counts))
	for r := range byRegion {
		regions[r] = true
	}
	for r := range counts {
		regions[r] = true
	}

	out := make([]*CapacityRow, 0, len(regions))
	for r := range regions {
		out = append(out, capacityRow(r, counts[r], byRegion[r]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entidad < out[j].Entidad })
	return out, nil
}

// FacilityCapacity returns a CLUES catalog entry with the capacity of its
// region.
func (s *Service) FacilityCapacity(ctx context.Context, clues string) (*FacilityCapacity, error) {
	f, err := s.catalog.GetFacility(ctx, clues)
	if err != nil {
		return nil, err
	}
	out := &FacilityCapacity{Unidad: f}
	if f.Entidad == nil || *f.Entidad == "" {
		return out, nil
	}
	region := *f.Entidad
	quota, err := s.catalog.Quota(ctx, region)
	if err != nil {
		return nil, apperr.Internal("load quota", err)
	}
	current, err := s.repo.CountActiveInRegion(ctx, region)
	if err != nil {
		return nil, apperr.Internal("count active doctors", err)
	}
	out.Capacidad = capacityRow(region, current, quota)
	return out, nil
}
