package facility

import (
	"context"
	"sort"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
)

type mockRepo struct {
	facilities map[string]*Facility
	quotas     map[string]*RegionQuota
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		facilities: make(map[string]*Facility),
		quotas:     make(map[string]*RegionQuota),
	}
}

func (m *mockRepo) GetByCode(_ context.Context, clues string) (*Facility, error) {
	f, ok := m.facilities[clues]
	if !ok {
		return nil, apperr.NotFound("CLUES %s not found", clues)
	}
	return f, nil
}

func (m *mockRepo) ListRegions(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	for _, f := range m.facilities {
		if f.Entidad != nil {
			seen[*f.Entidad] = true
		}
	}
	for r := range m.quotas {
		seen[r] = true
	}
	var out []string
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockRepo) GetQuota(_ context.Context, region string) (*RegionQuota, error) {
	return m.quotas[region], nil
}

func (m *mockRepo) ListQuotas(_ context.Context) ([]*RegionQuota, error) {
	var out []*RegionQuota
	for _, q := range m.quotas {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entidad < out[j].Entidad })
	return out, nil
}

func strPtr(s string) *string { return &s }

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	repo.facilities["CSSSA001234"] = &Facility{
		CLUES:         "CSSSA001234",
		NombreUnidad:  strPtr("HOSPITAL GENERAL TLAPA"),
		Entidad:       strPtr("GUERRERO"),
		NivelAtencion: strPtr("SEGUNDO NIVEL"),
	}
	repo.quotas["GUERRERO"] = &RegionQuota{Entidad: "GUERRERO", Minimo: 10, Maximo: 40}
	repo.quotas["NAYARIT"] = &RegionQuota{Entidad: "NAYARIT", Minimo: 5, Maximo: 12}
	return NewService(repo), repo
}
