package doctor

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/imssbienestar/medicos/internal/domain/facility"
	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/auth"
	"github.com/imssbienestar/medicos/internal/platform/blobstore"
)

type mockRepo struct {
	doctors     map[string]*Doctor
	history     []*HistoryEntry
	attachments map[int64]*Attachment
	nextID      int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		doctors:     make(map[string]*Doctor),
		attachments: make(map[int64]*Attachment),
		nextID:      1,
	}
}

// Some returns a set, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns an Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func clone(d *Doctor) *Doctor {
	c := *d
	return &c
}

func (m *mockRepo) Create(_ context.Context, d *Doctor) error {
	if _, ok := m.doctors[d.ID]; ok {
		return apperr.Conflict("a doctor with id_imss %s already exists", d.ID)
	}
	d.CreatedAt, d.UpdatedAt = time.Now(), time.Now()
	m.doctors[d.ID] = clone(d)
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	return clone(d), nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id string) (*Doctor, error) {
	d, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.IsDeleted {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	return d, nil
}

func (m *mockRepo) Update(_ context.Context, d *Doctor, expectedVersion int) error {
	cur, ok := m.doctors[d.ID]
	if !ok || cur.IsDeleted || cur.Version != expectedVersion {
		return apperr.Conflict("doctor %s was modified by another request", d.ID)
	}
	d.Version = expectedVersion + 1
	d.UpdatedAt = time.Now()
	m.doctors[d.ID] = clone(d)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Doctor, int, error) {
	var out []*Doctor
	for _, d := range m.doctors {
		if d.IsDeleted != f.DeletedOnly {
			continue
		}
		if !f.IncludeCoordination && IsCoordination(d.Coordinacion) {
			continue
		}
		if f.Estatus != "" && d.Estatus != f.Estatus {
			continue
		}
		if f.Entidad != "" && str(d.Entidad) != f.Entidad {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(d.FullName()+" "+d.ID+" "+str(d.CURP)), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	if limit > 0 && offset+limit < total {
		return out[offset : offset+limit], total, nil
	}
	return out[offset:], total, nil
}

func (m *mockRepo) CURPTaken(_ context.Context, curp, excludeID string) (bool, error) {
	for _, d := range m.doctors {
		if !d.IsDeleted && d.ID != excludeID && str(d.CURP) == curp {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) CountActiveInRegion(_ context.Context, region string) (int, error) {
	n := 0
	for _, d := range m.doctors {
		if !d.IsDeleted && countsTowardQuota(d) && *d.Entidad == region {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) ActiveCountsByRegion(_ context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, d := range m.doctors {
		if !d.IsDeleted && countsTowardQuota(d) {
			out[*d.Entidad]++
		}
	}
	return out, nil
}

func (m *mockRepo) ExpiringLeaves(_ context.Context, from, to time.Time) ([]*Doctor, error) {
	var out []*Doctor
	for _, d := range m.doctors {
		if d.IsDeleted || !IsTemporaryLeave(d.Estatus) || !d.FechaFin.Valid {
			continue
		}
		if !d.FechaFin.Time.Before(from) && !d.FechaFin.Time.After(to) {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepo) idsWhere(ids []string, deleted bool) []string {
	var out []string
	for _, id := range ids {
		if d, ok := m.doctors[id]; ok && d.IsDeleted == deleted {
			out = append(out, id)
		}
	}
	return out
}

func (m *mockRepo) LiveIDs(_ context.Context, ids []string) ([]string, error) {
	return m.idsWhere(ids, false), nil
}

func (m *mockRepo) DeletedIDs(_ context.Context, ids []string) ([]string, error) {
	return m.idsWhere(ids, true), nil
}

func (m *mockRepo) SoftDelete(_ context.Context, ids []string, actor string, at time.Time) (int, error) {
	n := 0
	for _, id := range ids {
		if d, ok := m.doctors[id]; ok && !d.IsDeleted {
			d.IsDeleted, d.DeletedAt, d.DeletedBy = true, &at, &actor
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) Restore(_ context.Context, id string) (bool, error) {
	d, ok := m.doctors[id]
	if !ok || !d.IsDeleted {
		return false, nil
	}
	d.IsDeleted, d.DeletedAt, d.DeletedBy = false, nil, nil
	return true, nil
}

func (m *mockRepo) BlobURLs(_ context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		for _, a := range m.attachments {
			if a.DoctorID == id {
				out = append(out, a.URL)
			}
		}
		if d, ok := m.doctors[id]; ok && d.FotoURL != nil {
			out = append(out, *d.FotoURL)
		}
	}
	return out, nil
}

func (m *mockRepo) PermanentDelete(_ context.Context, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		if d, ok := m.doctors[id]; ok && d.IsDeleted {
			delete(m.doctors, id)
			for aid, a := range m.attachments {
				if a.DoctorID == id {
					delete(m.attachments, aid)
				}
			}
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) AddHistory(_ context.Context, h *HistoryEntry) error {
	h.ID = m.nextID
	m.nextID++
	h.CreatedAt = time.Now()
	m.history = append(m.history, h)
	return nil
}

func (m *mockRepo) ListHistory(_ context.Context, id string) ([]*HistoryEntry, error) {
	var out []*HistoryEntry
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].DoctorID == id {
			out = append(out, m.history[i])
		}
	}
	return out, nil
}

func (m *mockRepo) historyFor(id string) []*HistoryEntry {
	out, _ := m.ListHistory(context.Background(), id)
	return out
}

func (m *mockRepo) CreateAttachment(_ context.Context, a *Attachment) error {
	a.ID = m.nextID
	m.nextID++
	a.UploadedAt = time.Now()
	m.attachments[a.ID] = a
	return nil
}

func (m *mockRepo) GetAttachment(_ context.Context, id string, docID int64) (*Attachment, error) {
	a, ok := m.attachments[docID]
	if !ok || a.DoctorID != id {
		return nil, apperr.NotFound("document %d not found", docID)
	}
	return a, nil
}

func (m *mockRepo) AttachmentByType(_ context.Context, id, docType string) (*Attachment, error) {
	for _, a := range m.attachments {
		if a.DoctorID == id && a.TipoDocumento == docType {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) ListAttachments(_ context.Context, id string) ([]*Attachment, error) {
	var out []*Attachment
	for _, a := range m.attachments {
		if a.DoctorID == id {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TipoDocumento < out[j].TipoDocumento })
	return out, nil
}

func (m *mockRepo) DeleteAttachment(_ context.Context, docID int64) error {
	delete(m.attachments, docID)
	return nil
}

func (m *mockRepo) SetPhoto(_ context.Context, id, url string) (*string, error) {
	d, ok := m.doctors[id]
	if !ok || d.IsDeleted {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	old := d.FotoURL
	d.FotoURL = &url
	return old, nil
}

// fakeTx runs fn directly. Tests that need rollback semantics check that
// nothing was written before the failing step.
type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type mockCatalog struct {
	facilities map[string]*facility.Facility
	quotas     map[string]*facility.RegionQuota
}

func (c *mockCatalog) GetFacility(_ context.Context, clues string) (*facility.Facility, error) {
	f, ok := c.facilities[clues]
	if !ok {
		return nil, apperr.NotFound("CLUES %s not found", clues)
	}
	return f, nil
}

func (c *mockCatalog) Quota(_ context.Context, region string) (*facility.RegionQuota, error) {
	return c.quotas[region], nil
}

func (c *mockCatalog) Quotas(_ context.Context) ([]*facility.RegionQuota, error) {
	var out []*facility.RegionQuota
	for _, q := range c.quotas {
		out = append(out, q)
	}
	return out, nil
}

type auditRecord struct {
	action, entityID, details string
}

type recordingAudit struct{ entries []auditRecord }

func (a *recordingAudit) Log(_ context.Context, action, _, entityID, details string) error {
	a.entries = append(a.entries, auditRecord{action, entityID, details})
	return nil
}

func (a *recordingAudit) actions() []string {
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.action
	}
	return out
}

type fakeGate struct{}

func (fakeGate) Check(secret string) error {
	switch secret {
	case "":
		return apperr.Validation("confirmation secret is required")
	case "confirmar":
		return nil
	default:
		return apperr.Forbidden("incorrect confirmation secret")
	}
}

type testEnv struct {
	svc     *Service
	repo    *mockRepo
	catalog *mockCatalog
	audit   *recordingAudit
	store   *blobstore.MemoryStore
}

var fixedNow = time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)

func newTestService() *testEnv {
	env := &testEnv{
		repo: newMockRepo(),
		catalog: &mockCatalog{
			facilities: map[string]*facility.Facility{
				"GRSSA001234": {
					CLUES:         "GRSSA001234",
					NombreUnidad:  sp("HOSPITAL GENERAL TLAPA"),
					Entidad:       sp("GUERRERO"),
					Municipio:     sp("TLAPA DE COMONFORT"),
					NivelAtencion: sp("SEGUNDO NIVEL"),
				},
			},
			quotas: map[string]*facility.RegionQuota{
				"NAYARIT": {Entidad: "NAYARIT", Minimo: 1, Maximo: 2},
			},
		},
		audit: &recordingAudit{},
		store: blobstore.NewMemoryStore("test"),
	}
	env.svc = NewService(env.repo, fakeTx{}, env.catalog, env.audit, env.store, fakeGate{},
		zerolog.Nop(), Config{MaxUploadSize: 1024})
	env.svc.now = func() time.Time { return fixedNow }
	return env
}

func sp(s string) *string { return &s }

func date(y int, m time.Month, d int) pgtype.Date {
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func adminCtx() context.Context {
	return auth.WithIdentity(context.Background(), "1", "admin", auth.RoleAdmin)
}

func userCtx() context.Context {
	return auth.WithIdentity(context.Background(), "2", "capturista", auth.RoleUser)
}

func sampleDoctor(id string) *Doctor {
	return &Doctor{
		ID:              id,
		Nombre:          "Yanelis",
		ApellidoPaterno: "Pérez",
		ApellidoMaterno: sp("Rodríguez"),
		Especialidad:    sp("MEDICINA FAMILIAR"),
		Entidad:         sp("NAYARIT"),
		CLUES:           sp("NTSSA000001"),
		NombreUnidad:    sp("CENTRO DE SALUD TEPIC"),
		Turno:           sp("MATUTINO"),
		NivelAtencion:   sp("PRIMER NIVEL"),
		Estatus:         StatusActive,
		FechaEstatus:    date(2024, 1, 15),
	}
}

// seed stores d directly, bypassing Create.
func (env *testEnv) seed(d *Doctor) *Doctor {
	if d.Version == 0 {
		d.Version = 1
	}
	env.repo.doctors[d.ID] = clone(d)
	return d
}
