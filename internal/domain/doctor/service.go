package doctor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/imssbienestar/medicos/internal/domain/facility"
	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/auth"
	"github.com/imssbienestar/medicos/internal/platform/blobstore"
	"github.com/imssbienestar/medicos/internal/platform/db"
	"github.com/imssbienestar/medicos/internal/platform/validate"
)

// Audit actions written by this package.
const (
	ActionCreate           = "CREATE_DOCTOR"
	ActionUpdate           = "UPDATE_DOCTOR"
	ActionSoftDelete       = "SOFT_DELETE_DOCTOR"
	ActionBulkSoftDelete   = "BULK_SOFT_DELETE_DOCTOR"
	ActionRestore          = "RESTORE_DOCTOR"
	ActionPermanentDelete  = "PERMANENT_DELETE_DOCTOR"
	ActionBulkPermDelete   = "BULK_PERMANENT_DELETE_DOCTOR"
	ActionAddHistory       = "ADD_HISTORY"
	ActionUploadDocument   = "UPLOAD_DOCUMENT"
	ActionDeleteDocument   = "DELETE_DOCUMENT"
	ActionUploadPhoto      = "UPLOAD_PHOTO"
	entityDoctor           = "doctor"
	defaultExpiryAlertDays = 15
)

// Catalog is the facility lookup the roster depends on.
type Catalog interface {
	GetFacility(ctx context.Context, clues string) (*facility.Facility, error)
	Quota(ctx context.Context, region string) (*facility.RegionQuota, error)
	Quotas(ctx context.Context) ([]*facility.RegionQuota, error)
}

type AuditLogger interface {
	Log(ctx context.Context, action, entityType, entityID, details string) error
}

type SecretChecker interface {
	Check(secret string) error
}

// Config holds the tunables of the service.
type Config struct {
	MaxUploadSize   int64
	ExpiryAlertDays int
}

type Service struct {
	repo    Repository
	tx      db.TxRunner
	catalog Catalog
	audit   AuditLogger
	store   blobstore.ObjectStore
	gate    SecretChecker
	log     zerolog.Logger
	cfg     Config
	now     func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, catalog Catalog, audit AuditLogger,
	store blobstore.ObjectStore, gate SecretChecker, logger zerolog.Logger, cfg Config) *Service {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = blobstore.DefaultMaxFileSize
	}
	if cfg.ExpiryAlertDays <= 0 {
		cfg.ExpiryAlertDays = defaultExpiryAlertDays
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		catalog: catalog,
		audit:   audit,
		store:   store,
		gate:    gate,
		log:     logger.With().Str("component", "doctor").Logger(),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (s *Service) actor(ctx context.Context) string {
	if u := auth.UsernameFromContext(ctx); u != "" {
		return u
	}
	return "System"
}

// fillFromCatalog copies unit data from the CLUES catalog into fields the
// caller left empty.
func (s *Service) fillFromCatalog(ctx context.Context, d *Doctor) error {
	if d.CLUES == nil {
		return nil
	}
	f, err := s.catalog.GetFacility(ctx, *d.CLUES)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if d.Entidad == nil {
		d.Entidad = f.Entidad
	}
	if d.Municipio == nil {
		d.Municipio = f.Municipio
	}
	if d.NombreUnidad == nil {
		d.NombreUnidad = f.NombreUnidad
	}
	if d.NivelAtencion == nil {
		d.NivelAtencion = f.NivelAtencion
	}
	return nil
}

func (s *Service) Create(ctx context.Context, d *Doctor) error {
	if err := prepareNew(d); err != nil {
		return err
	}
	if err := s.fillFromCatalog(ctx, d); err != nil {
		return err
	}
	applyClearingPolicy(d)

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if d.CURP != nil {
			taken, err := s.repo.CURPTaken(ctx, *d.CURP, d.ID)
			if err != nil {
				return apperr.Internal("check curp", err)
			}
			if taken {
				return apperr.Conflict("CURP %s is already registered", *d.CURP)
			}
		}
		if err := s.checkQuota(ctx, d); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, d); err != nil {
			return err
		}
		h := initialHistory(d)
		if err := s.repo.AddHistory(ctx, h); err != nil {
			return err
		}
		d.Historial = []*HistoryEntry{h}
		return s.audit.Log(ctx, ActionCreate, entityDoctor, d.ID, d.FullName())
	})
}

// Get returns the record with its documents and history. Soft-deleted
// records are reported as not found unless includeDeleted is set.
func (s *Service) Get(ctx context.Context, id string, includeDeleted bool) (*Doctor, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.IsDeleted && !includeDeleted {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	if d.Documentos, err = s.repo.ListAttachments(ctx, id); err != nil {
		return nil, err
	}
	if d.Historial, err = s.repo.ListHistory(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// List applies the default filters: only live, non-coordination records in
// the active status. Estatus "all" disables the status filter.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Doctor, int, error) {
	f.Search = strings.TrimSpace(f.Search)
	switch {
	case strings.EqualFold(f.Estatus, "all"), strings.EqualFold(f.Estatus, "todos"):
		f.Estatus = ""
	case f.Estatus == "" && !f.DeletedOnly:
		f.Estatus = StatusActive
	case f.Estatus != "" && !ValidStatus(f.Estatus):
		return nil, 0, apperr.Validation("estatus %q is not a valid status", f.Estatus)
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Update(ctx context.Context, id string, req *UpdateRequest) (*UpdateResult, error) {
	var result *UpdateResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Version != nil && *req.Version != current.Version {
			return apperr.Conflict("doctor %s is at version %d, request was based on %d",
				id, current.Version, *req.Version)
		}

		t, err := Evaluate(current, req, auth.IsAdmin(ctx), s.now())
		if err != nil {
			return err
		}
		next := t.Record
		if next.CURP != nil && str(next.CURP) != str(current.CURP) {
			taken, err := s.repo.CURPTaken(ctx, *next.CURP, id)
			if err != nil {
				return apperr.Internal("check curp", err)
			}
			if taken {
				return apperr.Conflict("CURP %s is already registered", *next.CURP)
			}
		}
		if t.EnteredDeath {
			s.log.Warn().
				Str("event", "status_to_death").
				Str("id_imss", id).
				Str("previous_status", current.Estatus).
				Str("user", s.actor(ctx)).
				Msg("doctor status changed to death")
		}

		if err := s.repo.Update(ctx, next, current.Version); err != nil {
			return err
		}
		if t.History != nil {
			if err := s.repo.AddHistory(ctx, t.History); err != nil {
				return err
			}
		}
		if err := s.audit.Log(ctx, ActionUpdate, entityDoctor, id, t.Summary()); err != nil {
			return err
		}
		result = &UpdateResult{Doctor: next, Summary: t.Summary(), History: t.History}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// missing returns the members of want absent from have, sorted.
func missing(want, have []string) []string {
	ok := make(map[string]bool, len(have))
	for _, id := range have {
		ok[id] = true
	}
	var out []string
	for _, id := range want {
		if !ok[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Service) SoftDelete(ctx context.Context, id string) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.SoftDelete(ctx, []string{id}, s.actor(ctx), s.now())
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("doctor %s not found", id)
		}
		return s.audit.Log(ctx, ActionSoftDelete, entityDoctor, id, "")
	})
}

// BulkSoftDelete deletes every id or none of them.
func (s *Service) BulkSoftDelete(ctx context.Context, ids []string) (int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, apperr.Validation("ids is required")
	}
	var n int
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		live, err := s.repo.LiveIDs(ctx, ids)
		if err != nil {
			return err
		}
		if gone := missing(ids, live); len(gone) > 0 {
			return apperr.NotFound("doctors not found: %s", strings.Join(gone, ", "))
		}
		if n, err = s.repo.SoftDelete(ctx, ids, s.actor(ctx), s.now()); err != nil {
			return err
		}
		return s.audit.Log(ctx, ActionBulkSoftDelete, entityDoctor, "", strings.Join(ids, ","))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Service) Restore(ctx context.Context, id string) error {
	if !auth.IsAdmin(ctx) {
		return apperr.Forbidden("only an administrator can restore doctors")
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.Get(ctx, id)
		if apperr.Is(err, apperr.KindNotFound) || (err == nil && !d.IsDeleted) {
			return apperr.Validation("doctor %s is not deleted", id)
		}
		if err != nil {
			return err
		}
		if d.CURP != nil {
			taken, err := s.repo.CURPTaken(ctx, *d.CURP, id)
			if err != nil {
				return apperr.Internal("check curp", err)
			}
			if taken {
				return apperr.Conflict("CURP %s is held by another active doctor", *d.CURP)
			}
		}
		ok, err := s.repo.Restore(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("doctor %s is not deleted", id)
		}
		return s.audit.Log(ctx, ActionRestore, entityDoctor, id, "")
	})
}

func (s *Service) PermanentDelete(ctx context.Context, id, secret string) error {
	_, err := s.purge(ctx, []string{id}, secret, ActionPermanentDelete)
	return err
}

func (s *Service) BulkPermanentDelete(ctx context.Context, ids []string, secret string) (int, error) {
	return s.purge(ctx, ids, secret, ActionBulkPermDelete)
}

// purge removes soft-deleted records for good, all or nothing. Their blobs
// are deleted after the transaction commits.
func (s *Service) purge(ctx context.Context, ids []string, secret, action string) (int, error) {
	if !auth.IsAdmin(ctx) {
		return 0, apperr.Forbidden("only an administrator can permanently delete doctors")
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, apperr.Validation("ids is required")
	}
	if err := s.gate.Check(secret); err != nil {
		return 0, err
	}

	var n int
	var blobs []string
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		deleted, err := s.repo.DeletedIDs(ctx, ids)
		if err != nil {
			return err
		}
		if gone := missing(ids, deleted); len(gone) > 0 {
			return apperr.NotFound("doctors not found or not deleted: %s", strings.Join(gone, ", "))
		}
		if blobs, err = s.repo.BlobURLs(ctx, ids); err != nil {
			return err
		}
		if n, err = s.repo.PermanentDelete(ctx, ids); err != nil {
			return err
		}
		entityID := ""
		if len(ids) == 1 {
			entityID = ids[0]
		}
		return s.audit.Log(ctx, action, entityDoctor, entityID, "ids="+strings.Join(ids, ","))
	})
	if err != nil {
		return 0, err
	}
	s.deleteBlobs(ctx, blobs...)
	return n, nil
}

func (s *Service) deleteBlobs(ctx context.Context, urls ...string) {
	for _, u := range urls {
		if err := s.store.DeleteByURL(ctx, u); err != nil && !errors.Is(err, blobstore.ErrObjectNotFound) {
			s.log.Error().Err(err).Str("url", u).Msg("failed to delete object")
		}
	}
}

func (s *Service) AddHistory(ctx context.Context, id string, req *HistoryRequest) (*HistoryEntry, error) {
	req.TipoCambio = strings.TrimSpace(req.TipoCambio)
	if req.TipoCambio == "" {
		return nil, apperr.Validation("tipo_cambio is required")
	}
	if !req.FechaInicio.Valid {
		return nil, apperr.Validation("fecha_inicio is required")
	}
	if req.Estatus != nil && !ValidStatus(*req.Estatus) {
		return nil, apperr.Validation("estatus %q is not a valid status", *req.Estatus)
	}
	comment := retroactiveComment
	if req.Comentarios != nil && strings.TrimSpace(*req.Comentarios) != "" {
		comment = strings.TrimSpace(*req.Comentarios)
	}
	h := &HistoryEntry{
		DoctorID:    id,
		TipoCambio:  req.TipoCambio,
		Estatus:     req.Estatus,
		FechaInicio: req.FechaInicio.Date,
		FechaFin:    req.FechaFin.Date,
		CLUES:       req.CLUES,
		Entidad:     req.Entidad,
		Turno:       req.Turno,
		Comentarios: &comment,
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if d.IsDeleted {
			return apperr.NotFound("doctor %s not found", id)
		}
		if err := s.repo.AddHistory(ctx, h); err != nil {
			return err
		}
		return s.audit.Log(ctx, ActionAddHistory, entityDoctor, id,
			fmt.Sprintf("%s desde %s", h.TipoCambio, day(h.FechaInicio)))
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Service) ListHistory(ctx context.Context, id string) ([]*HistoryEntry, error) {
	if _, err := s.Get(ctx, id, false); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, id)
}

func (s *Service) CheckCURP(ctx context.Context, curp string) (*CURPCheck, error) {
	curp = strings.ToUpper(strings.TrimSpace(curp))
	if !validate.CURP(curp) {
		return nil, apperr.Validation("curp %q has an invalid format", curp)
	}
	taken, err := s.repo.CURPTaken(ctx, curp, "")
	if err != nil {
		return nil, apperr.Internal("check curp", err)
	}
	if taken {
		return &CURPCheck{Exists: true, Message: "La CURP ya está registrada"}, nil
	}
	return &CURPCheck{Exists: false, Message: "CURP disponible"}, nil
}

// ExpiringLeaves returns doctors on temporary leave whose end date falls
// within the next days days, today included. days <= 0 uses the configured
// default.
func (s *Service) ExpiringLeaves(ctx context.Context, days int) ([]*Doctor, error) {
	if days <= 0 {
		days = s.cfg.ExpiryAlertDays
	}
	from := dateOf(s.now()).Time
	return s.repo.ExpiringLeaves(ctx, from, from.AddDate(0, 0, days))
}
