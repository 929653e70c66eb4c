package audit

import (
	"context"
	"fmt"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/auth"
	"github.com/imssbienestar/medicos/internal/platform/db"
)

// SecretChecker verifies the confirmation secret of destructive operations.
type SecretChecker interface {
	Check(secret string) error
}

type Service struct {
	repo Repository
	tx   db.TxRunner
	gate SecretChecker
}

func NewService(repo Repository, tx db.TxRunner, gate SecretChecker) *Service {
	return &Service{repo: repo, tx: tx, gate: gate}
}

// Log records an action taken by the user on ctx. Called inside a
// transaction it commits or rolls back together with the caller's writes.
func (s *Service) Log(ctx context.Context, action, entityType, entityID, details string) error {
	e := &Entry{Action: action}
	if u := auth.UsernameFromContext(ctx); u != "" {
		e.Username = &u
	}
	if entityType != "" {
		e.EntityType = &entityType
	}
	if entityID != "" {
		e.EntityID = &entityID
	}
	if details != "" {
		e.Details = &details
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return apperr.Internal("write audit log", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return nil, 0, apperr.Validation("end date is before start date")
	}
	entries, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal("list audit logs", err)
	}
	for _, e := range entries {
		e.Actor = actorOf(e.Username)
	}
	return entries, total, nil
}

// BulkDelete purges the named entries. Unknown ids are ignored. The record
// of the purge is written in its own transaction after the delete commits,
// so it is never part of the set being removed.
func (s *Service) BulkDelete(ctx context.Context, req *BulkDeleteRequest) (int, error) {
	if len(req.IDs) == 0 {
		return 0, apperr.Validation("ids is required")
	}
	if err := s.gate.Check(req.Secret); err != nil {
		return 0, err
	}

	var deleted int
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.Delete(ctx, req.IDs)
		deleted = n
		return err
	})
	if err != nil {
		return 0, apperr.Internal("delete audit logs", err)
	}

	details := fmt.Sprintf("requested=%d deleted=%d ids=%v", len(req.IDs), deleted, req.IDs)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.Log(ctx, ActionBulkDeleteAudit, "audit_log", "", details)
	})
	if err != nil {
		return deleted, err
	}
	return deleted, nil
}
