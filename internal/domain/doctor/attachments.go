package doctor

import (
	"context"
	"errors"
	"strings"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/blobstore"
)

func (s *Service) checkUpload(f *Upload, allowed map[string]bool) error {
	err := blobstore.ValidateUpload(f.FileName, f.ContentType, f.Size, s.cfg.MaxUploadSize, allowed)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apperr.Validation("file exceeds the maximum size of %d bytes", s.cfg.MaxUploadSize)
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return apperr.Validation("content type %q is not allowed", f.ContentType)
	default:
		return apperr.Validation("%s", err.Error())
	}
}

func (s *Service) requireLive(ctx context.Context, id string) error {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.IsDeleted {
		return apperr.NotFound("doctor %s not found", id)
	}
	return nil
}

// putObject uploads f before any database write. A failed upload aborts the
// request with nothing persisted.
func (s *Service) putObject(ctx context.Context, f *Upload, parts ...string) (string, error) {
	key := blobstore.ObjectKey(append(parts, f.FileName)...)
	url, err := s.store.Put(ctx, key, f.ContentType, f.Body)
	if err != nil {
		return "", apperr.Internal("upload file", err)
	}
	return url, nil
}

// UploadAttachment stores a document of the given type, replacing the
// doctor's previous document of that type.
func (s *Service) UploadAttachment(ctx context.Context, id, docType string, f *Upload) (*Attachment, error) {
	docType = strings.TrimSpace(docType)
	if docType == "" {
		return nil, apperr.Validation("tipo_documento is required")
	}
	if err := s.checkUpload(f, blobstore.DocumentContentTypes); err != nil {
		return nil, err
	}
	if err := s.requireLive(ctx, id); err != nil {
		return nil, err
	}
	url, err := s.putObject(ctx, f, "doctores", id, "documentos")
	if err != nil {
		return nil, err
	}

	a := &Attachment{
		DoctorID:      id,
		NombreArchivo: f.FileName,
		URL:           url,
		TipoDocumento: docType,
	}
	if f.ContentType != "" {
		ct := f.ContentType
		a.MimeType = &ct
	}

	var replaced *Attachment
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		prev, err := s.repo.AttachmentByType(ctx, id, docType)
		if err != nil {
			return err
		}
		if prev != nil {
			if err := s.repo.DeleteAttachment(ctx, prev.ID); err != nil {
				return err
			}
			replaced = prev
		}
		if err := s.repo.CreateAttachment(ctx, a); err != nil {
			return err
		}
		return s.audit.Log(ctx, ActionUploadDocument, entityDoctor, id, docType+": "+f.FileName)
	})
	if err != nil {
		s.deleteBlobs(ctx, url)
		return nil, err
	}
	if replaced != nil {
		s.deleteBlobs(ctx, replaced.URL)
	}
	return a, nil
}

func (s *Service) ListAttachments(ctx context.Context, id string) ([]*Attachment, error) {
	if err := s.requireLive(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListAttachments(ctx, id)
}

func (s *Service) DeleteAttachment(ctx context.Context, id string, docID int64) error {
	var a *Attachment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.repo.GetAttachment(ctx, id, docID); err != nil {
			return err
		}
		if err := s.repo.DeleteAttachment(ctx, docID); err != nil {
			return err
		}
		return s.audit.Log(ctx, ActionDeleteDocument, entityDoctor, id, a.TipoDocumento+": "+a.NombreArchivo)
	})
	if err != nil {
		return err
	}
	s.deleteBlobs(ctx, a.URL)
	return nil
}

// UploadPhoto sets the profile photo and returns its URL.
func (s *Service) UploadPhoto(ctx context.Context, id string, f *Upload) (string, error) {
	if err := s.checkUpload(f, blobstore.PhotoContentTypes); err != nil {
		return "", err
	}
	if err := s.requireLive(ctx, id); err != nil {
		return "", err
	}
	url, err := s.putObject(ctx, f, "doctores", id, "foto")
	if err != nil {
		return "", err
	}

	var old *string
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if old, err = s.repo.SetPhoto(ctx, id, url); err != nil {
			return err
		}
		return s.audit.Log(ctx, ActionUploadPhoto, entityDoctor, id, f.FileName)
	})
	if err != nil {
		s.deleteBlobs(ctx, url)
		return "", err
	}
	if old != nil && *old != url {
		s.deleteBlobs(ctx, *old)
	}
	return url, nil
}
