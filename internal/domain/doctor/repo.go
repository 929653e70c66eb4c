package doctor

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	// Get returns the record whether or not it is soft-deleted.
	Get(ctx context.Context, id string) (*Doctor, error)
	// GetForUpdate locks a live record for the rest of the transaction.
	GetForUpdate(ctx context.Context, id string) (*Doctor, error)
	// Update writes d if the stored version still equals expectedVersion and
	// bumps the version.
	Update(ctx context.Context, d *Doctor, expectedVersion int) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Doctor, int, error)

	// CURPTaken reports whether a live record other than excludeID holds curp.
	CURPTaken(ctx context.Context, curp, excludeID string) (bool, error)
	CountActiveInRegion(ctx context.Context, region string) (int, error)
	ActiveCountsByRegion(ctx context.Context) (map[string]int, error)
	ExpiringLeaves(ctx context.Context, from, to time.Time) ([]*Doctor, error)

	// LiveIDs and DeletedIDs return the subset of ids in that state.
	LiveIDs(ctx context.Context, ids []string) ([]string, error)
	DeletedIDs(ctx context.Context, ids []string) ([]string, error)
	SoftDelete(ctx context.Context, ids []string, actor string, at time.Time) (int, error)
	Restore(ctx context.Context, id string) (bool, error)
	// BlobURLs returns the photo and document URLs owned by ids.
	BlobURLs(ctx context.Context, ids []string) ([]string, error)
	PermanentDelete(ctx context.Context, ids []string) (int, error)

	AddHistory(ctx context.Context, h *HistoryEntry) error
	ListHistory(ctx context.Context, id string) ([]*HistoryEntry, error)

	CreateAttachment(ctx context.Context, a *Attachment) error
	GetAttachment(ctx context.Context, id string, docID int64) (*Attachment, error)
	// AttachmentByType returns nil, nil when the doctor has none of that type.
	AttachmentByType(ctx context.Context, id, docType string) (*Attachment, error)
	ListAttachments(ctx context.Context, id string) ([]*Attachment, error)
	DeleteAttachment(ctx context.Context, docID int64) error
	// SetPhoto stores url and returns the previous one.
	SetPhoto(ctx context.Context, id, url string) (*string, error)
}
