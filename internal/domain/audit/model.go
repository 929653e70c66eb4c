package audit

import "time"

// SystemActor is shown for entries written without an authenticated user.
const SystemActor = "System"

const (
	ActionBulkDeleteAudit = "BULK_DELETE_AUDIT"
)

// Entry is one row of the audit trail.
type Entry struct {
	ID         int64     `db:"id" json:"id"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	Username   *string   `db:"username" json:"username"`
	Action     string    `db:"action" json:"action"`
	EntityType *string   `db:"entity_type" json:"entity_type"`
	EntityID   *string   `db:"entity_id" json:"entity_id"`
	Details    *string   `db:"details" json:"details"`

	// Actor is Username for display, SystemActor when none was recorded.
	Actor string `db:"-" json:"actor"`
}

func actorOf(username *string) string {
	if username == nil || *username == "" {
		return SystemActor
	}
	return *username
}

type Filter struct {
	Username string
	Action   string
	Start    *time.Time
	End      *time.Time // exclusive
}

type BulkDeleteRequest struct {
	IDs    []int64 `json:"ids" validate:"required,min=1"`
	Secret string  `json:"confirmation_secret"`
}
