package model

import (
	"time"
)

// Activity actions.
const (
	ActionUpload       = "upload"
	ActionDownload     = "download"
	ActionStatusChange = "status_change"
)

// ActivityEntry is an append-only audit record. Never mutated or deleted.
type ActivityEntry struct {
	ID          string    `db:"id"`
	JobID       string    `db:"job_id"`
	ActorID     string    `db:"actor_id"`
	Action      string    `db:"action"`
	Description string    `db:"description"`
	Metadata    string    `db:"metadata"` // JSON blob
	CreatedAt   time.Time `db:"created_at"`
}
