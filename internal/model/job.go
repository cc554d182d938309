package model

import (
	"time"
)

// Job workflow statuses, in forward order.
const (
	JobStatusScheduled  = "scheduled"
	JobStatusShooting   = "shooting"
	JobStatusEditing    = "editing"
	JobStatusReadyForQA = "ready_for_qa"
	JobStatusDelivered  = "delivered"
)

// Job is one property's media production order.
type Job struct {
	ID         string    `db:"id"`
	LicenseeID string    `db:"licensee_id"`
	Address    string    `db:"address"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
