package model

import (
	"time"
)

// Media kind classifies an upload as original capture or delivered output.
const (
	MediaKindRaw      = "raw"
	MediaKindFinished = "finished"
)

// File categories.
const (
	CategoryPhotography = "photography"
	CategoryFloorPlan   = "floor_plan"
	CategoryDrone       = "drone"
	CategoryVideo       = "video"
	CategoryOther       = "other"
)

// ValidMediaKind reports whether kind is a known media kind.
func ValidMediaKind(kind string) bool {
	return kind == MediaKindRaw || kind == MediaKindFinished
}

// ValidCategory reports whether category is a known file category.
func ValidCategory(category string) bool {
	switch category {
	case CategoryPhotography, CategoryFloorPlan, CategoryDrone, CategoryVideo, CategoryOther:
		return true
	}
	return false
}

// File is the persisted record of an upload at rest. Immutable except
// for thumbnail backfill.
type File struct {
	ID           string    `db:"id" json:"id"`
	JobID        string    `db:"job_id" json:"jobId"`
	UploaderID   string    `db:"uploader_id" json:"uploaderId"`
	FileName     string    `db:"file_name" json:"fileName"`         // Sanitized name used in the storage key
	OriginalName string    `db:"original_name" json:"originalName"` // Name as submitted by the client
	ContentType  string    `db:"content_type" json:"contentType"`
	SizeBytes    int64     `db:"size_bytes" json:"fileSize"`
	MediaKind    string    `db:"media_kind" json:"mediaType"`
	Category     string    `db:"category" json:"category"`
	StorageKey   string    `db:"storage_key" json:"storageKey"`
	ThumbnailKey *string   `db:"thumbnail_key" json:"thumbnailKey,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
