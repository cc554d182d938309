package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/proptly/mediaflow/internal/model"
)

var (
	ErrFileNotFound = errors.New("file not found")
)

type FileRepository interface {
	Create(file *model.File) error
	ByID(id string) (*model.File, error)
	ByJob(jobID string) ([]*model.File, error)
	ByJobAndKind(jobID, mediaKind string) ([]*model.File, error)
	SetThumbnailKey(id, thumbnailKey string) error
	Delete(id string) error
}

type fileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *fileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(file *model.File) error {
	query := `INSERT INTO files (id, job_id, uploader_id, file_name, original_name, content_type, size_bytes, media_kind, category, storage_key, thumbnail_key, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(query,
		file.ID,
		file.JobID,
		file.UploaderID,
		file.FileName,
		file.OriginalName,
		file.ContentType,
		file.SizeBytes,
		file.MediaKind,
		file.Category,
		file.StorageKey,
		file.ThumbnailKey,
		file.CreatedAt,
	)

	return err
}

func (r *fileRepository) ByID(id string) (*model.File, error) {
	file := &model.File{}
	query := `SELECT * FROM files WHERE id = $1`

	err := r.db.Get(file, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrFileNotFound
	}

	return file, err
}

func (r *fileRepository) ByJob(jobID string) ([]*model.File, error) {
	var files []*model.File
	query := `SELECT * FROM files WHERE job_id = $1 ORDER BY created_at DESC`

	err := r.db.Select(&files, query, jobID)
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (r *fileRepository) ByJobAndKind(jobID, mediaKind string) ([]*model.File, error) {
	var files []*model.File
	query := `SELECT * FROM files WHERE job_id = $1 AND media_kind = $2 ORDER BY created_at DESC`

	err := r.db.Select(&files, query, jobID, mediaKind)
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (r *fileRepository) SetThumbnailKey(id, thumbnailKey string) error {
	query := `UPDATE files SET thumbnail_key = $1 WHERE id = $2`
	_, err := r.db.Exec(query, thumbnailKey, id)
	return err
}

func (r *fileRepository) Delete(id string) error {
	query := `DELETE FROM files WHERE id = $1`
	_, err := r.db.Exec(query, id)
	return err
}
