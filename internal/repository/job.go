package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/proptly/mediaflow/internal/model"
)

var (
	ErrJobNotFound = errors.New("job not found")
)

type JobRepository interface {
	Create(job *model.Job) error
	ByID(id string) (*model.Job, error)
	ByLicensee(licenseeID string) ([]*model.Job, error)
	UpdateStatus(id, status string) error
}

type jobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(db *sqlx.DB) *jobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(job *model.Job) error {
	query := `INSERT INTO jobs (id, licensee_id, address, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(query,
		job.ID,
		job.LicenseeID,
		job.Address,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)

	return err
}

func (r *jobRepository) ByID(id string) (*model.Job, error) {
	job := &model.Job{}
	query := `SELECT * FROM jobs WHERE id = $1`

	err := r.db.Get(job, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}

	return job, err
}

func (r *jobRepository) ByLicensee(licenseeID string) ([]*model.Job, error) {
	var jobs []*model.Job
	query := `SELECT * FROM jobs WHERE licensee_id = $1 ORDER BY created_at DESC`

	err := r.db.Select(&jobs, query, licenseeID)
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *jobRepository) UpdateStatus(id, status string) error {
	query := `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`

	res, err := r.db.Exec(query, status, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrJobNotFound
	}

	return nil
}
