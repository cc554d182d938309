package repository

import (
	"github.com/jmoiron/sqlx"
	"github.com/proptly/mediaflow/internal/model"
)

type ActivityRepository interface {
	Append(entry *model.ActivityEntry) error
	ByJob(jobID string) ([]*model.ActivityEntry, error)
}

type activityRepository struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) *activityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Append(entry *model.ActivityEntry) error {
	query := `INSERT INTO activity_log (id, job_id, actor_id, action, description, metadata, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(query,
		entry.ID,
		entry.JobID,
		entry.ActorID,
		entry.Action,
		entry.Description,
		entry.Metadata,
		entry.CreatedAt,
	)

	return err
}

func (r *activityRepository) ByJob(jobID string) ([]*model.ActivityEntry, error) {
	var entries []*model.ActivityEntry
	query := `SELECT * FROM activity_log WHERE job_id = $1 ORDER BY created_at DESC`

	err := r.db.Select(&entries, query, jobID)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
