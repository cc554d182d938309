package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/proptly/mediaflow/internal/apperr"
	"github.com/proptly/mediaflow/internal/model"
	"github.com/proptly/mediaflow/internal/repository"
)

// forwardTransitions maps a job status to the status a finished-file
// upload advances it to. Statuses not listed stay where they are.
var forwardTransitions = map[string]string{
	model.JobStatusEditing: model.JobStatusReadyForQA,
}

// JobService owns job lookups and workflow status transitions.
type JobService struct {
	jobRepo         repository.JobRepository
	activityService *ActivityService
}

func NewJobService(jobRepo repository.JobRepository, activityService *ActivityService) *JobService {
	return &JobService{
		jobRepo:         jobRepo,
		activityService: activityService,
	}
}

func (s *JobService) ByID(id string) (*model.Job, error) {
	job, err := s.jobRepo.ByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, fmt.Errorf("%w: job %q", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// AdvanceOnFinishedUpload moves the job forward after a finished file
// lands, and records the transition. Jobs outside a transitioning
// status are left untouched.
func (s *JobService) AdvanceOnFinishedUpload(job *model.Job, actorID string) error {
	next, ok := forwardTransitions[job.Status]
	if !ok {
		slog.Debug("job status not advanced by finished upload", "job_id", job.ID, "status", job.Status)
		return nil
	}

	err := s.jobRepo.UpdateStatus(job.ID, next)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	s.activityService.Record(job.ID, actorID, model.ActionStatusChange,
		fmt.Sprintf("job status changed from %s to %s", job.Status, next),
		map[string]any{"from": job.Status, "to": next},
	)

	slog.Info("job status advanced", "job_id", job.ID, "from", job.Status, "to", next)
	job.Status = next
	return nil
}
