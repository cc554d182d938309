package service

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/proptly/mediaflow/internal/model"
	"github.com/proptly/mediaflow/internal/repository"
)

// ActivityService appends audit entries. Writes are best-effort: a
// failed append is logged and never blocks the primary operation.
type ActivityService struct {
	activityRepo repository.ActivityRepository
}

func NewActivityService(activityRepo repository.ActivityRepository) *ActivityService {
	return &ActivityService{activityRepo: activityRepo}
}

// Record appends an entry. metadata may be nil.
func (s *ActivityService) Record(jobID, actorID, action, description string, metadata map[string]any) {
	blob := "{}"
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			slog.Warn("failed to marshal activity metadata", "error", err, "job_id", jobID, "action", action)
		} else {
			blob = string(b)
		}
	}

	entry := &model.ActivityEntry{
		ID:          uuid.New().String(),
		JobID:       jobID,
		ActorID:     actorID,
		Action:      action,
		Description: description,
		Metadata:    blob,
		CreatedAt:   time.Now(),
	}

	err := s.activityRepo.Append(entry)
	if err != nil {
		slog.Warn("failed to append activity entry", "error", err, "job_id", jobID, "action", action)
	}
}

// ByJob returns the job's activity entries, newest first.
func (s *ActivityService) ByJob(jobID string) ([]*model.ActivityEntry, error) {
	return s.activityRepo.ByJob(jobID)
}
