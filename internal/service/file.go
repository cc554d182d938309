package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/proptly/mediaflow/internal/apperr"
	"github.com/proptly/mediaflow/internal/model"
	"github.com/proptly/mediaflow/internal/repository"
	"github.com/proptly/mediaflow/internal/storage"
	"github.com/proptly/mediaflow/internal/thumbnail"
)

// UploadRequest describes a file the client wants to upload.
type UploadRequest struct {
	FileName      string
	ContentType   string
	FileSizeBytes int64
	Category      string
	MediaKind     string
}

func (r UploadRequest) validate() error {
	switch {
	case r.FileName == "":
		return fmt.Errorf("%w: fileName is required", apperr.ErrValidation)
	case r.ContentType == "":
		return fmt.Errorf("%w: contentType is required", apperr.ErrValidation)
	case r.FileSizeBytes <= 0:
		return fmt.Errorf("%w: fileSize must be positive", apperr.ErrValidation)
	case !model.ValidCategory(r.Category):
		return fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, r.Category)
	case !model.ValidMediaKind(r.MediaKind):
		return fmt.Errorf("%w: unknown media kind %q", apperr.ErrValidation, r.MediaKind)
	}
	return nil
}

// UploadTarget is the negotiated destination for one upload attempt.
// Consumed once; never persisted.
type UploadTarget struct {
	StorageKey  string    `json:"storageKey"`
	UploadURL   string    `json:"uploadUrl,omitempty"`
	Direct      bool      `json:"direct"`
	ContentType string    `json:"contentType"`
	MediaKind   string    `json:"mediaKind"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// StorageRef points the processor at bytes already at rest.
type StorageRef struct {
	StorageKey string
	UploadRequest
}

// FileView is a listing row with derived signed URLs.
type FileView struct {
	*model.File
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// FileService coordinates the upload pipeline: negotiating upload
// targets, processing files once their bytes are at rest, and issuing
// access-checked download URLs.
type FileService struct {
	fileRepo        repository.FileRepository
	jobService      *JobService
	activityService *ActivityService
	storage         storage.Storage
	thumbs          *thumbnail.Generator
	downloadExpiry  time.Duration

	now func() time.Time // injectable for key determinism tests
}

func NewFileService(
	fileRepo repository.FileRepository,
	jobService *JobService,
	activityService *ActivityService,
	store storage.Storage,
	thumbs *thumbnail.Generator,
	downloadExpiry time.Duration,
) *FileService {
	return &FileService{
		fileRepo:        fileRepo,
		jobService:      jobService,
		activityService: activityService,
		storage:         store,
		thumbs:          thumbs,
		downloadExpiry:  downloadExpiry,
		now:             time.Now,
	}
}

// NegotiateUpload validates the descriptor, derives a storage key and
// asks the backend for an upload credential. When the backend cannot
// presign, the target directs the client to the server-mediated path.
func (s *FileService) NegotiateUpload(ctx context.Context, jobID string, req UploadRequest) (*UploadTarget, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if _, err := s.jobService.ByID(jobID); err != nil {
		return nil, err
	}

	key := s.storageKey(jobID, req.MediaKind, req.FileName)

	cred, err := s.storage.IssueUploadCredential(ctx, key, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to issue upload credential: %w", err)
	}

	return &UploadTarget{
		StorageKey:  cred.StorageKey,
		UploadURL:   cred.URL,
		Direct:      cred.Direct,
		ContentType: req.ContentType,
		MediaKind:   req.MediaKind,
		ExpiresAt:   cred.ExpiresAt,
	}, nil
}

// storageKey builds the deterministic object key for an upload attempt.
// Collisions within the same job, kind and millisecond are accepted risk.
func (s *FileService) storageKey(jobID, mediaKind, fileName string) string {
	return fmt.Sprintf("jobs/%s/%s/%d-%s", jobID, mediaKind, s.now().UnixMilli(), SanitizeFileName(fileName))
}

// SanitizeFileName strips path components and replaces characters that
// are unsafe in object keys.
func SanitizeFileName(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		out = "file"
	}
	return out
}

// ProcessUpload runs the post-upload steps for bytes confirmed at rest:
// derive a thumbnail for images, persist the metadata record, append an
// activity entry, and advance the owning job when the file is finished
// media. Thumbnail failures are logged and swallowed; the upload itself
// still succeeds. Calling it twice with the same reference creates two
// records.
func (s *FileService) ProcessUpload(ctx context.Context, jobID string, actor *model.User, ref StorageRef) (*model.File, bool, error) {
	if ref.StorageKey == "" {
		return nil, false, fmt.Errorf("%w: storageKey is required", apperr.ErrValidation)
	}
	if err := ref.validate(); err != nil {
		return nil, false, err
	}

	job, err := s.jobService.ByID(jobID)
	if err != nil {
		return nil, false, err
	}

	var thumbKey *string
	if thumbnail.Supported(ref.ContentType) {
		key, thumbErr := s.generateThumbnail(ctx, ref.StorageKey)
		if thumbErr != nil {
			slog.Warn("thumbnail generation failed, continuing without",
				"error", thumbErr, "storage_key", ref.StorageKey)
		} else {
			thumbKey = &key
		}
	}

	file := &model.File{
		ID:           uuid.New().String(),
		JobID:        job.ID,
		UploaderID:   actor.ID,
		FileName:     SanitizeFileName(ref.FileName),
		OriginalName: ref.FileName,
		ContentType:  ref.ContentType,
		SizeBytes:    ref.FileSizeBytes,
		MediaKind:    ref.MediaKind,
		Category:     ref.Category,
		StorageKey:   ref.StorageKey,
		ThumbnailKey: thumbKey,
		CreatedAt:    s.now(),
	}

	err = s.fileRepo.Create(file)
	if err != nil {
		// The original object stays put so the client can retry
		// processing, but a derived thumbnail is ours to clean up.
		if thumbKey != nil {
			if delErr := s.storage.Delete(ctx, *thumbKey); delErr != nil {
				slog.Error("failed to delete thumbnail during cleanup", "error", delErr, "key", *thumbKey)
			}
		}
		slog.Error("metadata write failed, object is orphaned until reprocessed",
			"error", err, "storage_key", ref.StorageKey)
		return nil, false, fmt.Errorf("failed to create file record: %w", err)
	}

	s.activityService.Record(job.ID, actor.ID, model.ActionUpload,
		fmt.Sprintf("%s uploaded %s (%s)", actor.Name, file.OriginalName, file.MediaKind),
		map[string]any{
			"file_id":     file.ID,
			"storage_key": file.StorageKey,
			"size_bytes":  file.SizeBytes,
			"category":    file.Category,
		},
	)

	if file.MediaKind == model.MediaKindFinished {
		err = s.jobService.AdvanceOnFinishedUpload(job, actor.ID)
		if err != nil {
			slog.Error("failed to advance job status after finished upload", "error", err, "job_id", job.ID)
		}
	}

	return file, thumbKey != nil, nil
}

// generateThumbnail reads the original back, renders the preview and
// stores it under the derived key.
func (s *FileService) generateThumbnail(ctx context.Context, storageKey string) (string, error) {
	data, err := s.storage.Read(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("read original: %w", err)
	}

	thumb, err := s.thumbs.Generate(data)
	if err != nil {
		return "", err
	}

	key := thumbnail.Key(storageKey)
	err = s.storage.Save(ctx, key, bytes.NewReader(thumb))
	if err != nil {
		return "", fmt.Errorf("save thumbnail: %w", err)
	}

	return key, nil
}

// Upload is the server-mediated path: bytes arrive in the request body,
// are written to storage, then run through the same processor.
func (s *FileService) Upload(ctx context.Context, jobID string, actor *model.User, req UploadRequest, r io.Reader) (*model.File, bool, error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}

	if _, err := s.jobService.ByID(jobID); err != nil {
		return nil, false, err
	}

	key := s.storageKey(jobID, req.MediaKind, req.FileName)

	err := s.storage.Save(ctx, key, r)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save file: %w", err)
	}

	file, thumbGenerated, err := s.ProcessUpload(ctx, jobID, actor, StorageRef{
		StorageKey:    key,
		UploadRequest: req,
	})
	if err != nil {
		// The server wrote these bytes, so it cleans them up too.
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			slog.Error("failed to delete file from storage during cleanup", "error", delErr, "key", key)
		}
		return nil, false, err
	}

	return file, thumbGenerated, nil
}

// DownloadURL mints a time-limited URL for the file's bytes, but only
// for the original uploader or a principal in the owning job's licensee
// scope. Every successful retrieval is recorded best-effort.
func (s *FileService) DownloadURL(ctx context.Context, fileID string, requester *model.User) (string, *model.File, error) {
	file, err := s.fileRepo.ByID(fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return "", nil, fmt.Errorf("%w: file %q", apperr.ErrNotFound, fileID)
		}
		return "", nil, fmt.Errorf("failed to get file: %w", err)
	}

	job, err := s.jobService.ByID(file.JobID)
	if err != nil {
		return "", nil, err
	}

	if requester.ID != file.UploaderID && requester.LicenseeID != job.LicenseeID {
		return "", nil, fmt.Errorf("%w: file %q belongs to another licensee", apperr.ErrForbidden, fileID)
	}

	url, err := s.storage.IssueDownloadCredential(ctx, file.StorageKey, s.downloadExpiry)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue download credential: %w", err)
	}

	s.activityService.Record(job.ID, requester.ID, model.ActionDownload,
		fmt.Sprintf("%s downloaded %s", requester.Name, file.OriginalName),
		map[string]any{"file_id": file.ID},
	)

	return url, file, nil
}

// FileURL presigns a URL for a freshly processed file. Best effort; an
// empty string means the client should ask for a download URL later.
func (s *FileService) FileURL(ctx context.Context, file *model.File) string {
	url, err := s.storage.IssueDownloadCredential(ctx, file.StorageKey, s.downloadExpiry)
	if err != nil {
		slog.Warn("failed to presign file URL", "error", err, "file_id", file.ID)
		return ""
	}
	return url
}

// JobFiles lists the job's stored files with derived signed URLs.
// Presign failures leave the URL empty rather than failing the listing.
func (s *FileService) JobFiles(ctx context.Context, jobID string) ([]*FileView, error) {
	if _, err := s.jobService.ByID(jobID); err != nil {
		return nil, err
	}

	files, err := s.fileRepo.ByJob(jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	views := make([]*FileView, 0, len(files))
	for _, f := range files {
		view := &FileView{File: f}

		url, urlErr := s.storage.IssueDownloadCredential(ctx, f.StorageKey, s.downloadExpiry)
		if urlErr != nil {
			slog.Warn("failed to presign file URL", "error", urlErr, "file_id", f.ID)
		} else {
			view.URL = url
		}

		if f.ThumbnailKey != nil {
			thumbURL, thumbErr := s.storage.IssueDownloadCredential(ctx, *f.ThumbnailKey, s.downloadExpiry)
			if thumbErr != nil {
				slog.Warn("failed to presign thumbnail URL", "error", thumbErr, "file_id", f.ID)
			} else {
				view.ThumbnailURL = thumbURL
			}
		}

		views = append(views, view)
	}

	return views, nil
}
