package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proptly/mediaflow/internal/apperr"
	"github.com/proptly/mediaflow/internal/db"
	"github.com/proptly/mediaflow/internal/model"
	"github.com/proptly/mediaflow/internal/repository"
	"github.com/proptly/mediaflow/internal/storage"
	"github.com/proptly/mediaflow/internal/thumbnail"
)

type testEnv struct {
	files    *FileService
	jobs     *JobService
	activity *ActivityService
	fileRepo repository.FileRepository
	jobRepo  repository.JobRepository
	userRepo repository.UserRepository
	store    storage.Storage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	database, err := db.Init("sqlite", filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database.DB, "sqlite"))

	fileRepo := repository.NewFileRepository(database)
	jobRepo := repository.NewJobRepository(database)
	userRepo := repository.NewUserRepository(database)
	activityRepo := repository.NewActivityRepository(database)

	store := storage.NewLocalStorage(filepath.Join(dir, "objects"), "http://localhost:8080")

	activityService := NewActivityService(activityRepo)
	jobService := NewJobService(jobRepo, activityService)
	fileService := NewFileService(fileRepo, jobService, activityService, store,
		thumbnail.NewGenerator(120, 80), time.Hour)

	return &testEnv{
		files:    fileService,
		jobs:     jobService,
		activity: activityService,
		fileRepo: fileRepo,
		jobRepo:  jobRepo,
		userRepo: userRepo,
		store:    store,
	}
}

func (e *testEnv) createUser(t *testing.T, role, licenseeID string) *model.User {
	t.Helper()
	user := &model.User{
		ID:         uuid.New().String(),
		Name:       "Test User",
		Email:      uuid.New().String() + "@example.com",
		Role:       role,
		LicenseeID: licenseeID,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, e.userRepo.Create(user))
	return user
}

func (e *testEnv) createJob(t *testing.T, licenseeID, status string) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:         uuid.New().String(),
		LicenseeID: licenseeID,
		Address:    "1 Test Street",
		Status:     status,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, e.jobRepo.Create(job))
	return job
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageRequest(name string, size int64) UploadRequest {
	return UploadRequest{
		FileName:      name,
		ContentType:   "image/png",
		FileSizeBytes: size,
		Category:      model.CategoryPhotography,
		MediaKind:     model.MediaKindFinished,
	}
}

func TestNegotiateUploadValidation(t *testing.T) {
	env := newTestEnv(t)
	job := env.createJob(t, "lic-1", model.JobStatusEditing)

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"missing file name", UploadRequest{ContentType: "image/png", FileSizeBytes: 1, Category: "photography", MediaKind: "raw"}},
		{"missing content type", UploadRequest{FileName: "a.png", FileSizeBytes: 1, Category: "photography", MediaKind: "raw"}},
		{"zero size", UploadRequest{FileName: "a.png", ContentType: "image/png", Category: "photography", MediaKind: "raw"}},
		{"bad category", UploadRequest{FileName: "a.png", ContentType: "image/png", FileSizeBytes: 1, Category: "selfies", MediaKind: "raw"}},
		{"bad media kind", UploadRequest{FileName: "a.png", ContentType: "image/png", FileSizeBytes: 1, Category: "photography", MediaKind: "polished"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.files.NegotiateUpload(context.Background(), job.ID, tt.req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestNegotiateUploadUnknownJob(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.files.NegotiateUpload(context.Background(), "no-such-job", imageRequest("a.png", 10))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNegotiateUploadKeyIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	job := env.createJob(t, "lic-1", model.JobStatusEditing)

	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	env.files.now = func() time.Time { return fixed }

	target, err := env.files.NegotiateUpload(context.Background(), job.ID, UploadRequest{
		FileName:      "../living room (final).png",
		ContentType:   "image/png",
		FileSizeBytes: 10,
		Category:      model.CategoryPhotography,
		MediaKind:     model.MediaKindFinished,
	})
	require.NoError(t, err)

	wantKey := "jobs/" + job.ID + "/finished/" +
		"1773480413000-living_room__final_.png"
	assert.Equal(t, wantKey, target.StorageKey)
	// Local storage cannot presign, so the client is told to go through
	// the server.
	assert.False(t, target.Direct)
	assert.Empty(t, target.UploadURL)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"../../etc/passwd", "passwd"},
		{"living room (final).png", "living_room__final_.png"},
		{"åäö.jpg", "___.jpg"},
		{"..", "file"},
		{"", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFileName(tt.in), tt.in)
	}
}

func TestUploadFinishedImageAdvancesJob(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RoleEditor, "lic-1")
	job := env.createJob(t, "lic-1", model.JobStatusEditing)

	img := pngBytes(t, 200, 100)
	file, thumbGenerated, err := env.files.Upload(context.Background(), job.ID, uploader,
		imageRequest("final.png", int64(len(img))), bytes.NewReader(img))
	require.NoError(t, err)

	assert.True(t, thumbGenerated)
	assert.Equal(t, "final.png", file.OriginalName)
	assert.Equal(t, uploader.ID, file.UploaderID)
	require.NotNil(t, file.ThumbnailKey)

	// Original and thumbnail are both at rest.
	stored, err := env.store.Read(context.Background(), file.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, img, stored)
	_, err = env.store.Read(context.Background(), *file.ThumbnailKey)
	require.NoError(t, err)

	// Finished media moves the job forward.
	updated, err := env.jobs.ByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusReadyForQA, updated.Status)

	// Audit trail: one upload entry, one status change.
	entries, err := env.activity.ByJob(job.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{model.ActionUpload, model.ActionStatusChange}, actions)
}

func TestUploadRawMediaDoesNotAdvanceJob(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RolePhotographer, "lic-1")
	job := env.createJob(t, "lic-1", model.JobStatusShooting)

	img := pngBytes(t, 64, 64)
	req := imageRequest("raw.png", int64(len(img)))
	req.MediaKind = model.MediaKindRaw

	_, _, err := env.files.Upload(context.Background(), job.ID, uploader, req, bytes.NewReader(img))
	require.NoError(t, err)

	updated, err := env.jobs.ByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusShooting, updated.Status)
}

func TestProcessUploadTwiceCreatesTwoRecords(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RoleEditor, "lic-1")
	job := env.createJob(t, "lic-1", model.JobStatusDelivered)

	img := pngBytes(t, 64, 64)
	key := "jobs/" + job.ID + "/finished/1-final.png"
	require.NoError(t, env.store.Save(context.Background(), key, bytes.NewReader(img)))

	ref := StorageRef{StorageKey: key, UploadRequest: imageRequest("final.png", int64(len(img)))}

	first, _, err := env.files.ProcessUpload(context.Background(), job.ID, uploader, ref)
	require.NoError(t, err)
	second, _, err := env.files.ProcessUpload(context.Background(), job.ID, uploader, ref)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	files, err := env.fileRepo.ByJob(job.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestProcessUploadMissingStorageKey(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RoleEditor, "lic-1")
	job := env.createJob(t, "lic-1", model.JobStatusEditing)

	_, _, err := env.files.ProcessUpload(context.Background(), job.ID, uploader,
		StorageRef{UploadRequest: imageRequest("a.png", 10)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestProcessUploadUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RoleEditor, "lic-1")

	_, _, err := env.files.ProcessUpload(context.Background(), "missing", uploader,
		StorageRef{StorageKey: "k", UploadRequest: imageRequest("a.png", 10)})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProcessUploadSwallowsThumbnailFailure(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RoleEditor, "lic-1")
	job := env.createJob(t, "lic-1", model.JobStatusDelivered)

	// Claims to be an image but is not decodable. The upload must still
	// be recorded.
	garbage := []byte("not an image at all")
	key := "jobs/" + job.ID + "/finished/1-broken.png"
	require.NoError(t, env.store.Save(context.Background(), key, bytes.NewReader(garbage)))

	file, thumbGenerated, err := env.files.ProcessUpload(context.Background(), job.ID, uploader,
		StorageRef{StorageKey: key, UploadRequest: imageRequest("broken.png", int64(len(garbage)))})
	require.NoError(t, err)
	assert.False(t, thumbGenerated)
	assert.Nil(t, file.ThumbnailKey)
}

func TestProcessUploadSkipsThumbnailForVideo(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RolePhotographer, "lic-1")
	job := env.createJob(t, "lic-1", model.JobStatusShooting)

	data := []byte("pretend mp4 bytes")
	key := "jobs/" + job.ID + "/raw/1-walkthrough.mp4"
	require.NoError(t, env.store.Save(context.Background(), key, bytes.NewReader(data)))

	_, thumbGenerated, err := env.files.ProcessUpload(context.Background(), job.ID, uploader, StorageRef{
		StorageKey: key,
		UploadRequest: UploadRequest{
			FileName:      "walkthrough.mp4",
			ContentType:   "video/mp4",
			FileSizeBytes: int64(len(data)),
			Category:      model.CategoryVideo,
			MediaKind:     model.MediaKindRaw,
		},
	})
	require.NoError(t, err)
	assert.False(t, thumbGenerated)
}

func TestDownloadURLAccess(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RolePhotographer, "lic-1")
	sameLicensee := env.createUser(t, model.RoleVA, "lic-1")
	outsider := env.createUser(t, model.RoleEditor, "lic-2")
	job := env.createJob(t, "lic-1", model.JobStatusDelivered)

	img := pngBytes(t, 32, 32)
	file, _, err := env.files.Upload(context.Background(), job.ID, uploader,
		imageRequest("house.png", int64(len(img))), bytes.NewReader(img))
	require.NoError(t, err)

	url, got, err := env.files.DownloadURL(context.Background(), file.ID, uploader)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Equal(t, file.ID, got.ID)

	_, _, err = env.files.DownloadURL(context.Background(), file.ID, sameLicensee)
	require.NoError(t, err)

	_, _, err = env.files.DownloadURL(context.Background(), file.ID, outsider)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, _, err = env.files.DownloadURL(context.Background(), "missing", uploader)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDownloadRecordsActivity(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RolePhotographer, "lic-1")
	job := env.createJob(t, "lic-1", model.JobStatusDelivered)

	img := pngBytes(t, 32, 32)
	file, _, err := env.files.Upload(context.Background(), job.ID, uploader,
		imageRequest("house.png", int64(len(img))), bytes.NewReader(img))
	require.NoError(t, err)

	_, _, err = env.files.DownloadURL(context.Background(), file.ID, uploader)
	require.NoError(t, err)

	entries, err := env.activity.ByJob(job.ID)
	require.NoError(t, err)
	var downloads int
	for _, e := range entries {
		if e.Action == model.ActionDownload {
			downloads++
		}
	}
	assert.Equal(t, 1, downloads)
}

func TestJobFiles(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RolePhotographer, "lic-1")
	job := env.createJob(t, "lic-1", model.JobStatusDelivered)

	img := pngBytes(t, 32, 32)
	_, _, err := env.files.Upload(context.Background(), job.ID, uploader,
		imageRequest("one.png", int64(len(img))), bytes.NewReader(img))
	require.NoError(t, err)

	views, err := env.files.JobFiles(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.NotEmpty(t, views[0].URL)
	assert.NotEmpty(t, views[0].ThumbnailURL)

	_, err = env.files.JobFiles(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUploadCleansUpOnUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, model.RolePhotographer, "lic-1")

	img := pngBytes(t, 32, 32)
	_, _, err := env.files.Upload(context.Background(), "missing", uploader,
		imageRequest("x.png", int64(len(img))), bytes.NewReader(img))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
