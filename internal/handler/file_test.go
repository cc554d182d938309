package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proptly/mediaflow/internal/chunk"
	"github.com/proptly/mediaflow/internal/ctxkeys"
	"github.com/proptly/mediaflow/internal/db"
	"github.com/proptly/mediaflow/internal/model"
	"github.com/proptly/mediaflow/internal/repository"
	"github.com/proptly/mediaflow/internal/service"
	"github.com/proptly/mediaflow/internal/storage"
	"github.com/proptly/mediaflow/internal/thumbnail"
)

type handlerEnv struct {
	handler  *FileHandler
	fileRepo repository.FileRepository
	user     *model.User
	job      *model.Job
}

func newHandlerEnv(t *testing.T) *handlerEnv {
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

	activityService := service.NewActivityService(activityRepo)
	jobService := service.NewJobService(jobRepo, activityService)
	fileService := service.NewFileService(fileRepo, jobService, activityService, store,
		thumbnail.NewGenerator(120, 80), time.Hour)

	arena := chunk.NewArena(time.Minute)
	t.Cleanup(arena.Close)

	user := &model.User{
		ID:         uuid.New().String(),
		Name:       "Test User",
		Email:      "test@example.com",
		Role:       model.RolePhotographer,
		LicenseeID: "lic-1",
		CreatedAt:  time.Now(),
	}
	require.NoError(t, userRepo.Create(user))

	job := &model.Job{
		ID:         uuid.New().String(),
		LicenseeID: "lic-1",
		Address:    "1 Test Street",
		Status:     model.JobStatusEditing,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, jobRepo.Create(job))

	return &handlerEnv{
		handler:  NewFileHandler(fileService, arena),
		fileRepo: fileRepo,
		user:     user,
		job:      job,
	}
}

func (e *handlerEnv) request(t *testing.T, method, target string, body *bytes.Buffer, contentType string) *http.Request {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	r := httptest.NewRequest(method, target, body)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	r.SetPathValue("jobID", e.job.ID)
	return r.WithContext(ctxkeys.WithUser(context.Background(), e.user))
}

func pngUpload(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fileName string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNegotiateUpload(t *testing.T) {
	env := newHandlerEnv(t)

	body := bytes.NewBufferString(`{
		"fileName": "house.png",
		"contentType": "image/png",
		"fileSize": 1024,
		"category": "photography",
		"mediaType": "finished"
	}`)
	rec := httptest.NewRecorder()
	env.handler.NegotiateUpload(rec, env.request(t, http.MethodPost, "/api/jobs/x/upload-url", body, "application/json"))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Contains(t, resp["storageKey"], "jobs/"+env.job.ID+"/finished/")
	// Local storage has nothing to presign.
	assert.Equal(t, false, resp["direct"])
}

func TestNegotiateUploadBadJSON(t *testing.T) {
	env := newHandlerEnv(t)

	rec := httptest.NewRecorder()
	env.handler.NegotiateUpload(rec, env.request(t, http.MethodPost, "/u", bytes.NewBufferString("{nope"), "application/json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decodeJSON(t, rec)["success"])
}

func TestNegotiateUploadInvalidDescriptor(t *testing.T) {
	env := newHandlerEnv(t)

	body := bytes.NewBufferString(`{"fileName": "house.png"}`)
	rec := httptest.NewRecorder()
	env.handler.NegotiateUpload(rec, env.request(t, http.MethodPost, "/u", body, "application/json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadFile(t *testing.T) {
	env := newHandlerEnv(t)

	data := pngUpload(t)
	body, contentType := multipartBody(t, "house.png", data, map[string]string{
		"category":  "photography",
		"mediaType": "finished",
	})

	rec := httptest.NewRecorder()
	env.handler.UploadFile(rec, env.request(t, http.MethodPost, "/u", body, contentType))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, true, resp["thumbnailGenerated"])
	assert.NotEmpty(t, resp["downloadUrl"])

	files, err := env.fileRepo.ByJob(env.job.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "house.png", files[0].OriginalName)
}

func TestUploadFileRejectsDisallowedType(t *testing.T) {
	env := newHandlerEnv(t)

	body, contentType := multipartBody(t, "malware.exe", []byte("MZ\x90\x00"), map[string]string{
		"category":  "photography",
		"mediaType": "raw",
	})

	rec := httptest.NewRecorder()
	env.handler.UploadFile(rec, env.request(t, http.MethodPost, "/u", body, contentType))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadChunkFlow(t *testing.T) {
	env := newHandlerEnv(t)

	data := pngUpload(t)
	total := len(data)
	split := total / 2

	send := func(start, end int, segment []byte) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, "house.png", segment, map[string]string{
			"fileName":    "house.png",
			"contentType": "image/png",
			"category":    "photography",
			"mediaType":   "finished",
		})
		r := env.request(t, http.MethodPost, "/u", body, contentType)
		r.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
		rec := httptest.NewRecorder()
		env.handler.UploadChunk(rec, r)
		return rec
	}

	// Second half first; completion must wait for every byte.
	rec := send(split, total-1, data[split:])
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON(t, rec)
	assert.Equal(t, false, resp["complete"])
	assert.Equal(t, float64(total-split), resp["received"])

	rec = send(0, split-1, data[:split])
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decodeJSON(t, rec)
	assert.Equal(t, true, resp["complete"])
	assert.Equal(t, true, resp["thumbnailGenerated"])

	files, err := env.fileRepo.ByJob(env.job.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(total), files[0].SizeBytes)
}

func TestUploadChunkMissingContentRange(t *testing.T) {
	env := newHandlerEnv(t)

	body, contentType := multipartBody(t, "house.png", []byte("abc"), nil)
	rec := httptest.NewRecorder()
	env.handler.UploadChunk(rec, env.request(t, http.MethodPost, "/u", body, contentType))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadChunkSizeMismatch(t *testing.T) {
	env := newHandlerEnv(t)

	body, contentType := multipartBody(t, "house.png", []byte("abc"), map[string]string{"fileName": "house.png"})
	r := env.request(t, http.MethodPost, "/u", body, contentType)
	r.Header.Set("Content-Range", "bytes 0-9/20")
	rec := httptest.NewRecorder()
	env.handler.UploadChunk(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessFileUnknownJob(t *testing.T) {
	env := newHandlerEnv(t)

	body := bytes.NewBufferString(`{
		"storageKey": "jobs/x/finished/1-a.png",
		"fileName": "a.png",
		"contentType": "image/png",
		"fileSize": 10,
		"category": "photography",
		"mediaType": "finished"
	}`)
	r := env.request(t, http.MethodPost, "/u", body, "application/json")
	r.SetPathValue("jobID", "missing")
	rec := httptest.NewRecorder()
	env.handler.ProcessFile(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobFiles(t *testing.T) {
	env := newHandlerEnv(t)

	data := pngUpload(t)
	body, contentType := multipartBody(t, "house.png", data, map[string]string{
		"category":  "photography",
		"mediaType": "raw",
	})
	rec := httptest.NewRecorder()
	env.handler.UploadFile(rec, env.request(t, http.MethodPost, "/u", body, contentType))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.ListJobFiles(rec, env.request(t, http.MethodGet, "/f", nil, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON(t, rec)
	files, ok := resp["files"].([]any)
	require.True(t, ok)
	assert.Len(t, files, 1)
}

func TestDownloadForbiddenAcrossLicensees(t *testing.T) {
	env := newHandlerEnv(t)

	data := pngUpload(t)
	body, contentType := multipartBody(t, "house.png", data, map[string]string{
		"category":  "photography",
		"mediaType": "raw",
	})
	rec := httptest.NewRecorder()
	env.handler.UploadFile(rec, env.request(t, http.MethodPost, "/u", body, contentType))
	require.Equal(t, http.StatusOK, rec.Code)

	files, err := env.fileRepo.ByJob(env.job.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)

	outsider := &model.User{ID: "outsider", Name: "Out Sider", LicenseeID: "lic-other", Role: model.RoleEditor}
	r := httptest.NewRequest(http.MethodGet, "/d", nil)
	r.SetPathValue("fileID", files[0].ID)
	r = r.WithContext(ctxkeys.WithUser(context.Background(), outsider))

	rec = httptest.NewRecorder()
	env.handler.Download(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownload(t *testing.T) {
	env := newHandlerEnv(t)

	data := pngUpload(t)
	body, contentType := multipartBody(t, "house.png", data, map[string]string{
		"category":  "photography",
		"mediaType": "raw",
	})
	rec := httptest.NewRecorder()
	env.handler.UploadFile(rec, env.request(t, http.MethodPost, "/u", body, contentType))
	require.Equal(t, http.StatusOK, rec.Code)

	files, err := env.fileRepo.ByJob(env.job.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)

	r := httptest.NewRequest(http.MethodGet, "/d", nil)
	r.SetPathValue("fileID", files[0].ID)
	r = r.WithContext(ctxkeys.WithUser(context.Background(), env.user))

	rec = httptest.NewRecorder()
	env.handler.Download(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON(t, rec)
	url, _ := resp["downloadUrl"].(string)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/files/"))
	assert.Equal(t, "house.png", resp["fileName"])
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header  string
		start   int64
		end     int64
		total   int64
		wantErr bool
	}{
		{"bytes 0-99/1000", 0, 99, 1000, false},
		{"bytes 900-999/1000", 900, 999, 1000, false},
		{"", 0, 0, 0, true},
		{"0-99/1000", 0, 0, 0, true},
		{"bytes 99-0/1000", 0, 0, 0, true},
		{"bytes 0-999/500", 0, 0, 0, true},
		{"bytes a-b/c", 0, 0, 0, true},
		{"bytes 0-99", 0, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			start, end, total, err := parseContentRange(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
			assert.Equal(t, tt.total, total)
		})
	}
}
