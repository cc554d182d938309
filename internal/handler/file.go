package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/proptly/mediaflow/internal/apperr"
	"github.com/proptly/mediaflow/internal/chunk"
	"github.com/proptly/mediaflow/internal/ctxkeys"
	"github.com/proptly/mediaflow/internal/service"
	"github.com/proptly/mediaflow/internal/validation"
)

type FileHandler struct {
	fileService *service.FileService
	arena       *chunk.Arena
}

func NewFileHandler(fileService *service.FileService, arena *chunk.Arena) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		arena:       arena,
	}
}

type negotiateRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
	Category    string `json:"category"`
	MediaType   string `json:"mediaType"`
}

// NegotiateUpload returns an upload target for a declared file. The
// declared size and type are trusted as stated; only presence is checked.
func (h *FileHandler) NegotiateUpload(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")

	var req negotiateRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid JSON body", apperr.ErrValidation))
		return
	}

	target, err := h.fileService.NegotiateUpload(r.Context(), jobID, service.UploadRequest{
		FileName:      req.FileName,
		ContentType:   req.ContentType,
		FileSizeBytes: req.FileSize,
		Category:      req.Category,
		MediaKind:     req.MediaType,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"storageKey":  target.StorageKey,
		"uploadUrl":   target.UploadURL,
		"direct":      target.Direct,
		"contentType": target.ContentType,
		"mediaType":   target.MediaKind,
		"expiresAt":   target.ExpiresAt,
	})
}

// UploadFile is the server-mediated multipart path.
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	actor := ctxkeys.User(r.Context())

	err := r.ParseMultipartForm(64 << 20) // larger bodies spool to disk
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: failed to parse form: %v", apperr.ErrValidation, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: no file uploaded", apperr.ErrValidation))
		return
	}
	defer func() { _ = file.Close() }()

	err = validation.ValidateFile(header,
		validation.ImageConstraints,
		validation.FloorPlanConstraints,
		validation.VideoConstraints,
	)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	contentType := header.Header.Get("Content-Type")

	record, thumbnailGenerated, err := h.fileService.Upload(r.Context(), jobID, actor, service.UploadRequest{
		FileName:      header.Filename,
		ContentType:   contentType,
		FileSizeBytes: header.Size,
		Category:      r.FormValue("category"),
		MediaKind:     r.FormValue("mediaType"),
	}, file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"storageKey":         record.StorageKey,
		"downloadUrl":        h.fileService.FileURL(r.Context(), record),
		"fileName":           record.OriginalName,
		"fileSize":           record.SizeBytes,
		"contentType":        record.ContentType,
		"contentItem":        record,
		"thumbnailGenerated": thumbnailGenerated,
	})
}

type processRequest struct {
	StorageKey  string `json:"storageKey"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
	Category    string `json:"category"`
	MediaType   string `json:"mediaType"`
}

// ProcessFile runs the post-upload steps for bytes the client moved to
// storage directly.
func (h *FileHandler) ProcessFile(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	actor := ctxkeys.User(r.Context())

	var req processRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid JSON body", apperr.ErrValidation))
		return
	}

	record, thumbnailGenerated, err := h.fileService.ProcessUpload(r.Context(), jobID, actor, service.StorageRef{
		StorageKey: req.StorageKey,
		UploadRequest: service.UploadRequest{
			FileName:      req.FileName,
			ContentType:   req.ContentType,
			FileSizeBytes: req.FileSize,
			Category:      req.Category,
			MediaKind:     req.MediaType,
		},
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"contentItem":        record,
		"thumbnailGenerated": thumbnailGenerated,
	})
}

// UploadChunk accepts one Content-Range segment of a chunked upload and
// completes the upload once every byte has arrived.
func (h *FileHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	actor := ctxkeys.User(r.Context())

	start, end, total, err := parseContentRange(r.Header.Get("Content-Range"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	err = r.ParseMultipartForm(64 << 20)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: failed to parse form: %v", apperr.ErrValidation, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: no chunk uploaded", apperr.ErrValidation))
		return
	}
	defer func() { _ = file.Close() }()

	fileName := r.FormValue("fileName")
	if fileName == "" {
		fileName = header.Filename
	}
	if fileName == "" {
		respondError(w, r, fmt.Errorf("%w: fileName is required", apperr.ErrValidation))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: read chunk: %v", apperr.ErrStorage, err))
		return
	}
	if int64(len(data)) != end-start+1 {
		respondError(w, r, fmt.Errorf("%w: chunk size %d does not match declared range %d-%d", apperr.ErrValidation, len(data), start, end))
		return
	}

	// One session per job, uploader and file name.
	sessionKey := jobID + "|" + actor.ID + "|" + fileName

	received, declaredTotal, complete, err := h.arena.Add(sessionKey, start, data, total)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if !complete {
		respondJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"received": received,
			"total":    declaredTotal,
			"complete": false,
		})
		return
	}

	assembled, err := h.arena.Assemble(sessionKey)
	if err != nil {
		respondError(w, r, err)
		return
	}

	contentType := r.FormValue("contentType")
	if contentType == "" {
		contentType = http.DetectContentType(assembled)
	}

	record, thumbnailGenerated, err := h.fileService.Upload(r.Context(), jobID, actor, service.UploadRequest{
		FileName:      fileName,
		ContentType:   contentType,
		FileSizeBytes: int64(len(assembled)),
		Category:      r.FormValue("category"),
		MediaKind:     r.FormValue("mediaType"),
	}, bytes.NewReader(assembled))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"received":           received,
		"total":              declaredTotal,
		"complete":           true,
		"contentItem":        record,
		"downloadUrl":        h.fileService.FileURL(r.Context(), record),
		"thumbnailGenerated": thumbnailGenerated,
	})
}

// ListJobFiles returns the job's stored files with signed URLs.
func (h *FileHandler) ListJobFiles(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")

	files, err := h.fileService.JobFiles(r.Context(), jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"files":   files,
	})
}

// Download mints a signed download URL, enforcing uploader/licensee
// ownership.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	requester := ctxkeys.User(r.Context())

	url, file, err := h.fileService.DownloadURL(r.Context(), fileID, requester)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"downloadUrl": url,
		"fileName":    file.OriginalName,
		"contentType": file.ContentType,
	})
}

// parseContentRange parses "bytes start-end/total".
func parseContentRange(header string) (start, end, total int64, err error) {
	if header == "" {
		return 0, 0, 0, fmt.Errorf("%w: Content-Range header is required", apperr.ErrValidation)
	}

	var rangePart, totalPart string
	rest, ok := strings.CutPrefix(header, "bytes ")
	if ok {
		rangePart, totalPart, ok = strings.Cut(rest, "/")
	}
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: malformed Content-Range %q", apperr.ErrValidation, header)
	}

	startStr, endStr, ok := strings.Cut(rangePart, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: malformed Content-Range %q", apperr.ErrValidation, header)
	}

	start, err = strconv.ParseInt(startStr, 10, 64)
	if err == nil {
		end, err = strconv.ParseInt(endStr, 10, 64)
	}
	if err == nil {
		total, err = strconv.ParseInt(totalPart, 10, 64)
	}
	if err != nil || start < 0 || end < start || total <= end {
		return 0, 0, 0, fmt.Errorf("%w: invalid Content-Range %q", apperr.ErrValidation, header)
	}

	return start, end, total, nil
}
