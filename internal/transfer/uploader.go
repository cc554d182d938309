// Package transfer is the client side of the upload pipeline: it moves
// bytes to a negotiated destination with progress reporting, retries
// with backoff, and falls back to the server-mediated chunked path when
// the direct route keeps failing.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/proptly/mediaflow/internal/apperr"
)

// Status of a transfer attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusRetrying  Status = "retrying"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Attempt is the client-local, in-memory state of one file transfer.
// It is discarded when the transfer finishes; nothing here survives a
// process restart.
type Attempt struct {
	FileName   string
	BytesSent  int64
	TotalBytes int64
	Status     Status
	Attempts   int
	LastErr    error
	FellBack   bool // true when the chunked server path completed the transfer
}

// Progress receives a 0-100 percentage on every network progress event.
type Progress func(percent int)

// Target is the negotiated destination for a single upload.
type Target struct {
	UploadURL  string
	StorageKey string
	Direct     bool
}

// Upload describes the file being moved.
type Upload struct {
	JobID       string
	FileName    string
	ContentType string
	Category    string
	MediaKind   string
	Data        []byte
}

// statusError carries an HTTP status for retry classification.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, strings.TrimSpace(e.body))
}

// IsRetryable classifies transfer failures. Network errors, timeouts,
// server errors and access/CORS-shaped rejections are retried; other
// client errors fail immediately.
func IsRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.code >= 500:
			return true
		case se.code == http.StatusForbidden, se.code == http.StatusRequestTimeout, se.code == http.StatusTooManyRequests:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, apperr.ErrTransferTimeout) {
		return true
	}
	// Anything that is not an HTTP status is a transport-level failure.
	return true
}

// Uploader executes transfers. Safe for concurrent use; each call gets
// its own Attempt.
type Uploader struct {
	client    *http.Client
	serverURL string // base URL for the chunked fallback, e.g. https://api.example.com
	authToken string
	policy    RetryPolicy
	chunkSize int64
	timeout   time.Duration // per-request timeout on the direct path
}

// Option configures an Uploader.
type Option func(*Uploader)

func WithHTTPClient(c *http.Client) Option { return func(u *Uploader) { u.client = c } }

func WithRetryPolicy(p RetryPolicy) Option { return func(u *Uploader) { u.policy = p } }

func WithChunkSize(n int64) Option { return func(u *Uploader) { u.chunkSize = n } }

func WithRequestTimeout(d time.Duration) Option { return func(u *Uploader) { u.timeout = d } }

func NewUploader(serverURL, authToken string, opts ...Option) *Uploader {
	u := &Uploader{
		client:    &http.Client{},
		serverURL: strings.TrimSuffix(serverURL, "/"),
		authToken: authToken,
		policy:    DefaultRetryPolicy(),
		chunkSize: 8 << 20, // 8MB
		timeout:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Do moves the upload's bytes to the target. Direct targets are PUT to
// the presigned URL with retries; when the direct path exhausts its
// attempts on a retryable failure, the transfer falls back to the
// server-mediated chunked endpoint. Cancel via ctx.
func (u *Uploader) Do(ctx context.Context, target Target, up Upload, progress Progress) *Attempt {
	att := &Attempt{
		FileName:   up.FileName,
		TotalBytes: int64(len(up.Data)),
		Status:     StatusPending,
	}

	if !target.Direct || target.UploadURL == "" {
		u.chunked(ctx, up, att, progress)
		return att
	}

	err := retry(ctx, u.policy, func(attempt int) {
		att.Attempts = attempt
		if attempt > 1 {
			att.Status = StatusRetrying
		} else {
			att.Status = StatusUploading
		}
	}, func() error {
		err := u.putOnce(ctx, target.UploadURL, up, att, progress)
		if err != nil {
			att.LastErr = err
		}
		return err
	})

	if err == nil {
		att.Status = StatusSuccess
		return att
	}

	att.LastErr = err
	if !IsRetryable(err) {
		att.Status = StatusError
		return att
	}

	// Primary exhausted on a retryable class: try the server proxy.
	u.chunked(ctx, up, att, progress)
	return att
}

// putOnce performs a single direct PUT against the presigned URL.
func (u *Uploader) putOnce(ctx context.Context, url string, up Upload, att *Attempt, progress Progress) error {
	reqCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	att.BytesSent = 0
	body := &progressReader{
		r:        bytes.NewReader(up.Data),
		total:    int64(len(up.Data)),
		att:      att,
		progress: progress,
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", up.ContentType)
	req.ContentLength = int64(len(up.Data))

	resp, err := u.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: PUT exceeded %s", apperr.ErrTransferTimeout, u.timeout)
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: string(b)}
	}

	return nil
}

// ChunkResult is the server's answer to a chunk POST.
type ChunkResult struct {
	Success  bool   `json:"success"`
	Received int64  `json:"received"`
	Total    int64  `json:"total"`
	Complete bool   `json:"complete"`
	FileID   string `json:"fileId,omitempty"`
}

// chunked streams the file to the server in Content-Range segments,
// retrying each segment independently.
func (u *Uploader) chunked(ctx context.Context, up Upload, att *Attempt, progress Progress) {
	if u.serverURL == "" {
		att.Status = StatusError
		if att.LastErr == nil {
			att.LastErr = errors.New("no server URL configured for chunked fallback")
		}
		return
	}

	att.FellBack = true
	total := int64(len(up.Data))
	att.BytesSent = 0

	for offset := int64(0); offset < total; offset += u.chunkSize {
		end := offset + u.chunkSize
		if end > total {
			end = total
		}
		segment := up.Data[offset:end]

		err := retry(ctx, u.policy, func(attempt int) {
			att.Attempts++
			if att.Attempts > 1 {
				att.Status = StatusRetrying
			} else {
				att.Status = StatusUploading
			}
		}, func() error {
			sendErr := u.postChunk(ctx, up, offset, end-1, total, segment)
			if sendErr != nil {
				att.LastErr = sendErr
			}
			return sendErr
		})
		if err != nil {
			att.LastErr = err
			att.Status = StatusError
			return
		}

		att.BytesSent += int64(len(segment))
		if progress != nil && total > 0 {
			progress(int(att.BytesSent * 100 / total))
		}
	}

	att.Status = StatusSuccess
}

// postChunk sends one byte range to the server.
func (u *Uploader) postChunk(ctx context.Context, up Upload, start, end, total int64, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", up.FileName)
	if err != nil {
		return err
	}
	if _, err = part.Write(data); err != nil {
		return err
	}
	_ = w.WriteField("fileName", up.FileName)
	_ = w.WriteField("contentType", up.ContentType)
	_ = w.WriteField("category", up.Category)
	_ = w.WriteField("mediaType", up.MediaKind)
	if err = w.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/jobs/%s/upload-file-chunk", u.serverURL, up.JobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	if u.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+u.authToken)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: string(b)}
	}

	var result ChunkResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode chunk response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("server rejected chunk at offset %d", start)
	}

	return nil
}

// progressReader reports cumulative bytes as the request body is read.
type progressReader struct {
	r        io.Reader
	total    int64
	att      *Attempt
	progress Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.att.BytesSent += int64(n)
		if p.progress != nil && p.total > 0 {
			p.progress(int(p.att.BytesSent * 100 / p.total))
		}
	}
	return n, err
}
