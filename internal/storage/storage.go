package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/proptly/mediaflow/internal/apperr"
	cfg "github.com/proptly/mediaflow/internal/config"
)

// UploadCredential authorizes a single upload. When Direct is true the
// client PUTs straight to URL; otherwise bytes go through the server.
type UploadCredential struct {
	StorageKey string
	URL        string
	ExpiresAt  time.Time
	Direct     bool
}

// Storage defines the interface for object storage backends.
// One concrete backend is picked per deployment via configuration.
type Storage interface {
	// IssueUploadCredential returns a credential for a single write to key.
	IssueUploadCredential(ctx context.Context, key, contentType string) (*UploadCredential, error)

	// IssueDownloadCredential returns a time-limited URL for reading key.
	IssueDownloadCredential(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Save stores bytes at key through the server.
	Save(ctx context.Context, key string, r io.Reader) error

	// Read returns the bytes stored at key.
	Read(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}

// New creates the storage backend selected by configuration. A missing
// or incomplete configuration yields the unconfigured backend, which
// fails every call at request time rather than blocking startup.
func New(c *cfg.Config) Storage {
	switch c.StorageDriver {
	case "local":
		return NewLocalStorage(c.LocalBasePath, c.AppURL)
	default:
		if !c.S3Configured() {
			return Unconfigured{}
		}
		s, err := NewS3Storage(S3Config{
			Region:                c.S3Region,
			Bucket:                c.S3Bucket,
			AccessKey:             c.S3AccessKey,
			SecretKey:             c.S3SecretKey,
			Endpoint:              c.S3Endpoint,
			PresignExpiryUpload:   c.PresignExpiryUpload,
			PresignExpiryDownload: c.PresignExpiryDownload,
		})
		if err != nil {
			return Unconfigured{}
		}
		return s
	}
}

// Unconfigured is the backend used when storage settings are absent.
type Unconfigured struct{}

func (Unconfigured) IssueUploadCredential(context.Context, string, string) (*UploadCredential, error) {
	return nil, fmt.Errorf("issue upload credential: %w", apperr.ErrConfiguration)
}

func (Unconfigured) IssueDownloadCredential(context.Context, string, time.Duration) (string, error) {
	return "", fmt.Errorf("issue download credential: %w", apperr.ErrConfiguration)
}

func (Unconfigured) Save(context.Context, string, io.Reader) error {
	return fmt.Errorf("save: %w", apperr.ErrConfiguration)
}

func (Unconfigured) Read(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("read: %w", apperr.ErrConfiguration)
}

func (Unconfigured) Delete(context.Context, string) error {
	return fmt.Errorf("delete: %w", apperr.ErrConfiguration)
}
