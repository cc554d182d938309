package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/proptly/mediaflow/internal/apperr"
)

// LocalStorage implements Storage on the local filesystem. Used for
// development and tests; uploads always go through the server since
// there is nothing to presign.
type LocalStorage struct {
	basePath string
	baseURL  string
}

func NewLocalStorage(basePath, baseURL string) *LocalStorage {
	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// IssueUploadCredential returns a server-mediated credential: the client
// must POST bytes to the upload endpoint instead of PUTting directly.
func (l *LocalStorage) IssueUploadCredential(_ context.Context, key, _ string) (*UploadCredential, error) {
	return &UploadCredential{
		StorageKey: key,
		Direct:     false,
	}, nil
}

func (l *LocalStorage) IssueDownloadCredential(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, err := os.Stat(l.path(key)); err != nil {
		return "", fmt.Errorf("%w: stat %q: %v", apperr.ErrStorage, key, err)
	}
	return l.baseURL + "/files/" + key, nil
}

func (l *LocalStorage) Save(_ context.Context, key string, r io.Reader) error {
	path := l.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: mkdir for %q: %v", apperr.ErrStorage, key, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %q: %v", apperr.ErrStorage, key, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("%w: write %q: %v", apperr.ErrStorage, key, err)
	}

	return nil
}

func (l *LocalStorage) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q does not exist", apperr.ErrStorage, key)
		}
		return nil, fmt.Errorf("%w: read %q: %v", apperr.ErrStorage, key, err)
	}
	return data, nil
}

func (l *LocalStorage) Delete(_ context.Context, key string) error {
	err := os.Remove(l.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete %q: %v", apperr.ErrStorage, key, err)
	}
	return nil
}

func (l *LocalStorage) path(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}
