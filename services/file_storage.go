package services

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalImageStorage writes images into one directory and serves them under URLPrefix.
type LocalImageStorage struct {
	dir       string
	urlPrefix string
}

// NewLocalImageStorage creates the storage; urlPrefix defaults to "/uploads/".
func NewLocalImageStorage(dir, urlPrefix string) *LocalImageStorage {
	if urlPrefix == "" {
		urlPrefix = "/uploads/"
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &LocalImageStorage{dir: dir, urlPrefix: urlPrefix}
}

// Dir is the directory files are written to.
func (s *LocalImageStorage) Dir() string { return s.dir }

// URLPrefix is the public path prefix of stored files.
func (s *LocalImageStorage) URLPrefix() string { return s.urlPrefix }

// Store writes the upload under a random name that keeps the original extension.
func (s *LocalImageStorage) Store(upload *ImageUpload) (string, error) {
	if upload.IsEmpty() {
		return "", ErrEmptyUpload
	}
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(upload.Data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotAnImage
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(upload.Filename)))
	if err := os.WriteFile(filepath.Join(s.dir, name), upload.Data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return s.urlPrefix + name, nil
}

// DeleteByURL removes the file behind url. URLs outside the prefix and missing
// files are ignored; only real I/O failures are returned.
func (s *LocalImageStorage) DeleteByURL(url string) error {
	if !strings.HasPrefix(url, s.urlPrefix) {
		return nil
	}
	name := filepath.Base(strings.TrimPrefix(url, s.urlPrefix))
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("delete %s: %w", url, err)
}

// RemoveStoredImages deletes every url best-effort and returns the failures.
func RemoveStoredImages(storage ImageStorage, urls []string) []error {
	var failures []error
	for _, u := range urls {
		if err := storage.DeleteByURL(u); err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}
