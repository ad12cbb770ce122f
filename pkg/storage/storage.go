package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore stores admission artifacts by key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by stores that can issue their own download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// CleanKey normalises an object key and rejects keys escaping the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", errors.New("object key required")
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", errors.New("object key required")
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", errors.New("object key must not traverse directories")
		}
	}
	return cleaned, nil
}
