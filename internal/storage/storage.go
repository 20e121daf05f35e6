// Package storage keeps saved strips in a local directory or an
// S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/boothbuddy/boothbuddy/internal/booth"
)

var (
	ErrInvalidKey = booth.E(booth.CodeBadRequest, "invalid storage key")
	ErrNotFound   = booth.E(booth.CodeNotFound, "object not found")
)

type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	URL          string    `json:"url"`
	LastModified time.Time `json:"last_modified"`
}

// Name is the last path element of the key.
func (o Object) Name() string {
	return path.Base(o.Key)
}

type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	URL(key string) string
}

// CleanKey normalises a slash-separated object key and rejects keys that
// would escape the store.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsRune(key, '\\') || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// StripKey is where a user's strip is stored.
func StripKey(userID, filename string) string {
	return userID + "/" + filename
}
