package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FilesRoute is where the API serves objects of a LocalBackend.
const FilesRoute = "/api/v1/storage/files/"

type LocalBackend struct {
	root    string
	baseURL string
}

// NewLocalBackend stores objects under root. baseURL prefixes the object
// URLs and may be empty for host-relative URLs.
func NewLocalBackend(root, baseURL string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalBackend{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (b *LocalBackend) Root() string {
	return b.root
}

// Path resolves key to a file inside the root.
func (b *LocalBackend) Path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(cleaned)), nil
}

func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return Object{}, err
	}
	dst := filepath.Join(b.root, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return Object{}, fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Object{}, fmt.Errorf("write object %s: %w", cleaned, err)
	}
	if size >= 0 && written != size {
		return Object{}, fmt.Errorf("write object %s: wrote %d bytes, expected %d", cleaned, written, size)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Object{}, fmt.Errorf("commit object %s: %w", cleaned, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Object{}, err
	}
	return Object{
		Key:          cleaned,
		Size:         info.Size(),
		ContentType:  contentType,
		URL:          b.URL(cleaned),
		LastModified: info.ModTime(),
	}, nil
}

func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	p, err := b.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// List returns the objects whose key starts with prefix, newest first.
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			Key:          key,
			Size:         info.Size(),
			URL:          b.URL(key),
			LastModified: info.ModTime(),
		})
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	return objects, nil
}

func (b *LocalBackend) URL(key string) string {
	return b.baseURL + FilesRoute + escapeKey(key)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
