// Package file implements the JSON-file and binary-file storage providers.
// Each owns one flat directory holding <key><extension> files.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"persistence-engine/internal/storage"
)

const tempPattern = ".tmp-*"

// fileStore maps keys onto files in root. Every blocking call is run through
// offload.
type fileStore struct {
	root string
	ext  string
}

func newFileStore(root, ext string) (*fileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if !strings.HasPrefix(ext, ".") {
		return nil, fmt.Errorf("file extension must start with a dot: %q", ext)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &fileStore{root: filepath.Clean(root), ext: ext}, nil
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.root, key+s.ext)
}

// write replaces the file for key atomically.
func (s *fileStore) write(ctx context.Context, key string, data []byte) error {
	_, err := offload(ctx, func() (struct{}, error) {
		tmp, err := os.CreateTemp(s.root, tempPattern)
		if err != nil {
			return struct{}{}, err
		}
		tmpName := tmp.Name()
		defer os.Remove(tmpName)

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return struct{}{}, err
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return struct{}{}, err
		}
		if err := tmp.Close(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, os.Rename(tmpName, s.path(key))
	})
	return err
}

func (s *fileStore) read(ctx context.Context, key string) ([]byte, error) {
	data, err := offload(ctx, func() ([]byte, error) {
		return os.ReadFile(s.path(key))
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	return data, err
}

func (s *fileStore) remove(ctx context.Context, key string) error {
	_, err := offload(ctx, func() (struct{}, error) {
		return struct{}{}, os.Remove(s.path(key))
	})
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	return err
}

func (s *fileStore) exists(ctx context.Context, key string) (bool, error) {
	return offload(ctx, func() (bool, error) {
		info, err := os.Stat(s.path(key))
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return info.Mode().IsRegular(), nil
	})
}

type entry struct {
	key     string
	size    int64
	modTime time.Time
}

// list returns the keys of every regular file carrying the extension.
func (s *fileStore) list(ctx context.Context) ([]entry, error) {
	return offload(ctx, func() ([]entry, error) {
		dirEntries, err := os.ReadDir(s.root)
		if err != nil {
			return nil, err
		}

		entries := make([]entry, 0, len(dirEntries))
		for _, de := range dirEntries {
			name := de.Name()
			if !de.Type().IsRegular() || strings.HasPrefix(name, ".tmp-") || !strings.HasSuffix(name, s.ext) {
				continue
			}
			key := strings.TrimSuffix(name, s.ext)
			if key == "" {
				continue
			}
			info, err := de.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, err
			}
			entries = append(entries, entry{key: key, size: info.Size(), modTime: info.ModTime()})
		}
		return entries, nil
	})
}

type result[T any] struct {
	value T
	err   error
}

// offload runs fn on its own goroutine. If ctx ends first the caller gets
// ctx.Err() while fn still runs to completion.
func offload[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		done <- result[T]{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
