// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package icons

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// FSBackend stores each blob as a file in one directory.
type FSBackend struct {
	fs  afero.Fs
	dir string
}

// NewFSBackend creates dir on fsys if needed.
//
// # Inputs
//
//   - fsys: Filesystem. afero.NewOsFs() in production.
//   - dir: Directory holding the icon files.
func NewFSBackend(fsys afero.Fs, dir string) (*FSBackend, error) {
	if dir == "" {
		return nil, errors.New("icon directory is required")
	}
	if err := fsys.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create icon directory %s: %w", dir, err)
	}
	return &FSBackend{fs: fsys, dir: dir}, nil
}

// NewMemoryBackend returns an FSBackend on an in-memory filesystem.
func NewMemoryBackend() *FSBackend {
	return &FSBackend{fs: afero.NewMemMapFs(), dir: "/icons"}
}

func (b *FSBackend) path(key string) string {
	return filepath.Join(b.dir, filepath.Base(key))
}

// Put writes to a temporary file and renames it into place, so readers never
// see a partial icon.
func (b *FSBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := afero.TempFile(b.fs, b.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = b.fs.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = b.fs.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := b.fs.Rename(tmp.Name(), b.path(key)); err != nil {
		_ = b.fs.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (b *FSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.fs, b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

func (b *FSBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.fs.Remove(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}

// Close is a no-op; files stay on disk.
func (b *FSBackend) Close() error {
	return nil
}
