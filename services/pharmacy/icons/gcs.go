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
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBackend stores blobs as objects in a Cloud Storage bucket.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBackend connects to bucket.
//
// # Inputs
//
//   - ctx: Context for client creation.
//   - bucket: Bucket name. Required.
//   - prefix: Object name prefix, e.g. "icons/". May be empty.
//   - credentialsFile: Service account key path. Empty uses application
//     default credentials, which also covers STORAGE_EMULATOR_HOST.
func NewGCSBackend(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSBackend, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("service account key %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS storage client: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket, prefix: prefix}, nil
}

func (b *GCSBackend) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.prefix + key)
}

func (b *GCSBackend) Put(ctx context.Context, key string, data []byte) error {
	w := b.object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if ext, err := ExtensionOf(key); err == nil {
		w.ContentType = ContentType(ext)
	}
	w.CacheControl = "no-cache"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write gs://%s/%s%s: %w", b.bucket, b.prefix, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer for %s: %w", key, err)
	}
	return nil
}

func (b *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s%s: %w", b.bucket, b.prefix, key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	err := b.object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}

func (b *GCSBackend) Close() error {
	return b.client.Close()
}
