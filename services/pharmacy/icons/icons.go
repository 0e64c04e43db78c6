// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package icons stores medication icon images.
//
// An icon is a blob keyed by medication id and file extension, for example
// "9.png". Store layers the pharmacy rules (allowed extensions, lookup order,
// one encoding per medication) over a Backend that only knows keys and bytes.
//
// # Backends
//
//   - FSBackend: a directory on an afero filesystem. With afero.NewMemMapFs
//     it doubles as the in-memory backend.
//   - BadgerBackend: values in a BadgerDB under an "icon/" key prefix.
//   - GCSBackend: objects in a Google Cloud Storage bucket.
package icons

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when no blob exists for the key or medication.
	ErrNotFound = errors.New("icon not found")

	// ErrUnsupportedType is returned for filenames outside Extensions.
	ErrUnsupportedType = errors.New("unsupported icon type")
)

// Extensions lists the accepted extensions in lookup order.
var Extensions = []string{"jpg", "jpeg", "png", "tiff"}

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"tiff": "image/tiff",
}

// Backend is raw blob storage.
//
// Get and Delete return ErrNotFound (possibly wrapped) for missing keys.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// ExtensionOf returns the lower-cased extension of filename, or
// ErrUnsupportedType if it is not one of Extensions.
func ExtensionOf(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if _, ok := contentTypes[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filename)
	}
	return ext, nil
}

// ContentType returns the image media type for a supported extension.
func ContentType(ext string) string {
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Key returns the blob key for a medication's icon in one encoding.
func Key(medicationID int, ext string) string {
	return fmt.Sprintf("%d.%s", medicationID, ext)
}
