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

	"github.com/AleutianAI/AleutianPharmacy/pkg/logging"
)

// Icon is a loaded icon blob.
type Icon struct {
	Data        []byte
	Extension   string
	ContentType string
}

// Store applies the icon rules on top of a Backend.
//
// # Thread Safety
//
// Safe for concurrent use if the Backend is. Concurrent uploads for the same
// medication may briefly leave two encodings; the catalog serializes icon
// writes per medication to avoid that.
type Store struct {
	backend Backend
	logger  *logging.Logger
}

// NewStore wraps backend. A nil logger discards output.
func NewStore(backend Backend, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{backend: backend, logger: logger.With("component", "icons")}
}

// Save writes data as the medication's icon and removes any blob stored
// under another extension.
func (s *Store) Save(ctx context.Context, medicationID int, ext string, data []byte) error {
	if _, ok := contentTypes[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if err := s.backend.Put(ctx, Key(medicationID, ext), data); err != nil {
		return fmt.Errorf("store icon %s: %w", Key(medicationID, ext), err)
	}
	for _, other := range Extensions {
		if other == ext {
			continue
		}
		err := s.backend.Delete(ctx, Key(medicationID, other))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("remove stale icon %s: %w", Key(medicationID, other), err)
		}
		if err == nil {
			s.logger.Debug("replaced icon encoding", "medication_id", medicationID, "old", other, "new", ext)
		}
	}
	return nil
}

// Load returns the first icon found in Extensions order.
func (s *Store) Load(ctx context.Context, medicationID int) (Icon, error) {
	for _, ext := range Extensions {
		data, err := s.backend.Get(ctx, Key(medicationID, ext))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Icon{}, fmt.Errorf("load icon %s: %w", Key(medicationID, ext), err)
		}
		return Icon{Data: data, Extension: ext, ContentType: ContentType(ext)}, nil
	}
	return Icon{}, fmt.Errorf("medication %d: %w", medicationID, ErrNotFound)
}

// Remove deletes the first icon found in Extensions order and returns its
// extension.
func (s *Store) Remove(ctx context.Context, medicationID int) (string, error) {
	for _, ext := range Extensions {
		err := s.backend.Delete(ctx, Key(medicationID, ext))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("delete icon %s: %w", Key(medicationID, ext), err)
		}
		return ext, nil
	}
	return "", fmt.Errorf("medication %d: %w", medicationID, ErrNotFound)
}

// RemoveAll deletes every encoding of the medication's icon and reports how
// many blobs were removed. Missing blobs are not an error.
func (s *Store) RemoveAll(ctx context.Context, medicationID int) (int, error) {
	var removed int
	var errs []error
	for _, ext := range Extensions {
		err := s.backend.Delete(ctx, Key(medicationID, ext))
		switch {
		case err == nil:
			removed++
		case !errors.Is(err, ErrNotFound):
			errs = append(errs, fmt.Errorf("delete icon %s: %w", Key(medicationID, ext), err))
		}
	}
	return removed, errors.Join(errs...)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
