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

	"github.com/dgraph-io/badger/v4"

	kv "github.com/AleutianAI/AleutianPharmacy/pkg/storage/badger"
)

const badgerKeyPrefix = "icon/"

// BadgerBackend stores blobs as BadgerDB values.
type BadgerBackend struct {
	db    *kv.DB
	owned bool
}

// NewBadgerBackend uses an already open database. Close leaves it open.
func NewBadgerBackend(db *kv.DB) *BadgerBackend {
	return &BadgerBackend{db: db}
}

// OpenBadgerBackend opens a database that the backend owns and closes.
func OpenBadgerBackend(cfg kv.Config) (*BadgerBackend, error) {
	db, err := kv.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open icon database: %w", err)
	}
	return &BadgerBackend{db: db, owned: true}, nil
}

func badgerKey(key string) []byte {
	return []byte(badgerKeyPrefix + key)
}

func (b *BadgerBackend) Put(ctx context.Context, key string, data []byte) error {
	return b.db.UpdateContext(ctx, func(txn *badger.Txn) error {
		return txn.Set(badgerKey(key), data)
	})
}

func (b *BadgerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.ViewContext(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

func (b *BadgerBackend) Delete(ctx context.Context, key string) error {
	err := b.db.UpdateContext(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(key)); err != nil {
			return err
		}
		return txn.Delete(badgerKey(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}

func (b *BadgerBackend) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}
