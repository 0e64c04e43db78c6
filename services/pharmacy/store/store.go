// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store holds medication and inventory records.
//
// The Store interface is constructed once at startup and injected into the
// catalog. Read-modify-write operations take a callback that runs while the
// record's id is locked, so a precondition checked inside the callback still
// holds when the new value is written.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrMedicationNotFound is returned when an inventory write targets a
	// medication that does not exist.
	ErrMedicationNotFound = errors.New("medication not found")

	// ErrExists is returned when creating a medication whose id is taken.
	ErrExists = errors.New("record already exists")
)

// MedicationUpdater receives a copy of the current medication and returns the
// value to store. Returning an error aborts the update without mutation.
type MedicationUpdater func(current datatypes.Medication) (datatypes.Medication, error)

// InventoryUpdater receives a copy of the current inventory row, or nil when
// the medication has none, and returns the row to store. Returning an error
// aborts the write without mutation.
type InventoryUpdater func(current *datatypes.Inventory) (datatypes.Inventory, error)

// CreateHook runs after a medication and its inventory row are inserted,
// while the id is still locked.
type CreateHook func(med datatypes.Medication, inv datatypes.Inventory)

// DeleteHook runs after a medication and its inventory row are removed,
// while the id is still locked. Side effects that must not interleave with
// a re-create of the same id belong here.
type DeleteHook func(deleted datatypes.Medication)

// Store is the record storage used by the catalog.
type Store interface {
	// GetMedication returns ErrNotFound if id is absent.
	GetMedication(ctx context.Context, id int) (datatypes.Medication, error)

	// ListMedications returns every medication ordered by id.
	ListMedications(ctx context.Context) ([]datatypes.Medication, error)

	// CreateMedication inserts med together with inv in one step and then
	// calls fn, which may be nil. Returns ErrExists if med.ID is already
	// present; fn is not called then.
	CreateMedication(ctx context.Context, med datatypes.Medication, inv datatypes.Inventory, fn CreateHook) error

	// UpdateMedication applies fn under the id lock. The stored id is always id.
	UpdateMedication(ctx context.Context, id int, fn MedicationUpdater) (datatypes.Medication, error)

	// DeleteMedication removes the medication and its inventory row, calls
	// fn (which may be nil), and returns the removed medication.
	DeleteMedication(ctx context.Context, id int, fn DeleteHook) (datatypes.Medication, error)

	// GetInventory returns ErrNotFound if the medication has no row.
	GetInventory(ctx context.Context, id int) (datatypes.Inventory, error)

	// ListInventory returns every inventory row ordered by medication id.
	ListInventory(ctx context.Context) ([]datatypes.Inventory, error)

	// UpsertInventory applies fn under the id lock. Returns
	// ErrMedicationNotFound if the medication does not exist.
	UpsertInventory(ctx context.Context, id int, fn InventoryUpdater) (datatypes.Inventory, error)

	// Seed inserts the given records, replacing any with the same ids.
	// Every inventory row must reference a medication in meds or the store.
	Seed(ctx context.Context, meds []datatypes.Medication, invs []datatypes.Inventory) error
}
