// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
)

// MemoryStore is an in-process Store.
//
// # Description
//
// Two maps hold the records, guarded by an RWMutex for map access. A keyed
// mutex serializes every read-modify-write on the same id, which is what
// makes conditional updates safe: two writers holding the same pre-image
// tag run one after the other, and the second sees the first's result.
//
// Records are copied on the way in and out.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	medications map[int]datatypes.Medication
	inventory   map[int]datatypes.Inventory
	locks       *keyedMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		medications: make(map[int]datatypes.Medication),
		inventory:   make(map[int]datatypes.Inventory),
		locks:       newKeyedMutex(),
	}
}

func (s *MemoryStore) GetMedication(ctx context.Context, id int) (datatypes.Medication, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Medication{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	med, ok := s.medications[id]
	if !ok {
		return datatypes.Medication{}, fmt.Errorf("medication %d: %w", id, ErrNotFound)
	}
	return med.Clone(), nil
}

func (s *MemoryStore) ListMedications(ctx context.Context) ([]datatypes.Medication, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]datatypes.Medication, 0, len(s.medications))
	for _, med := range s.medications {
		out = append(out, med.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b datatypes.Medication) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) CreateMedication(ctx context.Context, med datatypes.Medication, inv datatypes.Inventory, fn CreateHook) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.Lock(med.ID)
	defer unlock()

	inv.MedicationID = med.ID
	inv = cleanInventory(inv)

	s.mu.Lock()
	if _, ok := s.medications[med.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("medication %d: %w", med.ID, ErrExists)
	}
	s.medications[med.ID] = med.Clone()
	s.inventory[med.ID] = inv
	s.mu.Unlock()

	if fn != nil {
		fn(med.Clone(), inv)
	}
	return nil
}

func (s *MemoryStore) UpdateMedication(ctx context.Context, id int, fn MedicationUpdater) (datatypes.Medication, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Medication{}, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	current, ok := s.medications[id]
	s.mu.RUnlock()
	if !ok {
		return datatypes.Medication{}, fmt.Errorf("medication %d: %w", id, ErrNotFound)
	}

	next, err := fn(current.Clone())
	if err != nil {
		return datatypes.Medication{}, err
	}
	next = next.Clone()
	next.ID = id

	s.mu.Lock()
	s.medications[id] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *MemoryStore) DeleteMedication(ctx context.Context, id int, fn DeleteHook) (datatypes.Medication, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Medication{}, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	med, ok := s.medications[id]
	if !ok {
		s.mu.Unlock()
		return datatypes.Medication{}, fmt.Errorf("medication %d: %w", id, ErrNotFound)
	}
	delete(s.medications, id)
	delete(s.inventory, id)
	s.mu.Unlock()

	if fn != nil {
		fn(med.Clone())
	}
	return med.Clone(), nil
}

func (s *MemoryStore) GetInventory(ctx context.Context, id int) (datatypes.Inventory, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Inventory{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.inventory[id]
	if !ok {
		return datatypes.Inventory{}, fmt.Errorf("inventory %d: %w", id, ErrNotFound)
	}
	return inv, nil
}

func (s *MemoryStore) ListInventory(ctx context.Context) ([]datatypes.Inventory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]datatypes.Inventory, 0, len(s.inventory))
	for _, inv := range s.inventory {
		out = append(out, inv)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b datatypes.Inventory) int { return cmp.Compare(a.MedicationID, b.MedicationID) })
	return out, nil
}

func (s *MemoryStore) UpsertInventory(ctx context.Context, id int, fn InventoryUpdater) (datatypes.Inventory, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Inventory{}, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	_, medOK := s.medications[id]
	row, rowOK := s.inventory[id]
	s.mu.RUnlock()
	if !medOK {
		return datatypes.Inventory{}, fmt.Errorf("medication %d: %w", id, ErrMedicationNotFound)
	}

	var current *datatypes.Inventory
	if rowOK {
		current = &row
	}
	next, err := fn(current)
	if err != nil {
		return datatypes.Inventory{}, err
	}
	next.MedicationID = id
	next = cleanInventory(next)

	s.mu.Lock()
	s.inventory[id] = next
	s.mu.Unlock()
	return next, nil
}

func (s *MemoryStore) Seed(ctx context.Context, meds []datatypes.Medication, invs []datatypes.Inventory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range invs {
		if _, ok := s.medications[inv.MedicationID]; ok {
			continue
		}
		if !slices.ContainsFunc(meds, func(m datatypes.Medication) bool { return m.ID == inv.MedicationID }) {
			return fmt.Errorf("seed inventory %d: %w", inv.MedicationID, ErrMedicationNotFound)
		}
	}
	for _, med := range meds {
		s.medications[med.ID] = med.Clone()
	}
	for _, inv := range invs {
		s.inventory[inv.MedicationID] = cleanInventory(inv)
	}
	return nil
}

// cleanInventory drops decoder state so stored rows compare equal.
func cleanInventory(inv datatypes.Inventory) datatypes.Inventory {
	inv.XMLName = datatypes.Inventory{}.XMLName
	return inv
}

var _ Store = (*MemoryStore)(nil)
