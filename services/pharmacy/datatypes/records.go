// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the records, request payloads and response
// bodies exchanged by the pharmacy service.
//
// Records carry both json and xml tags. The XMLName fields name each record's
// element ("medication", "inventory") when the negotiator renders XML; they
// are never part of the JSON form or the entity tag.
package datatypes

import (
	"encoding/xml"

	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/etag"
)

// =============================================================================
// Records
// =============================================================================

// Medication is a catalog entry.
//
// # Fields
//
//   - ID: Unique and immutable once created.
//   - Name: Non-empty display name.
//   - Description: Optional; rendered as null when absent.
//   - IconURL: Set while an icon blob exists, nil otherwise. Clients cannot
//     set it directly.
type Medication struct {
	XMLName     xml.Name `json:"-" xml:"medication"`
	ID          int      `json:"id" xml:"id"`
	Name        string   `json:"name" xml:"name"`
	Description *string  `json:"description" xml:"description,omitempty"`
	IconURL     *string  `json:"icon_url" xml:"icon_url,omitempty"`
}

// ETagFields implements etag.Canonical.
func (m Medication) ETagFields() []etag.Field {
	return []etag.Field{
		etag.Int(m.ID),
		etag.String(m.Name),
		etag.Optional(m.Description),
		etag.Optional(m.IconURL),
	}
}

// Clone returns a deep copy so callers never share optional field storage.
func (m Medication) Clone() Medication {
	out := m
	out.XMLName = xml.Name{}
	out.Description = cloneString(m.Description)
	out.IconURL = cloneString(m.IconURL)
	return out
}

// Inventory is the stock record paired with a medication.
type Inventory struct {
	XMLName       xml.Name `json:"-" xml:"inventory"`
	MedicationID  int      `json:"medication_id" xml:"medication_id"`
	Quantity      int      `json:"quantity" xml:"quantity"`
	ShelfID       string   `json:"shelf_id" xml:"shelf_id"`
	ShelfLocation string   `json:"shelf_location" xml:"shelf_location"`
}

// ETagFields implements etag.Canonical.
func (i Inventory) ETagFields() []etag.Field {
	return []etag.Field{
		etag.Int(i.MedicationID),
		etag.Int(i.Quantity),
		etag.String(i.ShelfID),
		etag.String(i.ShelfLocation),
	}
}

// EmptyInventory is the row created alongside a new medication.
func EmptyInventory(medicationID int) Inventory {
	return Inventory{MedicationID: medicationID}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
