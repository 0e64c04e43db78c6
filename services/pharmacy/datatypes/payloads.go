// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// Request Payloads
// =============================================================================

// MedicationPayload is the body of POST /medications/ and PUT /medications/{id}.
//
// Bodies may be JSON or XML; gin picks the decoder from Content-Type. ID and
// Name are required. On update the path id wins over ID, and IconURL is
// accepted but ignored because the icon endpoints own it.
type MedicationPayload struct {
	ID          *int    `json:"id" xml:"id" binding:"required"`
	Name        string  `json:"name" xml:"name" binding:"required"`
	Description *string `json:"description" xml:"description"`
	IconURL     *string `json:"icon_url" xml:"icon_url"`
}

// Medication converts the payload into a record with the given id.
func (p MedicationPayload) Medication(id int) Medication {
	return Medication{
		ID:          id,
		Name:        p.Name,
		Description: cloneString(p.Description),
	}
}

// InventoryPayload is the body of PUT /inventory/{id}.
//
// MedicationID is optional and ignored; the path id is authoritative.
type InventoryPayload struct {
	MedicationID  *int    `json:"medication_id" xml:"medication_id"`
	Quantity      *int    `json:"quantity" xml:"quantity" binding:"required,gte=0"`
	ShelfID       *string `json:"shelf_id" xml:"shelf_id" binding:"required"`
	ShelfLocation *string `json:"shelf_location" xml:"shelf_location" binding:"required"`
}

// Inventory converts the payload into a record for the given medication.
func (p InventoryPayload) Inventory(medicationID int) Inventory {
	inv := Inventory{MedicationID: medicationID}
	if p.Quantity != nil {
		inv.Quantity = *p.Quantity
	}
	if p.ShelfID != nil {
		inv.ShelfID = *p.ShelfID
	}
	if p.ShelfLocation != nil {
		inv.ShelfLocation = *p.ShelfLocation
	}
	return inv
}

// =============================================================================
// Response Bodies
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// MessageResponse acknowledges an action without returning a record.
type MessageResponse struct {
	Message string `json:"message"`
}

// IconUploadResponse is returned after a successful icon upload.
type IconUploadResponse struct {
	Message string `json:"message"`
	IconURL string `json:"icon_url"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
