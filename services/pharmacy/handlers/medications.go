// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianPharmacy/pkg/logging"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/catalog"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/etag"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/negotiate"
)

// ListMedications handles GET /medications/?regex=&out_of_stock=.
func ListMedications(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		outOfStock, err := queryBool(c, "out_of_stock")
		if err != nil {
			writeError(c, logger, err)
			return
		}
		meds, err := cat.ListMedications(c.Request.Context(), catalog.MedicationFilter{
			Regex:      c.Query("regex"),
			OutOfStock: outOfStock,
		})
		if err != nil {
			writeError(c, logger, err)
			return
		}
		negotiate.Render(c, http.StatusOK, meds)
	}
}

// GetMedication handles GET /medications/:id with If-None-Match support.
func GetMedication(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		med, tag, err := cat.GetMedication(c.Request.Context(), id)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Header("ETag", tag)
		if etag.NoneMatch(c.GetHeader("If-None-Match"), tag) {
			c.Status(http.StatusNotModified)
			return
		}
		negotiate.Render(c, http.StatusOK, med)
	}
}

// CreateMedication handles POST /medications/.
func CreateMedication(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload datatypes.MedicationPayload
		if err := bindBody(c, &payload); err != nil {
			writeError(c, logger, err)
			return
		}
		med, tag, err := cat.CreateMedication(c.Request.Context(), payload)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Header("ETag", tag)
		negotiate.Render(c, http.StatusOK, med)
	}
}

// UpdateMedication handles PUT /medications/:id. If-Match is required.
func UpdateMedication(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		var payload datatypes.MedicationPayload
		if err := bindBody(c, &payload); err != nil {
			writeError(c, logger, err)
			return
		}
		med, tag, err := cat.UpdateMedication(c.Request.Context(), id, c.GetHeader("If-Match"), payload)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Header("ETag", tag)
		negotiate.Render(c, http.StatusOK, med)
	}
}

// DeleteMedication handles DELETE /medications/:id and returns the removed
// record.
func DeleteMedication(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		med, err := cat.DeleteMedication(c.Request.Context(), id)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		negotiate.Render(c, http.StatusOK, med)
	}
}
