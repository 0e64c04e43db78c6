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
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/etag"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/negotiate"
)

// ListInventory handles GET /inventory/?empty=.
func ListInventory(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		emptyOnly, err := queryBool(c, "empty")
		if err != nil {
			writeError(c, logger, err)
			return
		}
		invs, err := cat.ListInventory(c.Request.Context(), emptyOnly)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		negotiate.Render(c, http.StatusOK, invs)
	}
}

// GetInventory handles GET /inventory/:id with If-None-Match support.
func GetInventory(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		inv, tag, err := cat.GetInventory(c.Request.Context(), id)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Header("ETag", tag)
		if etag.NoneMatch(c.GetHeader("If-None-Match"), tag) {
			c.Status(http.StatusNotModified)
			return
		}
		negotiate.Render(c, http.StatusOK, inv)
	}
}

// UpdateInventory handles PUT /inventory/:id. If-Match is required for an
// existing row and ignored when the row is created.
func UpdateInventory(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		var payload datatypes.InventoryPayload
		if err := bindBody(c, &payload); err != nil {
			writeError(c, logger, err)
			return
		}
		inv, tag, err := cat.UpdateInventory(c.Request.Context(), id, c.GetHeader("If-Match"), payload)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Header("ETag", tag)
		negotiate.Render(c, http.StatusOK, inv)
	}
}
