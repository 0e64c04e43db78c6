// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers adapts catalog operations to gin.
//
// Each constructor returns a gin.HandlerFunc closed over its dependencies.
// Handlers parse the path, query and body, call the Catalog, and map
// *catalog.Error kinds to status codes with a {"detail": "..."} body.
// Records are rendered through the negotiator; errors and acknowledgements
// are always JSON.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianPharmacy/pkg/logging"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/catalog"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/icons"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/middleware"
)

// Catalog is the subset of *catalog.Catalog the handlers use.
type Catalog interface {
	ListMedications(ctx context.Context, f catalog.MedicationFilter) ([]datatypes.Medication, error)
	GetMedication(ctx context.Context, id int) (datatypes.Medication, string, error)
	CreateMedication(ctx context.Context, p datatypes.MedicationPayload) (datatypes.Medication, string, error)
	UpdateMedication(ctx context.Context, id int, ifMatch string, p datatypes.MedicationPayload) (datatypes.Medication, string, error)
	DeleteMedication(ctx context.Context, id int) (datatypes.Medication, error)

	ListInventory(ctx context.Context, emptyOnly bool) ([]datatypes.Inventory, error)
	GetInventory(ctx context.Context, id int) (datatypes.Inventory, string, error)
	UpdateInventory(ctx context.Context, id int, ifMatch string, p datatypes.InventoryPayload) (datatypes.Inventory, string, error)

	UploadIcon(ctx context.Context, id int, filename string, data []byte) (string, error)
	GetIcon(ctx context.Context, id int) (icons.Icon, error)
	DeleteIcon(ctx context.Context, id int) error
	MaxIconBytes() int64
}

var _ Catalog = (*catalog.Catalog)(nil)

// writeError aborts the request with the status and message of err.
// 5xx are logged at error level, client errors at debug.
func writeError(c *gin.Context, logger *logging.Logger, err error) {
	var ce *catalog.Error
	if !errors.As(err, &ce) {
		ce = catalog.NewError(catalog.KindInternal, catalog.MsgInternal, err)
	}
	status := ce.Kind.Status()

	args := []any{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"kind", ce.Kind.String(),
		"request_id", middleware.GetRequestID(c),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", append(args, "error", err)...)
	} else {
		logger.Debug("request rejected", append(args, "detail", ce.Message)...)
	}
	c.AbortWithStatusJSON(status, datatypes.ErrorResponse{Detail: ce.Message})
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (int, error) {
	raw := c.Param("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, catalog.NewError(catalog.KindInvalid, fmt.Sprintf("Invalid medication id %q", raw), err)
	}
	return id, nil
}

// queryBool parses an optional boolean query parameter. Absent means false.
func queryBool(c *gin.Context, name string) (bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, catalog.NewError(catalog.KindInvalid, fmt.Sprintf("Invalid boolean for %s: %q", name, raw), err)
	}
	return v, nil
}

// bindBody decodes a JSON or XML body (by Content-Type, JSON by default)
// and runs the binding validators.
func bindBody(c *gin.Context, dst any) error {
	var err error
	if c.ContentType() == gin.MIMEXML || c.ContentType() == gin.MIMEXML2 {
		err = c.ShouldBindXML(dst)
	} else {
		err = c.ShouldBindJSON(dst)
	}
	if err != nil {
		return catalog.NewError(catalog.KindInvalid, "Invalid request body: "+err.Error(), err)
	}
	return nil
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, datatypes.HealthResponse{Status: "ok"})
}

// MethodNotAllowed answers 405 with the given Allow header.
func MethodNotAllowed(allow string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allow != "" {
			c.Header("Allow", allow)
		}
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, datatypes.ErrorResponse{Detail: catalog.MsgMethodNotAllowed})
	}
}

// NotFound answers unmatched routes.
func NotFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, datatypes.ErrorResponse{Detail: "Not Found"})
}
