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
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianPharmacy/pkg/logging"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/catalog"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
)

// multipartOverhead is the allowance for multipart framing on top of the
// icon size cap.
const multipartOverhead = 64 << 10

// UploadIcon handles POST /medications/:id/icon with multipart field "file".
func UploadIcon(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		limit := cat.MaxIconBytes()
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
		header, err := c.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(c, logger, catalog.NewError(catalog.KindBadRequest, catalog.MsgIconTooLarge, err))
				return
			}
			writeError(c, logger, catalog.NewError(catalog.KindBadRequest, "File is required", err))
			return
		}

		file, err := header.Open()
		if err != nil {
			writeError(c, logger, err)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, limit+1))
		if err != nil {
			writeError(c, logger, err)
			return
		}

		url, err := cat.UploadIcon(c.Request.Context(), id, header.Filename, data)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.IconUploadResponse{
			Message: "Icon uploaded successfully",
			IconURL: url,
		})
	}
}

// GetIcon handles GET /medications/:id/icon.
func GetIcon(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		icon, err := cat.GetIcon(c.Request.Context(), id)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Data(http.StatusOK, icon.ContentType, icon.Data)
	}
}

// DeleteIcon handles DELETE /medications/:id/icon.
func DeleteIcon(cat Catalog, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		if err := cat.DeleteIcon(c.Request.Context(), id); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.MessageResponse{Message: "Icon deleted successfully"})
	}
}
