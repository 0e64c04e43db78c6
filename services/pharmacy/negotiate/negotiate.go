// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package negotiate renders records as JSON or XML based on the Accept header.
//
// XML is chosen only when the client asks for application/xml. Anything else,
// including a missing header or an unsupported type, gets JSON. XML output is
// wrapped in a <response> root; collections render as a sequence of record
// elements inside it.
package negotiate

import (
	"encoding/xml"

	"github.com/gin-gonic/gin"
)

// Supported formats.
const (
	FormatJSON = gin.MIMEJSON
	FormatXML  = gin.MIMEXML
)

// envelope is the XML root. Records name their own elements via XMLName.
type envelope struct {
	XMLName xml.Name `xml:"response"`
	Data    any
}

// Format returns the response format for the request.
func Format(c *gin.Context) string {
	if c.GetHeader("Accept") == "" {
		return FormatJSON
	}
	if c.NegotiateFormat(FormatJSON, FormatXML) == FormatXML {
		return FormatXML
	}
	return FormatJSON
}

// Render writes data with status in the negotiated format.
//
// # Inputs
//
//   - c: Request context. Its Accept header drives the choice.
//   - status: HTTP status code.
//   - data: A record or a slice of records.
func Render(c *gin.Context, status int, data any) {
	if Format(c) == FormatXML {
		c.XML(status, envelope{Data: data})
		return
	}
	c.JSON(status, data)
}
