// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package negotiate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func render(accept string, data any) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if accept != "" {
		c.Request.Header.Set("Accept", accept)
	}
	Render(c, http.StatusOK, data)
	return w
}

func TestFormat(t *testing.T) {
	tests := []struct {
		accept string
		want   string
	}{
		{"", FormatJSON},
		{"application/json", FormatJSON},
		{"application/xml", FormatXML},
		{"application/xml;q=0.9", FormatXML},
		{"*/*", FormatJSON},
		{"text/plain", FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.accept != "" {
				c.Request.Header.Set("Accept", tt.accept)
			}
			assert.Equal(t, tt.want, Format(c))
		})
	}
}

func TestRender_JSONDefault(t *testing.T) {
	w := render("", datatypes.Medication{ID: 1, Name: "Aspirin"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"id":1,"name":"Aspirin","description":null,"icon_url":null}`, w.Body.String())
}

func TestRender_UnsupportedFallsBackToJSON(t *testing.T) {
	w := render("text/csv", []datatypes.Inventory{{MedicationID: 1}})
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `[{"medication_id":1,"quantity":0,"shelf_id":"","shelf_location":""}]`, w.Body.String())
}

func TestRender_XMLSingleRecord(t *testing.T) {
	w := render("application/xml", datatypes.Medication{ID: 1, Name: "Aspirin"})
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	assert.Equal(t, "<response><medication><id>1</id><name>Aspirin</name></medication></response>", w.Body.String())
}

func TestRender_XMLCollection(t *testing.T) {
	w := render("application/xml", []datatypes.Inventory{
		{MedicationID: 1, Quantity: 100, ShelfID: "A1", ShelfLocation: "Shelf 1"},
		{MedicationID: 2},
	})
	body := w.Body.String()
	assert.Contains(t, body, "<response><inventory><medication_id>1</medication_id><quantity>100</quantity>")
	assert.Contains(t, body, "<inventory><medication_id>2</medication_id>")
	assert.Contains(t, body, "</inventory></response>")
}
