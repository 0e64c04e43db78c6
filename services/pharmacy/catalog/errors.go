// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies catalog errors. Each kind maps to one HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindPreconditionFailed
	KindBadRequest
	KindMethodNotAllowed
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindBadRequest:
		return "bad_request"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindBadRequest:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Client-facing messages.
const (
	MsgMedicationNotFound  = "Medication not found"
	MsgInventoryNotFound   = "Inventory for this medication not found"
	MsgNoMedications       = "No medications found"
	MsgNoRegexMatch        = "No medications found matching the search criteria"
	MsgNoOutOfStock        = "No out-of-stock medications found"
	MsgNoInventory         = "No inventory found"
	MsgNoEmptyInventory    = "No empty inventory found"
	MsgPreconditionFailed  = "Precondition Failed"
	MsgMedicationExists    = "Medication with this ID already exists"
	MsgUnsupportedIconType = "Unsupported file type. Supported types are: jpg, jpeg, png, tiff."
	MsgIconTooLarge        = "Icon exceeds the maximum upload size"
	MsgImageNotFound       = "Image not found"
	MsgIconNotFound        = "Icon not found"
	MsgMethodNotAllowed    = "Method Not Allowed"
	MsgInternal            = "Internal Server Error"
)

// Error is returned by every catalog operation that fails.
//
// Message is safe to show to clients. Err holds the underlying cause, if
// any, for logs and errors.Is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a catalog error of kind k.
func IsKind(err error, k Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == k
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}
