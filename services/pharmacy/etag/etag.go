// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package etag computes entity tags for pharmacy records and evaluates the
// conditional request headers that carry them.
//
// A fingerprint is a SHA-256 digest over a record's canonical fields, taken in
// a fixed order. Each field is length-prefixed and an absent optional value is
// encoded differently from an empty string, so no two distinct records share
// a tag. Tags are rendered as quoted strong entity tags.
//
// # Header Evaluation
//
// Both If-Match and If-None-Match accept a comma-separated list. Each entry
// may carry a W/ prefix and may or may not be quoted. "*" matches any
// existing record.
package etag

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
)

// Field is one canonical value of a record.
type Field struct {
	Value string
	Null  bool
}

// String returns a present text field.
func String(s string) Field {
	return Field{Value: s}
}

// Int returns a present integer field.
func Int(i int) Field {
	return Field{Value: strconv.Itoa(i)}
}

// Optional returns a text field that is Null when p is nil.
func Optional(p *string) Field {
	if p == nil {
		return Field{Null: true}
	}
	return Field{Value: *p}
}

// Canonical is implemented by records that can be fingerprinted.
//
// ETagFields must return the same number of fields, in the same order, for
// every value of the implementing type.
type Canonical interface {
	ETagFields() []Field
}

// Fingerprint returns the quoted strong entity tag for r.
//
// # Outputs
//
//   - string: `"<64 hex chars>"`. Identical field values always produce the
//     same tag; changing any field changes it.
func Fingerprint(r Canonical) string {
	h := sha256.New()
	var size [8]byte
	for _, f := range r.ETagFields() {
		if f.Null {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		binary.BigEndian.PutUint64(size[:], uint64(len(f.Value)))
		h.Write(size[:])
		h.Write([]byte(f.Value))
	}
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

// NoneMatch reports whether an If-None-Match header matches the current tag.
// A match means the client's copy is fresh and the server answers 304.
func NoneMatch(header, current string) bool {
	return matches(header, current)
}

// Match reports whether an If-Match header matches the current tag.
//
// An absent or blank header never matches: writes to existing records must
// present the tag they were based on.
func Match(header, current string) bool {
	return matches(header, current)
}

func matches(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	want := opaque(current)
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if candidate == "*" {
			return true
		}
		if opaque(candidate) == want {
			return true
		}
	}
	return false
}

// opaque strips the weakness indicator and surrounding quotes from a tag.
func opaque(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	if len(tag) >= 2 && strings.HasPrefix(tag, `"`) && strings.HasSuffix(tag, `"`) {
		tag = tag[1 : len(tag)-1]
	}
	return tag
}
