// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog implements the pharmacy's medication, inventory and icon
// operations.
//
// # Description
//
// Catalog composes the record Store, the icon Store, the entity tag rules and
// the inventory gauge. It owns every domain rule: paired inventory rows,
// conditional writes, the inventory upsert, icon bookkeeping and cascading
// deletes. Handlers translate HTTP to catalog calls and *Error kinds back to
// status codes; they hold no domain logic.
//
// # Conditional Writes
//
// Preconditions are evaluated inside the store's per-id critical section, so
// two writers presenting the same pre-image tag cannot both succeed.
//
// # Thread Safety
//
// Safe for concurrent use.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianPharmacy/pkg/logging"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/etag"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/icons"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/store"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/telemetry"
)

const instrumentationName = "github.com/AleutianAI/AleutianPharmacy/services/pharmacy/catalog"

// DefaultMaxIconBytes caps icon uploads when Options leaves it unset.
const DefaultMaxIconBytes = 5 << 20

// InventoryRecorder receives inventory gauge observations.
// *observability.Metrics implements it.
type InventoryRecorder interface {
	SetInventory(inv datatypes.Inventory)
	DropInventory(medicationID int)
}

// Options configures New.
type Options struct {
	// Store holds medication and inventory records. Required.
	Store store.Store

	// Icons holds icon blobs. Required.
	Icons *icons.Store

	// Recorder receives gauge observations. Optional.
	Recorder InventoryRecorder

	// Logger defaults to a no-op logger.
	Logger *logging.Logger

	// MaxIconBytes caps one icon upload. Default: DefaultMaxIconBytes.
	MaxIconBytes int64
}

// MedicationFilter selects medications in ListMedications.
//
// OutOfStock wins over Regex when both are set.
type MedicationFilter struct {
	Regex      string
	OutOfStock bool
}

// Catalog is the pharmacy domain service.
type Catalog struct {
	store        store.Store
	icons        *icons.Store
	recorder     InventoryRecorder
	logger       *logging.Logger
	maxIconBytes int64
	uploadSize   metric.Int64Histogram
}

// New creates a Catalog.
//
// # Outputs
//
//   - *Catalog: Ready to serve.
//   - error: Non-nil if Store or Icons is missing.
func New(opts Options) (*Catalog, error) {
	if opts.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	if opts.Icons == nil {
		return nil, errors.New("catalog: icon store is required")
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.MaxIconBytes <= 0 {
		opts.MaxIconBytes = DefaultMaxIconBytes
	}

	uploadSize, err := otel.Meter(instrumentationName).Int64Histogram(
		"pharmacy.icon.upload.size",
		metric.WithUnit("By"),
		metric.WithDescription("Size of accepted icon uploads"),
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: create upload histogram: %w", err)
	}

	return &Catalog{
		store:        opts.Store,
		icons:        opts.Icons,
		recorder:     opts.Recorder,
		logger:       opts.Logger.With("component", "catalog"),
		maxIconBytes: opts.MaxIconBytes,
		uploadSize:   uploadSize,
	}, nil
}

// MaxIconBytes returns the upload cap.
func (c *Catalog) MaxIconBytes() int64 {
	return c.maxIconBytes
}

// IconURL is the retrieval path stored in a medication's icon_url.
func IconURL(medicationID int) string {
	return fmt.Sprintf("/medications/%d/icon", medicationID)
}

// =============================================================================
// Medications
// =============================================================================

// ListMedications returns the medications selected by f, ordered by id.
//
// A malformed Regex matches nothing. An empty result is a KindNotFound error
// whose message names the filter that produced it.
func (c *Catalog) ListMedications(ctx context.Context, f MedicationFilter) (_ []datatypes.Medication, err error) {
	ctx, span := c.start(ctx, "catalog.ListMedications",
		attribute.String("filter.regex", f.Regex),
		attribute.Bool("filter.out_of_stock", f.OutOfStock))
	defer func() { c.end(span, err) }()

	meds, err := c.store.ListMedications(ctx)
	if err != nil {
		return nil, internal(err)
	}

	switch {
	case f.OutOfStock:
		invs, err := c.store.ListInventory(ctx)
		if err != nil {
			return nil, internal(err)
		}
		empty := make(map[int]bool, len(invs))
		for _, inv := range invs {
			if inv.Quantity == 0 {
				empty[inv.MedicationID] = true
			}
		}
		meds = filter(meds, func(m datatypes.Medication) bool { return empty[m.ID] })
		if len(meds) == 0 {
			return nil, NewError(KindNotFound, MsgNoOutOfStock, nil)
		}

	case f.Regex != "":
		re, compileErr := regexp.Compile(f.Regex)
		if compileErr != nil {
			c.logger.Debug("malformed name pattern", "regex", f.Regex, "error", compileErr)
			return nil, NewError(KindNotFound, MsgNoRegexMatch, compileErr)
		}
		meds = filter(meds, func(m datatypes.Medication) bool { return re.MatchString(m.Name) })
		if len(meds) == 0 {
			return nil, NewError(KindNotFound, MsgNoRegexMatch, nil)
		}

	default:
		if len(meds) == 0 {
			return nil, NewError(KindNotFound, MsgNoMedications, nil)
		}
	}
	return meds, nil
}

// GetMedication returns the medication and its entity tag.
func (c *Catalog) GetMedication(ctx context.Context, id int) (_ datatypes.Medication, tag string, err error) {
	ctx, span := c.start(ctx, "catalog.GetMedication", attribute.Int("medication.id", id))
	defer func() { c.end(span, err) }()

	med, err := c.store.GetMedication(ctx, id)
	if err != nil {
		return datatypes.Medication{}, "", mapStoreErr(err, MsgMedicationNotFound)
	}
	return med, etag.Fingerprint(med), nil
}

// CreateMedication inserts a medication and its zero inventory row.
//
// # Outputs
//
//   - Medication: The stored record. icon_url is always nil on create.
//   - string: Its entity tag.
//   - error: KindBadRequest if the id is taken.
func (c *Catalog) CreateMedication(ctx context.Context, p datatypes.MedicationPayload) (_ datatypes.Medication, tag string, err error) {
	if p.ID == nil {
		return datatypes.Medication{}, "", NewError(KindInvalid, "id is required", nil)
	}
	id := *p.ID
	ctx, span := c.start(ctx, "catalog.CreateMedication", attribute.Int("medication.id", id))
	defer func() { c.end(span, err) }()

	med := p.Medication(id)
	inv := datatypes.EmptyInventory(id)
	err = c.store.CreateMedication(ctx, med, inv, func(_ datatypes.Medication, stored datatypes.Inventory) {
		c.recorder.SetInventory(stored)
		c.clearStaleIcons(ctx, id)
	})
	if err != nil {
		if errors.Is(err, store.ErrExists) {
			return datatypes.Medication{}, "", NewError(KindBadRequest, MsgMedicationExists, err)
		}
		return datatypes.Medication{}, "", internal(err)
	}

	c.logger.Info("medication created", "medication_id", id)
	return med, etag.Fingerprint(med), nil
}

// UpdateMedication replaces name and description when ifMatch matches the
// current tag. The path id is authoritative and icon_url is preserved.
func (c *Catalog) UpdateMedication(ctx context.Context, id int, ifMatch string, p datatypes.MedicationPayload) (_ datatypes.Medication, tag string, err error) {
	ctx, span := c.start(ctx, "catalog.UpdateMedication", attribute.Int("medication.id", id))
	defer func() { c.end(span, err) }()

	updated, err := c.store.UpdateMedication(ctx, id, func(cur datatypes.Medication) (datatypes.Medication, error) {
		if !etag.Match(ifMatch, etag.Fingerprint(cur)) {
			return datatypes.Medication{}, NewError(KindPreconditionFailed, MsgPreconditionFailed, nil)
		}
		next := p.Medication(id)
		next.IconURL = cur.IconURL
		return next, nil
	})
	if err != nil {
		return datatypes.Medication{}, "", mapStoreErr(err, MsgMedicationNotFound)
	}

	c.logger.Info("medication updated", "medication_id", id)
	return updated, etag.Fingerprint(updated), nil
}

// DeleteMedication removes the medication, its inventory row, its icon blobs
// and its gauge series, and returns the removed record.
//
// Cleanup runs while the id is still locked, so a re-create and icon upload
// on the same id cannot land between the record delete and the blob delete.
// Icon cleanup failures are logged; the record delete has already happened.
func (c *Catalog) DeleteMedication(ctx context.Context, id int) (_ datatypes.Medication, err error) {
	ctx, span := c.start(ctx, "catalog.DeleteMedication", attribute.Int("medication.id", id))
	defer func() { c.end(span, err) }()

	var removed int
	med, err := c.store.DeleteMedication(ctx, id, func(datatypes.Medication) {
		c.recorder.DropInventory(id)
		n, iconErr := c.icons.RemoveAll(ctx, id)
		if iconErr != nil {
			c.logger.Warn("icon cleanup failed", "medication_id", id, "error", iconErr)
		}
		removed = n
	})
	if err != nil {
		return datatypes.Medication{}, mapStoreErr(err, MsgMedicationNotFound)
	}

	c.logger.Info("medication deleted", "medication_id", id, "icons_removed", removed)
	return med, nil
}

// =============================================================================
// Inventory
// =============================================================================

// ListInventory returns inventory rows ordered by medication id. With
// emptyOnly only rows with quantity 0 are returned.
func (c *Catalog) ListInventory(ctx context.Context, emptyOnly bool) (_ []datatypes.Inventory, err error) {
	ctx, span := c.start(ctx, "catalog.ListInventory", attribute.Bool("filter.empty", emptyOnly))
	defer func() { c.end(span, err) }()

	invs, err := c.store.ListInventory(ctx)
	if err != nil {
		return nil, internal(err)
	}
	if emptyOnly {
		invs = filter(invs, func(inv datatypes.Inventory) bool { return inv.Quantity == 0 })
		if len(invs) == 0 {
			return nil, NewError(KindNotFound, MsgNoEmptyInventory, nil)
		}
	}
	if len(invs) == 0 {
		return nil, NewError(KindNotFound, MsgNoInventory, nil)
	}
	return invs, nil
}

// GetInventory returns the inventory row and its entity tag.
func (c *Catalog) GetInventory(ctx context.Context, id int) (_ datatypes.Inventory, tag string, err error) {
	ctx, span := c.start(ctx, "catalog.GetInventory", attribute.Int("medication.id", id))
	defer func() { c.end(span, err) }()

	inv, err := c.store.GetInventory(ctx, id)
	if err != nil {
		return datatypes.Inventory{}, "", mapStoreErr(err, MsgInventoryNotFound)
	}
	return inv, etag.Fingerprint(inv), nil
}

// UpdateInventory writes quantity and shelf fields for a medication.
//
// # Description
//
// An existing row requires ifMatch to match its tag. A medication without a
// row gets one from the payload and ifMatch is ignored. Either way the gauge
// is updated before the lock is released, so observations stay in write
// order.
//
// # Outputs
//
//   - error: KindNotFound ("Medication not found") if the medication does not
//     exist, KindPreconditionFailed on a stale tag.
func (c *Catalog) UpdateInventory(ctx context.Context, id int, ifMatch string, p datatypes.InventoryPayload) (_ datatypes.Inventory, tag string, err error) {
	ctx, span := c.start(ctx, "catalog.UpdateInventory", attribute.Int("medication.id", id))
	defer func() { c.end(span, err) }()

	var created bool
	inv, err := c.store.UpsertInventory(ctx, id, func(cur *datatypes.Inventory) (datatypes.Inventory, error) {
		if cur != nil && !etag.Match(ifMatch, etag.Fingerprint(*cur)) {
			return datatypes.Inventory{}, NewError(KindPreconditionFailed, MsgPreconditionFailed, nil)
		}
		created = cur == nil
		next := p.Inventory(id)
		c.recorder.SetInventory(next)
		return next, nil
	})
	if err != nil {
		return datatypes.Inventory{}, "", mapStoreErr(err, MsgMedicationNotFound)
	}

	c.logger.Info("inventory updated", "medication_id", id, "quantity", inv.Quantity, "created", created)
	return inv, etag.Fingerprint(inv), nil
}

// =============================================================================
// Icons
// =============================================================================

// UploadIcon stores data as the medication's icon and sets its icon_url.
//
// # Inputs
//
//   - filename: Client filename. Only its extension is used.
//   - data: Image bytes.
//
// # Outputs
//
//   - string: The new icon_url.
//   - error: KindNotFound for an unknown medication, KindBadRequest for an
//     unsupported extension or oversized upload.
func (c *Catalog) UploadIcon(ctx context.Context, id int, filename string, data []byte) (_ string, err error) {
	ctx, span := c.start(ctx, "catalog.UploadIcon",
		attribute.Int("medication.id", id),
		attribute.Int("icon.size", len(data)))
	defer func() { c.end(span, err) }()

	if _, err := c.store.GetMedication(ctx, id); err != nil {
		return "", mapStoreErr(err, MsgMedicationNotFound)
	}
	ext, err := icons.ExtensionOf(filename)
	if err != nil {
		return "", NewError(KindBadRequest, MsgUnsupportedIconType, err)
	}
	if int64(len(data)) > c.maxIconBytes {
		return "", NewError(KindBadRequest, MsgIconTooLarge, nil)
	}

	url := IconURL(id)
	_, err = c.store.UpdateMedication(ctx, id, func(cur datatypes.Medication) (datatypes.Medication, error) {
		if err := c.icons.Save(ctx, id, ext, data); err != nil {
			return datatypes.Medication{}, internal(err)
		}
		cur.IconURL = &url
		return cur, nil
	})
	if err != nil {
		return "", mapStoreErr(err, MsgMedicationNotFound)
	}

	c.uploadSize.Record(ctx, int64(len(data)), metric.WithAttributes(attribute.String("extension", ext)))
	c.logger.Info("icon uploaded", "medication_id", id, "extension", ext, "bytes", len(data))
	return url, nil
}

// GetIcon returns the medication's icon, trying extensions in order. Only
// a medication whose icon_url is set has an icon; blobs left by an earlier
// process for an unknown or icon-less medication are never served.
func (c *Catalog) GetIcon(ctx context.Context, id int) (_ icons.Icon, err error) {
	ctx, span := c.start(ctx, "catalog.GetIcon", attribute.Int("medication.id", id))
	defer func() { c.end(span, err) }()

	med, err := c.store.GetMedication(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return icons.Icon{}, NewError(KindNotFound, MsgImageNotFound, err)
	}
	if err != nil {
		return icons.Icon{}, internal(err)
	}
	if med.IconURL == nil {
		return icons.Icon{}, NewError(KindNotFound, MsgImageNotFound, nil)
	}

	icon, err := c.icons.Load(ctx, id)
	if errors.Is(err, icons.ErrNotFound) {
		return icons.Icon{}, NewError(KindNotFound, MsgImageNotFound, err)
	}
	if err != nil {
		return icons.Icon{}, internal(err)
	}
	return icon, nil
}

// DeleteIcon removes the first icon found and clears icon_url.
func (c *Catalog) DeleteIcon(ctx context.Context, id int) (err error) {
	ctx, span := c.start(ctx, "catalog.DeleteIcon", attribute.Int("medication.id", id))
	defer func() { c.end(span, err) }()

	var removed string
	_, err = c.store.UpdateMedication(ctx, id, func(cur datatypes.Medication) (datatypes.Medication, error) {
		ext, err := c.icons.Remove(ctx, id)
		if errors.Is(err, icons.ErrNotFound) {
			return datatypes.Medication{}, NewError(KindNotFound, MsgIconNotFound, err)
		}
		if err != nil {
			return datatypes.Medication{}, internal(err)
		}
		removed = ext
		cur.IconURL = nil
		return cur, nil
	})
	if err != nil {
		return mapStoreErr(err, MsgMedicationNotFound)
	}

	c.logger.Info("icon deleted", "medication_id", id, "extension", removed)
	return nil
}

// =============================================================================
// Seeding
// =============================================================================

// Seed loads records into the store and primes the gauge for each row.
func (c *Catalog) Seed(ctx context.Context, meds []datatypes.Medication, invs []datatypes.Inventory) error {
	if err := c.store.Seed(ctx, meds, invs); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	for _, med := range meds {
		if med.IconURL == nil {
			c.clearStaleIcons(ctx, med.ID)
		}
	}
	for _, inv := range invs {
		c.recorder.SetInventory(inv)
	}
	c.logger.Info("catalog seeded", "medications", len(meds), "inventory", len(invs))
	return nil
}

// SeedDemo loads the demo medications.
func (c *Catalog) SeedDemo(ctx context.Context) error {
	return c.Seed(ctx, DemoMedications(), DemoInventory())
}

// DemoMedications returns the demo catalog entries.
func DemoMedications() []datatypes.Medication {
	return []datatypes.Medication{
		{ID: 1, Name: "Aspirin", Description: datatypes.StringPtr("Pain reliever")},
		{ID: 2, Name: "Ibuprofen", Description: datatypes.StringPtr("Anti-inflammatory")},
		{ID: 3, Name: "Paracetamol", Description: datatypes.StringPtr("Fever reducer")},
	}
}

// DemoInventory returns the demo stock, one row per demo medication.
func DemoInventory() []datatypes.Inventory {
	return []datatypes.Inventory{
		{MedicationID: 1, Quantity: 100, ShelfID: "A1", ShelfLocation: "Shelf 1"},
		{MedicationID: 2, Quantity: 0, ShelfID: "A2", ShelfLocation: "Shelf 2"},
		{MedicationID: 3, Quantity: 50, ShelfID: "A3", ShelfLocation: "Shelf 3"},
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (c *Catalog) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.StartSpan(ctx, instrumentationName, name, attrs...)
}

// end records internal failures on the span. Client errors are expected
// outcomes and only tagged with their kind.
func (c *Catalog) end(span trace.Span, err error) {
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("error.kind", kind.String()))
		if kind == KindInternal {
			telemetry.RecordError(span, err)
		}
	}
	span.End()
}

// clearStaleIcons removes blobs a persistent backend kept from an earlier
// process for a medication that has no icon_url. Failures are logged.
func (c *Catalog) clearStaleIcons(ctx context.Context, id int) {
	n, err := c.icons.RemoveAll(ctx, id)
	if err != nil {
		c.logger.Warn("stale icon cleanup failed", "medication_id", id, "error", err)
		return
	}
	if n > 0 {
		c.logger.Info("removed stale icons", "medication_id", id, "count", n)
	}
}

// mapStoreErr converts store sentinels; catalog errors raised inside update
// callbacks pass through unchanged.
func mapStoreErr(err error, notFound string) error {
	var ce *Error
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrMedicationNotFound):
		return NewError(KindNotFound, notFound, err)
	default:
		return internal(err)
	}
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

type nopRecorder struct{}

func (nopRecorder) SetInventory(datatypes.Inventory) {}
func (nopRecorder) DropInventory(int)                {}
