// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/etag"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/icons"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/observability"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/store"
)

type fixture struct {
	catalog *Catalog
	store   *store.MemoryStore
	blobs   *icons.FSBackend
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemoryStore(),
		blobs:   icons.NewMemoryBackend(),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	c, err := New(Options{
		Store:        f.store,
		Icons:        icons.NewStore(f.blobs, nil),
		Recorder:     f.metrics,
		MaxIconBytes: 16,
	})
	require.NoError(t, err)
	f.catalog = c
	return f
}

func seededFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	require.NoError(t, f.catalog.SeedDemo(context.Background()))
	return f
}

func intPtr(i int) *int { return &i }

func medPayload(id int, name string) datatypes.MedicationPayload {
	return datatypes.MedicationPayload{ID: intPtr(id), Name: name}
}

func invPayload(qty int, shelf, loc string) datatypes.InventoryPayload {
	return datatypes.InventoryPayload{Quantity: intPtr(qty), ShelfID: &shelf, ShelfLocation: &loc}
}

func requireKind(t *testing.T, err error, kind Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	var ce *Error
	require.True(t, errors.As(err, &ce), "want *catalog.Error, got %T: %v", err, err)
	assert.Equal(t, kind, ce.Kind)
	if msg != "" {
		assert.Equal(t, msg, ce.Message)
	}
}

// =============================================================================
// Errors
// =============================================================================

func TestKind_Status(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, KindNotFound.Status())
	assert.Equal(t, http.StatusPreconditionFailed, KindPreconditionFailed.Status())
	assert.Equal(t, http.StatusBadRequest, KindBadRequest.Status())
	assert.Equal(t, http.StatusMethodNotAllowed, KindMethodNotAllowed.Status())
	assert.Equal(t, http.StatusUnprocessableEntity, KindInvalid.Status())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.Status())
}

func TestError_WrapsCause(t *testing.T) {
	err := fmt.Errorf("handler: %w", NewError(KindNotFound, MsgMedicationNotFound, store.ErrNotFound))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := New(Options{Icons: icons.NewStore(icons.NewMemoryBackend(), nil)})
	assert.Error(t, err)
	_, err = New(Options{Store: store.NewMemoryStore()})
	assert.Error(t, err)

	c, err := New(Options{Store: store.NewMemoryStore(), Icons: icons.NewStore(icons.NewMemoryBackend(), nil)})
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxIconBytes), c.MaxIconBytes())
}

// =============================================================================
// Medications
// =============================================================================

func TestListMedications_Filters(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)

	all, err := f.catalog.ListMedications(ctx, MedicationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byName, err := f.catalog.ListMedications(ctx, MedicationFilter{Regex: "^A"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Aspirin", byName[0].Name)

	outOfStock, err := f.catalog.ListMedications(ctx, MedicationFilter{OutOfStock: true})
	require.NoError(t, err)
	require.Len(t, outOfStock, 1)
	assert.Equal(t, 2, outOfStock[0].ID)

	both, err := f.catalog.ListMedications(ctx, MedicationFilter{Regex: "^A", OutOfStock: true})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, 2, both[0].ID, "out_of_stock wins over regex")
}

func TestListMedications_EmptyResults(t *testing.T) {
	ctx := context.Background()

	_, err := newFixture(t).catalog.ListMedications(ctx, MedicationFilter{})
	requireKind(t, err, KindNotFound, MsgNoMedications)

	f := seededFixture(t)
	_, err = f.catalog.ListMedications(ctx, MedicationFilter{Regex: "^Z"})
	requireKind(t, err, KindNotFound, MsgNoRegexMatch)

	_, err = f.catalog.ListMedications(ctx, MedicationFilter{Regex: "(unclosed"})
	requireKind(t, err, KindNotFound, MsgNoRegexMatch)

	_, _, err = f.catalog.UpdateInventory(ctx, 2, mustInventoryTag(t, f, 2), invPayload(5, "A2", "Shelf 2"))
	require.NoError(t, err)
	_, err = f.catalog.ListMedications(ctx, MedicationFilter{OutOfStock: true})
	requireKind(t, err, KindNotFound, MsgNoOutOfStock)
}

func TestListMedications_MissingInventoryIsNotOutOfStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.catalog.Seed(ctx, []datatypes.Medication{{ID: 1, Name: "Orphan"}}, nil))

	_, err := f.catalog.ListMedications(ctx, MedicationFilter{OutOfStock: true})
	requireKind(t, err, KindNotFound, MsgNoOutOfStock)
}

func TestCreateMedication_PairsZeroInventory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	med, tag, err := f.catalog.CreateMedication(ctx, medPayload(9, "X"))
	require.NoError(t, err)
	assert.Equal(t, datatypes.Medication{ID: 9, Name: "X"}, med)
	assert.Equal(t, etag.Fingerprint(med), tag)

	inv, _, err := f.catalog.GetInventory(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, datatypes.Inventory{MedicationID: 9}, inv)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.InventoryQuantity.WithLabelValues("9", "", "")))

	_, _, err = f.catalog.CreateMedication(ctx, medPayload(9, "Y"))
	requireKind(t, err, KindBadRequest, MsgMedicationExists)

	_, _, err = f.catalog.CreateMedication(ctx, datatypes.MedicationPayload{Name: "no id"})
	requireKind(t, err, KindInvalid, "")
}

func TestCreateMedication_IgnoresIconURL(t *testing.T) {
	p := medPayload(4, "X")
	p.IconURL = datatypes.StringPtr("/somewhere")
	med, _, err := newFixture(t).catalog.CreateMedication(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, med.IconURL)
}

func TestUpdateMedication_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)

	before, tag, err := f.catalog.GetMedication(ctx, 1)
	require.NoError(t, err)

	for _, stale := range []string{"", `"wrong"`} {
		_, _, err = f.catalog.UpdateMedication(ctx, 1, stale, medPayload(1, "Changed"))
		requireKind(t, err, KindPreconditionFailed, MsgPreconditionFailed)
	}
	after, afterTag, err := f.catalog.GetMedication(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before, after, "stale tag never mutates")
	assert.Equal(t, tag, afterTag)

	updated, newTag, err := f.catalog.UpdateMedication(ctx, 1, tag, medPayload(77, "Aspirin 500"))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ID, "path id is authoritative")
	assert.Equal(t, "Aspirin 500", updated.Name)
	assert.Nil(t, updated.Description, "description replaced by payload")
	assert.NotEqual(t, tag, newTag)

	_, _, err = f.catalog.UpdateMedication(ctx, 1, tag, medPayload(1, "Again"))
	requireKind(t, err, KindPreconditionFailed, "")

	_, _, err = f.catalog.UpdateMedication(ctx, 42, "*", medPayload(42, "Ghost"))
	requireKind(t, err, KindNotFound, MsgMedicationNotFound)
}

func TestUpdateMedication_KeepsIconURL(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)

	_, err := f.catalog.UploadIcon(ctx, 1, "a.png", []byte("png"))
	require.NoError(t, err)
	_, tag, err := f.catalog.GetMedication(ctx, 1)
	require.NoError(t, err)

	p := medPayload(1, "Aspirin")
	p.IconURL = datatypes.StringPtr("/elsewhere")
	updated, _, err := f.catalog.UpdateMedication(ctx, 1, tag, p)
	require.NoError(t, err)
	require.NotNil(t, updated.IconURL)
	assert.Equal(t, "/medications/1/icon", *updated.IconURL)
}

func TestDeleteMedication_Cascades(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)
	_, err := f.catalog.UploadIcon(ctx, 1, "a.jpg", []byte("jpg"))
	require.NoError(t, err)

	deleted, err := f.catalog.DeleteMedication(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Aspirin", deleted.Name)

	_, _, err = f.catalog.GetMedication(ctx, 1)
	requireKind(t, err, KindNotFound, MsgMedicationNotFound)
	_, _, err = f.catalog.GetInventory(ctx, 1)
	requireKind(t, err, KindNotFound, MsgInventoryNotFound)
	_, err = f.catalog.GetIcon(ctx, 1)
	requireKind(t, err, KindNotFound, MsgImageNotFound)
	assert.Equal(t, 2, testutil.CollectAndCount(f.metrics.InventoryQuantity), "gauge series dropped")

	_, err = f.catalog.DeleteMedication(ctx, 1)
	requireKind(t, err, KindNotFound, MsgMedicationNotFound)
}

// stallingBackend blocks the first Delete after arming until release is
// closed.
type stallingBackend struct {
	*icons.FSBackend
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (b *stallingBackend) Delete(ctx context.Context, key string) error {
	if b.armed.CompareAndSwap(true, false) {
		close(b.entered)
		<-b.release
	}
	return b.FSBackend.Delete(ctx, key)
}

func TestDeleteMedication_SerializesWithRecreate(t *testing.T) {
	ctx := context.Background()
	backend := &stallingBackend{
		FSBackend: icons.NewMemoryBackend(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	c, err := New(Options{Store: store.NewMemoryStore(), Icons: icons.NewStore(backend, nil)})
	require.NoError(t, err)

	_, _, err = c.CreateMedication(ctx, medPayload(9, "X"))
	require.NoError(t, err)
	backend.armed.Store(true)

	deleted := make(chan error, 1)
	go func() {
		_, err := c.DeleteMedication(ctx, 9)
		deleted <- err
	}()
	<-backend.entered

	recreated := make(chan error, 1)
	go func() {
		if _, _, err := c.CreateMedication(ctx, medPayload(9, "X2")); err != nil {
			recreated <- err
			return
		}
		_, err := c.UploadIcon(ctx, 9, "a.png", []byte("png"))
		recreated <- err
	}()

	select {
	case err := <-recreated:
		t.Fatalf("re-create finished while delete cleanup held the id: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(backend.release)
	require.NoError(t, <-deleted)
	require.NoError(t, <-recreated)

	med, _, err := c.GetMedication(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, med.IconURL)
	icon, err := c.GetIcon(ctx, 9)
	require.NoError(t, err, "icon_url is set, so the blob must exist")
	assert.Equal(t, []byte("png"), icon.Data)
}

// =============================================================================
// Inventory
// =============================================================================

func mustInventoryTag(t *testing.T, f *fixture, id int) string {
	t.Helper()
	_, tag, err := f.catalog.GetInventory(context.Background(), id)
	require.NoError(t, err)
	return tag
}

func TestListInventory(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)

	all, err := f.catalog.ListInventory(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	empty, err := f.catalog.ListInventory(ctx, true)
	require.NoError(t, err)
	require.Len(t, empty, 1)
	assert.Equal(t, 2, empty[0].MedicationID)
	for _, inv := range empty {
		assert.Zero(t, inv.Quantity)
	}

	_, err = newFixture(t).catalog.ListInventory(ctx, false)
	requireKind(t, err, KindNotFound, MsgNoInventory)

	_, _, err = f.catalog.UpdateInventory(ctx, 2, mustInventoryTag(t, f, 2), invPayload(1, "A2", "Shelf 2"))
	require.NoError(t, err)
	_, err = f.catalog.ListInventory(ctx, true)
	requireKind(t, err, KindNotFound, MsgNoEmptyInventory)
}

func TestUpdateInventory_ConditionalAndGauge(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)
	tag := mustInventoryTag(t, f, 1)

	_, _, err := f.catalog.UpdateInventory(ctx, 1, `"wrong"`, invPayload(5, "B1", "Shelf 9"))
	requireKind(t, err, KindPreconditionFailed, MsgPreconditionFailed)
	_, _, err = f.catalog.UpdateInventory(ctx, 1, "", invPayload(5, "B1", "Shelf 9"))
	requireKind(t, err, KindPreconditionFailed, MsgPreconditionFailed)

	inv, newTag, err := f.catalog.UpdateInventory(ctx, 1, tag, invPayload(5, "B1", "Shelf 9"))
	require.NoError(t, err)
	assert.Equal(t, datatypes.Inventory{MedicationID: 1, Quantity: 5, ShelfID: "B1", ShelfLocation: "Shelf 9"}, inv)
	assert.NotEqual(t, tag, newTag)

	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.InventoryQuantity.WithLabelValues("1", "B1", "Shelf 9")))
	assert.Equal(t, 3, testutil.CollectAndCount(f.metrics.InventoryQuantity), "old shelf series replaced")
}

func TestUpdateInventory_UpsertIgnoresIfMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.catalog.Seed(ctx, []datatypes.Medication{{ID: 7, Name: "NoStock"}}, nil))

	inv, tag, err := f.catalog.UpdateInventory(ctx, 7, `"anything at all"`, invPayload(12, "C3", "Shelf 3"))
	require.NoError(t, err)
	assert.Equal(t, 7, inv.MedicationID)
	assert.Equal(t, 12, inv.Quantity)
	assert.Equal(t, etag.Fingerprint(inv), tag)
}

func TestUpdateInventory_PathIDWins(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)
	p := invPayload(1, "A3", "Shelf 3")
	p.MedicationID = intPtr(1)

	inv, _, err := f.catalog.UpdateInventory(ctx, 3, mustInventoryTag(t, f, 3), p)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.MedicationID)

	first, _, err := f.catalog.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, first.Quantity)
}

func TestUpdateInventory_MissingMedication(t *testing.T) {
	_, _, err := newFixture(t).catalog.UpdateInventory(context.Background(), 9, "*", invPayload(1, "", ""))
	requireKind(t, err, KindNotFound, MsgMedicationNotFound)
}

func TestUpdateInventory_ConcurrentSamePreImage(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)
	tag := mustInventoryTag(t, f, 1)

	const writers = 20
	var ok, failed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			_, _, err := f.catalog.UpdateInventory(ctx, 1, tag, invPayload(qty, "A1", "Shelf 1"))
			switch {
			case err == nil:
				ok.Add(1)
			case IsKind(err, KindPreconditionFailed):
				failed.Add(1)
			}
		}(i + 1)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(writers-1), failed.Load())
}

// =============================================================================
// Icons
// =============================================================================

func TestUploadIcon(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)

	_, err := f.catalog.UploadIcon(ctx, 1, "icon.bmp", []byte("bmp"))
	requireKind(t, err, KindBadRequest, MsgUnsupportedIconType)

	_, err = f.catalog.UploadIcon(ctx, 99, "icon.png", []byte("png"))
	requireKind(t, err, KindNotFound, MsgMedicationNotFound)

	_, err = f.catalog.UploadIcon(ctx, 1, "big.png", make([]byte, 17))
	requireKind(t, err, KindBadRequest, MsgIconTooLarge)

	url, err := f.catalog.UploadIcon(ctx, 1, "ICON.PNG", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "/medications/1/icon", url)

	med, _, err := f.catalog.GetMedication(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, med.IconURL)
	assert.Equal(t, url, *med.IconURL)

	icon, err := f.catalog.GetIcon(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "image/png", icon.ContentType)
	assert.Equal(t, []byte("png"), icon.Data)
}

func TestUploadIcon_ReplacesOtherExtension(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)

	_, err := f.catalog.UploadIcon(ctx, 1, "a.jpg", []byte("jpg"))
	require.NoError(t, err)
	_, err = f.catalog.UploadIcon(ctx, 1, "a.tiff", []byte("tiff"))
	require.NoError(t, err)

	icon, err := f.catalog.GetIcon(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "image/tiff", icon.ContentType)

	_, err = f.blobs.Get(ctx, icons.Key(1, "jpg"))
	assert.ErrorIs(t, err, icons.ErrNotFound)
}

func TestDeleteIcon(t *testing.T) {
	ctx := context.Background()
	f := seededFixture(t)

	err := f.catalog.DeleteIcon(ctx, 99)
	requireKind(t, err, KindNotFound, MsgMedicationNotFound)

	err = f.catalog.DeleteIcon(ctx, 1)
	requireKind(t, err, KindNotFound, MsgIconNotFound)

	_, err = f.catalog.UploadIcon(ctx, 1, "a.jpeg", []byte("jpeg"))
	require.NoError(t, err)
	require.NoError(t, f.catalog.DeleteIcon(ctx, 1))

	med, _, err := f.catalog.GetMedication(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, med.IconURL)

	_, err = f.catalog.GetIcon(ctx, 1)
	requireKind(t, err, KindNotFound, MsgImageNotFound)
}

func TestStaleBlobsAreNeverServed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []int{1, 9, 10} {
		require.NoError(t, f.blobs.Put(ctx, icons.Key(id, "png"), []byte("left over")))
	}

	require.NoError(t, f.catalog.SeedDemo(ctx))
	_, err := f.catalog.GetIcon(ctx, 1)
	requireKind(t, err, KindNotFound, MsgImageNotFound)
	_, err = f.blobs.Get(ctx, icons.Key(1, "png"))
	assert.ErrorIs(t, err, icons.ErrNotFound, "seed clears blobs of icon-less medications")

	_, err = f.catalog.GetIcon(ctx, 9)
	requireKind(t, err, KindNotFound, MsgImageNotFound)

	_, _, err = f.catalog.CreateMedication(ctx, medPayload(9, "New"))
	require.NoError(t, err)
	_, err = f.catalog.GetIcon(ctx, 9)
	requireKind(t, err, KindNotFound, MsgImageNotFound)
	_, err = f.blobs.Get(ctx, icons.Key(9, "png"))
	assert.ErrorIs(t, err, icons.ErrNotFound, "create clears blobs left under its id")

	_, err = f.blobs.Get(ctx, icons.Key(10, "png"))
	assert.NoError(t, err, "blobs of unknown ids are untouched until the id is used")
}

func TestOperationsEmitSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := seededFixture(t)
	_, _, err := f.catalog.GetMedication(context.Background(), 1)
	require.NoError(t, err)
	_, _, err = f.catalog.GetMedication(context.Background(), 404)
	require.Error(t, err)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "catalog.GetMedication", ended[0].Name())
	assert.Equal(t, instrumentationName, ended[0].InstrumentationScope().Name)
	var kind string
	for _, kv := range ended[1].Attributes() {
		if kv.Key == "error.kind" {
			kind = kv.Value.AsString()
		}
	}
	assert.Equal(t, KindNotFound.String(), kind)
}

func TestSeedDemo_PrimesGauge(t *testing.T) {
	f := seededFixture(t)
	assert.Equal(t, 100.0, testutil.ToFloat64(f.metrics.InventoryQuantity.WithLabelValues("1", "A1", "Shelf 1")))
	assert.Equal(t, 50.0, testutil.ToFloat64(f.metrics.InventoryQuantity.WithLabelValues("3", "A3", "Shelf 3")))
}
