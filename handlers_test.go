package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestApp() (*fiber.App, *MemStore) {
	store := NewMemStore()
	manager := NewReservationManager(store, zerolog.Nop())
	sweeper := NewSweeper(store, zerolog.Nop(), nil)
	app := newApp(&Handler{Manager: manager, Sweeper: sweeper}, testSecret)
	return app, store
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", testSecret)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestAuthRejectsMissingSecret(t *testing.T) {
	app, _ := newTestApp()

	req := httptest.NewRequest("GET", "/api/v1/inventory/widget", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 403, resp.StatusCode)
}

func TestReservationLifecycleOverHTTP(t *testing.T) {
	app, _ := newTestApp()

	resp := doJSON(t, app, "POST", "/api/v1/inventory/sync", SyncRequest{SKU: "widget", Quantity: 10})
	require.Equal(t, 200, resp.StatusCode)

	resp = doJSON(t, app, "POST", "/api/v1/reservations", ReserveRequest{
		SKU: "widget", CartLineItemID: "line-1", Quantity: 4,
	})
	require.Equal(t, 201, resp.StatusCode)
	var r Reservation
	decode(t, resp, &r)
	require.Equal(t, 4, r.Quantity)

	resp = doJSON(t, app, "GET", "/api/v1/inventory/widget", nil)
	require.Equal(t, 200, resp.StatusCode)
	var p ProductResponse
	decode(t, resp, &p)
	require.Equal(t, 10, p.Stock)
	require.Equal(t, 4, p.ReservedStock)
	require.Equal(t, 6, p.Available)

	resp = doJSON(t, app, "POST", "/api/v1/reservations/line-1/commit", nil)
	require.Equal(t, 200, resp.StatusCode)

	resp = doJSON(t, app, "GET", "/api/v1/inventory/widget", nil)
	decode(t, resp, &p)
	require.Equal(t, 6, p.Stock)
	require.Equal(t, 0, p.ReservedStock)

	// Second commit: reservation is gone, checkout must re-verify.
	resp = doJSON(t, app, "POST", "/api/v1/reservations/line-1/commit", nil)
	require.Equal(t, 404, resp.StatusCode)
}

func TestInsufficientStockSurfacesAs409(t *testing.T) {
	app, _ := newTestApp()

	doJSON(t, app, "POST", "/api/v1/inventory/sync", SyncRequest{SKU: "widget", Quantity: 2})

	resp := doJSON(t, app, "POST", "/api/v1/reservations", ReserveRequest{
		SKU: "widget", CartLineItemID: "line-1", Quantity: 5,
	})
	require.Equal(t, 409, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	require.Equal(t, "not enough stock available", body["error"])
}

func TestCancelIsIdempotentOverHTTP(t *testing.T) {
	app, _ := newTestApp()

	doJSON(t, app, "POST", "/api/v1/inventory/sync", SyncRequest{SKU: "widget", Quantity: 10})
	doJSON(t, app, "POST", "/api/v1/reservations", ReserveRequest{
		SKU: "widget", CartLineItemID: "line-1", Quantity: 2,
	})

	resp := doJSON(t, app, "DELETE", "/api/v1/reservations/line-1", nil)
	require.Equal(t, 200, resp.StatusCode)
	var body map[string]bool
	decode(t, resp, &body)
	require.True(t, body["released"])

	resp = doJSON(t, app, "DELETE", "/api/v1/reservations/line-1", nil)
	require.Equal(t, 200, resp.StatusCode)
	decode(t, resp, &body)
	require.False(t, body["released"])
}

func TestSweepTriggerReturnsReleasedCount(t *testing.T) {
	app, store := newTestApp()
	ctx := context.Background()

	_, err := store.AdjustStock(ctx, "widget", 10, "seed")
	require.NoError(t, err)
	_, err = store.Reserve(ctx, "widget", "line-1", 3, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	resp := doJSON(t, app, "POST", "/api/v1/sweep", nil)
	require.Equal(t, 200, resp.StatusCode)

	var sweep SweepResponse
	decode(t, resp, &sweep)
	require.Equal(t, 1, sweep.ReleasedCount)
}

func TestLedgerReadSurface(t *testing.T) {
	app, _ := newTestApp()

	doJSON(t, app, "POST", "/api/v1/inventory/sync", SyncRequest{SKU: "widget", Quantity: 10})
	doJSON(t, app, "POST", "/api/v1/reservations", ReserveRequest{
		SKU: "widget", CartLineItemID: "line-1", Quantity: 2,
	})
	doJSON(t, app, "DELETE", "/api/v1/reservations/line-1", nil)

	resp := doJSON(t, app, "GET", "/api/v1/inventory/widget/ledger", nil)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Entries []LedgerEntry `json:"entries"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Entries, 3) // ADJUST, RESERVE, RELEASE
	require.Equal(t, EntryRelease, body.Entries[0].EntryType)
}
