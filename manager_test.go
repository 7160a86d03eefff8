package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*ReservationManager, *MemStore) {
	store := NewMemStore()
	return NewReservationManager(store, zerolog.Nop()), store
}

func TestCreateRejectsInvalidQuantity(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()
	_, err := store.AdjustStock(ctx, "widget", 10, "seed")
	require.NoError(t, err)

	_, err = m.Create(ctx, "widget", "line-1", 0, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = m.Create(ctx, "widget", "line-1", -2, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	p, err := store.GetProduct(ctx, "widget")
	require.NoError(t, err)
	require.Equal(t, 0, p.ReservedStock)
}

func TestCreateUsesStandardTTLByDefault(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()
	_, err := store.AdjustStock(ctx, "widget", 10, "seed")
	require.NoError(t, err)

	r, err := m.Create(ctx, "widget", "line-1", 1, 0)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(standardTTLSeconds*time.Second), r.ReservedUntil, 5*time.Second)
}

func TestCreateClampsExplicitTTL(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()
	_, err := store.AdjustStock(ctx, "widget", 10, "seed")
	require.NoError(t, err)

	r, err := m.Create(ctx, "widget", "line-1", 1, 999999)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(maxTTLSeconds*time.Second), r.ReservedUntil, 5*time.Second)
}

func TestPanicModeShortensDefaultTTL(t *testing.T) {
	atomic.StoreInt32(&highTrafficMode, 1)
	defer atomic.StoreInt32(&highTrafficMode, 0)

	require.Equal(t, panicTTLSeconds, DynamicTTL())

	ctx := context.Background()
	m, store := newTestManager()
	_, err := store.AdjustStock(ctx, "widget", 10, "seed")
	require.NoError(t, err)

	r, err := m.Create(ctx, "widget", "line-1", 1, 0)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(panicTTLSeconds*time.Second), r.ReservedUntil, 5*time.Second)
}

func TestCancelIsNoopOnMissingReservation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	released, err := m.Cancel(ctx, "ghost")
	require.NoError(t, err)
	require.False(t, released)
}

func TestCommitSurfacesNotFound(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	_, err := m.Commit(ctx, "ghost")
	require.ErrorIs(t, err, ErrReservationNotFound)
}

func TestCommitThenCancelRace(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()
	_, err := store.AdjustStock(ctx, "widget", 10, "seed")
	require.NoError(t, err)

	_, err = m.Create(ctx, "widget", "line-1", 3, 0)
	require.NoError(t, err)

	_, err = m.Commit(ctx, "line-1")
	require.NoError(t, err)

	// A cancel arriving after the commit settled is a clean no-op.
	released, err := m.Cancel(ctx, "line-1")
	require.NoError(t, err)
	require.False(t, released)

	p, err := store.GetProduct(ctx, "widget")
	require.NoError(t, err)
	require.Equal(t, 7, p.Stock)
	require.Equal(t, 0, p.ReservedStock)
	assertReconciled(t, store, "widget")
}
