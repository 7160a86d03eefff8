package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("stockhold")

// TTL bounds in seconds. The default is dynamic: under heavy traffic the
// monitor shortens it so abandoned carts return stock sooner.
const (
	standardTTLSeconds = 900 // 15 Minutes
	panicTTLSeconds    = 120 // 2 Minutes (Panic Mode)
	maxTTLSeconds      = 3600
)

// ReservationManager is the transactional API in front of the Store. It
// owns validation, TTL resolution, logging and instrumentation; every
// state change itself happens inside one Store primitive.
type ReservationManager struct {
	store Store
	log   zerolog.Logger
}

func NewReservationManager(store Store, log zerolog.Logger) *ReservationManager {
	return &ReservationManager{store: store, log: log}
}

// resolveTTL turns a requested TTL into a duration: absent means the
// traffic-dependent default, anything above the cap is clamped.
func resolveTTL(ttlSeconds int) time.Duration {
	if ttlSeconds <= 0 {
		ttlSeconds = DynamicTTL()
	}
	if ttlSeconds > maxTTLSeconds {
		ttlSeconds = maxTTLSeconds
	}
	return time.Duration(ttlSeconds) * time.Second
}

func (m *ReservationManager) Create(ctx context.Context, sku, lineItemID string, qty, ttlSeconds int) (*Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservation.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.sku", sku),
		attribute.Int("reservation.quantity", qty),
	)

	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	until := time.Now().Add(resolveTTL(ttlSeconds))
	r, err := m.store.Reserve(ctx, sku, lineItemID, qty, until)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			insufficientStockTotal.Inc()
			m.log.Info().Str("sku", sku).Int("quantity", qty).Msg("reservation rejected: insufficient stock")
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reservationsCreatedTotal.Inc()
	m.log.Info().
		Str("sku", sku).
		Str("line_item", lineItemID).
		Int("quantity", qty).
		Time("reserved_until", r.ReservedUntil).
		Msg("reservation created")
	return r, nil
}

func (m *ReservationManager) Extend(ctx context.Context, lineItemID string, ttlSeconds int) (*Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservation.Extend")
	defer span.End()

	until := time.Now().Add(resolveTTL(ttlSeconds))
	r, err := m.store.Extend(ctx, lineItemID, until)
	if err != nil {
		return nil, err
	}

	m.log.Debug().Str("line_item", lineItemID).Time("reserved_until", until).Msg("reservation extended")
	return r, nil
}

func (m *ReservationManager) Commit(ctx context.Context, lineItemID string) (*Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservation.Commit")
	defer span.End()

	r, err := m.store.Commit(ctx, lineItemID)
	if err != nil {
		if !errors.Is(err, ErrReservationNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	reservationsCommittedTotal.Inc()
	m.log.Info().
		Str("sku", r.SKU).
		Str("line_item", lineItemID).
		Int("quantity", r.Quantity).
		Msg("reservation committed")
	return r, nil
}

// Cancel releases a line item's claim. Already-gone reservations are a
// no-op success so cart removals and sweeps can race freely.
func (m *ReservationManager) Cancel(ctx context.Context, lineItemID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "reservation.Cancel")
	defer span.End()

	released, err := m.store.Release(ctx, lineItemID, "cart cancel")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if released {
		reservationsReleasedTotal.WithLabelValues("cancel").Inc()
		m.log.Info().Str("line_item", lineItemID).Msg("reservation cancelled")
	}
	return released, nil
}

func (m *ReservationManager) AdjustStock(ctx context.Context, sku string, newStock int, reason string) (*Product, error) {
	ctx, span := tracer.Start(ctx, "inventory.AdjustStock")
	defer span.End()

	if newStock < 0 {
		return nil, ErrInvalidQuantity
	}
	if reason == "" {
		reason = "stock sync"
	}

	p, err := m.store.AdjustStock(ctx, sku, newStock, reason)
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("sku", sku).Int("stock", newStock).Msg("stock adjusted")
	return p, nil
}

func (m *ReservationManager) GetProduct(ctx context.Context, sku string) (*Product, error) {
	return m.store.GetProduct(ctx, sku)
}

func (m *ReservationManager) LedgerEntries(ctx context.Context, sku string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return m.store.LedgerEntries(ctx, sku, limit)
}
