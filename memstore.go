package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-memory Store used for local development
// (STORE=memory) and as the test oracle. One mutex stands in for the
// database's row locks; the semantics match PostgresStore exactly,
// including the delete-gated release.
type MemStore struct {
	mu           sync.Mutex
	products     map[string]*Product
	byLineItem   map[string]*Reservation
	byID         map[uuid.UUID]*Reservation
	ledger       []LedgerEntry
	nextLedgerID int64

	failReleases int // fault injection for sweeper tests
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:   make(map[string]*Product),
		byLineItem: make(map[string]*Reservation),
		byID:       make(map[uuid.UUID]*Reservation),
	}
}

// FailNextReleases makes the next n release attempts fail before any
// state change, to exercise per-reservation failure isolation.
func (s *MemStore) FailNextReleases(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReleases = n
}

func (s *MemStore) appendLedger(sku, entryType string, qty int, reason, lineItemID string) {
	s.nextLedgerID++
	s.ledger = append(s.ledger, LedgerEntry{
		ID:             s.nextLedgerID,
		SKU:            sku,
		EntryType:      entryType,
		Quantity:       qty,
		Reason:         reason,
		CartLineItemID: lineItemID,
		CreatedAt:      time.Now(),
	})
}

func (s *MemStore) Reserve(ctx context.Context, sku, lineItemID string, qty int, until time.Time) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[sku]
	if !ok {
		return nil, ErrProductNotFound
	}
	if _, ok := s.byLineItem[lineItemID]; ok {
		return nil, ErrLineItemReserved
	}
	if p.Available() < qty {
		return nil, ErrInsufficientStock
	}

	p.ReservedStock += qty
	p.UpdatedAt = time.Now()

	r := &Reservation{
		ID:             uuid.New(),
		CartLineItemID: lineItemID,
		SKU:            sku,
		Quantity:       qty,
		ReservedUntil:  until,
		CreatedAt:      time.Now(),
	}
	s.byLineItem[lineItemID] = r
	s.byID[r.ID] = r
	s.appendLedger(sku, EntryReserve, qty, "cart hold", lineItemID)

	out := *r
	return &out, nil
}

func (s *MemStore) Extend(ctx context.Context, lineItemID string, until time.Time) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byLineItem[lineItemID]
	if !ok {
		return nil, ErrReservationNotFound
	}
	r.ReservedUntil = until

	out := *r
	return &out, nil
}

func (s *MemStore) Commit(ctx context.Context, lineItemID string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byLineItem[lineItemID]
	if !ok {
		return nil, ErrReservationNotFound
	}
	p := s.products[r.SKU]

	delete(s.byLineItem, lineItemID)
	delete(s.byID, r.ID)
	p.Stock -= r.Quantity
	p.ReservedStock -= r.Quantity
	p.UpdatedAt = time.Now()
	s.appendLedger(r.SKU, EntryCommit, r.Quantity, "order commit", lineItemID)

	out := *r
	return &out, nil
}

func (s *MemStore) Release(ctx context.Context, lineItemID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byLineItem[lineItemID]
	if !ok {
		return false, nil
	}
	return s.release(r, reason)
}

func (s *MemStore) ReleaseByID(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	return s.release(r, reason)
}

func (s *MemStore) release(r *Reservation, reason string) (bool, error) {
	if s.failReleases > 0 {
		s.failReleases--
		return false, fmt.Errorf("release %s: injected failure", r.ID)
	}

	delete(s.byLineItem, r.CartLineItemID)
	delete(s.byID, r.ID)

	p := s.products[r.SKU]
	p.ReservedStock -= r.Quantity
	p.UpdatedAt = time.Now()
	s.appendLedger(r.SKU, EntryRelease, r.Quantity, reason, r.CartLineItemID)
	return true, nil
}

func (s *MemStore) ExpiredIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, r := range s.byID {
		if r.ReservedUntil.Before(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemStore) AdjustStock(ctx context.Context, sku string, newStock int, reason string) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[sku]
	if !ok {
		p = &Product{SKU: sku}
		s.products[sku] = p
	}
	if newStock < p.ReservedStock {
		return nil, ErrStockBelowReserved
	}

	delta := newStock - p.Stock
	p.Stock = newStock
	p.UpdatedAt = time.Now()
	if delta != 0 {
		s.appendLedger(sku, EntryAdjust, delta, reason, "")
	}

	out := *p
	return &out, nil
}

func (s *MemStore) GetProduct(ctx context.Context, sku string) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[sku]
	if !ok {
		return nil, ErrProductNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemStore) LedgerEntries(ctx context.Context, sku string, limit int) ([]LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []LedgerEntry
	for i := len(s.ledger) - 1; i >= 0 && len(entries) < limit; i-- {
		if s.ledger[i].SKU == sku {
			entries = append(entries, s.ledger[i])
		}
	}
	return entries, nil
}

func (s *MemStore) LedgerSince(ctx context.Context, afterID int64, limit int) ([]LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []LedgerEntry
	for _, e := range s.ledger {
		if e.ID > afterID {
			entries = append(entries, e)
			if len(entries) == limit {
				break
			}
		}
	}
	return entries, nil
}

func (s *MemStore) LatestLedgerID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLedgerID, nil
}
