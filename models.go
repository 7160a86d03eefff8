package main

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry types. The ledger is insert-only; a row is never updated
// or deleted once written.
const (
	EntryReserve = "RESERVE"
	EntryRelease = "RELEASE"
	EntryCommit  = "COMMIT"
	EntryAdjust  = "ADJUST"
)

// Product carries the two counters this service owns. Available stock is
// always derived as Stock - ReservedStock and never stored.
type Product struct {
	SKU           string    `json:"sku"`
	Stock         int       `json:"stock"`
	ReservedStock int       `json:"reserved_stock"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Available returns the quantity sellable right now.
func (p *Product) Available() int {
	return p.Stock - p.ReservedStock
}

// Reservation is a time-bounded claim on stock for one cart line item.
// Its existence is the proof that ReservedStock includes Quantity units
// on its behalf.
type Reservation struct {
	ID             uuid.UUID `json:"id"`
	CartLineItemID string    `json:"cart_line_item_id"`
	SKU            string    `json:"sku"`
	Quantity       int       `json:"quantity"`
	ReservedUntil  time.Time `json:"reserved_until"`
	CreatedAt      time.Time `json:"created_at"`
}

// LedgerEntry is one stock-affecting event. Quantity is signed for ADJUST
// entries and positive for the rest, with the type implying direction.
type LedgerEntry struct {
	ID             int64     `json:"id"`
	SKU            string    `json:"sku"`
	EntryType      string    `json:"entry_type"`
	Quantity       int       `json:"quantity"`
	Reason         string    `json:"reason"`
	CartLineItemID string    `json:"cart_line_item_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReserveRequest: Incoming request to hold stock for a cart line item
type ReserveRequest struct {
	SKU            string `json:"sku"`
	CartLineItemID string `json:"cart_line_item_id"`
	Quantity       int    `json:"quantity"`
	TTLSeconds     int    `json:"ttl_seconds"` // Optional, defaults by traffic mode
}

// ExtendRequest: Liveness refresh while a cart is actively worked on
type ExtendRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

// SyncRequest: Merchant pushing their physical stock level
type SyncRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"` // Total physical stock
	Reason   string `json:"reason"`
}

// SweepResponse: Summary returned to the external job trigger
type SweepResponse struct {
	ReleasedCount int `json:"released_count"`
}

// ProductResponse adds the derived availability to the raw counters.
type ProductResponse struct {
	SKU           string `json:"sku"`
	Stock         int    `json:"stock"`
	ReservedStock int    `json:"reserved_stock"`
	Available     int    `json:"available"`
}
