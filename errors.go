package main

import "errors"

var (
	// ErrInsufficientStock means available stock cannot satisfy the requested
	// quantity. Nothing was mutated; the caller shows "out of stock".
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrReservationNotFound means no active reservation exists for the key.
	// Extend treats it as a failure; commit callers must re-verify the order
	// instead of retrying; release paths treat it as a no-op success.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrLineItemReserved means the cart line item already holds an active
	// reservation. Quantity changes are cancel-then-create.
	ErrLineItemReserved = errors.New("line item already reserved")

	// ErrProductNotFound means the SKU has never been synced.
	ErrProductNotFound = errors.New("product not found")

	// ErrStockBelowReserved rejects a stock sync that would leave fewer
	// physical units than are currently promised to carts.
	ErrStockBelowReserved = errors.New("stock below reserved quantity")

	// ErrInvalidQuantity rejects zero or negative quantities up front.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)
