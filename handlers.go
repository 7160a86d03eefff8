package main

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	Manager *ReservationManager
	Sweeper *Sweeper
}

// errorResponse maps the domain error taxonomy to HTTP statuses. Anything
// outside the taxonomy is a store/transaction failure and stays a 500.
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return c.Status(409).JSON(fiber.Map{"error": "not enough stock available"})
	case errors.Is(err, ErrLineItemReserved):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrStockBelowReserved):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrReservationNotFound), errors.Is(err, ErrProductNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidQuantity):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	default:
		return fiber.NewError(500, err.Error())
	}
}

func (h *Handler) SyncInventory(c *fiber.Ctx) error {
	var req SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.SKU == "" {
		return c.Status(400).JSON(fiber.Map{"error": "sku is required"})
	}

	p, err := h.Manager.AdjustStock(c.Context(), req.SKU, req.Quantity, req.Reason)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(productResponse(p))
}

func (h *Handler) GetProduct(c *fiber.Ctx) error {
	p, err := h.Manager.GetProduct(c.Context(), c.Params("sku"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(productResponse(p))
}

func (h *Handler) GetLedger(c *fiber.Ctx) error {
	entries, err := h.Manager.LedgerEntries(c.Context(), c.Params("sku"), c.QueryInt("limit"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"entries": entries})
}

func (h *Handler) CreateReservation(c *fiber.Ctx) error {
	var req ReserveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.SKU == "" || req.CartLineItemID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "sku and cart_line_item_id are required"})
	}

	r, err := h.Manager.Create(c.Context(), req.SKU, req.CartLineItemID, req.Quantity, req.TTLSeconds)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(201).JSON(r)
}

func (h *Handler) ExtendReservation(c *fiber.Ctx) error {
	var req ExtendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	r, err := h.Manager.Extend(c.Context(), c.Params("lineItemID"), req.TTLSeconds)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(r)
}

func (h *Handler) CommitReservation(c *fiber.Ctx) error {
	r, err := h.Manager.Commit(c.Context(), c.Params("lineItemID"))
	if err != nil {
		// 404 tells checkout the reservation is already finalized or
		// expired; it must re-verify availability, not retry.
		return errorResponse(c, err)
	}
	return c.JSON(r)
}

func (h *Handler) CancelReservation(c *fiber.Ctx) error {
	released, err := h.Manager.Cancel(c.Context(), c.Params("lineItemID"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"released": released})
}

// SweepNow is the external trigger interface for the job runner.
func (h *Handler) SweepNow(c *fiber.Ctx) error {
	count, err := h.Sweeper.Sweep(c.Context())
	if err != nil {
		return fiber.NewError(500, err.Error())
	}
	return c.JSON(SweepResponse{ReleasedCount: count})
}

func productResponse(p *Product) ProductResponse {
	return ProductResponse{
		SKU:           p.SKU,
		Stock:         p.Stock,
		ReservedStock: p.ReservedStock,
		Available:     p.Available(),
	}
}
