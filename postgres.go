package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store with one SQL transaction per primitive.
// The product row is locked FOR UPDATE for the whole check-and-update
// window, so two concurrent reservers cannot both observe stale
// availability. Lock order is always product row first, reservation row
// second.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertLedgerSQL = `
	INSERT INTO stock_ledger (sku, entry_type, quantity, reason, cart_line_item_id)
	VALUES ($1, $2, $3, $4, $5)`

func (s *PostgresStore) Reserve(ctx context.Context, sku, lineItemID string, qty int, until time.Time) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var stock, reserved int
	err = tx.QueryRow(ctx,
		`SELECT stock, reserved_stock FROM products WHERE sku = $1 FOR UPDATE`, sku,
	).Scan(&stock, &reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	if stock-reserved < qty {
		return nil, ErrInsufficientStock
	}

	if _, err := tx.Exec(ctx,
		`UPDATE products SET reserved_stock = reserved_stock + $1, updated_at = NOW() WHERE sku = $2`,
		qty, sku,
	); err != nil {
		return nil, err
	}

	r := &Reservation{
		ID:             uuid.New(),
		CartLineItemID: lineItemID,
		SKU:            sku,
		Quantity:       qty,
		ReservedUntil:  until,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO reservations (id, cart_line_item_id, sku, quantity, reserved_until)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		r.ID, lineItemID, sku, qty, until,
	).Scan(&r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrLineItemReserved
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, insertLedgerSQL, sku, EntryReserve, qty, "cart hold", lineItemID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) Extend(ctx context.Context, lineItemID string, until time.Time) (*Reservation, error) {
	r := &Reservation{CartLineItemID: lineItemID, ReservedUntil: until}
	err := s.db.QueryRow(ctx,
		`UPDATE reservations SET reserved_until = $1 WHERE cart_line_item_id = $2
		 RETURNING id, sku, quantity, created_at`,
		until, lineItemID,
	).Scan(&r.ID, &r.SKU, &r.Quantity, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) Commit(ctx context.Context, lineItemID string) (*Reservation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r := &Reservation{CartLineItemID: lineItemID}
	err = tx.QueryRow(ctx,
		`SELECT id, sku, quantity, reserved_until, created_at FROM reservations WHERE cart_line_item_id = $1`,
		lineItemID,
	).Scan(&r.ID, &r.SKU, &r.Quantity, &r.ReservedUntil, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `SELECT 1 FROM products WHERE sku = $1 FOR UPDATE`, r.SKU); err != nil {
		return nil, err
	}

	// The delete is the gate: a concurrent cancel or sweep that got there
	// first already settled this reservation.
	tag, err := tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, r.ID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrReservationNotFound
	}

	if _, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - $1, reserved_stock = reserved_stock - $1, updated_at = NOW() WHERE sku = $2`,
		r.Quantity, r.SKU,
	); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, insertLedgerSQL, r.SKU, EntryCommit, r.Quantity, "order commit", lineItemID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) Release(ctx context.Context, lineItemID, reason string) (bool, error) {
	return s.release(ctx,
		`SELECT id, cart_line_item_id, sku, quantity FROM reservations WHERE cart_line_item_id = $1`,
		lineItemID, reason)
}

func (s *PostgresStore) ReleaseByID(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return s.release(ctx,
		`SELECT id, cart_line_item_id, sku, quantity FROM reservations WHERE id = $1`,
		id, reason)
}

// release is the shared transaction behind cancel and the sweeper. The
// reservation delete, the counter decrement and the RELEASE entry commit
// or roll back as one unit; "no row deleted" means another caller settled
// the reservation first and is reported as a clean no-op.
func (s *PostgresStore) release(ctx context.Context, lookup string, key any, reason string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var (
		id         uuid.UUID
		lineItemID string
		sku        string
		qty        int
	)
	err = tx.QueryRow(ctx, lookup, key).Scan(&id, &lineItemID, &sku, &qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `SELECT 1 FROM products WHERE sku = $1 FOR UPDATE`, sku); err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE products SET reserved_stock = reserved_stock - $1, updated_at = NOW() WHERE sku = $2`,
		qty, sku,
	); err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, insertLedgerSQL, sku, EntryRelease, qty, reason, lineItemID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) ExpiredIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM reservations WHERE reserved_until < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) AdjustStock(ctx context.Context, sku string, newStock int, reason string) (*Product, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var stock, reserved int
	err = tx.QueryRow(ctx,
		`SELECT stock, reserved_stock FROM products WHERE sku = $1 FOR UPDATE`, sku,
	).Scan(&stock, &reserved)

	var delta int
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx,
			`INSERT INTO products (sku, stock, reserved_stock) VALUES ($1, $2, 0)`,
			sku, newStock,
		); err != nil {
			return nil, err
		}
		delta, reserved = newStock, 0
	case err != nil:
		return nil, err
	default:
		if newStock < reserved {
			return nil, ErrStockBelowReserved
		}
		delta = newStock - stock
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = $1, updated_at = NOW() WHERE sku = $2`,
			newStock, sku,
		); err != nil {
			return nil, err
		}
	}

	if delta != 0 {
		if _, err := tx.Exec(ctx, insertLedgerSQL, sku, EntryAdjust, delta, reason, nil); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &Product{SKU: sku, Stock: newStock, ReservedStock: reserved, UpdatedAt: time.Now()}, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, sku string) (*Product, error) {
	p := &Product{SKU: sku}
	err := s.db.QueryRow(ctx,
		`SELECT stock, reserved_stock, updated_at FROM products WHERE sku = $1`, sku,
	).Scan(&p.Stock, &p.ReservedStock, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) LedgerEntries(ctx context.Context, sku string, limit int) ([]LedgerEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, sku, entry_type, quantity, reason, COALESCE(cart_line_item_id, ''), created_at
		 FROM stock_ledger WHERE sku = $1 ORDER BY id DESC LIMIT $2`,
		sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedger(rows)
}

func (s *PostgresStore) LedgerSince(ctx context.Context, afterID int64, limit int) ([]LedgerEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, sku, entry_type, quantity, reason, COALESCE(cart_line_item_id, ''), created_at
		 FROM stock_ledger WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedger(rows)
}

func (s *PostgresStore) LatestLedgerID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM stock_ledger`).Scan(&id)
	return id, err
}

func scanLedger(rows pgx.Rows) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.SKU, &e.EntryType, &e.Quantity, &e.Reason, &e.CartLineItemID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
