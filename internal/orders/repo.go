package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
)

// StockReserver decrements product stock inside a caller-owned
// transaction, or fails with a conflict naming the product.
type StockReserver interface {
	ReserveTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error
}

type Repo struct {
	DB    *pgxpool.Pool
	Stock StockReserver
}

type MaterializeLine struct {
	ProductID      string
	Qty            int
	UnitPriceCents int
}

type MaterializeParams struct {
	BuyerID         string
	IntentID        string
	ShippingAddress string
	Lines           []MaterializeLine
}

// Materialize turns a paid-for cart into an order. One transaction
// covers the order header, its items, the initial history row, the
// per-product stock decrement and the cart wipe; a failure anywhere
// rolls all of it back. Idempotent on the gateway intent id: a repeat
// delivery gets the already-created order back.
func (r *Repo) Materialize(ctx context.Context, p MaterializeParams) (orderID string, existed bool, err error) {
	if len(p.Lines) == 0 {
		return "", false, apperr.Conflictf("cart is empty, nothing to check out")
	}

	// short-circuit on replays before opening a tx
	if id, ok, err := r.FindByIntent(ctx, p.IntentID); err != nil {
		return "", false, err
	} else if ok {
		return id, true, nil
	}

	total := 0
	for _, l := range p.Lines {
		if l.Qty <= 0 {
			return "", false, apperr.Validationf("invalid qty for product %s", l.ProductID)
		}
		total += l.UnitPriceCents * l.Qty
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderID = uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, buyer_id, total_cents, shipping_address, status, payment_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID, p.BuyerID, total, p.ShippingAddress, StatusConfirmed, p.IntentID)
	if err != nil {
		// concurrent delivery won the insert; hand back its order
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			_ = tx.Rollback(ctx)
			if id, ok, err2 := r.FindByIntent(ctx, p.IntentID); err2 == nil && ok {
				return id, true, nil
			}
		}
		return "", false, err
	}

	for _, l := range p.Lines {
		if _, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, qty, unit_price_cents)
			VALUES ($1, $2, $3, $4)`,
			orderID, l.ProductID, l.Qty, l.UnitPriceCents); err != nil {
			return "", false, err
		}

		// the reservation is the real stock arbiter; losing it here
		// aborts the whole order
		if err = r.Stock.ReserveTx(ctx, tx, l.ProductID, l.Qty); err != nil {
			return "", false, err
		}
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, note)
		VALUES ($1, $2, $3)`,
		orderID, StatusConfirmed, "payment confirmed"); err != nil {
		return "", false, err
	}

	if _, err = tx.Exec(ctx, `
		DELETE FROM cart_items USING carts
		WHERE carts.id = cart_items.cart_id AND carts.buyer_id = $1`, p.BuyerID); err != nil {
		return "", false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return "", false, err
	}
	return orderID, false, nil
}

// FindByIntent reports the order a gateway intent already produced, if
// any. The unique index on payment_intent_id makes this the idempotency
// anchor for repeat deliveries.
func (r *Repo) FindByIntent(ctx context.Context, intentID string) (string, bool, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE payment_intent_id=$1`, intentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Transition moves an order along the status machine, appending a
// history row in the same transaction. The order row is locked so
// concurrent transitions serialize.
func (r *Repo) Transition(ctx context.Context, orderID string, to Status, note string) (Order, error) {
	if !Valid(to) {
		return Order{}, apperr.Validationf("unknown order status %q", to)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var o Order
	err = tx.QueryRow(ctx, `
		SELECT id, buyer_id, total_cents, shipping_address, status, payment_intent_id, created_at, updated_at
		FROM orders WHERE id=$1 FOR UPDATE`, orderID).
		Scan(&o.ID, &o.BuyerID, &o.TotalCents, &o.ShippingAddress, &o.Status, &o.IntentID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFoundf("order %s not found", orderID)
	}
	if err != nil {
		return Order{}, err
	}

	if !CanTransition(o.Status, to) {
		return Order{}, apperr.Conflictf("order %s: cannot move %s -> %s", orderID, o.Status, to)
	}

	if _, err = tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, to); err != nil {
		return Order{}, err
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, note) VALUES ($1, $2, $3)`,
		orderID, to, note); err != nil {
		return Order{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	o.Status = to
	return o, nil
}

func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, buyer_id, total_cents, shipping_address, status, payment_intent_id, created_at, updated_at
		FROM orders WHERE id=$1`, orderID).
		Scan(&o.ID, &o.BuyerID, &o.TotalCents, &o.ShippingAddress, &o.Status, &o.IntentID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFoundf("order %s not found", orderID)
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, qty, unit_price_cents
		FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Qty, &it.UnitPriceCents); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, err
	}

	hrows, err := r.DB.Query(ctx, `
		SELECT status, note, created_at
		FROM order_status_history WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return Order{}, err
	}
	defer hrows.Close()
	for hrows.Next() {
		var h HistoryEntry
		if err := hrows.Scan(&h.Status, &h.Note, &h.CreatedAt); err != nil {
			return Order{}, err
		}
		o.History = append(o.History, h)
	}
	return o, hrows.Err()
}

type ListFilter struct {
	BuyerID string
	Status  Status
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	q := `SELECT id, buyer_id, total_cents, shipping_address, status, payment_intent_id, created_at, updated_at
	      FROM orders WHERE ($1 = '' OR buyer_id = $1) AND ($2 = '' OR status = $2)
	      ORDER BY created_at DESC`
	rows, err := r.DB.Query(ctx, q, f.BuyerID, string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.TotalCents, &o.ShippingAddress, &o.Status, &o.IntentID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
