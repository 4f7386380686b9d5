package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	"github.com/ariefcatur/go-shopfront.git/internal/catalog"
)

type Cart struct {
	ID        string
	BuyerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item snapshots the unit price at add time; it does not follow later
// catalog price changes.
type Item struct {
	CartID         string
	ProductID      string
	Qty            int
	UnitPriceCents int
	AddedAt        time.Time
}

type ProductGetter interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}

type Store struct {
	DB       *pgxpool.Pool
	Products ProductGetter
}

// GetOrCreate keeps at most one cart per buyer. The upsert makes the
// lazy creation idempotent under concurrent first adds.
func (s *Store) GetOrCreate(ctx context.Context, buyerID string) (Cart, error) {
	if buyerID == "" {
		return Cart{}, apperr.Validationf("buyer id is required")
	}
	var c Cart
	err := s.DB.QueryRow(ctx, `
		INSERT INTO carts (id, buyer_id) VALUES ($1, $2)
		ON CONFLICT (buyer_id) DO UPDATE SET updated_at = now()
		RETURNING id, buyer_id, created_at, updated_at`, uuid.NewString(), buyerID).
		Scan(&c.ID, &c.BuyerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cart{}, err
	}
	return c, nil
}

// checkPurchasable is the advisory add-time gate. It is not a
// reservation; stock is only decremented at order materialization.
func checkPurchasable(p catalog.Product, qty int) error {
	if !p.Purchasable() {
		return apperr.Conflictf("product %s is not available", p.Name)
	}
	if !p.AllowBackorder && p.Stock < qty {
		return apperr.Conflictf("insufficient stock for %s: want %d, have %d", p.Name, qty, p.Stock)
	}
	return nil
}

// AddItem merges into an existing line for the same product; the price
// snapshot of the first add wins.
func (s *Store) AddItem(ctx context.Context, buyerID, productID string, qty int) error {
	if qty < 1 {
		return apperr.Validationf("qty must be at least 1, got %d", qty)
	}
	p, err := s.Products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := checkPurchasable(p, qty); err != nil {
		return err
	}

	c, err := s.GetOrCreate(ctx, buyerID)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, qty, unit_price_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET qty = cart_items.qty + excluded.qty`,
		c.ID, productID, qty, p.PriceCents)
	return err
}

func (s *Store) UpdateItem(ctx context.Context, buyerID, productID string, qty int) error {
	if qty < 1 {
		return apperr.Validationf("qty must be at least 1, got %d", qty)
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE cart_items SET qty = $3
		FROM carts WHERE carts.id = cart_items.cart_id
		  AND carts.buyer_id = $1 AND cart_items.product_id = $2`,
		buyerID, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFoundf("cart item %s not found", productID)
	}
	return nil
}

func (s *Store) RemoveItem(ctx context.Context, buyerID, productID string) error {
	ct, err := s.DB.Exec(ctx, `
		DELETE FROM cart_items USING carts
		WHERE carts.id = cart_items.cart_id
		  AND carts.buyer_id = $1 AND cart_items.product_id = $2`,
		buyerID, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFoundf("cart item %s not found", productID)
	}
	return nil
}

// Clear empties the cart but keeps the cart row.
func (s *Store) Clear(ctx context.Context, buyerID string) error {
	_, err := s.DB.Exec(ctx, `
		DELETE FROM cart_items USING carts
		WHERE carts.id = cart_items.cart_id AND carts.buyer_id = $1`, buyerID)
	return err
}

func (s *Store) Items(ctx context.Context, buyerID string) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT ci.cart_id, ci.product_id, ci.qty, ci.unit_price_cents, ci.added_at
		FROM cart_items ci JOIN carts c ON c.id = ci.cart_id
		WHERE c.buyer_id = $1 ORDER BY ci.added_at`, buyerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.CartID, &it.ProductID, &it.Qty, &it.UnitPriceCents, &it.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
