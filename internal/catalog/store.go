package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
)

type Store struct{ DB *pgxpool.Pool }

func (s *Store) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	err := s.DB.QueryRow(ctx, `
		SELECT id, sku, name, status, price_cents, stock, allow_backorder, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Status, &p.PriceCents, &p.Stock, &p.AllowBackorder, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.NotFoundf("product %s not found", id)
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, sku, name, status, price_cents, stock, allow_backorder, created_at, updated_at
		FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Status, &p.PriceCents, &p.Stock, &p.AllowBackorder, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Reserve decrements stock atomically. The WHERE clause is the arbiter:
// the decrement only lands when stock covers qty or backorder is allowed,
// so concurrent callers can never race past zero.
func (s *Store) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return apperr.Validationf("reserve qty must be positive, got %d", qty)
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND (allow_backorder OR stock >= $2)`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.reserveFailure(ctx, productID, qty)
	}
	return nil
}

// ReserveTx is Reserve inside a caller-owned transaction; used by order
// materialization so stock moves or nothing does.
func (s *Store) ReserveTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	if qty <= 0 {
		return apperr.Validationf("reserve qty must be positive, got %d", qty)
	}
	ct, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND (allow_backorder OR stock >= $2)`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.reserveFailure(ctx, productID, qty)
	}
	return nil
}

func (s *Store) reserveFailure(ctx context.Context, productID string, qty int) error {
	var name string
	var stock int
	err := s.DB.QueryRow(ctx, `SELECT name, stock FROM products WHERE id=$1`, productID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFoundf("product %s not found", productID)
	}
	if err != nil {
		return err
	}
	return apperr.Conflictf("insufficient stock for %s: want %d, have %d", name, qty, stock)
}

func (s *Store) Restock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return apperr.Validationf("restock qty must be positive, got %d", qty)
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFoundf("product %s not found", productID)
	}
	return nil
}
