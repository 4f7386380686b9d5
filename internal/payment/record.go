package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
)

// Record is the local mirror of a gateway payment intent. Once local
// and gateway state can diverge, this row is the durable truth.
type Record struct {
	ID            string
	BuyerID       string
	IntentID      string
	AmountCents   int
	Currency      string
	Status        Status
	MethodSummary string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type RecordStore struct{ DB *pgxpool.Pool }

// Create persists a fresh pending record keyed by the gateway intent id.
func (s *RecordStore) Create(ctx context.Context, buyerID, intentID string, amountCents int, currency string) (Record, error) {
	rec := Record{
		ID:          uuid.NewString(),
		BuyerID:     buyerID,
		IntentID:    intentID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      StatusPending,
	}
	err := s.DB.QueryRow(ctx, `
		INSERT INTO payments (id, buyer_id, gateway_intent_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		rec.ID, rec.BuyerID, rec.IntentID, rec.AmountCents, rec.Currency, rec.Status).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *RecordStore) GetByIntent(ctx context.Context, intentID string) (Record, error) {
	var r Record
	err := s.DB.QueryRow(ctx, `
		SELECT id, buyer_id, gateway_intent_id, amount_cents, currency, status, method_summary, created_at, updated_at
		FROM payments WHERE gateway_intent_id = $1`, intentID).
		Scan(&r.ID, &r.BuyerID, &r.IntentID, &r.AmountCents, &r.Currency, &r.Status, &r.MethodSummary, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFoundf("payment for intent %s not found", intentID)
	}
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// MarkStatusByIntent drives the record's status machine idempotently:
// repeating a transition the record already made is a no-op, an illegal
// jump is a conflict. The optimistic WHERE keeps concurrent deliveries
// from double-applying.
func (s *RecordStore) MarkStatusByIntent(ctx context.Context, intentID string, to Status, methodSummary string) (Record, error) {
	for {
		rec, err := s.GetByIntent(ctx, intentID)
		if err != nil {
			return Record{}, err
		}
		if rec.Status == to {
			return rec, nil // already there, repeat delivery
		}
		if !CanTransition(rec.Status, to) {
			return Record{}, apperr.Conflictf("payment %s: cannot move %s -> %s", intentID, rec.Status, to)
		}

		summary := rec.MethodSummary
		if methodSummary != "" {
			summary = methodSummary
		}
		ct, err := s.DB.Exec(ctx, `
			UPDATE payments SET status = $3, method_summary = $4, updated_at = now()
			WHERE gateway_intent_id = $1 AND status = $2`,
			intentID, rec.Status, to, summary)
		if err != nil {
			return Record{}, err
		}
		if ct.RowsAffected() == 1 {
			rec.Status = to
			rec.MethodSummary = summary
			return rec, nil
		}
		// lost the race with a concurrent transition; re-read and re-judge
	}
}
