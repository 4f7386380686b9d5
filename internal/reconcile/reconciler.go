package reconcile

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	"github.com/ariefcatur/go-shopfront.git/internal/checkout"
	"github.com/ariefcatur/go-shopfront.git/internal/payment"
	"github.com/ariefcatur/go-shopfront.git/internal/redisx"
)

type PaymentMarker interface {
	MarkStatusByIntent(ctx context.Context, intentID string, to payment.Status, methodSummary string) (payment.Record, error)
}

type Completer interface {
	Complete(ctx context.Context, intentID, buyerID, shippingAddress string) (orderID string, existed bool, err error)
}

// Reconciler consumes the gateway's asynchronous notifications and
// drives payment records and order creation from them. The gateway
// delivers at least once, so everything downstream must tolerate
// repeats; the redis dedup is only a fast path on top of that.
type Reconciler struct {
	Secret   string
	Payments PaymentMarker
	Checkout Completer
	Redis    *redis.Client
}

// Handle verifies the signature over the raw body before any parsing,
// then dispatches on the event type. Returning nil acknowledges the
// delivery; an error makes the gateway retry.
func (r *Reconciler) Handle(ctx context.Context, rawBody []byte, sigHeader string) error {
	ev, err := payment.VerifyNotification(rawBody, sigHeader, r.Secret)
	if err != nil {
		if err == payment.ErrInvalidSignature {
			return apperr.Unauthorizedf("invalid notification signature")
		}
		return apperr.Validationf("malformed notification body: %v", err)
	}

	if r.seen(ctx, ev.ID) {
		log.Printf("webhook: duplicate event %s (%s), skipping", ev.ID, ev.Type)
		return nil
	}

	switch ev.Type {
	case payment.EventPaymentSucceeded:
		if err := r.handleSucceeded(ctx, ev); err != nil {
			return err
		}

	case payment.EventPaymentFailed:
		if _, err := r.Payments.MarkStatusByIntent(ctx, ev.Data.IntentID, payment.StatusFailed, ""); err != nil {
			if !apperr.IsKind(err, apperr.KindConflict) {
				return err
			}
			// record already moved past this event; a late replay has
			// nothing left to apply
			log.Printf("webhook: stale %s for intent %s: %v", ev.Type, ev.Data.IntentID, err)
		}

	case payment.EventChargeRefunded:
		// refunds are recorded by the explicit refund call on
		// cancellation; this event is audit parity only

	default:
		// ack unknown types, the gateway must not retry them forever
		log.Printf("webhook: ignoring event type %q (id=%s)", ev.Type, ev.ID)
	}

	r.markSeen(ctx, ev.ID)
	return nil
}

func (r *Reconciler) handleSucceeded(ctx context.Context, ev payment.Event) error {
	if _, err := r.Payments.MarkStatusByIntent(ctx, ev.Data.IntentID, payment.StatusSucceeded, ev.Data.MethodSummary); err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			// the record reached a terminal state by another path, e.g.
			// refunded after a cancellation; retrying cannot apply this
			log.Printf("webhook: stale %s for intent %s: %v", ev.Type, ev.Data.IntentID, err)
			return nil
		}
		return err
	}

	buyerID := ev.Data.Metadata[checkout.MetaBuyerID]
	if buyerID == "" {
		return fmt.Errorf("notification %s: intent %s has no buyer metadata", ev.ID, ev.Data.IntentID)
	}
	shipping := ev.Data.Metadata[checkout.MetaShippingAddress]

	orderID, existed, err := r.Checkout.Complete(ctx, ev.Data.IntentID, buyerID, shipping)
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			// the checkout orchestrator already raised the ops alert;
			// retrying the delivery cannot make stock reappear
			log.Printf("webhook: order creation conflict for intent %s: %v", ev.Data.IntentID, err)
			return nil
		}
		return err
	}
	if existed {
		log.Printf("webhook: intent %s already has order %s", ev.Data.IntentID, orderID)
	}
	return nil
}

// seen reports whether this event id was already fully processed.
// Best effort: redis trouble means we fall through to the idempotent
// DB path rather than dropping the delivery.
func (r *Reconciler) seen(ctx context.Context, eventID string) bool {
	if r.Redis == nil || eventID == "" {
		return false
	}
	ok, err := redisx.Exists(ctx, r.Redis, fmt.Sprintf(redisx.KeyWebhookDedup, eventID))
	return err == nil && ok
}

// markSeen records a fully handled event. Only after success, so a
// failed delivery still gets retried by the gateway.
func (r *Reconciler) markSeen(ctx context.Context, eventID string) {
	if r.Redis == nil || eventID == "" {
		return
	}
	key := fmt.Sprintf(redisx.KeyWebhookDedup, eventID)
	_ = r.Redis.Set(ctx, key, "1", redisx.TTLWebhookDedup).Err()
}
