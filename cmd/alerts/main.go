package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-shopfront.git/internal/config"
	kafkax "github.com/ariefcatur/go-shopfront.git/internal/kafka"
	"github.com/ariefcatur/go-shopfront.git/internal/orders"
)

// Operator console for manual-intervention alerts: payments that
// succeeded without an order behind them need a hand-issued refund.

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func handleAlert(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventManualRefundRequired {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.ManualRefundRequiredPayload](env.Payload)
	if err != nil {
		return err
	}
	log.Printf("ALERT manual refund required: intent=%s buyer=%s amount_cents=%d reason=%q event=%s at=%s",
		p.IntentID, p.BuyerID, p.AmountCents, p.Reason, env.EventID, env.OccurredAt.Format(time.RFC3339))
	return nil
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group := getenv("ALERTS_GROUP", "ops-alerts")
	workers := mustAtoi(os.Getenv("ALERTS_WORKERS"), "2")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOpsAlert, workers)

	go func() {
		log.Printf("alerts consumer started: group=%s topic=%s workers=%d", group, orders.TopicOpsAlert, workers)
		if err := cons.Start(ctx, handleAlert); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down alerts consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
