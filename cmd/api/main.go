package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-shopfront.git/internal/cart"
	"github.com/ariefcatur/go-shopfront.git/internal/catalog"
	"github.com/ariefcatur/go-shopfront.git/internal/checkout"
	"github.com/ariefcatur/go-shopfront.git/internal/config"
	"github.com/ariefcatur/go-shopfront.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-shopfront.git/internal/kafka"
	"github.com/ariefcatur/go-shopfront.git/internal/orders"
	"github.com/ariefcatur/go-shopfront.git/internal/payment"
	"github.com/ariefcatur/go-shopfront.git/internal/postgres"
	"github.com/ariefcatur/go-shopfront.git/internal/reconcile"
	"github.com/ariefcatur/go-shopfront.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.RunMigrations(cfg.PostgresDSN, cfg.MigrationsPath); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024)
	pStatus.Start(ctx)
	pAlerts := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOpsAlert, 256)
	pAlerts.Start(ctx)

	// Stores & collaborators
	products := &catalog.Store{DB: db}
	carts := &cart.Store{DB: db, Products: products}
	payments := &payment.RecordStore{DB: db}
	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	orderRepo := &orders.Repo{DB: db, Stock: products}

	orch := &checkout.Orchestrator{
		Carts:       carts,
		Products:    products,
		Gateway:     gateway,
		Payments:    payments,
		Orders:      orderRepo,
		OrderEvents: pCreated,
		Alerts:      pAlerts,
		Currency:    cfg.Currency,
		ServiceName: cfg.ServiceName,
	}
	lifecycle := &orders.Manager{
		Orders:      orderRepo,
		Stock:       products,
		Payments:    payments,
		Gateway:     gateway,
		Events:      pStatus,
		ServiceName: cfg.ServiceName,
	}
	reconciler := &reconcile.Reconciler{
		Secret:   cfg.GatewayWebhookSecret,
		Payments: payments,
		Checkout: orch,
		Redis:    rdb,
	}

	// HTTP
	router := httpx.NewRouter()
	(&httpx.CatalogHandler{Products: products, Redis: rdb}).Register(router)
	(&httpx.CartHandler{Carts: carts}).Register(router)
	(&httpx.CheckoutHandler{Checkout: orch}).Register(router)
	(&httpx.OrdersHandler{Manager: lifecycle, Redis: rdb}).Register(router)
	(&httpx.WebhookHandler{Reconciler: reconciler}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	pCreated.Close()
	pStatus.Close()
	pAlerts.Close()
	cancel()
	pCreated.WaitClosed()
	pStatus.WaitClosed()
	pAlerts.WaitClosed()
}
