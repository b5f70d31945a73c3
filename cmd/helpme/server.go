package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jshmir7070-sys/helpme-core/internal/assignment"
	"github.com/jshmir7070-sys/helpme-core/internal/billing"
	"github.com/jshmir7070-sys/helpme-core/internal/lock"
	"github.com/jshmir7070-sys/helpme-core/internal/logger"
	"github.com/jshmir7070-sys/helpme-core/internal/notify"
	"github.com/jshmir7070-sys/helpme-core/internal/order"
	"github.com/jshmir7070-sys/helpme-core/internal/pricing"
	"github.com/jshmir7070-sys/helpme-core/internal/router"
	storage "github.com/jshmir7070-sys/helpme-core/internal/storage/postgres"
	"github.com/jshmir7070-sys/helpme-core/internal/user"
)

func main() {
	if err := run(); err != nil {
		panic(err)
	}
}

func run() error {
	cfg, err := NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewPostgresStorage(cfg.DatabaseConnection)
	if err != nil {
		log.Fatalf("Failed to initialize Postgres storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Warning: failed to close storage: %v", err)
		}
	}()

	var notifier notify.Notifier = notify.Nop{}
	if brokers := cfg.BrokerList(); len(brokers) > 0 {
		kafka, err := notify.NewKafka(brokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatalf("Failed to connect Kafka producer: %v", err)
		}
		defer kafka.Close()
		notifier = kafka
	}

	locks := lock.NewKeyed()

	userSvc := user.NewService(store, []byte(cfg.JWTSecret), cfg.JWTTTL)
	userHandler := user.NewHandler(userSvc)

	pricingSvc := pricing.NewService(store)
	pricingHandler := pricing.NewHandler(pricingSvc)

	orderSvc := order.NewService(store, pricingSvc, locks, cfg.LockTimeout, cfg.DepositRate, notifier)
	orderHandler := order.NewHandler(orderSvc)

	assignmentSvc := assignment.NewService(store, store, locks, cfg.LockTimeout, notifier)
	assignmentHandler := assignment.NewHandler(assignmentSvc)

	billingSvc := billing.NewService(store, store, store, locks, cfg.LockTimeout, notifier)
	billingHandler := billing.NewHandler(billingSvc)

	r := router.NewRouter(
		userHandler, orderHandler, assignmentHandler, billingHandler, pricingHandler,
		[]byte(cfg.JWTSecret), store,
	)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		order.SweeperLoop(ctx, orderSvc, cfg.SweepInterval)
	}()

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
	return nil
}
