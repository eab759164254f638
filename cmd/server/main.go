/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the wallet engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire ledger, catalog, purchase orchestrator, funding reconciler
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: wallet.db)
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  PROVIDER_BASE_URL     Fulfillment provider API base URL
  PROVIDER_TOKEN        Fulfillment provider API token
  PAYSTACK_BASE_URL     Payment gateway base URL
  PAYSTACK_SECRET_KEY   Payment gateway secret key
  KAFKA_BROKERS         Comma-separated broker list (empty: no events)
  KAFKA_TOPIC           Settled-entry topic (default: wallet.settled)
  BONUS_AMOUNT          First-funding referral bonus
  UPGRADE_FEE           Reseller upgrade fee
  COMMISSION_PER_GB     Commission per whole GB of data sold

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the event publisher and database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/geovend/wallet-engine/api"
	"github.com/geovend/wallet-engine/catalog"
	"github.com/geovend/wallet-engine/commission"
	"github.com/geovend/wallet-engine/events"
	"github.com/geovend/wallet-engine/funding"
	"github.com/geovend/wallet-engine/ledger"
	"github.com/geovend/wallet-engine/notify"
	"github.com/geovend/wallet-engine/purchase"
	"github.com/geovend/wallet-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "wallet.db", "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Domain wiring
	wallet := ledger.New(store)
	plans := catalog.NewService(store, catalog.DefaultMarkup())

	publisher, closer := buildPublisher()
	if closer != nil {
		defer closer()
	}

	var provider *purchase.Client
	if base := os.Getenv("PROVIDER_BASE_URL"); base != "" {
		provider = purchase.NewClient(base, os.Getenv("PROVIDER_TOKEN"), purchase.DefaultProviderTimeout)
	} else {
		log.Println("Warning: PROVIDER_BASE_URL not set, purchases will fail")
		provider = purchase.NewClient("http://localhost:0", "", purchase.DefaultProviderTimeout)
	}

	engine := commission.NewEngine(wallet, commission.Config{
		PerGBUnit: envInt64("COMMISSION_PER_GB", commission.DefaultConfig().PerGBUnit),
	})

	orchestrator := purchase.NewOrchestrator(wallet, plans, provider, engine, publisher, notify.LogNotifier{})

	gateway := funding.NewHTTPGateway(
		os.Getenv("PAYSTACK_BASE_URL"),
		os.Getenv("PAYSTACK_SECRET_KEY"),
		0, // default timeout
	)
	reconciler := funding.NewReconciler(wallet, gateway, publisher, funding.Config{
		ReferralBonus:      envInt64("BONUS_AMOUNT", funding.DefaultConfig().ReferralBonus),
		ResellerUpgradeFee: envInt64("UPGRADE_FEE", funding.DefaultConfig().ResellerUpgradeFee),
	})

	// HTTP layer
	handler := api.NewHandler(wallet, plans, orchestrator, reconciler, provider)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // provider calls can be slow
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Wallet engine listening on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// buildPublisher returns a Kafka publisher when brokers are configured,
// a no-op otherwise, plus a close func for the Kafka writer.
func buildPublisher() (events.Publisher, func()) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		return events.NopPublisher{}, nil
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "wallet.settled"
	}

	kp := events.NewKafkaPublisher(strings.Split(brokers, ","), topic)
	return kp, func() {
		if err := kp.Close(); err != nil {
			log.Printf("Failed to close event publisher: %v", err)
		}
	}
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
