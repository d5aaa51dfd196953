package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tiendaverde/catalogo/internal/auth"
	"github.com/tiendaverde/catalogo/internal/cart"
	"github.com/tiendaverde/catalogo/internal/catalog"
	"github.com/tiendaverde/catalogo/internal/inventory"
	"github.com/tiendaverde/catalogo/internal/messaging"
	"github.com/tiendaverde/catalogo/internal/orders"
	"github.com/tiendaverde/catalogo/internal/payment"
	"github.com/tiendaverde/catalogo/internal/reports"
	"github.com/tiendaverde/catalogo/internal/session"
	"github.com/tiendaverde/catalogo/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	tel, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "catalogo",
		ServiceVersion: serviceVersion,
		Metrics:        true,
	})
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = tel.Shutdown(ctx) }()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var sessions session.Store
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		sessions = session.NewRedisStore(client)
	} else {
		logger.Warn("REDIS_ADDR not set, using in-process session store")
		sessions = session.NewMemoryStore()
	}

	var orderProducer *messaging.Producer
	var paymentProducer *messaging.Producer
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		orderProducer = messaging.NewProducer(brokers, messaging.TopicOrderCreated)
		defer func() { _ = orderProducer.Close() }()
		paymentProducer = messaging.NewProducer(brokers, messaging.TopicPaymentUpdated)
		defer func() { _ = paymentProducer.Close() }()
	}

	gateway := payment.NewGateway(
		envOr("WOMPI_CHECKOUT_URL", "https://checkout.wompi.co/p/"),
		os.Getenv("WOMPI_PUBLIC_KEY"),
		os.Getenv("WOMPI_SECRET"),
	)

	jwtSecret := os.Getenv("JWT_SECRET")
	adminUser := envOr("ADMIN_USERNAME", "admin")
	adminHash := os.Getenv("ADMIN_PASSWORD_HASH")
	if jwtSecret == "" || adminHash == "" {
		logger.Error("JWT_SECRET and ADMIN_PASSWORD_HASH environment variables are required")
		os.Exit(1)
	}

	productRepo := catalog.NewProductRepository(db)
	inventoryRepo := inventory.NewInventoryRepository(db)
	orderRepo := orders.NewOrderRepository(db)
	reportRepo := reports.NewReportRepository(db)

	catalogHandler := catalog.NewHandler(productRepo, logger)
	inventoryHandler := inventory.NewHandler(inventoryRepo, logger)
	cartHandler := cart.NewHandler(sessions, productRepo, inventoryRepo, logger)
	orderHandler, err := orders.NewHandler(orderRepo, sessions, productRepo, gateway, orderProducer, logger)
	if err != nil {
		logger.Error("failed to create order handler", "error", err)
		os.Exit(1)
	}
	var paymentPublisher payment.EventPublisher
	if paymentProducer != nil {
		paymentPublisher = paymentProducer
	}
	paymentHandler := payment.NewHandler(gateway, orderRepo, paymentPublisher, logger)
	reportHandler := reports.NewHandler(reportRepo, logger)
	authHandler := auth.NewHandler(adminUser, adminHash, []byte(jwtSecret), logger)

	mux := http.NewServeMux()

	// Public catalog and cart.
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	mux.HandleFunc("GET /products/{productId}", telemetry.WithHTTPRoute(catalogHandler.HandleGet))
	mux.HandleFunc("GET /categories", telemetry.WithHTTPRoute(catalogHandler.HandleListCategories))
	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(cartHandler.HandleView))
	mux.HandleFunc("GET /cart/count", telemetry.WithHTTPRoute(cartHandler.HandleCount))
	mux.HandleFunc("POST /cart/items/{productId}", telemetry.WithHTTPRoute(cartHandler.HandleAdd))
	mux.HandleFunc("POST /cart/items/{productId}/increment", telemetry.WithHTTPRoute(cartHandler.HandleIncrement))
	mux.HandleFunc("POST /cart/items/{productId}/decrement", telemetry.WithHTTPRoute(cartHandler.HandleDecrement))
	mux.HandleFunc("DELETE /cart/items/{productId}", telemetry.WithHTTPRoute(cartHandler.HandleRemove))
	mux.HandleFunc("DELETE /cart", telemetry.WithHTTPRoute(cartHandler.HandleClear))

	// Checkout and payments.
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(orderHandler.HandleCheckout))
	mux.HandleFunc("GET /orders/{id}/confirmation", telemetry.WithHTTPRoute(orderHandler.HandleConfirmation))
	mux.HandleFunc("GET /payments/wompi/callback", telemetry.WithHTTPRoute(paymentHandler.HandleCallback))

	// Admin panel, JWT-guarded.
	mux.HandleFunc("POST /panel/login", telemetry.WithHTTPRoute(authHandler.HandleLogin))
	admin := http.NewServeMux()
	admin.HandleFunc("GET /panel/orders", telemetry.WithHTTPRoute(orderHandler.HandleAdminList))
	admin.HandleFunc("GET /panel/orders/unseen", telemetry.WithHTTPRoute(orderHandler.HandleUnseenCount))
	admin.HandleFunc("GET /panel/orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleAdminGet))
	admin.HandleFunc("PATCH /panel/orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleUpdateStatus))
	admin.HandleFunc("GET /panel/inventory", telemetry.WithHTTPRoute(inventoryHandler.HandleListStock))
	admin.HandleFunc("GET /panel/inventory/{productId}", telemetry.WithHTTPRoute(inventoryHandler.HandleGetStock))
	admin.HandleFunc("PUT /panel/inventory/{productId}", telemetry.WithHTTPRoute(inventoryHandler.HandleSetQuantity))
	admin.HandleFunc("GET /panel/summary", telemetry.WithHTTPRoute(reportHandler.HandleSummary))
	admin.HandleFunc("GET /panel/reports/export", telemetry.WithHTTPRoute(reportHandler.HandleExport))
	admin.HandleFunc("POST /panel/products", telemetry.WithHTTPRoute(catalogHandler.HandleCreate))
	admin.HandleFunc("PUT /panel/products/{productId}", telemetry.WithHTTPRoute(catalogHandler.HandleUpdate))
	admin.HandleFunc("DELETE /panel/products/{productId}", telemetry.WithHTTPRoute(catalogHandler.HandleDelete))
	mux.Handle("/panel/", authHandler.Middleware(admin))

	mux.Handle("GET /metrics", tel.MetricsHandler)

	port := envOr("PORT", "8080")

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      otelhttp.NewHandler(mux, "catalogo"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting catalogo service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
