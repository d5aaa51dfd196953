//go:build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tiendaverde/catalogo/internal/cart"
	"github.com/tiendaverde/catalogo/internal/catalog"
	"github.com/tiendaverde/catalogo/internal/domain"
	"github.com/tiendaverde/catalogo/internal/inventory"
	"github.com/tiendaverde/catalogo/internal/messaging"
	"github.com/tiendaverde/catalogo/internal/orders"
	"github.com/tiendaverde/catalogo/internal/payment"
	"github.com/tiendaverde/catalogo/internal/session"
)

// app wires the storefront the way the server binary does, minus telemetry
// exporters and the kafka producer.
type app struct {
	mux      *http.ServeMux
	sessions session.Store
	orders   *orders.OrderRepository
	products *catalog.ProductRepository
	stock    *inventory.InventoryRepository
	gateway  *payment.Gateway
}

func newApp(t *testing.T, connStr string) (*app, func()) {
	t.Helper()

	db, err := OpenDB(connStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewMemoryStore()

	productRepo := catalog.NewProductRepository(db)
	inventoryRepo := inventory.NewInventoryRepository(db)
	orderRepo := orders.NewOrderRepository(db)
	gateway := payment.NewGateway("https://checkout.example.com/p/", "pub_test", "integration-secret")

	cartHandler := cart.NewHandler(sessions, productRepo, inventoryRepo, logger)
	orderHandler, err := orders.NewHandler(orderRepo, sessions, productRepo, gateway, nil, logger)
	if err != nil {
		t.Fatalf("failed to create order handler: %v", err)
	}
	paymentHandler := payment.NewHandler(gateway, orderRepo, nil, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", cartHandler.HandleView)
	mux.HandleFunc("GET /cart/count", cartHandler.HandleCount)
	mux.HandleFunc("POST /cart/items/{productId}", cartHandler.HandleAdd)
	mux.HandleFunc("POST /cart/items/{productId}/increment", cartHandler.HandleIncrement)
	mux.HandleFunc("POST /cart/items/{productId}/decrement", cartHandler.HandleDecrement)
	mux.HandleFunc("DELETE /cart/items/{productId}", cartHandler.HandleRemove)
	mux.HandleFunc("DELETE /cart", cartHandler.HandleClear)
	mux.HandleFunc("POST /checkout", orderHandler.HandleCheckout)
	mux.HandleFunc("GET /orders/{id}/confirmation", orderHandler.HandleConfirmation)
	mux.HandleFunc("GET /payments/wompi/callback", paymentHandler.HandleCallback)

	cleanup := func() { _ = db.Close() }

	return &app{
		mux:      mux,
		sessions: sessions,
		orders:   orderRepo,
		products: productRepo,
		stock:    inventoryRepo,
		gateway:  gateway,
	}, cleanup
}

// client keeps the cart session cookie across requests, standing in for one
// shopper's browser.
type client struct {
	mux    http.Handler
	cookie *http.Cookie
}

func (c *client) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	rec := httptest.NewRecorder()
	c.mux.ServeHTTP(rec, req)

	if c.cookie == nil {
		for _, cookie := range rec.Result().Cookies() {
			if cookie.Name == cart.SessionCookie {
				c.cookie = cookie
			}
		}
	}

	return rec
}

type checkoutResult struct {
	Order      *domain.Order `json:"order"`
	PaymentURL string        `json:"payment_url"`
}

func checkoutBody(method string) string {
	return fmt.Sprintf(`{"customer_name": "Ana Torres", "phone": "3001234567", "address": "Calle 12 #3-45", "payment_method": %q}`, method)
}

func quantityOf(t *testing.T, a *app, ctx context.Context, productID int64) int {
	t.Helper()
	stock, err := a.stock.GetStock(ctx, productID)
	if err != nil {
		t.Fatalf("failed to get stock for product %d: %v", productID, err)
	}
	if stock == nil {
		t.Fatalf("no inventory row for product %d", productID)
	}
	return stock.Quantity
}

func TestCheckoutFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	a, cleanup := newApp(t, pg.ConnStr)
	defer cleanup()

	shopper := &client{mux: a.mux}

	if rec := shopper.do(t, http.MethodPost, "/cart/items/1", `{"quantity": 2}`); rec.Code != http.StatusOK {
		t.Fatalf("failed to add product 1: %d: %s", rec.Code, rec.Body.String())
	}
	if rec := shopper.do(t, http.MethodPost, "/cart/items/2", ""); rec.Code != http.StatusOK {
		t.Fatalf("failed to add product 2: %d: %s", rec.Code, rec.Body.String())
	}

	rec := shopper.do(t, http.MethodPost, "/checkout", checkoutBody("Contraentrega"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var result checkoutResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode checkout response: %v", err)
	}
	if result.Order == nil || result.Order.ID == "" {
		t.Fatal("expected a created order with an ID")
	}
	if result.Order.Total != 2500 {
		t.Fatalf("expected total 2500, got %d", result.Order.Total)
	}
	if result.PaymentURL != "" {
		t.Fatalf("cash on delivery must not produce a payment url, got %q", result.PaymentURL)
	}
	if result.Order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected payment status %s, got %s", domain.PaymentStatusPending, result.Order.PaymentStatus)
	}
	if len(result.Order.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(result.Order.Lines))
	}

	stored, err := a.orders.GetByID(ctx, result.Order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if stored == nil {
		t.Fatal("order not found in database")
	}
	for _, line := range stored.Lines {
		switch line.ProductID {
		case 1:
			if line.Quantity != 2 || line.UnitPrice != 1000 || line.Subtotal != 2000 {
				t.Fatalf("unexpected line for product 1: %+v", line)
			}
		case 2:
			if line.Quantity != 1 || line.UnitPrice != 500 || line.Subtotal != 500 {
				t.Fatalf("unexpected line for product 2: %+v", line)
			}
		default:
			t.Fatalf("unexpected product %d on order", line.ProductID)
		}
	}

	if got := quantityOf(t, a, ctx, 1); got != 98 {
		t.Fatalf("expected stock 98 for product 1, got %d", got)
	}
	if got := quantityOf(t, a, ctx, 2); got != 99 {
		t.Fatalf("expected stock 99 for product 2, got %d", got)
	}

	countRec := shopper.do(t, http.MethodGet, "/cart/count", "")
	var count map[string]int
	if err := json.NewDecoder(countRec.Body).Decode(&count); err != nil {
		t.Fatalf("failed to decode cart count: %v", err)
	}
	if count["count"] != 0 {
		t.Fatalf("expected cart emptied after checkout, got %d items", count["count"])
	}

	confirmRec := shopper.do(t, http.MethodGet, "/orders/"+result.Order.ID+"/confirmation", "")
	if confirmRec.Code != http.StatusOK {
		t.Fatalf("expected confirmation 200, got %d", confirmRec.Code)
	}
}

func TestCheckoutAllOrNothing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	a, cleanup := newApp(t, pg.ConnStr)
	defer cleanup()

	shopper := &client{mux: a.mux}

	if rec := shopper.do(t, http.MethodPost, "/cart/items/1", `{"quantity": 2}`); rec.Code != http.StatusOK {
		t.Fatalf("failed to add product 1: %d", rec.Code)
	}
	// Product 3 is seeded with only 10 units.
	if rec := shopper.do(t, http.MethodPost, "/cart/items/3", `{"quantity": 11}`); rec.Code != http.StatusOK {
		t.Fatalf("failed to add product 3: %d", rec.Code)
	}

	rec := shopper.do(t, http.MethodPost, "/checkout", checkoutBody("Contraentrega"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}

	var rejection struct {
		Error     string `json:"error"`
		ProductID int64  `json:"product_id"`
		Available int    `json:"available"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&rejection); err != nil {
		t.Fatalf("failed to decode rejection: %v", err)
	}
	if rejection.ProductID != 3 {
		t.Fatalf("expected product 3 in rejection, got %d", rejection.ProductID)
	}
	if rejection.Available != 10 {
		t.Fatalf("expected 10 available, got %d", rejection.Available)
	}

	if got := quantityOf(t, a, ctx, 1); got != 100 {
		t.Fatalf("expected stock for product 1 untouched at 100, got %d", got)
	}
	if got := quantityOf(t, a, ctx, 3); got != 10 {
		t.Fatalf("expected stock for product 3 untouched at 10, got %d", got)
	}

	list, err := a.orders.List(ctx, orders.ListFilter{})
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no orders after rejected checkout, got %d", len(list))
	}
}

func TestConcurrentCheckout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	a, cleanup := newApp(t, pg.ConnStr)
	defer cleanup()

	// Two shoppers both want all 10 seeded units of product 3.
	shoppers := []*client{{mux: a.mux}, {mux: a.mux}}
	for i, shopper := range shoppers {
		if rec := shopper.do(t, http.MethodPost, "/cart/items/3", `{"quantity": 10}`); rec.Code != http.StatusOK {
			t.Fatalf("shopper %d failed to fill cart: %d", i, rec.Code)
		}
	}

	codes := make([]int, len(shoppers))
	var wg sync.WaitGroup
	for i, shopper := range shoppers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = shopper.do(t, http.MethodPost, "/checkout", checkoutBody("Contraentrega")).Code
		}()
	}
	wg.Wait()

	created, rejected := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			rejected++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	if created != 1 || rejected != 1 {
		t.Fatalf("expected exactly one success and one rejection, got %d created, %d rejected", created, rejected)
	}

	if got := quantityOf(t, a, ctx, 3); got != 0 {
		t.Fatalf("expected stock 0 after the winning checkout, got %d", got)
	}
}

func TestWompiCallback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	a, cleanup := newApp(t, pg.ConnStr)
	defer cleanup()

	placeOrder := func(t *testing.T) *domain.Order {
		t.Helper()
		shopper := &client{mux: a.mux}
		if rec := shopper.do(t, http.MethodPost, "/cart/items/2", ""); rec.Code != http.StatusOK {
			t.Fatalf("failed to add product: %d", rec.Code)
		}
		rec := shopper.do(t, http.MethodPost, "/checkout", checkoutBody(payment.MethodWompi))
		if rec.Code != http.StatusCreated {
			t.Fatalf("checkout failed: %d: %s", rec.Code, rec.Body.String())
		}
		var result checkoutResult
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode checkout response: %v", err)
		}
		if result.PaymentURL == "" {
			t.Fatal("expected a payment redirect url")
		}
		return result.Order
	}

	callback := func(t *testing.T, reference, status, signature string) *httptest.ResponseRecorder {
		t.Helper()
		path := fmt.Sprintf("/payments/wompi/callback?reference=%s&status=%s&signature=%s", reference, status, signature)
		anon := &client{mux: a.mux}
		return anon.do(t, http.MethodGet, path, "")
	}

	t.Run("approved", func(t *testing.T) {
		order := placeOrder(t)
		ref := payment.Reference(order.ID)

		rec := callback(t, ref, "APPROVED", a.gateway.Sign(ref, "APPROVED"))
		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Location"); got != "/orders/"+order.ID+"/confirmation" {
			t.Fatalf("unexpected redirect %q", got)
		}

		updated, err := a.orders.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("failed to fetch order: %v", err)
		}
		if updated.PaymentStatus != domain.PaymentStatusPaid {
			t.Fatalf("expected payment status %s, got %s", domain.PaymentStatusPaid, updated.PaymentStatus)
		}
	})

	t.Run("declined", func(t *testing.T) {
		order := placeOrder(t)
		ref := payment.Reference(order.ID)

		if rec := callback(t, ref, "DECLINED", a.gateway.Sign(ref, "DECLINED")); rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}

		updated, err := a.orders.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("failed to fetch order: %v", err)
		}
		if updated.PaymentStatus != domain.PaymentStatusRejected {
			t.Fatalf("expected payment status %s, got %s", domain.PaymentStatusRejected, updated.PaymentStatus)
		}
	})

	t.Run("forged signature", func(t *testing.T) {
		order := placeOrder(t)
		ref := payment.Reference(order.ID)

		if rec := callback(t, ref, "APPROVED", "forged"); rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}

		updated, err := a.orders.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("failed to fetch order: %v", err)
		}
		if updated.PaymentStatus != domain.PaymentStatusPending {
			t.Fatalf("expected payment status untouched, got %s", updated.PaymentStatus)
		}
	})
}

func TestProductDeleteProtection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	a, cleanup := newApp(t, pg.ConnStr)
	defer cleanup()

	shopper := &client{mux: a.mux}
	if rec := shopper.do(t, http.MethodPost, "/cart/items/1", ""); rec.Code != http.StatusOK {
		t.Fatalf("failed to add product: %d", rec.Code)
	}
	if rec := shopper.do(t, http.MethodPost, "/checkout", checkoutBody("Contraentrega")); rec.Code != http.StatusCreated {
		t.Fatalf("checkout failed: %d: %s", rec.Code, rec.Body.String())
	}

	if _, err := a.products.Delete(ctx, 1); !errors.Is(err, catalog.ErrProductReferenced) {
		t.Fatalf("expected ErrProductReferenced for a sold product, got %v", err)
	}

	fresh := &domain.Product{Name: "Taza térmica", Price: 3500, CategoryID: 2}
	if err := a.products.Create(ctx, fresh); err != nil {
		t.Fatalf("failed to create product: %v", err)
	}
	deleted, err := a.products.Delete(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("failed to delete unsold product: %v", err)
	}
	if !deleted {
		t.Fatal("expected unsold product to be deleted")
	}
}

func TestKafkaRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderCreated)
	defer func() { _ = producer.Close() }()

	event := domain.OrderCreatedEvent{
		OrderID:      "4c52ec6a-41bc-4b2f-9f28-1d8f1f2f8e11",
		CustomerName: "Ana Torres",
		Total:        2500,
		Lines: []domain.OrderLine{
			{ProductID: 1, ProductName: "Café Sierra Nevada 500g", Quantity: 2, UnitPrice: 1000, Subtotal: 2000},
		},
		Timestamp: time.Now().UTC(),
	}
	if err := producer.Publish(ctx, event.OrderID, event); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderCreated, "integration-test")
	defer func() { _ = consumer.Close() }()

	received := make(chan domain.OrderCreatedEvent, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		_ = consumer.Consume(consumeCtx, func(ctx context.Context, payload []byte) error {
			var got domain.OrderCreatedEvent
			if err := json.Unmarshal(payload, &got); err != nil {
				return err
			}
			received <- got
			stop()
			return nil
		})
	}()

	select {
	case got := <-received:
		if got.OrderID != event.OrderID {
			t.Fatalf("expected order %s, got %s", event.OrderID, got.OrderID)
		}
		if got.Total != 2500 || len(got.Lines) != 1 {
			t.Fatalf("unexpected event payload: %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
