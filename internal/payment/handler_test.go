package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/tiendaverde/catalogo/internal/domain"
)

type fakeOrderStore struct {
	orders  map[string]*domain.Order
	updated map[string]domain.PaymentStatus
}

func newFakeOrderStore(orders ...*domain.Order) *fakeOrderStore {
	s := &fakeOrderStore{
		orders:  make(map[string]*domain.Order),
		updated: make(map[string]domain.PaymentStatus),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) UpdatePaymentStatus(_ context.Context, id string, status domain.PaymentStatus) (*domain.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	order.PaymentStatus = status
	s.updated[id] = status
	return order, nil
}

type capturedEvent struct {
	key   string
	event any
}

type fakePublisher struct {
	events []capturedEvent
}

func (p *fakePublisher) Publish(_ context.Context, key string, event any) error {
	p.events = append(p.events, capturedEvent{key: key, event: event})
	return nil
}

func callbackRequest(gateway *Gateway, reference, status string) *http.Request {
	q := url.Values{}
	q.Set("reference", reference)
	q.Set("status", status)
	q.Set("signature", gateway.Sign(reference, status))
	return httptest.NewRequest(http.MethodGet, "/payments/wompi/callback?"+q.Encode(), nil)
}

func TestHandleCallback(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	gateway := NewGateway("https://checkout.example.com/p/", "pub", "secret")

	t.Run("approved marks order paid", func(t *testing.T) {
		store := newFakeOrderStore(&domain.Order{ID: testOrderID, PaymentStatus: domain.PaymentStatusPending})
		publisher := &fakePublisher{}
		handler := NewHandler(gateway, store, publisher, logger)

		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, callbackRequest(gateway, Reference(testOrderID), "APPROVED"))

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		if got := rec.Header().Get("Location"); got != "/orders/"+testOrderID+"/confirmation" {
			t.Errorf("unexpected redirect %q", got)
		}
		if store.updated[testOrderID] != domain.PaymentStatusPaid {
			t.Errorf("expected payment status %q, got %q", domain.PaymentStatusPaid, store.updated[testOrderID])
		}
		if len(publisher.events) != 1 {
			t.Fatalf("expected one published event, got %d", len(publisher.events))
		}
		event, ok := publisher.events[0].event.(domain.PaymentUpdatedEvent)
		if !ok {
			t.Fatalf("unexpected event type %T", publisher.events[0].event)
		}
		if event.PaymentStatus != domain.PaymentStatusPaid {
			t.Errorf("event carries status %q", event.PaymentStatus)
		}
	})

	t.Run("declined marks order rejected", func(t *testing.T) {
		store := newFakeOrderStore(&domain.Order{ID: testOrderID, PaymentStatus: domain.PaymentStatusPending})
		handler := NewHandler(gateway, store, nil, logger)

		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, callbackRequest(gateway, Reference(testOrderID), "DECLINED"))

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		if store.updated[testOrderID] != domain.PaymentStatusRejected {
			t.Errorf("expected payment status %q, got %q", domain.PaymentStatusRejected, store.updated[testOrderID])
		}
	})

	t.Run("unrecognized status stays pending", func(t *testing.T) {
		store := newFakeOrderStore(&domain.Order{ID: testOrderID, PaymentStatus: domain.PaymentStatusPending})
		handler := NewHandler(gateway, store, nil, logger)

		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, callbackRequest(gateway, Reference(testOrderID), "VOIDED"))

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		if store.updated[testOrderID] != domain.PaymentStatusPending {
			t.Errorf("expected payment status %q, got %q", domain.PaymentStatusPending, store.updated[testOrderID])
		}
	})

	t.Run("bad signature is rejected", func(t *testing.T) {
		store := newFakeOrderStore(&domain.Order{ID: testOrderID, PaymentStatus: domain.PaymentStatusPending})
		handler := NewHandler(gateway, store, nil, logger)

		q := url.Values{}
		q.Set("reference", Reference(testOrderID))
		q.Set("status", "APPROVED")
		q.Set("signature", "forged")
		req := httptest.NewRequest(http.MethodGet, "/payments/wompi/callback?"+q.Encode(), nil)

		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
		if len(store.updated) != 0 {
			t.Error("order must not be touched on signature mismatch")
		}
	})

	t.Run("malformed reference redirects to catalog", func(t *testing.T) {
		store := newFakeOrderStore()
		handler := NewHandler(gateway, store, nil, logger)

		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, callbackRequest(gateway, "PEDIDOgarbage", "APPROVED"))

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		if got := rec.Header().Get("Location"); got != "/products" {
			t.Errorf("unexpected redirect %q", got)
		}
	})

	t.Run("unknown order redirects to catalog", func(t *testing.T) {
		store := newFakeOrderStore()
		handler := NewHandler(gateway, store, nil, logger)

		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, callbackRequest(gateway, Reference(testOrderID), "APPROVED"))

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		if got := rec.Header().Get("Location"); got != "/products" {
			t.Errorf("unexpected redirect %q", got)
		}
	})
}
