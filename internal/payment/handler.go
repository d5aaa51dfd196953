package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tiendaverde/catalogo/internal/domain"
)

// OrderStore is the slice of order persistence the callback needs.
type OrderStore interface {
	UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) (*domain.Order, error)
}

// EventPublisher publishes payment events. Nil-safe at the call site, like
// the order producer: no broker configured means no events.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	gateway   *Gateway
	orders    OrderStore
	publisher EventPublisher
	logger    *slog.Logger
}

func NewHandler(gateway *Gateway, orders OrderStore, publisher EventPublisher, logger *slog.Logger) *Handler {
	return &Handler{
		gateway:   gateway,
		orders:    orders,
		publisher: publisher,
		logger:    logger,
	}
}

// HandleCallback processes the gateway's payment result. The callback is a
// trust boundary: the signature is verified before anything is read from it,
// and a bad or missing reference redirects to the catalog without touching
// any order.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	status := r.URL.Query().Get("status")
	signature := r.URL.Query().Get("signature")

	if !h.gateway.VerifySignature(reference, status, signature) {
		h.logger.Warn("payment callback signature mismatch", "reference", reference)
		h.writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	orderID, err := ParseReference(reference)
	if err != nil {
		h.logger.Warn("payment callback with malformed reference", "reference", reference)
		http.Redirect(w, r, "/products", http.StatusFound)
		return
	}

	paymentStatus := MapStatus(status)

	order, err := h.orders.UpdatePaymentStatus(r.Context(), orderID, paymentStatus)
	if err != nil {
		h.logger.Error("failed to update payment status", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.logger.Warn("payment callback for unknown order", "order_id", orderID)
		http.Redirect(w, r, "/products", http.StatusFound)
		return
	}

	if h.publisher != nil {
		event := domain.PaymentUpdatedEvent{
			OrderID:       order.ID,
			PaymentStatus: order.PaymentStatus,
			Timestamp:     time.Now().UTC(),
		}
		if err := h.publisher.Publish(r.Context(), order.ID, event); err != nil {
			h.logger.Error("failed to publish payment updated event", "error", err, "order_id", order.ID)
		}
	}

	h.logger.Info("payment status updated", "order_id", order.ID, "payment_status", order.PaymentStatus, "gateway_status", status)
	http.Redirect(w, r, "/orders/"+order.ID+"/confirmation", http.StatusFound)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
