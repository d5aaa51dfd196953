package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/tiendaverde/catalogo/internal/cart"
	"github.com/tiendaverde/catalogo/internal/domain"
	"github.com/tiendaverde/catalogo/internal/messaging"
	"github.com/tiendaverde/catalogo/internal/payment"
	"github.com/tiendaverde/catalogo/internal/session"
)

var meter = otel.Meter("github.com/tiendaverde/catalogo/internal/orders")

type Handler struct {
	repo     *OrderRepository
	sessions session.Store
	products cart.ProductStore
	gateway  *payment.Gateway
	producer *messaging.Producer
	logger   *slog.Logger

	ordersCreated    metric.Int64Counter
	checkoutRejected metric.Int64Counter
}

func NewHandler(repo *OrderRepository, sessions session.Store, products cart.ProductStore, gateway *payment.Gateway, producer *messaging.Producer, logger *slog.Logger) (*Handler, error) {
	ordersCreated, err := meter.Int64Counter("orders_created_total",
		metric.WithDescription("Orders created through checkout"))
	if err != nil {
		return nil, err
	}

	checkoutRejected, err := meter.Int64Counter("checkout_rejected_total",
		metric.WithDescription("Checkout attempts rejected before order creation"))
	if err != nil {
		return nil, err
	}

	return &Handler{
		repo:             repo,
		sessions:         sessions,
		products:         products,
		gateway:          gateway,
		producer:         producer,
		logger:           logger,
		ordersCreated:    ordersCreated,
		checkoutRejected: checkoutRejected,
	}, nil
}

type checkoutRequest struct {
	CustomerName  string `json:"customer_name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	PaymentMethod string `json:"payment_method"`
}

// validate returns the first missing required field, empty when complete.
func (req *checkoutRequest) validate() string {
	switch {
	case strings.TrimSpace(req.CustomerName) == "":
		return "customer_name is required"
	case strings.TrimSpace(req.Phone) == "":
		return "phone is required"
	case strings.TrimSpace(req.Address) == "":
		return "address is required"
	case strings.TrimSpace(req.PaymentMethod) == "":
		return "payment_method is required"
	}
	return ""
}

type checkoutResponse struct {
	Order      *domain.Order `json:"order"`
	PaymentURL string        `json:"payment_url,omitempty"`
}

// HandleCheckout turns the session cart into a persisted order.
//
// Field validation and cart resolution happen before any write; stock
// reservation and order creation are one transaction inside the repository,
// so a failed checkout leaves cart and inventory exactly as they were. The
// cart is cleared only after the order committed.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	sid := cart.SessionID(w, r)

	sessionCart, err := h.sessions.Get(r.Context(), sid)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "session_id", sid)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if sessionCart.Empty() {
		http.Redirect(w, r, "/products", http.StatusSeeOther)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := req.validate(); msg != "" {
		h.checkoutRejected.Add(r.Context(), 1)
		h.writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	view, _, err := cart.Resolve(r.Context(), sessionCart, h.products)
	if err != nil {
		if errors.Is(err, cart.ErrProductNotFound) {
			http.Redirect(w, r, "/products", http.StatusSeeOther)
			return
		}
		h.logger.Error("failed to resolve cart", "error", err, "session_id", sid)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	order := &domain.Order{
		CustomerName:  req.CustomerName,
		Phone:         req.Phone,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentStatusPending,
		Status:        domain.OrderStatusPending,
		Total:         view.Total,
	}
	for _, item := range view.Items {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID:   item.Product.ID,
			ProductName: item.Product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}

	if err := h.repo.Create(r.Context(), order); err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			h.checkoutRejected.Add(r.Context(), 1)
			h.writeJSON(w, http.StatusConflict, map[string]any{
				"error":      stockErr.Error(),
				"product_id": stockErr.ProductID,
				"available":  stockErr.Available,
			})
			return
		}
		h.logger.Error("failed to create order", "error", err, "session_id", sid)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	sessionCart.Clear()
	if err := h.sessions.Put(r.Context(), sid, sessionCart); err != nil {
		h.logger.Error("failed to clear cart after checkout", "error", err, "order_id", order.ID)
	}

	if h.producer != nil {
		event := domain.OrderCreatedEvent{
			OrderID:      order.ID,
			CustomerName: order.CustomerName,
			Total:        order.Total,
			Lines:        order.Lines,
			Timestamp:    order.CreatedAt,
		}
		if err := h.producer.Publish(r.Context(), order.ID, event); err != nil {
			h.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
		}
	}

	h.ordersCreated.Add(r.Context(), 1)
	h.logger.Info("order created", "order_id", order.ID, "total", order.Total, "payment_method", order.PaymentMethod)

	resp := checkoutResponse{Order: order}
	if order.PaymentMethod == payment.MethodWompi && h.gateway != nil {
		resp.PaymentURL = h.gateway.RedirectURL(order)
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) HandleConfirmation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleAdminList lists orders with optional filters and marks everything
// listed as seen, clearing the new-orders badge.
func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	filter, msg := parseListFilter(r)
	if msg != "" {
		h.writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	result, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.repo.MarkAllSeen(r.Context()); err != nil {
		h.logger.Error("failed to mark orders as seen", "error", err)
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleAdminGet(w http.ResponseWriter, r *http.Request) {
	h.HandleConfirmation(w, r)
}

func (h *Handler) HandleUnseenCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.repo.CountUnseen(r.Context())
	if err != nil {
		h.logger.Error("failed to count unseen orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"unseen": count})
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !req.Status.Valid() {
		h.writeError(w, http.StatusUnprocessableEntity, "unknown order status")
		return
	}

	order, err := h.repo.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.logger.Error("failed to update order status", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

// parseListFilter reads from/to (YYYY-MM-DD), status and payment_status
// query parameters. The to date is exclusive at the following midnight so a
// range covers whole days.
func parseListFilter(r *http.Request) (ListFilter, string) {
	var filter ListFilter
	q := r.URL.Query()

	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, "invalid from date, expected YYYY-MM-DD"
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, "invalid to date, expected YYYY-MM-DD"
		}
		filter.To = t.AddDate(0, 0, 1)
	}
	if status := q.Get("status"); status != "" {
		s := domain.OrderStatus(status)
		if !s.Valid() {
			return filter, "unknown order status"
		}
		filter.Status = s
	}
	if ps := q.Get("payment_status"); ps != "" {
		filter.PaymentStatus = domain.PaymentStatus(ps)
	}

	return filter, ""
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
