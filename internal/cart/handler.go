package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/tiendaverde/catalogo/internal/domain"
	"github.com/tiendaverde/catalogo/internal/session"
)

// SessionCookie carries the cart session ID. The cookie is issued on first
// contact with any cart endpoint.
const SessionCookie = "cart_session"

type Handler struct {
	sessions session.Store
	products ProductStore
	stock    StockReader
	logger   *slog.Logger
}

func NewHandler(sessions session.Store, products ProductStore, stock StockReader, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		products: products,
		stock:    stock,
		logger:   logger,
	}
}

// SessionID returns the session ID from the request cookie, issuing a new
// one when absent.
func SessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	sid := SessionID(w, r)

	cart, err := h.sessions.Get(r.Context(), sid)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "session_id", sid)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	view, dirty, err := Resolve(r.Context(), cart, h.products)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "a product in the cart no longer exists")
			return
		}
		h.logger.Error("failed to resolve cart", "error", err, "session_id", sid)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if dirty {
		if err := h.sessions.Put(r.Context(), sid, cart); err != nil {
			h.logger.Error("failed to persist migrated cart", "error", err, "session_id", sid)
		}
	}

	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	sid := SessionID(w, r)

	cart, err := h.sessions.Get(r.Context(), sid)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "session_id", sid)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"count": cart.Count()})
}

type addRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}

	qty := 1
	if r.Body != nil && r.ContentLength > 0 {
		var req addRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Quantity > 0 {
			qty = req.Quantity
		}
	}

	product, err := h.products.GetByID(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.mutate(w, r, func(cart *domain.Cart) error {
		cart.Add(productID, product.Price, qty)
		return nil
	})
}

// HandleIncrement adds one unit, refusing to exceed available stock.
func (h *Handler) HandleIncrement(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}

	product, err := h.products.GetByID(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	stock, err := h.stock.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	available := 0
	if stock != nil {
		available = stock.Quantity
	}

	h.mutate(w, r, func(cart *domain.Cart) error {
		if cart.Quantity(productID) >= available {
			return fmt.Errorf("only %d units of %s available", available, product.Name)
		}
		cart.Add(productID, product.Price, 1)
		return nil
	})
}

func (h *Handler) HandleDecrement(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}

	h.mutate(w, r, func(cart *domain.Cart) error {
		cart.Decrement(productID, 1)
		return nil
	})
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}

	h.mutate(w, r, func(cart *domain.Cart) error {
		cart.Remove(productID)
		return nil
	})
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(cart *domain.Cart) error {
		cart.Clear()
		return nil
	})
}

// mutate loads the session cart, applies fn, and persists the result. The
// cart is saved after every mutation, including a decrement that empties an
// entry. A non-nil error from fn rejects the mutation without persisting.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(cart *domain.Cart) error) {
	sid := SessionID(w, r)

	cart, err := h.sessions.Get(r.Context(), sid)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "session_id", sid)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := fn(cart); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}

	if err := h.sessions.Put(r.Context(), sid, cart); err != nil {
		h.logger.Error("failed to persist cart", "error", err, "session_id", sid)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"count": cart.Count()})
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("productId"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
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
