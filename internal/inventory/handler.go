package inventory

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tiendaverde/catalogo/internal/domain"
)

// StockStore is the slice of inventory persistence the admin handlers need.
type StockStore interface {
	ListAll(ctx context.Context) ([]domain.StockLevel, error)
	GetStock(ctx context.Context, productID int64) (*domain.StockLevel, error)
	SetQuantity(ctx context.Context, productID int64, quantity int) (bool, error)
}

type Handler struct {
	repo   StockStore
	logger *slog.Logger
}

func NewHandler(repo StockStore, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleListStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.repo.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list stock", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, levels)
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.PathValue("productId"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	stock, err := h.repo.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if stock == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, stock)
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

// HandleSetQuantity sets the absolute stock count for a product. Malformed
// or negative input is rejected with a validation error rather than being
// silently ignored.
func (h *Handler) HandleSetQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.PathValue("productId"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "quantity must be a number")
		return
	}

	if req.Quantity == nil {
		h.writeError(w, http.StatusUnprocessableEntity, "quantity is required")
		return
	}

	if *req.Quantity < 0 {
		h.writeError(w, http.StatusUnprocessableEntity, "quantity must not be negative")
		return
	}

	updated, err := h.repo.SetQuantity(r.Context(), productID, *req.Quantity)
	if err != nil {
		h.logger.Error("failed to set stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !updated {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	stock, err := h.repo.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get updated stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("stock updated", "product_id", productID, "quantity", *req.Quantity)
	h.writeJSON(w, http.StatusOK, stock)
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
