// Package worker processes order events off the broker. Checkout stays fast
// because confirmation messages go out asynchronously here.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/tiendaverde/catalogo/internal/domain"
	"github.com/tiendaverde/catalogo/internal/payment"
)

var meter = otel.Meter("github.com/tiendaverde/catalogo/internal/worker")

// Notifier delivers a confirmation message for an order. Delivery transport
// is out of scope for the shop core; LogNotifier stands in for a real
// email or SMS integration.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, subject, body string) error {
	n.Logger.Info("notification sent", "subject", subject, "body", body)
	return nil
}

type ConfirmationHandler struct {
	notifier Notifier
	logger   *slog.Logger

	notificationsSent metric.Int64Counter
}

func NewConfirmationHandler(notifier Notifier, logger *slog.Logger) (*ConfirmationHandler, error) {
	notificationsSent, err := meter.Int64Counter("order_notifications_sent_total",
		metric.WithDescription("Order confirmation notifications delivered"))
	if err != nil {
		return nil, err
	}

	return &ConfirmationHandler{
		notifier:          notifier,
		logger:            logger,
		notificationsSent: notificationsSent,
	}, nil
}

// Handle consumes one order.created payload. Returning an error leaves the
// message uncommitted so it is redelivered.
func (h *ConfirmationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order created event: %w", err)
	}

	h.logger.Info("processing order created event", "order_id", event.OrderID)

	units := 0
	for _, line := range event.Lines {
		units += line.Quantity
	}

	subject := "Order received: " + payment.Reference(event.OrderID)
	body := fmt.Sprintf("Thanks %s, we received your order for %d items, total %d.%02d.",
		event.CustomerName, units, event.Total/100, event.Total%100)

	if err := h.notifier.Notify(ctx, subject, body); err != nil {
		h.logger.Error("failed to send confirmation", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation for order %s: %w", event.OrderID, err)
	}

	h.notificationsSent.Add(ctx, 1)
	h.logger.Info("order confirmation sent", "order_id", event.OrderID)
	return nil
}
