package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pendiente"
	OrderStatusCancelled OrderStatus = "cancelado"
	OrderStatusDelivered OrderStatus = "entregado"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCancelled, OrderStatusDelivered:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pendiente"
	PaymentStatusPaid     PaymentStatus = "pagado"
	PaymentStatusRejected PaymentStatus = "rechazado"
)

// OrderLine is write-once: unit price and subtotal are the cart snapshot
// values at the time of sale, never re-read from the product.
type OrderLine struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

type Order struct {
	ID            string        `json:"id"`
	CustomerName  string        `json:"customer_name"`
	Phone         string        `json:"phone"`
	Address       string        `json:"address"`
	PaymentMethod string        `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Status        OrderStatus   `json:"status"`
	Total         int64         `json:"total"`
	SeenByAdmin   bool          `json:"seen_by_admin"`
	Lines         []OrderLine   `json:"lines"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
